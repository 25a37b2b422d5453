// Package bridge serves polled printer state over HTTP and WebSocket and
// forwards a few device actions to the printer.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/john/flashforge/printer"
)

// ServerConfig holds the listen address of the bridge.
type ServerConfig struct {
	Host string
	Port int
}

// Device is the part of the printer facade the bridge uses.
type Device interface {
	Info() (string, error)
	Files() ([]string, error)
	Home() error
	SetLED(r, g, b uint8) error
}

// DiscoverFunc scans the network for printers.
type DiscoverFunc func(timeout time.Duration) ([]printer.DiscoveredPrinter, error)

// Server is the HTTP/WebSocket bridge.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	device     Device
	state      *printer.State
	discover   DiscoverFunc
	wsHub      *WSHub
}

// NewServer creates a bridge for one printer.
func NewServer(cfg ServerConfig, dev Device, st *printer.State, discover DiscoverFunc) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		device:   dev,
		state:    st,
		discover: discover,
		wsHub:    NewWSHub(),
	}

	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: corsMiddleware(s.router),
	}
	return s
}

// Hub returns the WebSocket hub for status broadcasts.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) registerRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	api.HandleFunc("/files", s.handleFiles).Methods(http.MethodGet)
	api.HandleFunc("/discover", s.handleDiscover).Methods(http.MethodGet)
	api.HandleFunc("/home", s.handleHome).Methods(http.MethodPost)
	api.HandleFunc("/led", s.handleLED).Methods(http.MethodPost)

	s.router.HandleFunc("/websocket", s.wsHub.HandleWebSocket).Methods(http.MethodGet)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"result": s.state.Snapshot(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.device.Info()
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"result": info,
	})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.device.Files()
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"result": files,
	})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	timeout := 200 * time.Millisecond
	if v := r.URL.Query().Get("timeout_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 || ms > 10000 {
			writeJSONError(w, http.StatusBadRequest, "timeout_ms must be between 1 and 10000")
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	printers, err := s.discover(timeout)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"result": printers,
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if err := s.device.Home(); err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"result": "ok"})
}

// ledRequest is either {"on": bool} or an explicit color.
type ledRequest struct {
	On *bool  `json:"on"`
	R  *uint8 `json:"r"`
	G  *uint8 `json:"g"`
	B  *uint8 `json:"b"`
}

func (s *Server) handleLED(w http.ResponseWriter, r *http.Request) {
	var req ledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var red, green, blue uint8
	switch {
	case req.On != nil:
		if *req.On {
			red, green, blue = 255, 255, 255
		}
	case req.R != nil && req.G != nil && req.B != nil:
		red, green, blue = *req.R, *req.G, *req.B
	default:
		writeJSONError(w, http.StatusBadRequest, `expected {"on": bool} or {"r","g","b"}`)
		return
	}

	if err := s.device.SetLED(red, green, blue); err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{"result": "ok"})
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	log.Printf("Bridge server starting on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and closes WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.CloseAll()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": message,
		},
	})
}

// corsMiddleware adds CORS headers for browser frontends.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
