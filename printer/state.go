package printer

import (
	"log"
	"sync"
	"time"

	"github.com/john/flashforge/ffp"
)

// StatusCallback is called when printer status is updated.
type StatusCallback func(state *State)

// StateData holds printer state values without synchronization.
// Safe to copy by value.
type StateData struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address"`

	Status       *ffp.Status       `json:"status,omitempty"`
	Temperatures *ffp.Temperatures `json:"temperatures,omitempty"`
	Progress     *ffp.Progress     `json:"progress,omitempty"`

	// LastError is the error of the most recent failed poll step.
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State provides thread-safe access to StateData.
type State struct {
	mu   sync.RWMutex
	data StateData
}

// NewState creates an empty state for the printer at addr.
func NewState(addr string) *State {
	return &State{data: StateData{Address: addr}}
}

// Snapshot returns a copy of the current state data.
func (s *State) Snapshot() StateData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

func (s *State) update(fn func(d *StateData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.data)
	s.data.UpdatedAt = time.Now()
}

// StatePoller periodically polls the printer and updates state. Poll steps
// run one after another on the shared client.
type StatePoller struct {
	client   *Client
	state    *State
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	callback StatusCallback
}

// NewStatePoller creates a new poller.
func NewStatePoller(client *Client, state *State, interval time.Duration, cb StatusCallback) *StatePoller {
	return &StatePoller{
		client:   client,
		state:    state,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		callback: cb,
	}
}

// Start begins polling in a goroutine.
func (sp *StatePoller) Start() {
	go sp.run()
}

// Stop halts the polling loop and waits for the current poll to finish.
func (sp *StatePoller) Stop() {
	close(sp.stopCh)
	<-sp.doneCh
}

func (sp *StatePoller) run() {
	defer close(sp.doneCh)

	ticker := time.NewTicker(sp.interval)
	defer ticker.Stop()

	// Initial poll
	sp.Poll()

	for {
		select {
		case <-ticker.C:
			sp.Poll()
		case <-sp.stopCh:
			return
		}
	}
}

// Poll runs one status, temperature and progress query and publishes the
// result. A failed step keeps the previous value of its field.
func (sp *StatePoller) Poll() {
	var (
		status   *ffp.Status
		temps    *ffp.Temperatures
		progress *ffp.Progress
		lastErr  error
	)

	if s, err := sp.client.Status(); err != nil {
		lastErr = err
	} else {
		status = &s
	}
	if lastErr == nil {
		if t, err := sp.client.Temperatures(); err != nil {
			lastErr = err
		} else {
			temps = &t
		}
	}
	if lastErr == nil {
		if p, err := sp.client.Progress(); err != nil {
			lastErr = err
		} else {
			progress = &p
		}
	}

	switch {
	case lastErr == nil:
	case IsTransportError(lastErr):
		log.Printf("Printer unreachable, retrying in %s: %v", sp.interval, lastErr)
	default:
		log.Printf("Status poll error: %v", lastErr)
	}

	sp.state.update(func(d *StateData) {
		d.Connected = sp.client.Connected()
		if status != nil {
			d.Status = status
		}
		if temps != nil {
			d.Temperatures = temps
		}
		if progress != nil {
			d.Progress = progress
		}
		d.LastError = ""
		if lastErr != nil {
			d.LastError = lastErr.Error()
		}
	})

	if sp.callback != nil {
		sp.callback(sp.state)
	}
}
