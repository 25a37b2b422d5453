// Command flfctl controls networked FlashForge 3D printers.
//
// Usage:
//
//	flfctl [flags] <command> [args]
//
// Commands:
//
//	scan [-timeout ms] [-unique]  discover printers with a multicast UDP probe
//	info                          print machine information
//	status                        print machine status and temperatures
//	temp                          print temperatures
//	progress                      print SD print progress
//	ls                            list files in internal storage
//	led on|off                    switch the chamber LED
//	rename <name>                 rename the printer
//	home                          home all axes
//	serve                         poll the printer and serve its state over HTTP/WebSocket
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/john/flashforge/bridge"
	"github.com/john/flashforge/ffp"
	"github.com/john/flashforge/printer"
)

const defaultConfigPath = "flfctl.yaml"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Getenv); err != nil {
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, errUsage) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

var errUsage = errors.New("usage")

// run executes one CLI invocation. The printer connection is closed before
// it returns, also on failure.
func run(args []string, stdout io.Writer, getenv func(string) string) error {
	fs := flag.NewFlagSet("flfctl", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	address := fs.String("address", "", "printer address (host[:port]), overrides "+addressEnv)
	debug := fs.Bool("debug", false, "trace protocol frames")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		// The default config file is optional.
		if !errors.Is(err, os.ErrNotExist) || *configPath != defaultConfigPath {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = DefaultConfig()
	}

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	if cmd == "scan" {
		if err := runScan(stdout, cfg, cmdArgs); err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		return nil
	}

	addr, err := cfg.PrinterAddr(*address, getenv)
	if err != nil {
		return err
	}
	client := printer.NewClient(addr)
	if *debug {
		client.SetLogger(log.New(os.Stderr, "ffp: ", log.LstdFlags|log.Lmicroseconds))
	}
	defer client.Disconnect()

	if cmd == "serve" {
		if err := runServe(cfg, client); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	if err := runCommand(stdout, client, cmd, cmdArgs); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: %s [flags] <scan|info|status|temp|progress|ls|led|rename|home|serve> [args]\n", fs.Name())
	fs.PrintDefaults()
}

func runCommand(w io.Writer, client *printer.Client, cmd string, args []string) error {
	switch cmd {
	case "info":
		info, err := client.Info()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, info)

	case "status":
		status, err := client.Status()
		if err != nil {
			return err
		}
		temps, err := client.Temperatures()
		if err != nil {
			return err
		}
		printStatus(w, status)
		printTemperatures(w, temps)

	case "temp":
		temps, err := client.Temperatures()
		if err != nil {
			return err
		}
		printTemperatures(w, temps)

	case "progress":
		p, err := client.Progress()
		if err != nil {
			return err
		}
		printProgress(w, p)

	case "ls":
		files, err := client.Files()
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(w, f)
		}

	case "led":
		if len(args) != 1 {
			return fmt.Errorf("usage: led on|off")
		}
		switch args[0] {
		case "on":
			return client.LEDOn()
		case "off":
			return client.LEDOff()
		default:
			return fmt.Errorf("usage: led on|off")
		}

	case "rename":
		if len(args) != 1 {
			return fmt.Errorf("usage: rename <name>")
		}
		return client.Rename(args[0])

	case "home":
		return client.Home()

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func runScan(w io.Writer, cfg *Config, args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.IntVar(&cfg.Scan.TimeoutMS, "timeout", cfg.Scan.TimeoutMS, "receive timeout in milliseconds")
	unique := fs.Bool("unique", false, "print each address once")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.Scan.TimeoutMS <= 0 {
		return fmt.Errorf("-timeout must be positive, got %d", cfg.Scan.TimeoutMS)
	}
	timeout := cfg.ScanTimeout()

	if *unique {
		printers, err := printer.Discover(timeout)
		if err != nil {
			return err
		}
		printDiscovered(w, printers)
		return nil
	}

	scanner, err := ffp.Scan(timeout)
	if err != nil {
		return err
	}
	defer scanner.Close()

	for res, err := range scanner.Results() {
		if err != nil {
			return err
		}
		fmt.Fprintln(w, res)
	}
	return nil
}

func runServe(cfg *Config, client *printer.Client) error {
	log.Printf("FlashForge bridge starting")
	log.Printf("Printer: %s", client.Addr())

	if err := client.Connect(); err != nil {
		log.Printf("WARNING: Could not connect to printer: %v", err)
		log.Printf("Server will start anyway - the poller retries every %s", cfg.PollInterval())
	}

	state := printer.NewState(client.Addr())
	server := bridge.NewServer(bridge.ServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, client, state, printer.Discover)

	poller := printer.NewStatePoller(client, state, cfg.PollInterval(), func(s *printer.State) {
		server.Hub().BroadcastStatusUpdate(s)
	})
	poller.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down...", sig)

		poller.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
