package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/john/flashforge/ffp"
)

// addressEnv overrides the configured printer address.
const addressEnv = "FLFCTL_ADDRESS"

type Config struct {
	Printer PrinterConfig `yaml:"printer"`
	Scan    ScanConfig    `yaml:"scan"`
	Server  ServerConfig  `yaml:"server"`
}

type PrinterConfig struct {
	// Address is host or host:port of the printer; the port defaults to 8899.
	Address string `yaml:"address"`
	// PollInterval is how often the bridge polls printer status in seconds.
	PollInterval int `yaml:"poll_interval"`
}

type ScanConfig struct {
	TimeoutMS int `yaml:"timeout_ms"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func DefaultConfig() *Config {
	return &Config{
		Printer: PrinterConfig{
			PollInterval: 2,
		},
		Scan: ScanConfig{
			TimeoutMS: 200,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 7126,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Printer.PollInterval <= 0 {
		return nil, fmt.Errorf("parsing config: poll_interval must be positive")
	}
	if cfg.Scan.TimeoutMS <= 0 {
		return nil, fmt.Errorf("parsing config: scan timeout_ms must be positive")
	}

	return cfg, nil
}

// PrinterAddr resolves the printer address: flag, then environment, then
// config file. A missing port is filled in with the protocol default.
func (c *Config) PrinterAddr(flagAddr string, getenv func(string) string) (string, error) {
	addr := flagAddr
	if addr == "" {
		addr = getenv(addressEnv)
	}
	if addr == "" {
		addr = c.Printer.Address
	}
	if addr == "" {
		return "", fmt.Errorf("no printer address given; set %s, use -address or the config file", addressEnv)
	}

	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(ffp.Port))
	}
	return addr, nil
}

func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.Scan.TimeoutMS) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Printer.PollInterval) * time.Second
}
