package printer

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/john/flashforge/ffp"
)

// DiscoveredPrinter holds information about a printer found on the network.
type DiscoveredPrinter struct {
	IP   string `json:"ip"`
	Name string `json:"name"`
}

// Discover finds FlashForge printers on the local network via the UDP
// multicast probe. Repeated replies from one address are collapsed.
func Discover(timeout time.Duration) ([]DiscoveredPrinter, error) {
	scanner, err := ffp.Scan(timeout)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	defer scanner.Close()

	return collect(scanner)
}

func collect(scanner *ffp.Scanner) ([]DiscoveredPrinter, error) {
	seen := map[string]bool{}
	result := []DiscoveredPrinter{}

	for res, err := range scanner.Results() {
		if err != nil {
			var decErr *ffp.DecodeError
			if errors.As(err, &decErr) {
				log.Printf("Ignoring discovery reply: %v", err)
				continue
			}
			return result, fmt.Errorf("discovery: %w", err)
		}

		ip := res.Addr.String()
		if seen[ip] {
			continue
		}
		seen[ip] = true
		result = append(result, DiscoveredPrinter{IP: ip, Name: res.Name})
	}
	return result, nil
}
