// cmd/scan-station/main.go is the terminal client for a keyboard-wedge scanner
// working one manifest.
//
//	scan-station -manifest <uuid> -station IMF-DOCK-2 -staff S1042
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/scan"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/station"
	"github.com/oinam-labs/tac-portal-sub002/shared/config"
)

func main() {
	var (
		baseURL    = flag.String("api", config.GetEnv("MANIFEST_API_URL", "http://localhost:8080"), "manifest service base URL")
		manifestID = flag.String("manifest", "", "manifest id to scan into")
		stationID  = flag.String("station", config.GetEnv("STATION_ID", ""), "station id, keys the server-side debounce and rate limit")
		staffID    = flag.String("staff", config.GetEnv("STAFF_ID", ""), "staff id recorded on every scan")
		debounce   = flag.Duration("debounce", config.GetEnvDuration("SCAN_DEBOUNCE", scan.DefaultDebounce), "local double-read window")
	)
	flag.Parse()

	id, err := uuid.Parse(*manifestID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: -manifest must be a manifest id: %v\n", err)
		os.Exit(2)
	}

	client := station.NewClient(*baseURL, *staffID, *stationID)
	model := station.NewModel(client, id, station.WithDebounce(*debounce), station.WithClock(time.Now))

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running scan station: %v\n", err)
		os.Exit(1)
	}
}
