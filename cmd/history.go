package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/apsession/client/internal/config"
)

// getDefaultDatabasePath returns the database path used when neither --db
// nor the config file names one.
func getDefaultDatabasePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".apsession", "apclient.db"), nil
}

// formatDuration formats a duration in a human-readable way.
// Examples: "just now", "5m ago", "2h ago", "3d ago"
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "in the future"
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

// historyEntry is the JSON form of one history row.
type historyEntry struct {
	ID               string     `json:"id"`
	URI              string     `json:"uri"`
	Game             string     `json:"game"`
	Slot             string     `json:"slot"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	ItemsReceived    int64      `json:"items_received"`
	LocationsChecked int64      `json:"locations_checked"`
}

func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (default: ~/.apsession/config.toml)")
	dbPath := fs.String("db", "", "SQLite database path (default: config database or ~/.apsession/apclient.db)")
	limit := fs.Int("limit", 10, "Maximum number of connections to show")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: apclient history [options]\n\nList recent connections.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	path := *dbPath
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		path = cfg.Database
	}
	if path == "" {
		var err error
		path, err = getDefaultDatabasePath()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	store, err := openExistingDB(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(stdout, "No connections recorded.")
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	sessions, err := store.ListSessions(*limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to list connections: %v\n", err)
		return 1
	}

	if *jsonOutput {
		entries := make([]historyEntry, 0, len(sessions))
		for _, s := range sessions {
			e := historyEntry{
				ID:               s.ID,
				URI:              s.URI,
				Game:             s.Game,
				Slot:             s.Slot,
				Status:           string(s.Status),
				StartedAt:        s.StartedAt,
				ItemsReceived:    s.ItemsReceived,
				LocationsChecked: s.LocationsChecked,
			}
			if !s.EndedAt.IsZero() {
				ended := s.EndedAt
				e.EndedAt = &ended
			}
			entries = append(entries, e)
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(entries)
		return 0
	}

	if len(sessions) == 0 {
		fmt.Fprintln(stdout, "No connections recorded.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSERVER\tSLOT\tSTATUS\tSTARTED\tITEMS\tLOCATIONS")
	fmt.Fprintln(w, "-------\t------\t----\t------\t-------\t-----\t---------")

	now := time.Now()
	for _, s := range sessions {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			id,
			s.URI,
			s.Slot,
			s.Status,
			formatDuration(now.Sub(s.StartedAt)),
			s.ItemsReceived,
			s.LocationsChecked,
		)
	}
	w.Flush()
	return 0
}
