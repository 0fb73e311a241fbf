package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/apsession/client/internal/state"
	"github.com/apsession/client/internal/storage"
)

func runStateShow(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("state show", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "Read a database slot instead of a file")
	slot := fs.String("slot", "", "Database slot name (with --db)")
	jsonOutput := fs.Bool("json", false, "Print the snapshot as JSON")
	items := fs.Int("items", 10, "How many of the latest received items to list")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: apclient state show [options] [file]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	var src state.Source
	var label string
	switch {
	case *dbPath != "":
		if *slot == "" {
			fmt.Fprintln(stderr, "Error: --slot is required with --db")
			return 1
		}
		store, err := openExistingDB(*dbPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer store.Close()
		src = store.Slot(*slot)
		label = *dbPath + " [" + *slot + "]"
	case fs.NArg() == 1:
		f := state.File{Path: fs.Arg(0)}
		src = f
		label = f.Path + " (" + f.Format().String() + ")"
	default:
		fs.Usage()
		return 1
	}

	snap, err := src.ReadSnapshot()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(snap)
		return 0
	}

	writeSnapshotSummary(stdout, label, snap, *items)
	return 0
}

func writeSnapshotSummary(w io.Writer, label string, snap state.Snapshot, maxItems int) {
	fmt.Fprintf(w, "Snapshot:          %s\n", label)
	fmt.Fprintf(w, "Locations checked: %d\n", snap.TotalLocationsChecked)
	fmt.Fprintf(w, "Items received:    %d\n", snap.TotalItemsReceived)

	if len(snap.ReceivedItems) == 0 || maxItems <= 0 {
		return
	}
	recent := snap.ReceivedItems
	if len(recent) > maxItems {
		recent = recent[len(recent)-maxItems:]
	}

	fmt.Fprintf(w, "\nLatest items:\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tLOCATION\tFROM\tFLAGS")
	for _, it := range recent {
		from := it.PlayerName
		if from == "" {
			from = fmt.Sprintf("slot %d", it.PlayerID)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", it.ItemID, it.LocationID, from, itemFlags(it.IsProgression(), it.IsImportant(), it.IsTrap()))
	}
	tw.Flush()
}

func itemFlags(progression, important, trap bool) string {
	s := ""
	if progression {
		s += "P"
	}
	if important {
		s += "I"
	}
	if trap {
		s += "T"
	}
	if s == "" {
		return "-"
	}
	return s
}

func runStateList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("state list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "SQLite database path")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: apclient state list --db <path>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if *dbPath == "" {
		fs.Usage()
		return 1
	}

	store, err := openExistingDB(*dbPath)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(stdout, "No snapshots found.")
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	infos, err := store.ListSnapshots()
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to list snapshots: %v\n", err)
		return 1
	}
	if len(infos) == 0 {
		fmt.Fprintln(stdout, "No snapshots found.")
		return 0
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tLOCATIONS\tITEMS\tSAVED")
	fmt.Fprintln(w, "----\t---------\t-----\t-----")
	now := time.Now()
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", info.Slot, info.LocationsChecked, info.ItemsReceived, formatDuration(now.Sub(info.SavedAt)))
	}
	w.Flush()
	return 0
}

// openExistingDB opens the database at path without creating it. A missing
// file returns an error wrapping os.ErrNotExist.
func openExistingDB(path string) (*storage.SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}
