package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apsession/client/internal/config"
	"github.com/apsession/client/internal/state"
	"github.com/apsession/client/internal/storage"
)

// withStdin replaces the console input for one test.
func withStdin(t *testing.T) *io.PipeWriter {
	t.Helper()
	r, w := io.Pipe()
	old := stdin
	stdin = r
	t.Cleanup(func() {
		stdin = old
		w.Close()
	})
	return w
}

func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestConnectConsoleSession(t *testing.T) {
	isolateConfig(t)
	srv := newFakeServer(t)
	w := withStdin(t)

	dir := t.TempDir()
	statePath := filepath.Join(dir, "progress.json")
	dbPath := filepath.Join(dir, "apclient.db")

	script := make(chan error, 1)
	go func() {
		fmt.Fprintln(w, "/help")
		fmt.Fprintln(w, "hello there")
		if !srv.waitPacket("Say", 5*time.Second) {
			script <- fmt.Errorf("server never saw Say")
			return
		}
		fmt.Fprintln(w, "/check 5 6")
		if !srv.waitPacket("LocationChecks", 5*time.Second) {
			script <- fmt.Errorf("server never saw LocationChecks")
			return
		}
		fmt.Fprintln(w, "/goal")
		if !srv.waitPacket("StatusUpdate", 5*time.Second) {
			script <- fmt.Errorf("server never saw StatusUpdate")
			return
		}
		fmt.Fprintln(w, "/bogus")
		fmt.Fprintln(w, "/quit")
		script <- nil
	}()

	var stdout, stderr syncBuffer
	code := run([]string{"apclient", "connect",
		"--server", srv.wsURL(),
		"--slot", "Alice",
		"--state", statePath,
		"--db", dbPath,
		"--no-reconnect",
	}, &stdout, &stderr)

	if err := <-script; err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Fatalf("exit %d\nstdout:\n%s\nstderr:\n%s", code, stdout.String(), stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{
		"Connecting to " + srv.wsURL() + " as Alice",
		"[ServerInfo] Connected as Alice",
		"Commands:",
		"Goal reported.",
		"Unknown command: /bogus",
		"Saved progress to " + statePath,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}

	if _, err := os.Stat(statePath); err != nil {
		t.Errorf("state file not written: %v", err)
	}

	db, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	sessions, err := db.ListSessions(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("history rows = %d, want 1", len(sessions))
	}
	if s := sessions[0]; s.Slot != "Alice" || s.Status != storage.SessionStatusClosed {
		t.Errorf("history row = %+v", s)
	}
	if _, err := db.GetSnapshot("Alice"); err != nil {
		t.Errorf("database slot not saved: %v", err)
	}
}

func TestConnectRestoresState(t *testing.T) {
	isolateConfig(t)
	srv := newFakeServer(t)
	w := withStdin(t)

	statePath := filepath.Join(t.TempDir(), "progress.json")
	snap := state.Snapshot{CheckedLocations: []int64{1, 2, 3}, TotalLocationsChecked: 3}
	if err := (state.File{Path: statePath}).WriteSnapshot(snap); err != nil {
		t.Fatal(err)
	}

	go func() {
		fmt.Fprintln(w, "/status")
		fmt.Fprintln(w, "/quit")
	}()

	var stdout, stderr syncBuffer
	code := run([]string{"apclient", "connect", "--server", srv.wsURL(), "--slot", "Alice", "--state", statePath, "--no-reconnect"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "Restored progress from "+statePath) {
		t.Errorf("no restore line:\n%s", out)
	}
	if !strings.Contains(out, "Locations checked: 3") {
		t.Errorf("status did not show restored progress:\n%s", out)
	}
}

func TestConnectRefused(t *testing.T) {
	isolateConfig(t)
	srv := newFakeServer(t)
	withStdin(t)

	var stdout, stderr syncBuffer
	code := run([]string{"apclient", "connect", "--server", srv.wsURL(), "--slot", "Nobody"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), `server refused slot "Nobody"`) {
		t.Errorf("stderr = %q", stderr.String())
	}
	// Refusal is permanent, so backoff does not retry.
	if strings.Contains(stdout.String(), "retrying") {
		t.Errorf("refused connection was retried:\n%s", stdout.String())
	}
}

func TestConnectReconnectsAfterDrop(t *testing.T) {
	isolateConfig(t)
	t.Setenv(config.EnvPrefix+"RECONNECT_DELAY_MS", "10")
	srv := newFakeServer(t)
	srv.dropAfterJoin = 1
	w := withStdin(t)

	script := make(chan error, 1)
	go func() {
		for i := 0; i < 2; i++ {
			if !srv.waitPacket("Connect", 5*time.Second) {
				script <- fmt.Errorf("Connect %d never arrived", i+1)
				return
			}
		}
		fmt.Fprintln(w, "/quit")
		script <- nil
	}()

	var stdout, stderr syncBuffer
	code := run([]string{"apclient", "connect", "--server", srv.wsURL(), "--slot", "Alice"}, &stdout, &stderr)
	if err := <-script; err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Fatalf("exit %d\nstdout:\n%s\nstderr:\n%s", code, stdout.String(), stderr.String())
	}
	if !strings.Contains(stdout.String(), "Connection lost, reconnecting...") {
		t.Errorf("no reconnect line:\n%s", stdout.String())
	}
}

func TestConnectNoReconnectExitsOnDrop(t *testing.T) {
	isolateConfig(t)
	srv := newFakeServer(t)
	srv.dropAfterJoin = 1
	withStdin(t)

	var stdout, stderr syncBuffer
	code := run([]string{"apclient", "connect", "--server", srv.wsURL(), "--slot", "Alice", "--no-reconnect"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "Connection lost") {
		t.Errorf("stdout:\n%s", stdout.String())
	}
}

func TestMergeConnectFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Server = "file:1"
	cfg.EnableDeathLink = true

	mergeConnectFlags(cfg, &ConnectConfig{Server: "flag:2", Slot: "Alice", NoReconnect: true}, map[string]bool{"no-reconnect": true})

	if cfg.Server != "flag:2" || cfg.Slot != "Alice" {
		t.Errorf("strings not merged: %+v", cfg)
	}
	if cfg.AutoReconnect {
		t.Error("--no-reconnect ignored")
	}
	if !cfg.EnableDeathLink {
		t.Error("unset --deathlink overrode the config file")
	}
}
