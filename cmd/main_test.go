package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

// syncBuffer is a bytes.Buffer safe for the logger and the console to
// write concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runWithArgs(args []string) (int, string, string) {
	var stdout, stderr syncBuffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	code, out, _ := runWithArgs([]string{"apclient"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "Usage:") {
		t.Fatalf("expected usage output, got %q", out)
	}
}

func TestRunHelp(t *testing.T) {
	for _, arg := range []string{"help", "--help", "-h"} {
		code, out, _ := runWithArgs([]string{"apclient", arg})
		if code != 0 || !strings.Contains(out, "apclient <command>") {
			t.Errorf("%s: code=%d out=%q", arg, code, out)
		}
	}
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runWithArgs([]string{"apclient", "version"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if out != "apclient dev\n" {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	code, out, _ := runWithArgs([]string{"apclient", "nope"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out, "Unknown command") {
		t.Fatalf("expected unknown command output, got %q", out)
	}
}

func TestRunStateMissingSubcommand(t *testing.T) {
	code, out, _ := runWithArgs([]string{"apclient", "state"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out, "Usage: apclient state") {
		t.Fatalf("expected state usage, got %q", out)
	}
}

func TestConnectHelp(t *testing.T) {
	var stdout, stderr syncBuffer
	code := runConnect([]string{"--help"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Usage: apclient connect") {
		t.Fatalf("expected connect usage, got %q", stderr.String())
	}
}

func TestConnectRequiresServerAndSlot(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr syncBuffer
	code := runConnect([]string{"--slot", "Alice"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "--server and --slot are required") {
		t.Fatalf("unexpected error output %q", stderr.String())
	}
}

func TestConnectInvalidFlag(t *testing.T) {
	var stdout, stderr syncBuffer
	code := runConnect([]string{"--deathlink=maybe"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if stderr.String() == "" {
		t.Fatal("expected error output for invalid flag")
	}
}
