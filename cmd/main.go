package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `apclient - multiworld session client

Usage:
  apclient <command> [options]

Commands:
  connect              Join a slot and open an interactive console
  probe <uri>          Dial a server and print the packets it sends
  state show [file]    Summarize a saved snapshot (file or --db slot)
  state list --db <p>  List snapshot slots in a database
  history              Show recent connections from the database
  version              Print the version
Run 'apclient <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "connect":
		return runConnect(args[2:], stdout, stderr)
	case "probe":
		return runProbe(args[2:], stdout, stderr)
	case "state":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: apclient state <show|list>")
			return 1
		}
		switch args[2] {
		case "show":
			return runStateShow(args[3:], stdout, stderr)
		case "list":
			return runStateList(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stdout, "Unknown state command: %s\n", args[2])
			return 1
		}
	case "history":
		return runHistory(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "apclient %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
