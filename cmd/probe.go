package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/apsession/client/internal/config"
)

// runProbe dials a server and prints the command of every packet it sends.
// It never joins a slot.
func runProbe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	count := fs.Int("count", 0, "Exit after this many packets (default: run until interrupted)")
	timeout := fs.Duration("timeout", 10*time.Second, "Dial timeout")
	raw := fs.Bool("raw", false, "Print each packet in full")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: apclient probe [options] <uri>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	uri := config.ServerURI(fs.Arg(0))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(stdout, "Connecting to %s...\n", uri)

	dialCtx, cancel := context.WithTimeout(ctx, *timeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, uri, nil)
	cancel()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to connect: %v\n", err)
		return 1
	}
	defer conn.Close()

	fmt.Fprintln(stdout, "Connected! Waiting for packets...")

	done := make(chan struct{})
	packets := 0

	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					fmt.Fprintf(stdout, "Read error: %v\n", err)
				}
				return
			}

			frame := gjson.ParseBytes(data)
			if !frame.IsArray() {
				frame = gjson.Parse("[" + frame.Raw + "]")
			}
			for _, p := range frame.Array() {
				packets++
				if *raw {
					fmt.Fprintf(stdout, "[%d] %s\n", packets, p.Raw)
				} else {
					fmt.Fprintf(stdout, "[%d] cmd=%s\n", packets, p.Get("cmd").String())
				}
				if *count > 0 && packets >= *count {
					return
				}
			}
		}
	}()

	select {
	case <-done:
		fmt.Fprintln(stdout, "Connection closed")
	case <-ctx.Done():
		fmt.Fprintln(stdout, "Interrupted")
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	fmt.Fprintf(stdout, "Total packets received: %d\n", packets)
	return 0
}
