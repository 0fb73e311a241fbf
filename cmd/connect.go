package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/apsession/client/internal/config"
	apperrors "github.com/apsession/client/internal/errors"
	"github.com/apsession/client/internal/log"
	"github.com/apsession/client/internal/manager"
	"github.com/apsession/client/internal/session"
	"github.com/apsession/client/internal/state"
	"github.com/apsession/client/internal/storage"
)

// stdin feeds the connect console. Tests replace it.
var stdin io.Reader = os.Stdin

// handshakeTimeout bounds one connection attempt, from dial to slot join.
var handshakeTimeout = 15 * time.Second

// consoleTick is how often the console pumps the manager and prints
// messages.
const consoleTick = 50 * time.Millisecond

const consoleHelp = `Commands:
  <text>              Send a chat message
  /check <id>...      Report locations as checked
  /scout <id>...      Ask what is placed at locations
  /hint <id>...       Scout locations and announce them as hints
  /status             Show connection status and progress
  /players            List players in the room
  /goal               Report the goal as complete
  /deathlink [cause]  Send a DeathLink
  /save               Save progress now
  /quit               Disconnect and exit
`

// ConnectConfig holds the command-line flags for connect.
type ConnectConfig struct {
	Config      string
	Server      string
	Slot        string
	Password    string
	Game        string
	StateFile   string
	Database    string
	LogLevel    string
	DeathLink   bool
	NoReconnect bool
}

func runConnect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	fs.SetOutput(stderr)

	flags := &ConnectConfig{}
	fs.StringVar(&flags.Config, "config", "", "Path to config file (default: ~/.apsession/config.toml)")
	fs.StringVar(&flags.Server, "server", "", "Server address, e.g. archipelago.gg:38281")
	fs.StringVar(&flags.Slot, "slot", "", "Slot name to join")
	fs.StringVar(&flags.Password, "password", "", "Room password")
	fs.StringVar(&flags.Game, "game", "", "Game name (default: Selaco)")
	fs.StringVar(&flags.StateFile, "state", "", "Progress file; .msgpack selects MessagePack")
	fs.StringVar(&flags.Database, "db", "", "SQLite database for snapshots and connection history")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	fs.BoolVar(&flags.DeathLink, "deathlink", false, "Join the DeathLink group")
	fs.BoolVar(&flags.NoReconnect, "no-reconnect", false, "Exit instead of reconnecting when the connection drops")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: apclient connect [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	explicitFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicitFlags[f.Name] = true
	})

	cfg, err := config.Load(flags.Config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	mergeConnectFlags(cfg, flags, explicitFlags)

	if cfg.Server == "" || cfg.Slot == "" {
		fmt.Fprintln(stderr, "Error: --server and --slot are required (or set them in the config file)")
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	log.SetOutput(stderr, true)
	log.SetLevel(cfg.LogLevel)

	var db *storage.SQLiteStore
	if cfg.Database != "" {
		db, err = storage.NewSQLiteStore(cfg.Database)
		if err != nil {
			fmt.Fprintf(stderr, "Error: failed to open database: %v\n", err)
			return 1
		}
		defer db.Close()
	}

	m := manager.New(manager.Options{History: db})
	if err := m.Initialize(cfg); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer m.Shutdown()

	c := &console{m: m, cfg: cfg, db: db, out: stdout, errOut: stderr}
	m.SubscribeDeferred(c.announce)
	c.restore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(stdout, "Connecting to %s as %s...\n", config.ServerURI(cfg.Server), cfg.Slot)
	if err := c.connect(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	code := c.loop(ctx, readLines(stdin))
	c.save()
	return code
}

// mergeConnectFlags applies flags over the loaded config. Strings override
// when non-empty, booleans only when set on the command line.
func mergeConnectFlags(cfg *config.Config, flags *ConnectConfig, explicit map[string]bool) {
	if flags.Server != "" {
		cfg.Server = flags.Server
	}
	if flags.Slot != "" {
		cfg.Slot = flags.Slot
	}
	if flags.Password != "" {
		cfg.Password = flags.Password
	}
	if flags.Game != "" {
		cfg.Game = flags.Game
	}
	if flags.StateFile != "" {
		cfg.StateFile = flags.StateFile
	}
	if flags.Database != "" {
		cfg.Database = flags.Database
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}
	if explicit["deathlink"] {
		cfg.EnableDeathLink = flags.DeathLink
	}
	if explicit["no-reconnect"] {
		cfg.AutoReconnect = !flags.NoReconnect
	}
}

// readLines delivers lines from r until EOF, then closes the channel.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// console drives a Manager from the terminal. Every method runs on the
// goroutine that called loop.
type console struct {
	m      *manager.Manager
	cfg    *config.Config
	db     *storage.SQLiteStore
	out    io.Writer
	errOut io.Writer
}

// connect joins the slot, retrying with exponential backoff when
// auto_reconnect is on. A refused slot is not retried.
func (c *console) connect(ctx context.Context) error {
	attempt := func() (struct{}, error) {
		if !c.m.Connect(c.cfg.Server, c.cfg.Slot, c.cfg.Password) {
			return struct{}{}, fmt.Errorf("cannot open a connection to %s", c.cfg.Server)
		}
		return struct{}{}, c.awaitJoin(ctx)
	}

	if !c.cfg.AutoReconnect {
		_, err := attempt()
		return err
	}

	delay := c.cfg.ReconnectDelay()
	if delay <= 0 {
		delay = time.Millisecond
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.MaxInterval = 12 * delay

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.MaxReconnectAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			fmt.Fprintf(c.out, "Connect failed: %v (retrying in %s)\n", err, next.Round(time.Millisecond))
		}),
	)
	return err
}

// awaitJoin pumps the manager until the slot is joined or the attempt
// fails.
func (c *console) awaitJoin(ctx context.Context) error {
	deadline := time.NewTimer(handshakeTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(consoleTick)
	defer ticker.Stop()

	for {
		c.m.Update()
		c.flush()

		switch c.m.ConnectionStatus() {
		case session.Authenticated:
			return nil
		case session.ConnectionRefused:
			return backoff.Permanent(fmt.Errorf("server refused slot %q", c.cfg.Slot))
		case session.Error, session.Disconnected:
			return fmt.Errorf("connection to %s failed", c.cfg.Server)
		}

		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		case <-deadline.C:
			c.m.Disconnect()
			return fmt.Errorf("no answer from %s within %s", c.cfg.Server, handshakeTimeout)
		case <-ticker.C:
		}
	}
}

// loop runs the console until /quit, an interrupt, or a connection loss
// that cannot be recovered. Closed input stops reading but keeps the
// session running.
func (c *console) loop(ctx context.Context, lines <-chan string) int {
	fmt.Fprintln(c.out, "Type /help for commands.")

	ticker := time.NewTicker(consoleTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out, "Interrupted")
			return 0

		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if c.handle(line) {
				c.m.Update()
				c.flush()
				return 0
			}

		case <-ticker.C:
			c.m.Update()
			c.flush()

			switch c.m.ConnectionStatus() {
			case session.ConnectionRefused:
				fmt.Fprintln(c.out, "Connection refused")
				return 1
			case session.Error, session.Disconnected:
				if !c.cfg.AutoReconnect {
					fmt.Fprintln(c.out, "Connection lost")
					return 1
				}
				fmt.Fprintln(c.out, "Connection lost, reconnecting...")
				if err := c.connect(ctx); err != nil {
					fmt.Fprintf(c.errOut, "Error: %v\n", err)
					return 1
				}
			}
		}
	}
}

// handle runs one input line and reports whether the console should exit.
func (c *console) handle(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.report(c.m.SendChat(line))
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprint(c.out, consoleHelp)
	case "/check":
		if ids, ok := c.ids(fields[1:]); ok {
			c.report(c.m.CheckLocations(ids))
		}
	case "/scout", "/hint":
		if ids, ok := c.ids(fields[1:]); ok {
			c.report(c.m.ScoutLocations(ids, fields[0] == "/hint"))
		}
	case "/status":
		c.printStatus()
	case "/players":
		c.printPlayers()
	case "/goal":
		if err := c.m.SetGoalComplete(); err != nil {
			c.report(err)
		} else {
			fmt.Fprintln(c.out, "Goal reported.")
		}
	case "/deathlink":
		cause := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		c.report(c.m.SendDeathLink(cause))
	case "/save":
		c.save()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (try /help)\n", fields[0])
	}
	return false
}

func (c *console) ids(args []string) ([]int64, bool) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Expected at least one location id")
		return nil, false
	}
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			fmt.Fprintf(c.out, "Invalid location id: %s\n", a)
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func (c *console) report(err error) {
	if err == nil {
		return
	}
	code, msg := apperrors.ToCodeAndMessage(err)
	fmt.Fprintf(c.out, "! %s (%s)\n", msg, code)
}

// flush prints every waiting message.
func (c *console) flush() {
	for _, msg := range c.m.DrainMessages() {
		fmt.Fprintf(c.out, "[%s] %s\n", msg.Type, msg.Text)
	}
}

// announce prints events that do not produce a message of their own.
func (c *console) announce(ev manager.Event) {
	switch e := ev.(type) {
	case manager.ItemsReceived:
		for _, it := range e.Items {
			from := it.PlayerName
			if from == "" {
				from = "slot " + strconv.Itoa(int(it.PlayerID))
			}
			fmt.Fprintf(c.out, "+ item %d from %s (location %d)\n", it.ItemID, from, it.LocationID)
		}
	case manager.ScoutResults:
		for _, it := range e.Locations {
			fmt.Fprintf(c.out, "? location %d holds item %d for %s\n", it.LocationID, it.ItemID, it.PlayerName)
		}
	case manager.LocationsChecked:
		fmt.Fprintf(c.out, "= %d location(s) confirmed\n", len(e.IDs))
	}
}

func (c *console) printStatus() {
	st := c.m.Stats()
	fmt.Fprintf(c.out, "Status:            %s\n", c.m.ConnectionStatus())
	fmt.Fprintf(c.out, "Session:           %s\n", c.m.SessionID())
	fmt.Fprintf(c.out, "Locations checked: %d\n", st.LocationsChecked)
	fmt.Fprintf(c.out, "Items received:    %d\n", st.ItemsReceived)
	if st.DroppedCommands > 0 {
		fmt.Fprintf(c.out, "Dropped commands:  %d\n", st.DroppedCommands)
	}
}

func (c *console) printPlayers() {
	players := c.m.ConnectedPlayers()
	if len(players) == 0 {
		fmt.Fprintln(c.out, "No players known yet.")
		return
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tNAME\tGAME")
	for _, p := range players {
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.Slot, p.DisplayName(), p.Game)
	}
	w.Flush()
}

// restore loads saved progress: the state file when it exists, otherwise
// the database slot named after the player slot.
func (c *console) restore() {
	if c.cfg.StateFile != "" {
		if _, err := os.Stat(c.cfg.StateFile); err == nil {
			if err := c.m.LoadState(state.File{Path: c.cfg.StateFile}); err != nil {
				fmt.Fprintf(c.errOut, "Warning: could not load %s: %v\n", c.cfg.StateFile, err)
				return
			}
			fmt.Fprintf(c.out, "Restored progress from %s\n", c.cfg.StateFile)
			return
		}
	}
	if c.db != nil {
		err := c.m.LoadState(c.db.Slot(c.cfg.Slot))
		switch {
		case err == nil:
			fmt.Fprintf(c.out, "Restored progress from database slot %s\n", c.cfg.Slot)
		case !apperrors.IsCode(err, apperrors.CodeStorageNotFound):
			fmt.Fprintf(c.errOut, "Warning: could not load database slot %s: %v\n", c.cfg.Slot, err)
		}
	}
}

// save writes progress to every configured target.
func (c *console) save() {
	if c.cfg.StateFile != "" {
		if err := c.m.SaveState(state.File{Path: c.cfg.StateFile}); err != nil {
			c.report(err)
		} else {
			fmt.Fprintf(c.out, "Saved progress to %s\n", c.cfg.StateFile)
		}
	}
	if c.db != nil {
		if err := c.m.SaveState(c.db.Slot(c.cfg.Slot)); err != nil {
			c.report(err)
		}
	}
}
