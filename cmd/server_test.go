package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const (
	roomInfoFrame = `[{"cmd":"RoomInfo","version":{"major":0,"minor":5,"build":0,"class":"Version"},"seed_name":"seed","players":[],"tags":["AP"],"password":false}]`
	connectedJSON = `[{"cmd":"Connected","team":0,"slot":1,"players":[{"team":0,"slot":1,"name":"Alice","alias":"","game":"Selaco"},{"team":0,"slot":2,"name":"Bob","alias":"","game":"Other"}],"checked_locations":[],"missing_locations":[5,6]}]`
	refusedJSON   = `[{"cmd":"ConnectionRefused","errors":["InvalidSlot"]}]`
)

// fakeServer is a minimal multiworld server: it greets, accepts any slot
// except "Nobody", echoes chat and confirms location checks.
type fakeServer struct {
	*httptest.Server

	// dropAfterJoin closes this many connections right after Connected.
	mu            sync.Mutex
	dropAfterJoin int

	packets chan string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{packets: make(chan string, 256)}
	upgrader := websocket.Upgrader{}

	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fs.serve(conn)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.URL, "http")
}

func (fs *fakeServer) serve(conn *websocket.Conn) {
	if err := conn.WriteMessage(websocket.TextMessage, []byte(roomInfoFrame)); err != nil {
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		for _, p := range gjson.ParseBytes(data).Array() {
			cmd := p.Get("cmd").String()
			select {
			case fs.packets <- cmd:
			default:
			}

			var reply string
			switch cmd {
			case "Connect":
				if p.Get("name").String() == "Nobody" {
					reply = refusedJSON
					break
				}
				conn.WriteMessage(websocket.TextMessage, []byte(connectedJSON))
				if fs.takeDrop() {
					// Let the client see the join before the drop.
					time.Sleep(250 * time.Millisecond)
					conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			case "Say":
				reply = `[{"cmd":"PrintJSON","type":"Chat","data":[{"text":"Alice: "},{"text":` + p.Get("text").Raw + `}]}]`
			case "LocationChecks":
				reply = `[{"cmd":"RoomUpdate","checked_locations":` + p.Get("locations").Raw + `}]`
			}
			if reply != "" {
				conn.WriteMessage(websocket.TextMessage, []byte(reply))
			}
		}
	}
}

func (fs *fakeServer) takeDrop() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.dropAfterJoin > 0 {
		fs.dropAfterJoin--
		return true
	}
	return false
}

// waitPacket waits for the next packet named cmd, skipping others.
func (fs *fakeServer) waitPacket(cmd string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case got := <-fs.packets:
			if got == cmd {
				return true
			}
		case <-deadline:
			return false
		}
	}
}
