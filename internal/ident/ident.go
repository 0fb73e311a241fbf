// Package ident generates the session identifier announced in the Connect
// packet. The service uses it to tell reconnecting clients apart from new
// ones, so a stable identifier per installation is preferred.
package ident

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Generator produces a session identifier for a game.
type Generator interface {
	SessionID(game string) string
}

// UUID returns a fresh random identifier on every call.
type UUID struct{}

// SessionID implements Generator.
func (UUID) SessionID(string) string {
	return uuid.New().String()
}

// File keeps one identifier on disk and returns it on every call. The file
// is created on first use. If it cannot be read or written, a random
// identifier is returned so connecting never fails on it.
type File struct {
	Path string

	mu sync.Mutex
	id string
}

// NewFile creates a File generator backed by path.
func NewFile(path string) *File {
	return &File{Path: path}
}

// SessionID implements Generator.
func (f *File) SessionID(string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.id != "" {
		return f.id
	}
	id, err := f.load()
	if err != nil {
		id = uuid.New().String()
	}
	f.id = id
	return id
}

func (f *File) load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err == nil {
		if id, perr := uuid.Parse(strings.TrimSpace(string(data))); perr == nil {
			return id.String(), nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read identity file: %w", err)
	}

	id := uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return "", fmt.Errorf("create identity directory: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("write identity file: %w", err)
	}
	return id, nil
}
