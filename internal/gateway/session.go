package gateway

import (
	"os"
	"strings"
	"sync"
)

// Session supplies the bearer token for outbound calls. The gateway reads
// the token per call, never caching it, and asks the session to clear
// itself on a 401. The gateway is the only component permitted to force a
// clear.
type Session interface {
	// Token returns the current bearer token, empty when logged out.
	Token() string
	// Clear drops the session state (forced logout).
	Clear() error
}

// FileSession is a Session backed by a token file written by the external
// auth collaborator. Each Token call re-reads the file so refreshed tokens
// are picked up without coordination.
type FileSession struct {
	path string
}

// NewFileSession creates a session reading the bearer token from path.
func NewFileSession(path string) *FileSession {
	return &FileSession{path: path}
}

// Token implements Session. A missing or unreadable file reads as logged out.
func (s *FileSession) Token() string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Clear implements Session by removing the token file.
func (s *FileSession) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// MemorySession is an in-memory Session, used by tests and one-shot CLI
// commands that receive the token directly.
type MemorySession struct {
	mu    sync.Mutex
	token string
}

// NewMemorySession creates a session holding the given token.
func NewMemorySession(token string) *MemorySession {
	return &MemorySession{token: token}
}

// Token implements Session.
func (s *MemorySession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken replaces the stored token.
func (s *MemorySession) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Clear implements Session.
func (s *MemorySession) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
