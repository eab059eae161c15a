// Package testutil provides in-process fakes for tests.
package testutil

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
)

// FakeIRCServer is a loopback TCP server speaking just enough of the wire
// protocol to exercise the connection manager: it accepts one client at a
// time, records every line it receives, and lets tests script responses.
type FakeIRCServer struct {
	listener net.Listener

	mu       sync.Mutex
	received []string
	conn     net.Conn

	// OnLine, if set, is invoked for every received line and may return
	// lines to send back. Called without the lock held.
	OnLine func(line string) []string

	// WelcomeOnUser makes the server reply with a 001 welcome as soon as the
	// USER command arrives, which is what a permissive IRCd does.
	WelcomeOnUser bool

	// PasswordRequired makes the server reject the first registration with a
	// 464 numeric until a PASS in user:password form is seen.
	PasswordRequired bool

	// ServerName is the prefix used in numeric replies.
	ServerName string

	wg sync.WaitGroup
}

// NewFakeIRCServer starts the server on a random loopback port.
func NewFakeIRCServer(t *testing.T) *FakeIRCServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &FakeIRCServer{listener: ln, ServerName: "irc.fake.test"}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Addr returns host:port to dial.
func (s *FakeIRCServer) Addr() (host string, port int) {
	addr := s.listener.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

// Received returns a copy of every line seen so far.
func (s *FakeIRCServer) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

// ReceivedWithPrefix returns the received lines starting with prefix.
func (s *FakeIRCServer) ReceivedWithPrefix(prefix string) []string {
	var out []string
	for _, l := range s.Received() {
		if strings.HasPrefix(l, prefix) {
			out = append(out, l)
		}
	}
	return out
}

// Send pushes a raw line (CRLF is appended) to the connected client.
func (s *FakeIRCServer) Send(line string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_, _ = conn.Write([]byte(line + "\r\n"))
	}
}

// DropClient closes the current client connection, simulating a dead socket.
func (s *FakeIRCServer) DropClient() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Close shuts the listener and any live client down.
func (s *FakeIRCServer) Close() {
	_ = s.listener.Close()
	s.DropClient()
	s.wg.Wait()
}

func (s *FakeIRCServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.conn = conn
		s.mu.Unlock()
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *FakeIRCServer) serve(conn net.Conn) {
	defer s.wg.Done()
	passSeen := false
	userSeen := false
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		s.mu.Lock()
		s.received = append(s.received, line)
		s.mu.Unlock()

		if s.OnLine != nil {
			for _, reply := range s.OnLine(line) {
				_, _ = conn.Write([]byte(reply + "\r\n"))
			}
		}

		switch {
		case strings.HasPrefix(line, "PASS ") && strings.Contains(line, ":"):
			passSeen = true
			// Secondary credential sent after a 464 rejection completes
			// registration without a second USER command.
			if s.PasswordRequired && userSeen {
				_, _ = conn.Write([]byte(":" + s.ServerName + " 001 prebot :Welcome\r\n"))
			}
		case strings.HasPrefix(line, "PING "):
			_, _ = conn.Write([]byte(":" + s.ServerName + " PONG " + s.ServerName + " :" + strings.TrimPrefix(line, "PING ") + "\r\n"))
		case strings.HasPrefix(line, "USER "):
			userSeen = true
			if s.PasswordRequired && !passSeen {
				_, _ = conn.Write([]byte(":" + s.ServerName + " 464 * :Password required\r\n"))
			} else if s.WelcomeOnUser || (s.PasswordRequired && passSeen) {
				_, _ = conn.Write([]byte(":" + s.ServerName + " 001 prebot :Welcome\r\n"))
			}
		}
	}
}
