// Package workertest provides an in-process websocket worker for tests.
package workertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Command is a command as received by the fake worker.
type Command struct {
	Key  string          `json:"key"`
	Args json.RawMessage `json:"args"`
}

// Handler scripts the worker side of one connection.
type Handler func(c *Conn)

// Server is a scripted worker listening on a loopback address.
type Server struct {
	srv      *httptest.Server
	handler  Handler
	upgrader websocket.Upgrader

	conns atomic.Int64

	mu       sync.Mutex
	commands []Command
	live     map[*websocket.Conn]struct{}
	wg       sync.WaitGroup

	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer starts a worker that runs h for every connection.
// The server is closed automatically when the test ends.
func NewServer(t testing.TB, h Handler) *Server {
	t.Helper()

	s := &Server{
		handler: h,
		live:    make(map[*websocket.Conn]struct{}),
		closing: make(chan struct{}),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// address of the worker.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Connections returns how many sessions were opened so far.
func (s *Server) Connections() int {
	return int(s.conns.Load())
}

// Commands returns the commands received so far, in arrival order.
func (s *Server) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// Close stops the server and waits for running handlers.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.mu.Lock()
		for ws := range s.live {
			_ = ws.Close()
		}
		s.mu.Unlock()
		s.srv.Close()
		s.wg.Wait()
	})
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.conns.Add(1)
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.Lock()
	s.live[ws] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.live, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	s.handler(&Conn{ws: ws, server: s})
}

// Conn is the worker end of one session.
type Conn struct {
	ws     *websocket.Conn
	server *Server
}

// ReadCommand blocks until the server sends its command.
func (c *Conn) ReadCommand() (Command, error) {
	var cmd Command
	if err := c.ws.ReadJSON(&cmd); err != nil {
		return Command{}, err
	}
	c.server.mu.Lock()
	c.server.commands = append(c.server.commands, cmd)
	c.server.mu.Unlock()
	return cmd, nil
}

// Send writes a frame with the given status and results.
func (c *Conn) Send(status int, results any) error {
	frame := map[string]any{"status": status}
	if results != nil {
		frame["results"] = results
	}
	return c.ws.WriteJSON(frame)
}

// SendRaw writes data as a single text message.
func (c *Conn) SendRaw(data string) error {
	return c.ws.WriteMessage(websocket.TextMessage, []byte(data))
}

// Drop closes the connection without a close handshake.
func (c *Conn) Drop() {
	_ = c.ws.UnderlyingConn().Close()
}

// WaitClosed blocks until the peer closes the connection or d elapses.
func (c *Conn) WaitClosed(d time.Duration) {
	_ = c.ws.SetReadDeadline(time.Now().Add(d))
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// Frame is one scripted reply.
type Frame struct {
	Status  int
	Results any
	// Raw, when set, is sent verbatim instead of Status/Results.
	Raw string
}

// Progress is a status 1 frame.
func Progress(results any) Frame { return Frame{Status: 1, Results: results} }

// Done is a status 0 frame.
func Done() Frame { return Frame{Status: 0} }

// Fail is a status 2 frame.
func Fail(msg string) Frame { return Frame{Status: 2, Results: msg} }

// Raw is a frame sent verbatim.
func Raw(data string) Frame { return Frame{Raw: data} }

// Script returns a handler that reads the command, replies with frames
// and then waits for the server to hang up.
func Script(frames ...Frame) Handler {
	return Gate(nil, frames...)
}

// Gate is like Script but holds the replies until release is closed.
// A nil release replies immediately.
func Gate(release <-chan struct{}, frames ...Frame) Handler {
	return func(c *Conn) {
		if _, err := c.ReadCommand(); err != nil {
			return
		}
		if release != nil {
			select {
			case <-release:
			case <-c.server.closing:
				return
			}
		}
		if err := c.sendFrames(frames); err != nil {
			return
		}
		c.WaitClosed(5 * time.Second)
	}
}

func (c *Conn) sendFrames(frames []Frame) error {
	for _, f := range frames {
		var err error
		if f.Raw != "" {
			err = c.SendRaw(f.Raw)
		} else {
			err = c.Send(f.Status, f.Results)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
