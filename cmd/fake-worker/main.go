// Package main provides a scripted stand-in for the ML worker, for local
// development of the server without a model runtime.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jocr1627/fun-with-ml-server/internal/worker"
)

// corpus is the text generate replies are cut from.
const corpus = `It was the best of times it was the worst of times it was the age of ` +
	`wisdom it was the age of foolishness it was the epoch of belief it was the ` +
	`epoch of incredulity it was the season of light it was the season of darkness`

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	delay := flag.Duration("delay", 50*time.Millisecond, "pause between frames")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newHandler(*delay, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("fake worker listening", "addr", *addr, "delay", *delay)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// command is an inbound command with its arguments left encoded.
type command struct {
	Key  worker.Key      `json:"key"`
	Args json.RawMessage `json:"args"`
}

type handler struct {
	upgrader websocket.Upgrader
	delay    time.Duration
	logger   *slog.Logger
}

func newHandler(delay time.Duration, logger *slog.Logger) *handler {
	return &handler{delay: delay, logger: logger}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var cmd command
	if err := conn.ReadJSON(&cmd); err != nil {
		h.logger.Warn("read command failed", "error", err)
		return
	}
	h.logger.Info("command received", "key", cmd.Key)

	s := &session{conn: conn, delay: h.delay, ctx: r.Context()}
	switch cmd.Key {
	case worker.KeyGenerate:
		err = s.generate(cmd.Args)
	case worker.KeyTrain:
		err = s.train(cmd.Args)
	case worker.KeyDelete:
		err = s.send(worker.StatusDone, nil)
	default:
		err = s.send(worker.StatusError, fmt.Sprintf("unknown command %q", cmd.Key))
	}
	if err != nil {
		h.logger.Warn("session ended early", "key", cmd.Key, "error", err)
		return
	}

	// Wait for the server to hang up.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type session struct {
	ctx   context.Context
	conn  *websocket.Conn
	delay time.Duration
}

func (s *session) send(status int, results any) error {
	frame := map[string]any{"status": status}
	if results != nil {
		frame["results"] = results
	}
	return s.conn.WriteJSON(frame)
}

func (s *session) pause() error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-time.After(s.delay):
		return nil
	}
}

func (s *session) generate(raw json.RawMessage) error {
	var args worker.GenerateArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return s.send(worker.StatusError, "malformed generate arguments")
	}

	for _, chunk := range generateChunks(args) {
		if err := s.send(worker.StatusActive, chunk); err != nil {
			return err
		}
		if err := s.pause(); err != nil {
			return err
		}
	}
	return s.send(worker.StatusDone, nil)
}

func (s *session) train(raw json.RawMessage) error {
	var args worker.TrainArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return s.send(worker.StatusError, "malformed train arguments")
	}
	if args.URL == "" {
		return s.send(worker.StatusError, "no url to train on")
	}

	for _, m := range trainMetrics(args.Epochs) {
		if err := s.send(worker.StatusActive, m); err != nil {
			return err
		}
		if err := s.pause(); err != nil {
			return err
		}
	}
	return s.send(worker.StatusDone, nil)
}

// generateChunks echoes the prefix and then continues with corpus words
// until each of the requested samples reaches maxLength characters.
func generateChunks(args worker.GenerateArgs) []string {
	count := max(args.Count, 1)
	words := strings.Fields(corpus)

	var chunks []string
	for sample := range count {
		length := 0
		if args.Prefix != "" {
			chunks = append(chunks, args.Prefix)
			length = len(args.Prefix)
		}
		for i := sample; length < args.MaxLength; i++ {
			word := " " + words[i%len(words)]
			if length == 0 {
				word = word[1:]
			}
			chunks = append(chunks, word)
			length += len(word)
		}
		if sample < count-1 {
			chunks = append(chunks, "\n")
		}
	}
	return chunks
}

// trainMetrics reports a decreasing loss for every epoch.
func trainMetrics(epochs int) []map[string]any {
	epochs = max(epochs, 1)
	out := make([]map[string]any, epochs)
	for e := range epochs {
		out[e] = map[string]any{
			"epoch": e + 1,
			"loss":  1 / float64(2*(e+1)),
		}
	}
	return out
}
