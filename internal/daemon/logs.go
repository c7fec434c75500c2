package daemon

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/TunnlTo/desktop-app/internal/core"
	"github.com/TunnlTo/desktop-app/internal/state"
	"github.com/lmittmann/tint"
)

const defaultHistorySize = 1000

// LogBroadcaster fans daemon log lines out to attached clients and keeps a
// bounded history for late subscribers.
type LogBroadcaster struct {
	clients map[chan string]bool
	history []string
	maxHist int
	mu      sync.RWMutex
}

func NewLogBroadcaster(historySize int) *LogBroadcaster {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &LogBroadcaster{
		clients: make(map[chan string]bool),
		history: make([]string, 0, historySize),
		maxHist: historySize,
	}
}

// Subscribe registers a client without history.
func (lb *LogBroadcaster) Subscribe() chan string {
	ch, _ := lb.SubscribeWithHistory(0)
	return ch
}

// SubscribeWithHistory registers a client and returns up to historyLines of
// the most recent messages. History is returned separately so it never
// competes with live messages for channel buffer space.
func (lb *LogBroadcaster) SubscribeWithHistory(historyLines int) (chan string, []string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	ch := make(chan string, 100)
	lb.clients[ch] = true

	var history []string
	if historyLines > 0 && len(lb.history) > 0 {
		start := max(len(lb.history)-historyLines, 0)
		history = append([]string(nil), lb.history[start:]...)
	}
	return ch, history
}

func (lb *LogBroadcaster) Unsubscribe(ch chan string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if lb.clients[ch] {
		delete(lb.clients, ch)
		close(ch)
	}
}

// Broadcast records message and sends it to every client whose buffer has
// room. Clients that fall behind lose lines.
func (lb *LogBroadcaster) Broadcast(message string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if len(lb.history) >= lb.maxHist {
		lb.history = lb.history[1:]
	}
	lb.history = append(lb.history, message)

	for ch := range lb.clients {
		select {
		case ch <- message:
		default:
		}
	}
}

// LogWriter is an io.Writer that broadcasts every write.
type LogWriter struct {
	broadcaster *LogBroadcaster
}

func (lw *LogWriter) Write(p []byte) (n int, err error) {
	lw.broadcaster.Broadcast(string(p))
	return len(p), nil
}

// setupLogging tees the tint handler output to stderr and the broadcaster.
func (d *Daemon) setupLogging() {
	level := slog.LevelInfo
	if core.Config != nil && core.Config.Verbose > 0 {
		level = slog.LevelDebug
	}

	writer := io.MultiWriter(os.Stderr, &LogWriter{broadcaster: d.logBroadcast})
	handler := tint.NewHandler(writer, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	})
	slog.SetDefault(slog.New(handler))
}

// clientGone closes the returned channel when the client hangs up.
func clientGone(conn net.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		io.Copy(io.Discard, bufio.NewReader(conn))
		close(done)
	}()
	return done
}

// handleLogs streams daemon logs until the client disconnects.
func (d *Daemon) handleLogs(conn net.Conn, showHistory bool, historyLines int) {
	defer conn.Close()

	if !showHistory {
		historyLines = 0
	}
	logChan, history := d.logBroadcast.SubscribeWithHistory(historyLines)
	defer d.logBroadcast.Unsubscribe(logChan)

	if _, err := conn.Write([]byte("Connected to tunnlto daemon logs. Press Ctrl+C to exit.\n")); err != nil {
		slog.Warn("Failed to send initial message to logs client", "error", err)
		return
	}
	for _, msg := range history {
		if _, err := conn.Write([]byte(msg)); err != nil {
			return
		}
	}

	done := clientGone(conn)
	for {
		select {
		case msg, ok := <-logChan:
			if !ok {
				return
			}
			if _, err := conn.Write([]byte(msg)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// handleState streams a wiresock_state event for the current snapshot and
// for every later mutation until the client disconnects.
func (d *Daemon) handleState(conn net.Conn) {
	defer conn.Close()

	id, updates := d.store.Subscribe()
	defer d.store.Unsubscribe(id)

	stream := NewStreamingResponse(conn)
	done := clientGone(conn)
	for {
		select {
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := stream.WriteEvent(state.EventName, st); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
