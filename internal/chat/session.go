// Package chat maintains the realtime connection to the Echoleads chat
// channel. A Session owns one websocket connection, multiplexes logical
// conversation rooms over it, deduplicates inbound messages, and surfaces
// a typing indicator with automatic expiry.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// State is the connection state of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// RoomKey identifies one chat conversation: a (bot, user) pair multiplexed
// over the shared connection.
type RoomKey struct {
	BotID  string
	UserID string
}

// Valid reports whether both identifiers are present.
func (k RoomKey) Valid() bool { return k.BotID != "" && k.UserID != "" }

func (k RoomKey) String() string { return k.BotID + ":" + k.UserID }

// MessageHandler receives accepted messages in receipt order. Panics inside
// the handler are contained and logged; they never tear down the connection.
type MessageHandler func(msg Message, room RoomKey)

// Config holds connection parameters for a Session.
type Config struct {
	URL               string        // websocket URL, e.g. "wss://agents.echoleads.ai/ws"
	DialTimeout       time.Duration // handshake timeout (default 20s)
	ReconnectAttempts int           // bounded reconnection attempts (default 10)
	ReconnectDelay    time.Duration // fixed inter-attempt delay (default 1.5s)
	PingInterval      time.Duration // websocket-level ping cadence (default 15s)
	TypingTTL         time.Duration // typing indicator auto-expiry (default 3s)
}

func (c *Config) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 20 * time.Second
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = 10
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 1500 * time.Millisecond
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = 3 * time.Second
	}
}

var errSessionClosed = errors.New("chat session closed")

// Session is one connection to the realtime channel.
type Session struct {
	cfg     Config
	logger  *slog.Logger
	handler MessageHandler

	state  atomic.Int32
	sendCh chan []byte
	done   chan struct{}
	closed sync.Once

	connMu sync.Mutex
	conn   net.Conn

	mu        sync.Mutex
	room      RoomKey
	seen      map[string]struct{}
	messages  []Message
	typingBy  string
	typingOn  bool
	typingGen uint64
}

// Dial connects to the realtime channel and starts the session's read and
// write loops. The initial connection uses the same bounded retry policy
// as reconnection.
func Dial(ctx context.Context, cfg Config, handler MessageHandler, logger *slog.Logger) (*Session, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:     cfg,
		logger:  logger.With("component", "chat_session"),
		handler: handler,
		sendCh:  make(chan []byte, 256),
		done:    make(chan struct{}),
		seen:    make(map[string]struct{}),
	}

	if err := s.connectWithRetry(ctx); err != nil {
		return nil, err
	}

	go s.readLoop(ctx)
	go s.writeLoop()

	return s, nil
}

// State returns the current connection state.
func (s *Session) State() State { return State(s.state.Load()) }

// Connected reports whether the session currently has a live connection.
func (s *Session) Connected() bool { return s.State() == StateConnected }

// Done returns a channel that closes when the session shuts down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close detaches all listeners and closes the transport connection. No
// buffered state survives. Close is idempotent.
func (s *Session) Close() error {
	s.closed.Do(func() {
		close(s.done)
		s.state.Store(int32(StateDisconnected))

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}

		s.mu.Lock()
		s.seen = nil
		s.messages = nil
		s.typingOn = false
		s.typingBy = ""
		s.mu.Unlock()

		s.logger.Info("Chat session closed")
	})
	return nil
}

// SetRoom switches the active conversation. The previous room is left, the
// dedupe set and message buffer are reset (they are scoped to one room),
// and the new room is joined when both identifiers are present.
func (s *Session) SetRoom(botID, userID string) {
	next := RoomKey{BotID: botID, UserID: userID}

	s.mu.Lock()
	prev := s.room
	if prev == next {
		s.mu.Unlock()
		return
	}
	s.room = next
	s.seen = make(map[string]struct{})
	s.messages = nil
	s.typingOn = false
	s.typingBy = ""
	s.typingGen++
	s.mu.Unlock()

	if prev.Valid() {
		s.emit(eventLeave, roomPayload(prev, ""))
	}
	if next.Valid() && s.Connected() {
		s.emit(eventJoin, roomPayload(next, ""))
	}
	s.logger.Debug("Switched room", "from", prev.String(), "to", next.String())
}

// Room returns the active room key.
func (s *Session) Room() RoomKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Messages returns a snapshot of the active room's ordered message buffer.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Typing returns the current typing indicator and the actor it belongs to.
func (s *Session) Typing() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingOn, s.typingBy
}

// SendTyping emits a typing signal for the active room, tagged as
// originating from this client. Fire-and-forget.
func (s *Session) SendTyping() {
	room := s.Room()
	if !room.Valid() {
		return
	}
	s.emit(eventTyping, roomPayload(room, "client"))
}

// LeaveRoom emits a leave signal for the active room. Fire-and-forget.
func (s *Session) LeaveRoom() {
	room := s.Room()
	if !room.Valid() {
		return
	}
	s.emit(eventLeave, roomPayload(room, ""))
}

// emit queues an event for the write loop. Events queued while the
// session is closing are dropped.
func (s *Session) emit(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	frame, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		s.logger.Error("Failed to encode event frame", "event", event, "error", err)
		return
	}

	select {
	case s.sendCh <- frame:
	case <-s.done:
	}
}

// connectWithRetry dials with a fixed delay between attempts, giving up
// after the configured number of retries.
func (s *Session) connectWithRetry(ctx context.Context) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(s.cfg.ReconnectDelay),
			uint64(s.cfg.ReconnectAttempts),
		),
		ctx,
	)

	return backoff.Retry(func() error {
		select {
		case <-s.done:
			return backoff.Permanent(errSessionClosed)
		default:
		}
		if err := s.dial(ctx); err != nil {
			s.logger.Warn("Connection attempt failed", "url", s.cfg.URL, "error", err)
			return err
		}
		return nil
	}, policy)
}

func (s *Session) dial(ctx context.Context) error {
	s.state.Store(int32(StateConnecting))

	dialer := ws.Dialer{Timeout: s.cfg.DialTimeout}
	conn, _, _, err := dialer.Dial(ctx, s.cfg.URL)
	if err != nil {
		s.state.Store(int32(StateDisconnected))
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.state.Store(int32(StateConnected))

	room := s.Room()
	if room.Valid() {
		s.emit(eventJoin, roomPayload(room, ""))
	}

	s.logger.Info("Connected to chat channel", "url", s.cfg.URL)
	return nil
}

func (s *Session) currentConn() net.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		conn := s.currentConn()
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}

			s.logger.Warn("Read error, reconnecting", "error", err)
			_ = conn.Close()
			s.state.Store(int32(StateDisconnected))

			if rerr := s.connectWithRetry(ctx); rerr != nil {
				s.logger.Error("Reconnection attempts exhausted, closing session", "error", rerr)
				_ = s.Close()
				return
			}
			continue
		}

		s.handleFrame(data)
	}
}

// writeLoop is the single writer on the connection; it also keeps the
// connection alive through idle-timeout middleboxes with periodic pings.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.sendCh:
			conn := s.currentConn()
			if conn == nil {
				continue
			}
			if err := wsutil.WriteClientText(conn, frame); err != nil {
				// Let the read loop observe the broken connection and
				// drive reconnection; queued events are fire-and-forget.
				s.logger.Debug("Write error", "error", err)
				_ = conn.Close()
			}
		case <-ticker.C:
			conn := s.currentConn()
			if conn == nil {
				continue
			}
			if err := wsutil.WriteClientMessage(conn, ws.OpPing, nil); err != nil {
				s.logger.Debug("Ping write error", "error", err)
				_ = conn.Close()
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) handleFrame(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Debug("Dropping undecodable frame", "error", err)
		return
	}

	switch env.Event {
	case eventChat:
		s.handleChatNew(env.Data)
	case eventTyping:
		s.handleTyping(env.Data)
	case eventJoined:
		s.logger.Debug("Room join acknowledged")
	default:
		s.logger.Debug("Ignoring unknown event", "event", env.Event)
	}
}

// handleChatNew filters a chat:new payload to the active room, normalizes
// and deduplicates the events, keeps the buffer sorted by creation
// instant, and forwards accepted messages in receipt order.
func (s *Session) handleChatNew(data json.RawMessage) {
	events, err := parseChatPayload(data)
	if err != nil {
		s.logger.Debug("Dropping malformed chat payload", "error", err)
		return
	}

	now := time.Now()

	s.mu.Lock()
	room := s.room
	var accepted []Message
	for _, event := range events {
		if event.room() != room {
			// A shared connection can leak events from other rooms;
			// drop them silently.
			continue
		}
		msg := event.normalize(now)
		key := msg.dedupeKey()
		if _, dup := s.seen[key]; dup {
			continue
		}
		if s.seen == nil {
			s.seen = make(map[string]struct{})
		}
		s.seen[key] = struct{}{}
		accepted = append(accepted, msg)
	}
	if len(accepted) == 0 {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, accepted...)
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})
	handler := s.handler
	s.mu.Unlock()

	if handler == nil {
		return
	}
	for _, msg := range accepted {
		s.forward(handler, msg, room)
	}
}

// forward invokes the consumer callback, containing any panic so a
// misbehaving consumer cannot tear down the connection.
func (s *Session) forward(handler MessageHandler, msg Message, room RoomKey) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Message handler panicked", "room", room.String(), "panic", r)
		}
	}()
	handler(msg, room)
}

// handleTyping sets the typing indicator for a matching room and arms its
// expiry. Every event arms a fresh timer; stale timers are no-ops, so the
// indicator stays up as long as events keep arriving within the TTL.
func (s *Session) handleTyping(data json.RawMessage) {
	var event typingEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Debug("Dropping malformed typing payload", "error", err)
		return
	}

	s.mu.Lock()
	if event.room() != s.room {
		s.mu.Unlock()
		return
	}
	s.typingOn = true
	s.typingBy = string(event.By)
	s.typingGen++
	gen := s.typingGen
	s.mu.Unlock()

	s.logger.Debug("Typing indicator set", "by", string(event.By))

	time.AfterFunc(s.cfg.TypingTTL, func() {
		s.mu.Lock()
		cleared := s.typingGen == gen
		if cleared {
			s.typingOn = false
			s.typingBy = ""
		}
		s.mu.Unlock()
		if cleared {
			s.logger.Debug("Typing indicator expired")
		}
	})
}
