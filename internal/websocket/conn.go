package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ammar1510/mesh/internal/logger"
	"github.com/ammar1510/mesh/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Reconnect defaults
const (
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
	DefaultAttemptTimeout    = 20 * time.Second
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")

	log = logger.New("websocket")
)

// Envelope is the frame exchanged with the server
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Config controls dialing and reconnection
type Config struct {
	URL               string
	Token             string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	AttemptTimeout    time.Duration
}

func (c *Config) setDefaults() {
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
}

type listener struct {
	id uint64
	fn func(json.RawMessage)
}

// Conn is the process-wide connection to the Mesh event server. Views
// attach to it with Subscribe and must call the returned function when
// they go away.
type Conn struct {
	cfg    Config
	dialer *websocket.Dialer

	send   chan []byte
	closed chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mutex     sync.Mutex
	socket    *websocket.Conn
	listeners map[string][]listener
	nextID    uint64
	userID    string
	connected bool
	started   bool
	closeOnce sync.Once
	doneOnce  sync.Once
}

// New creates a connection that is not yet dialed
func New(cfg Config) *Conn {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		dialer:    websocket.DefaultDialer,
		send:      make(chan []byte, sendBufferSize),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
		listeners: make(map[string][]listener),
	}
}

// Connect dials the server, retrying up to the configured number of
// attempts, and starts the pumps. It returns the last dial error when
// every attempt failed.
func (c *Conn) Connect(ctx context.Context) error {
	sock, err := c.dialWithRetry(ctx, false)
	if err != nil {
		c.finish()
		return err
	}

	c.mutex.Lock()
	c.started = true
	c.mutex.Unlock()

	go c.run(sock)
	return nil
}

func (c *Conn) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Connected reports whether a socket is currently up
func (c *Conn) Connected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.connected
}

// Subscribe registers fn for event and returns the function that removes it
func (c *Conn) Subscribe(event string, fn func(data json.RawMessage)) func() {
	c.mutex.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[event] = append(c.listeners[event], listener{id: id, fn: fn})
	c.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(event, id) })
	}
}

func (c *Conn) unsubscribe(event string, id uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	ls := c.listeners[event]
	for i, l := range ls {
		if l.id == id {
			c.listeners[event] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(c.listeners[event]) == 0 {
		delete(c.listeners, event)
	}
}

// Listeners returns the number of handlers attached to event
func (c *Conn) Listeners(event string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.listeners[event])
}

// Emit queues an event for the server
func (c *Conn) Emit(event string, payload interface{}) error {
	data, err := encode(event, payload)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		log.Warn("Send buffer full, dropping %s event", event)
		return ErrSendBufferFull
	}
}

// Join registers the connection for userID's events. The join is replayed
// after every reconnect.
func (c *Conn) Join(userID string) error {
	c.mutex.Lock()
	c.userID = userID
	c.mutex.Unlock()
	return c.Emit(models.EventJoin, models.JoinPayload{UserID: userID})
}

// Close shuts the connection down for good
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
		c.mutex.Lock()
		if !c.started {
			c.finish()
		}
		if c.socket != nil {
			c.socket.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			c.socket.Close()
		}
		c.mutex.Unlock()
	})
	<-c.done
	return nil
}

func encode(event string, payload interface{}) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

func (c *Conn) dial(ctx context.Context, rejoin bool) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	sock, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return nil, err
	}

	if !rejoin {
		return sock, nil
	}

	// Replay the join before the write pump starts so it is the first frame
	// the server sees on this socket.
	c.mutex.Lock()
	userID := c.userID
	c.mutex.Unlock()
	if userID != "" {
		data, _ := encode(models.EventJoin, models.JoinPayload{UserID: userID})
		sock.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sock.WriteMessage(websocket.TextMessage, data); err != nil {
			sock.Close()
			return nil, err
		}
	}
	return sock, nil
}

func (c *Conn) dialWithRetry(ctx context.Context, rejoin bool) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.cfg.ReconnectDelay):
			case <-c.closed:
				return nil, ErrClosed
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		sock, err := c.dial(ctx, rejoin)
		if err == nil {
			log.Info("Connected to %s (attempt %d)", c.cfg.URL, attempt)
			return sock, nil
		}
		lastErr = err
		log.Warn("Dial attempt %d/%d failed: %v", attempt, c.cfg.ReconnectAttempts, err)
	}
	return nil, fmt.Errorf("connect %s: %d attempts failed: %w", c.cfg.URL, c.cfg.ReconnectAttempts, lastErr)
}

// run owns the socket: it pumps until the socket fails, then reconnects
// until the attempts are exhausted or Close is called.
func (c *Conn) run(sock *websocket.Conn) {
	defer c.finish()

	for {
		select {
		case <-c.closed:
			sock.Close()
			return
		default:
		}
		c.setSocket(sock)

		stop := make(chan struct{})
		go c.writePump(sock, stop)
		c.readPump(sock)
		close(stop)
		c.setSocket(nil)

		select {
		case <-c.closed:
			return
		default:
		}

		log.Warn("Connection lost, reconnecting")
		next, err := c.dialWithRetry(c.ctx, true)
		if err != nil {
			log.Error("Giving up on %s: %v", c.cfg.URL, err)
			return
		}
		sock = next
	}
}

func (c *Conn) setSocket(sock *websocket.Conn) {
	c.mutex.Lock()
	c.socket = sock
	c.connected = sock != nil
	c.mutex.Unlock()
}

// readPump pumps events from the websocket connection to the listeners
func (c *Conn) readPump(sock *websocket.Conn) {
	defer sock.Close()

	sock.SetReadLimit(maxMessageSize)
	sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		sock.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	sock.SetPingHandler(func(data string) error {
		sock.SetReadDeadline(time.Now().Add(pongWait))
		return sock.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, frame, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("Error reading from server: %v", err)
			} else {
				log.Info("Server closed connection: %v", err)
			}
			return
		}

		// The server may batch queued events into one frame, newline separated
		for _, raw := range bytes.Split(frame, []byte{'\n'}) {
			if len(bytes.TrimSpace(raw)) == 0 {
				continue
			}
			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				log.Error("Error unmarshaling event: %v", err)
				continue
			}
			c.dispatch(env)
		}
	}
}

func (c *Conn) dispatch(env Envelope) {
	c.mutex.Lock()
	ls := append([]listener(nil), c.listeners[env.Event]...)
	c.mutex.Unlock()

	if len(ls) == 0 {
		log.Debug("No listener for event '%s'", env.Event)
		return
	}
	for _, l := range ls {
		l.fn(env.Data)
	}
}

// writePump pumps queued events to the websocket connection
func (c *Conn) writePump(sock *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case message := <-c.send:
			sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sock.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("Write failed: %v", err)
				sock.Close()
				return
			}
		case <-ticker.C:
			sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				sock.Close()
				return
			}
		}
	}
}
