package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/roomchat/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	DefaultSendBuffer            = 256
	DefaultMaxFrameBytes         = 512 * 1024
	DefaultRegistrationTimeout   = 5 * time.Second
	DefaultDeregistrationTimeout = 2 * time.Second
)

// State is the lifecycle stage of a session.
type State int32

const (
	StatePending State = iota
	StateAdmitted
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAdmitted:
		return "admitted"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Gatekeeper decides whether a pending session may join its room and sends
// the initial history once it has.
type Gatekeeper interface {
	Admit(ctx context.Context, c *Client) error
	Replay(ctx context.Context, c *Client)
}

// FrameHandler executes one decoded frame on behalf of an active session.
type FrameHandler interface {
	HandleFrame(ctx context.Context, c *Client, frame Frame) error
}

type SessionConfig struct {
	RegistrationTimeout   time.Duration
	DeregistrationTimeout time.Duration
	SendBuffer            int
	MaxFrameBytes         int64
}

// Client is one websocket session bound to a single room.
type Client struct {
	ID       uuid.UUID
	RoomID   uint
	Identity services.Identity

	conn  *websocket.Conn
	hub   *Hub
	cfg   SessionConfig
	send  chan []byte
	done  chan struct{}
	state atomic.Int32

	closeOnce  sync.Once
	subscribed atomic.Bool

	log *logrus.Entry
}

// NewClient wraps conn for roomID. identity is the zero value when the
// connection did not authenticate. conn may be nil in tests.
func NewClient(hub *Hub, conn *websocket.Conn, roomID uint, identity services.Identity, cfg SessionConfig) *Client {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if cfg.RegistrationTimeout <= 0 {
		cfg.RegistrationTimeout = DefaultRegistrationTimeout
	}
	if cfg.DeregistrationTimeout <= 0 {
		cfg.DeregistrationTimeout = DefaultDeregistrationTimeout
	}
	id := uuid.New()
	return &Client{
		ID:       id,
		RoomID:   roomID,
		Identity: identity,
		conn:     conn,
		hub:      hub,
		cfg:      cfg,
		send:     make(chan []byte, cfg.SendBuffer),
		done:     make(chan struct{}),
		log: hub.log.WithFields(logrus.Fields{
			"session_id": id,
			"room_id":    roomID,
		}),
	}
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// advance moves the session from one state to the next. It fails when the
// session has left from, which after Close is always the case.
func (c *Client) advance(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Authenticated reports whether the session carries a resolved identity.
func (c *Client) Authenticated() bool {
	return c.Identity.UserID != uuid.Nil
}

// Done is closed when the session closes.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Serve drives the session: admission, room registration with history
// replay, then the frame loop until the peer goes away or ctx ends.
// It returns the admission error, if any.
func (c *Client) Serve(ctx context.Context, gate Gatekeeper, handler FrameHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.teardown()

	if err := gate.Admit(ctx, c); err != nil {
		c.log.WithError(err).Info("session rejected")
		c.reject(err)
		return err
	}
	if !c.advance(StatePending, StateAdmitted) {
		return ErrClientClosed
	}

	go c.writePump()

	regCtx, regCancel := context.WithTimeout(ctx, c.cfg.RegistrationTimeout)
	err := c.hub.Subscribe(regCtx, c, func() { c.activate(ctx, gate) })
	regCancel()
	if err != nil {
		c.log.WithError(err).Warn("room registration failed")
		c.reject(err)
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			c.Close(websocket.CloseGoingAway, "server shutting down")
		case <-c.done:
		}
	}()

	c.log.WithField("user_id", c.Identity.UserID).Info("session active")
	c.readPump(ctx, handler)
	return nil
}

// activate runs once the hub holds the session. A session closed while it
// was registering stays closed and gets no replay.
func (c *Client) activate(ctx context.Context, gate Gatekeeper) {
	c.subscribed.Store(true)
	if c.advance(StateAdmitted, StateActive) {
		gate.Replay(ctx, c)
	}
}

func (c *Client) reject(err error) {
	code := CloseCodeFor(err)
	c.Close(code, closeReason(code))
}

// teardown deregisters the session. Deregistration is bounded and its
// failure is logged, never returned.
func (c *Client) teardown() {
	if c.subscribed.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DeregistrationTimeout)
		if err := c.hub.Unsubscribe(ctx, c); err != nil {
			c.log.WithError(err).Warn("room deregistration failed")
		}
		cancel()
	}
	c.Close(websocket.CloseNormalClosure, "")
}

// Close sends a close frame with code and tears the connection down. Only the
// first call has any effect.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		close(c.done)
		if c.conn == nil {
			return
		}
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context, handler FrameHandler) {
	c.conn.SetReadLimit(c.cfg.MaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.WithError(err).Warn("read failed")
			}
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			c.SendError(err)
			continue
		}

		if err := handler.HandleFrame(ctx, c, frame); err != nil {
			c.log.WithError(err).WithField("frame", frame.Type()).Debug("frame rejected")
			c.SendError(err)
		}
	}
}

// writePump is the only writer of data frames. Each queued event goes out as
// its own websocket message.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.WithError(err).Debug("write failed")
				c.conn.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
			go c.renewPresence()
		}
	}
}

func (c *Client) renewPresence() {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := c.hub.Touch(ctx, c); err != nil {
		c.log.WithError(err).Warn("presence renewal failed")
	}
}

// enqueue queues an encoded event without blocking. A full queue closes the
// session so that it never silently misses an event.
func (c *Client) enqueue(data []byte) error {
	if c.State() == StateClosed {
		return ErrClientClosed
	}
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		go c.Close(websocket.CloseTryAgainLater, "outbound queue full")
		return ErrClientQueueFull
	}
}

// Send queues event for this session only.
func (c *Client) Send(event Event) error {
	data, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// SendError reports err to this session as an error event.
func (c *Client) SendError(err error) {
	if sendErr := c.Send(NewErrorEvent(err)); sendErr != nil {
		c.log.WithError(sendErr).Debug("error event not delivered")
	}
}

// Outbound exposes the queued, not yet written events.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}
