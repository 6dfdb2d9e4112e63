package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/roomchat/internal/services"
	"golang.org/x/sync/semaphore"
)

// Presence is the remote half of room registration. It may be nil.
// Join is also called periodically for live sessions to renew their entry.
type Presence interface {
	Join(ctx context.Context, roomID uint, sessionID, userID uuid.UUID) error
	Leave(ctx context.Context, roomID uint, sessionID uuid.UUID) error
}

// roomChannel is the broadcast group of one room.
//
// order serializes everything that must be observed in the same sequence by
// every subscriber: a mutation together with its broadcast, and a join
// together with its history replay. subscribers is guarded by mu. refs counts
// in-flight Subscribe/Publish calls and is guarded by Hub.mu.
type roomChannel struct {
	id          uint
	order       *semaphore.Weighted
	refs        int
	mu          sync.RWMutex
	subscribers map[*Client]struct{}
}

func (rc *roomChannel) snapshot() []*Client {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	clients := make([]*Client, 0, len(rc.subscribers))
	for c := range rc.subscribers {
		clients = append(clients, c)
	}
	return clients
}

// Hub is the room registry: it maps room ids to their live sessions and fans
// events out to them.
type Hub struct {
	mu       sync.Mutex
	rooms    map[uint]*roomChannel
	clients  map[*Client]struct{}
	closing  bool
	presence Presence
	log      *logrus.Entry

	// sessions counts registrations from the start of Subscribe until the
	// matching Unsubscribe has finished its presence cleanup.
	sessions sync.WaitGroup
}

func NewHub(presence Presence, log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		rooms:    make(map[uint]*roomChannel),
		clients:  make(map[*Client]struct{}),
		presence: presence,
		log:      log.WithField("component", "hub"),
	}
}

func (h *Hub) acquire(roomID uint) *roomChannel {
	h.mu.Lock()
	defer h.mu.Unlock()

	rc, ok := h.rooms[roomID]
	if !ok {
		rc = &roomChannel{
			id:          roomID,
			order:       semaphore.NewWeighted(1),
			subscribers: make(map[*Client]struct{}),
		}
		h.rooms[roomID] = rc
	}
	rc.refs++
	return rc
}

func (h *Hub) release(rc *roomChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rc.refs--
	h.dropIfIdleLocked(rc)
}

func (h *Hub) dropIfIdleLocked(rc *roomChannel) {
	if rc.refs > 0 {
		return
	}
	rc.mu.RLock()
	empty := len(rc.subscribers) == 0
	rc.mu.RUnlock()
	if empty && h.rooms[rc.id] == rc {
		delete(h.rooms, rc.id)
	}
}

// Subscribe adds c to its room's broadcast group. onJoin runs once the
// subscription is live and before any event published after it, so history
// sent from onJoin lines up with the live stream without gaps or duplicates.
//
// A subscribe that cannot complete before ctx is done fails with
// services.ErrRegistrationTimeout, and one that starts after Shutdown fails
// with ErrHubClosed. Subscribing an already subscribed client is a no-op.
func (h *Hub) Subscribe(ctx context.Context, c *Client, onJoin func()) (err error) {
	rc := h.acquire(c.RoomID)
	defer h.release(rc)

	if err := rc.order.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: room %d: %v", services.ErrRegistrationTimeout, c.RoomID, err)
	}
	defer rc.order.Release(1)

	rc.mu.RLock()
	_, already := rc.subscribers[c]
	rc.mu.RUnlock()
	if already {
		return nil
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return fmt.Errorf("room %d: %w", c.RoomID, ErrHubClosed)
	}
	h.sessions.Add(1)
	h.mu.Unlock()
	defer func() {
		if err != nil {
			h.sessions.Done()
		}
	}()

	if h.presence != nil {
		if err := h.presence.Join(ctx, c.RoomID, c.ID, c.Identity.UserID); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: room %d: %v", services.ErrRegistrationTimeout, c.RoomID, err)
			}
			return fmt.Errorf("register presence: %w", err)
		}
	}

	rc.mu.Lock()
	rc.subscribers[c] = struct{}{}
	rc.mu.Unlock()

	h.mu.Lock()
	h.clients[c] = struct{}{}
	closing := h.closing
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{
		"room_id":    c.RoomID,
		"session_id": c.ID,
		"user_id":    c.Identity.UserID,
	}).Debug("session subscribed")

	// Shutdown took its snapshot while this registration was in flight.
	if closing {
		go c.Close(websocket.CloseGoingAway, "server shutting down")
	}

	if onJoin != nil {
		onJoin()
	}
	return nil
}

// Unsubscribe removes c from its room. The local removal is immediate; the
// returned error only reports a presence cleanup that failed or ran past
// ctx. Unsubscribing a client that is not subscribed is a no-op.
func (h *Hub) Unsubscribe(ctx context.Context, c *Client) error {
	h.mu.Lock()
	delete(h.clients, c)
	rc, ok := h.rooms[c.RoomID]
	removed := false
	if ok {
		rc.mu.Lock()
		if _, ok := rc.subscribers[c]; ok {
			delete(rc.subscribers, c)
			removed = true
		}
		rc.mu.Unlock()
		h.dropIfIdleLocked(rc)
	}
	h.mu.Unlock()

	if !removed {
		return nil
	}
	defer h.sessions.Done()

	h.log.WithFields(logrus.Fields{
		"room_id":    c.RoomID,
		"session_id": c.ID,
	}).Debug("session unsubscribed")

	if h.presence == nil {
		return nil
	}
	if err := h.presence.Leave(ctx, c.RoomID, c.ID); err != nil {
		return fmt.Errorf("deregister presence: %w", err)
	}
	return nil
}

// Touch renews the presence entry of a subscribed session.
func (h *Hub) Touch(ctx context.Context, c *Client) error {
	if h.presence == nil {
		return nil
	}
	rc, ok := h.room(c.RoomID)
	if !ok {
		return nil
	}
	rc.mu.RLock()
	_, subscribed := rc.subscribers[c]
	rc.mu.RUnlock()
	if !subscribed {
		return nil
	}
	if err := h.presence.Join(ctx, c.RoomID, c.ID, c.Identity.UserID); err != nil {
		return fmt.Errorf("renew presence: %w", err)
	}
	return nil
}

func (h *Hub) room(roomID uint) (*roomChannel, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rc, ok := h.rooms[roomID]
	return rc, ok
}

// Broadcast delivers event to every session subscribed to roomID and returns
// how many accepted it. It never blocks on a slow receiver: a session whose
// queue is full is closed instead.
func (h *Hub) Broadcast(roomID uint, event Event) int {
	rc, ok := h.room(roomID)
	if !ok {
		return 0
	}
	return h.deliver(rc, event)
}

func (h *Hub) deliver(rc *roomChannel, event Event) int {
	data, err := EncodeEvent(event)
	if err != nil {
		h.log.WithError(err).WithField("room_id", rc.id).Error("encode event")
		return 0
	}

	delivered := 0
	for _, c := range rc.snapshot() {
		if err := c.enqueue(data); err != nil {
			if !errors.Is(err, ErrClientClosed) {
				h.log.WithFields(logrus.Fields{
					"room_id":    rc.id,
					"session_id": c.ID,
				}).Warn("dropping slow session")
			}
			continue
		}
		delivered++
	}
	return delivered
}

// Publish runs mutate in the room's ordering section and broadcasts the event
// it returns. Two publishes to the same room are seen by every subscriber in
// the order their mutations committed. A nil event skips the broadcast.
func (h *Hub) Publish(ctx context.Context, roomID uint, mutate func(ctx context.Context) (Event, error)) error {
	rc := h.acquire(roomID)
	defer h.release(rc)

	if err := rc.order.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: room %d busy: %v", services.ErrStorageUnavailable, roomID, err)
	}
	defer rc.order.Release(1)

	event, err := mutate(ctx)
	if err != nil {
		return err
	}
	if event != nil {
		h.deliver(rc, event)
	}
	return nil
}

// Subscribers returns the number of live sessions in roomID.
func (h *Hub) Subscribers(roomID uint) int {
	rc, ok := h.room(roomID)
	if !ok {
		return 0
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.subscribers)
}

// Online returns the distinct users with a live session in roomID on this
// instance.
func (h *Hub) Online(_ context.Context, roomID uint) ([]uuid.UUID, error) {
	rc, ok := h.room(roomID)
	if !ok {
		return []uuid.UUID{}, nil
	}
	users := lo.Map(rc.snapshot(), func(c *Client, _ int) uuid.UUID { return c.Identity.UserID })
	return lo.Uniq(users), nil
}

// Shutdown closes every live session with a going-away close and waits until
// each of them has deregistered, or until ctx is done. No session can
// subscribe afterwards.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}

	drained := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		h.log.WithField("sessions", len(clients)).Info("hub stopped")
		return nil
	case <-ctx.Done():
		h.mu.Lock()
		left := len(h.clients)
		h.mu.Unlock()
		return fmt.Errorf("hub shutdown: %d sessions not deregistered: %w", left, ctx.Err())
	}
}
