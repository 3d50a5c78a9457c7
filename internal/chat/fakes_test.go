package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/mesh/internal/drafts"
	"github.com/ammar1510/mesh/internal/models"
)

var (
	me    = models.UserRef{ID: "me", DisplayName: "Me"}
	alice = models.UserRef{ID: "alice", DisplayName: "Alice"}
	bob   = models.UserRef{ID: "bob", DisplayName: "Bob"}

	base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

// MockAPI is a mock implementation of API. A Return value may be a
// func(models.SendRequest) *models.Message to build the response from the
// request.
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) GetUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockAPI) GetMessages(ctx context.Context, peerID string, q models.PageQuery) (*models.MessagePage, error) {
	args := m.Called(ctx, peerID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessagePage), args.Error(1)
}

func (m *MockAPI) SendMessage(ctx context.Context, peerID string, req models.SendRequest) (*models.Message, error) {
	args := m.Called(ctx, peerID, req)
	if fn, ok := args.Get(0).(func(models.SendRequest) *models.Message); ok {
		return fn(req), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockAPI) EditMessage(ctx context.Context, messageID, content string) (*models.Message, error) {
	args := m.Called(ctx, messageID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockAPI) ReactToMessage(ctx context.Context, messageID, emoji string) error {
	args := m.Called(ctx, messageID, emoji)
	return args.Error(0)
}

func (m *MockAPI) GetThreadMessages(ctx context.Context, rootID string, q models.PageQuery) (*models.MessagePage, error) {
	args := m.Called(ctx, rootID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessagePage), args.Error(1)
}

func (m *MockAPI) UploadVoiceNote(ctx context.Context, peerID string, note models.VoiceNote) (*models.Message, error) {
	args := m.Called(ctx, peerID, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

// fakeHub stands in for the websocket connection. push delivers an event
// synchronously to every listener.
type fakeHub struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string]map[int]func(json.RawMessage)
	emitted   []string
}

func newFakeHub() *fakeHub {
	return &fakeHub{listeners: make(map[string]map[int]func(json.RawMessage))}
}

func (h *fakeHub) Subscribe(event string, fn func(data json.RawMessage)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	if h.listeners[event] == nil {
		h.listeners[event] = make(map[int]func(json.RawMessage))
	}
	h.listeners[event][id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners[event], id)
	}
}

func (h *fakeHub) Emit(event string, payload interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emitted = append(h.emitted, event)
	return nil
}

func (h *fakeHub) push(t *testing.T, event string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)

	h.mu.Lock()
	var fns []func(json.RawMessage)
	for _, fn := range h.listeners[event] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}

func (h *fakeHub) listenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ls := range h.listeners {
		n += len(ls)
	}
	return n
}

func (h *fakeHub) emits(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.emitted {
		if e == event {
			n++
		}
	}
	return n
}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	conv   *Conversation
	api    *MockAPI
	hub    *fakeHub
	clock  *clock
	drafts *drafts.MemoryStore
}

func newHarness(t *testing.T, opts Options) *harness {
	h := &harness{
		api:    new(MockAPI),
		hub:    newFakeHub(),
		clock:  &clock{now: base.Add(time.Hour)},
		drafts: drafts.NewMemoryStore(),
	}
	if opts.Now == nil {
		opts.Now = h.clock.Now
	}
	if opts.Drafts == nil {
		opts.Drafts = h.drafts
	}
	h.conv = NewConversation(h.api, h.hub, me, opts)
	t.Cleanup(h.conv.Close)
	return h
}

// open opens the conversation with peer, serving page as the latest
// history.
func (h *harness) open(t *testing.T, peer models.UserRef, page *models.MessagePage) {
	t.Helper()
	h.api.On("GetUser", mock.Anything, peer.ID).
		Return(&models.User{ID: peer.ID, Username: peer.ID, DisplayName: peer.DisplayName}, nil).Once()
	h.api.On("GetMessages", mock.Anything, peer.ID, models.PageQuery{Limit: DefaultPageSize}).
		Return(page, nil).Once()
	require.NoError(t, h.conv.Open(context.Background(), peer.ID))
}

func msg(id string, from, to models.UserRef, content string, offset time.Duration) models.Message {
	return models.Message{
		ID:        id,
		Sender:    from,
		Recipient: to,
		Content:   content,
		Kind:      models.KindText,
		CreatedAt: base.Add(offset),
	}
}

func page(hasMore bool, msgs ...models.Message) *models.MessagePage {
	return &models.MessagePage{Messages: msgs, HasMore: hasMore}
}

func ids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func olderThan(t time.Time) interface{} {
	return mock.MatchedBy(func(q models.PageQuery) bool {
		return q.Before != nil && q.Before.Equal(t)
	})
}
