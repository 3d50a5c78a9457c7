package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ammar1510/mesh/internal/api"
	"github.com/ammar1510/mesh/internal/drafts"
	"github.com/ammar1510/mesh/internal/logger"
	"github.com/ammar1510/mesh/internal/models"
)

var (
	ErrPeerNotFound   = errors.New("peer not found")
	ErrNotOpen        = errors.New("conversation is not open")
	ErrStale          = errors.New("conversation changed while the request was in flight")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrUnknownMessage = errors.New("unknown message")
	ErrNotConfirmed   = errors.New("message is not confirmed yet")
	ErrNotRetryable   = errors.New("message is not a failed send")
	ErrNotEditable    = errors.New("message cannot be edited")
	ErrNoThread       = errors.New("no thread is open")

	log = logger.New("chat")
)

// API is the subset of the REST client a Conversation needs.
type API interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetMessages(ctx context.Context, peerID string, q models.PageQuery) (*models.MessagePage, error)
	SendMessage(ctx context.Context, peerID string, req models.SendRequest) (*models.Message, error)
	EditMessage(ctx context.Context, messageID, content string) (*models.Message, error)
	ReactToMessage(ctx context.Context, messageID, emoji string) error
	GetThreadMessages(ctx context.Context, rootID string, q models.PageQuery) (*models.MessagePage, error)
	UploadVoiceNote(ctx context.Context, peerID string, note models.VoiceNote) (*models.Message, error)
}

// Realtime is the shared event connection. Subscribe returns the function
// that detaches the listener.
type Realtime interface {
	Subscribe(event string, fn func(data json.RawMessage)) func()
	Emit(event string, payload interface{}) error
}

type pendingSend struct {
	req   models.SendRequest
	voice *models.VoiceNote
}

// Conversation is the view model of the chat with one peer. It merges
// history pages, optimistic sends and socket events into a single ordered
// message list. All methods are safe for concurrent use; network calls are
// made without holding the internal lock and their results are discarded
// if the conversation was closed or switched meanwhile.
type Conversation struct {
	client API
	rt     Realtime
	self   models.UserRef
	opts   Options

	mu       sync.Mutex
	open     bool
	epoch    uint64
	peerID   string
	peer     *models.User
	notFound bool
	ctx      context.Context
	cancel   context.CancelFunc

	store    *Store
	history  HistoryLoader
	viewport Viewport
	typing   typingState
	limiter  *rate.Limiter
	pending  map[string]pendingSend
	uploads  map[string]int
	thread   *threadPanel
	composer Composer
	detach   []func()

	changes chan struct{}
	rev     uint64

	projVersion  uint64
	projValid    bool
	projMessages []models.Message
	projGroups   []Group
	projSeps     []DateSeparator
}

// NewConversation creates a closed conversation for the signed-in user.
// rt may be nil, in which case no live events are received.
func NewConversation(client API, rt Realtime, self models.UserRef, opts Options) *Conversation {
	opts = opts.withDefaults()
	return &Conversation{
		client:  client,
		rt:      rt,
		self:    self,
		opts:    opts,
		store:   NewStore(),
		history: NewHistoryLoader(),
		limiter: rate.NewLimiter(rate.Every(opts.TypingEmitInterval), 1),
		pending: make(map[string]pendingSend),
		uploads: make(map[string]int),
		changes: make(chan struct{}, 1),
	}
}

// Changes signals that a new Snapshot is available. Signals coalesce.
func (c *Conversation) Changes() <-chan struct{} { return c.changes }

// Open attaches the conversation to peerID: it subscribes to live
// events, restores the draft, resolves the peer and loads the newest page
// of history. An already open conversation is closed first.
func (c *Conversation) Open(ctx context.Context, peerID string) error {
	c.mu.Lock()
	c.closeLocked()
	c.open = true
	c.epoch++
	epoch := c.epoch
	c.peerID = peerID
	c.peer = nil
	c.notFound = false
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.history = NewHistoryLoader()
	c.viewport = Viewport{}
	c.subscribeLocked(epoch)
	c.history.Begin()
	c.notifyLocked()
	c.mu.Unlock()

	draft, err := c.opts.Drafts.Load(drafts.Key(c.self.ID, peerID))
	if err != nil {
		log.Warn("Failed to load draft for %s: %v", peerID, err)
	}

	user, err := c.client.GetUser(ctx, peerID)
	if err != nil && errors.Is(err, api.ErrNotFound) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.current(epoch) {
			c.notFound = true
			c.history.Fail()
			c.notifyLocked()
		}
		return ErrPeerNotFound
	}
	if err != nil {
		log.Warn("Failed to load profile of %s: %v", peerID, err)
	}

	c.mu.Lock()
	if !c.current(epoch) {
		c.mu.Unlock()
		return ErrStale
	}
	c.peer = user
	if c.composer.Text == "" {
		c.composer.Text = draft
	}
	c.mu.Unlock()

	page, err := c.client.GetMessages(ctx, peerID, models.PageQuery{Limit: c.opts.PageSize})

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(epoch) {
		return ErrStale
	}
	if err != nil {
		log.Warn("Failed to load history with %s: %v", peerID, err)
		c.opts.Metrics.historyPage("error")
		c.history.Fail()
		c.notifyLocked()
		return nil
	}
	c.applyPageLocked(page, false)
	c.viewport.ScrollToBottom()
	c.notifyLocked()
	log.Debug("Opened conversation with %s (%d messages)", peerID, c.store.Len())
	return nil
}

// Switch moves the conversation to another peer. Late responses for the
// previous peer are dropped.
func (c *Conversation) Switch(ctx context.Context, peerID string) error {
	return c.Open(ctx, peerID)
}

// Close detaches every listener and discards conversation state.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Conversation) closeLocked() {
	if !c.open {
		return
	}
	c.open = false
	c.epoch++
	for _, detach := range c.detach {
		detach()
	}
	c.detach = nil
	c.stopTypingLocked()
	if c.cancel != nil {
		c.cancel()
	}
	c.store.Reset()
	c.thread = nil
	c.pending = make(map[string]pendingSend)
	c.uploads = make(map[string]int)
	c.composer = Composer{}
	c.notifyLocked()
}

func (c *Conversation) subscribeLocked(epoch uint64) {
	if c.rt == nil {
		return
	}
	on := func(event string, fn func(uint64, json.RawMessage)) {
		c.detach = append(c.detach, c.rt.Subscribe(event, func(data json.RawMessage) {
			fn(epoch, data)
		}))
	}
	on(models.EventNewMessage, c.onMessage)
	on(models.EventMessageSent, c.onMessage)
	on(models.EventMessageEdited, c.onEdited)
	on(models.EventMessageReaction, c.onReaction)
	on(models.EventTyping, c.onTyping)
}

// LoadOlder fetches the page of history before the oldest loaded message.
// It returns the number of new messages.
func (c *Conversation) LoadOlder(ctx context.Context) (int, error) {
	c.mu.Lock()
	if !c.open || c.notFound {
		c.mu.Unlock()
		return 0, ErrNotOpen
	}
	if err := c.history.Begin(); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	q := models.PageQuery{Limit: c.opts.PageSize}
	oldest, older := c.store.Find(isConfirmed)
	if older {
		t := oldest.CreatedAt
		q.Before = &t
	}
	epoch, peerID := c.epoch, c.peerID
	c.notifyLocked()
	c.mu.Unlock()

	page, err := c.client.GetMessages(ctx, peerID, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(epoch) {
		return 0, ErrStale
	}
	if err != nil {
		log.Warn("Failed to load older messages with %s: %v", peerID, err)
		c.opts.Metrics.historyPage("error")
		c.history.Fail()
		c.notifyLocked()
		return 0, err
	}
	// With nothing confirmed yet this is the first page, retried after a
	// failed open, and lands at the bottom like one.
	n := c.applyPageLocked(page, older)
	if !older && n > 0 {
		c.viewport.ScrollToBottom()
	}
	c.notifyLocked()
	return n, nil
}

func (c *Conversation) applyPageLocked(page *models.MessagePage, prepend bool) int {
	if page == nil {
		page = &models.MessagePage{}
	}
	if prepend && len(page.Messages) > 0 {
		c.viewport.AnchorPrepend()
	}
	n := 0
	for _, m := range page.Messages {
		if !m.Between(c.self.ID, c.peerID) {
			c.opts.Metrics.foreignDropped()
			continue
		}
		switch c.store.Upsert(c.normalize(m)) {
		case Inserted:
			n++
		case Unchanged:
			c.opts.Metrics.duplicate()
		}
	}
	if len(page.Messages) == 0 {
		c.opts.Metrics.historyPage("empty")
	} else {
		c.opts.Metrics.historyPage("ok")
	}
	c.history.Complete(len(page.Messages), page.HasMore)
	return n
}

// Scrolled reports a user scroll to top. Coming near the top starts a
// background fetch of older history.
func (c *Conversation) Scrolled(top float64) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	had := c.viewport.NewMessages()
	c.viewport.UserScroll(top, c.opts.Now(), c.opts.NearBottomThreshold)
	load := c.viewport.NearTop(c.opts.NearTopThreshold) &&
		c.history.HasMore() && !c.history.Loading()
	if had != c.viewport.NewMessages() {
		c.notifyLocked()
	}
	ctx := c.ctx
	c.mu.Unlock()

	if load {
		go func() {
			if _, err := c.LoadOlder(ctx); err != nil && !errors.Is(err, ErrLoadInFlight) {
				log.Debug("Background history load stopped: %v", err)
			}
		}()
	}
}

// Layout records the geometry after a render pass and returns the scroll
// position the host should apply.
func (c *Conversation) Layout(scrollHeight, clientHeight float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport.Layout(scrollHeight, clientHeight)
	return c.viewport.ScrollTop
}

// DismissNewMessages jumps to the newest message and clears the
// new-message affordance.
func (c *Conversation) DismissNewMessages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport.ScrollToBottom()
	c.notifyLocked()
}

// Search filters the loaded messages.
func (c *Conversation) Search(f Filter) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Search(c.store.Messages(), f)
}

// Get returns a message from the conversation or the open thread.
func (c *Conversation) Get(id string) (models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(id)
}

// UploadProgress returns the upload percentage of a voice note still
// being sent.
func (c *Conversation) UploadProgress(id string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pct, ok := c.uploads[id]
	return pct, ok
}

// Snapshot is a consistent view of the conversation for rendering. Slices
// may be shared between snapshots and must not be modified.
type Snapshot struct {
	PeerID       string
	Peer         *models.User
	PeerNotFound bool

	Messages   []models.Message
	Groups     []Group
	Separators []DateSeparator

	HasMore      bool
	LoadingOlder bool
	PeerTyping   bool
	NewMessages  bool
	Viewport     Viewport
	Uploads      map[string]int
	Composer     Composer
	Thread       *ThreadSnapshot

	Revision uint64
}

func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.projValid || c.projVersion != c.store.Version() {
		c.projMessages = c.store.Messages()
		c.projGroups = GroupMessages(c.projMessages, c.opts.GroupWindow)
		c.projSeps = DateSeparators(c.projMessages, c.opts.Location)
		c.projVersion = c.store.Version()
		c.projValid = true
	}

	s := Snapshot{
		PeerID:       c.peerID,
		PeerNotFound: c.notFound,
		Messages:     c.projMessages,
		Groups:       c.projGroups,
		Separators:   c.projSeps,
		HasMore:      c.history.HasMore(),
		LoadingOlder: c.history.Loading(),
		PeerTyping:   c.typing.active,
		NewMessages:  c.viewport.NewMessages(),
		Viewport:     c.viewport,
		Uploads:      make(map[string]int, len(c.uploads)),
		Composer:     c.composer,
		Revision:     c.rev,
	}
	if c.peer != nil {
		p := *c.peer
		s.Peer = &p
	}
	for id, pct := range c.uploads {
		s.Uploads[id] = pct
	}
	if c.thread != nil {
		s.Thread = c.thread.snapshot()
	}
	return s
}

func (c *Conversation) current(epoch uint64) bool {
	return c.open && c.epoch == epoch
}

func (c *Conversation) notifyLocked() {
	c.rev++
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *Conversation) peerRef() models.UserRef {
	if c.peer != nil {
		return c.peer.Ref()
	}
	return models.UserRef{ID: c.peerID}
}

// normalize fills defaults on records received from the server.
func (c *Conversation) normalize(m models.Message) models.Message {
	if m.Kind == "" {
		m.Kind = models.KindText
	}
	if m.Sender.ID == c.self.ID && m.Status == "" {
		m.Status = models.StatusSent
	}
	return m
}

func (c *Conversation) lookupLocked(id string) (models.Message, bool) {
	if m, ok := c.store.Get(id); ok {
		return m, true
	}
	if c.thread != nil {
		return c.thread.store.Get(id)
	}
	return models.Message{}, false
}

func isConfirmed(m *models.Message) bool {
	return !m.IsProvisional()
}
