package chat

import (
	"context"

	"github.com/ammar1510/mesh/internal/models"
)

type threadPanel struct {
	rootID  string
	store   *Store
	history HistoryLoader
}

// ThreadSnapshot is the rendered state of the open thread panel.
type ThreadSnapshot struct {
	RootID   string
	Messages []models.Message
	HasMore  bool
	Loading  bool
}

func (t *threadPanel) snapshot() *ThreadSnapshot {
	return &ThreadSnapshot{
		RootID:   t.rootID,
		Messages: t.store.Messages(),
		HasMore:  t.history.HasMore(),
		Loading:  t.history.Loading(),
	}
}

// OpenThread shows the replies to rootID in the thread panel, replacing
// any thread already open.
func (c *Conversation) OpenThread(ctx context.Context, rootID string) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	t := &threadPanel{rootID: rootID, store: NewStore(), history: NewHistoryLoader()}
	if root, ok := c.store.Get(rootID); ok {
		if root.IsProvisional() {
			c.mu.Unlock()
			return ErrNotConfirmed
		}
		t.store.Upsert(root)
	}
	t.history.Begin()
	c.thread = t
	c.notifyLocked()
	c.mu.Unlock()

	page, err := c.client.GetThreadMessages(ctx, rootID, models.PageQuery{Limit: c.opts.ThreadPageSize})
	return c.applyThreadPage(t, page, err)
}

// LoadOlderThread fetches the replies before the oldest one loaded.
func (c *Conversation) LoadOlderThread(ctx context.Context) error {
	c.mu.Lock()
	t := c.thread
	if t == nil {
		c.mu.Unlock()
		return ErrNoThread
	}
	if err := t.history.Begin(); err != nil {
		c.mu.Unlock()
		return err
	}
	q := models.PageQuery{Limit: c.opts.ThreadPageSize}
	if oldest, ok := t.store.Find(func(m *models.Message) bool {
		return m.ID != t.rootID && !m.IsProvisional()
	}); ok {
		ts := oldest.CreatedAt
		q.Before = &ts
	}
	c.notifyLocked()
	c.mu.Unlock()

	page, err := c.client.GetThreadMessages(ctx, t.rootID, q)
	return c.applyThreadPage(t, page, err)
}

func (c *Conversation) applyThreadPage(t *threadPanel, page *models.MessagePage, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.thread != t {
		return ErrStale
	}
	if err != nil {
		log.Warn("Failed to load thread %s: %v", t.rootID, err)
		t.history.Fail()
		c.notifyLocked()
		return err
	}
	if page == nil {
		page = &models.MessagePage{}
	}
	for _, m := range page.Messages {
		t.store.Upsert(c.normalize(m))
	}
	t.history.Complete(len(page.Messages), page.HasMore)
	c.notifyLocked()
	return nil
}

// CloseThread hides the thread panel.
func (c *Conversation) CloseThread() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.thread == nil {
		return
	}
	c.thread = nil
	c.notifyLocked()
}
