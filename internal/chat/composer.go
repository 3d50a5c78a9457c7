package chat

import (
	"context"
	"strings"

	"github.com/ammar1510/mesh/internal/drafts"
	"github.com/ammar1510/mesh/internal/models"
)

// Composer is the input area: the draft text, an optional reply quote and
// the message being edited, if any.
type Composer struct {
	Text      string
	ReplyTo   *models.ReplyRef
	EditingID string

	stashed string
}

// SetDraft updates the composer text. Outside edit mode the draft is
// persisted and a typing event is emitted for non-blank text.
func (c *Conversation) SetDraft(text string) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.composer.Text = text
	editing := c.composer.EditingID != ""
	key := drafts.Key(c.self.ID, c.peerID)
	c.notifyLocked()
	c.mu.Unlock()

	if editing {
		return
	}
	if err := c.opts.Drafts.Save(key, text); err != nil {
		log.Warn("Failed to save draft %s: %v", key, err)
	}
	if strings.TrimSpace(text) != "" {
		c.Typing()
	}
}

// ReplyTo quotes message id in the next send.
func (c *Conversation) ReplyTo(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.lookupLocked(id)
	if !ok {
		return ErrUnknownMessage
	}
	if m.IsProvisional() {
		return ErrNotConfirmed
	}
	c.composer.ReplyTo = m.Reply()
	c.notifyLocked()
	return nil
}

func (c *Conversation) CancelReply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.composer.ReplyTo = nil
	c.notifyLocked()
}

// BeginEdit loads one of the user's messages into the composer. The draft
// is set aside until the edit ends.
func (c *Conversation) BeginEdit(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.editableLocked(id)
	if err != nil {
		return err
	}
	if c.composer.EditingID == "" {
		c.composer.stashed = c.composer.Text
	}
	c.composer.EditingID = id
	c.composer.Text = m.Content
	c.notifyLocked()
	return nil
}

func (c *Conversation) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endEditLocked()
}

func (c *Conversation) endEditLocked() {
	if c.composer.EditingID == "" {
		return
	}
	c.composer.Text = c.composer.stashed
	c.composer.stashed = ""
	c.composer.EditingID = ""
	c.notifyLocked()
}

// Submit sends the composer text, or saves the edit in edit mode. When a
// thread is open the message is posted to it.
func (c *Conversation) Submit(ctx context.Context) (models.Message, error) {
	c.mu.Lock()
	if id := c.composer.EditingID; id != "" {
		text := c.composer.Text
		c.mu.Unlock()
		m, err := c.Edit(ctx, id, text)
		if err != nil {
			return models.Message{}, err
		}
		c.mu.Lock()
		if c.composer.EditingID == id {
			c.endEditLocked()
		}
		c.mu.Unlock()
		return m, nil
	}

	text, reply := c.composer.Text, c.composer.ReplyTo
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return models.Message{}, ErrEmptyMessage
	}
	opts := SendOptions{ReplyTo: reply}
	if c.thread != nil {
		opts.ThreadID = c.thread.rootID
	}
	c.composer.Text = ""
	c.composer.ReplyTo = nil
	c.notifyLocked()
	c.mu.Unlock()

	return c.Send(ctx, text, opts)
}
