package chat

import (
	"encoding/json"

	"github.com/ammar1510/mesh/internal/models"
)

func (c *Conversation) onMessage(epoch uint64, data json.RawMessage) {
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn("Dropping malformed message event: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(epoch) {
		return
	}
	c.receiveLocked(m)
}

// receiveLocked merges a message pushed by the server. Messages of other
// conversations are dropped; the server's copy of our own send replaces
// the provisional record instead of adding a second one.
func (c *Conversation) receiveLocked(m models.Message) {
	if !m.Between(c.self.ID, c.peerID) {
		c.opts.Metrics.foreignDropped()
		log.Debug("Dropping message %s outside conversation with %s", m.ID, c.peerID)
		return
	}
	m = c.normalize(m)

	if m.Sender.ID == c.self.ID {
		if temp, ok := c.provisionalFor(&m); ok {
			c.store.Replace(temp.ID, m)
			c.mirrorReplace(temp.ID, m)
			delete(c.pending, temp.ID)
			delete(c.uploads, temp.ID)
			c.notifyLocked()
			return
		}
	}

	res := c.store.Upsert(m)
	mirrored := c.mirrorUpsert(m)
	if res == Unchanged {
		c.opts.Metrics.duplicate()
		if mirrored {
			c.notifyLocked()
		}
		return
	}

	if res == Inserted {
		if m.Sender.ID == c.peerID {
			c.stopTypingLocked()
		}
		// Only sends from this client force the view down, in submit.
		c.viewport.Arrived(c.opts.Now(), c.opts.NearBottomThreshold, c.opts.ScrollIdleGrace)
	}
	c.notifyLocked()
}

// provisionalFor finds the optimistic record an echo of our own message
// confirms. The client id is authoritative when present. Without one the
// oldest pending send with the same kind and content is taken, so
// identical sends are matched in order.
func (c *Conversation) provisionalFor(m *models.Message) (models.Message, bool) {
	if _, known := c.store.Get(m.ID); known {
		return models.Message{}, false
	}
	if m.ClientID != "" {
		return c.store.Find(func(p *models.Message) bool {
			return p.IsProvisional() && p.ClientID == m.ClientID
		})
	}
	return c.store.Find(func(p *models.Message) bool {
		if !p.IsProvisional() || p.Status != models.StatusSending || p.Kind != m.Kind {
			return false
		}
		return m.Kind == models.KindAudio || p.Content == m.Content
	})
}

func (c *Conversation) onEdited(epoch uint64, data json.RawMessage) {
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn("Dropping malformed edit event: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(epoch) {
		return
	}
	inMain := c.store.ApplyEdit(m)
	thread := c.thread != nil && c.thread.store.ApplyEdit(m)
	if inMain || thread {
		c.notifyLocked()
	}
}

func (c *Conversation) onReaction(epoch uint64, data json.RawMessage) {
	var p models.ReactionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn("Dropping malformed reaction event: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(epoch) {
		return
	}
	if c.setReactionsLocked(p.MessageID, p.Reactions) {
		c.notifyLocked()
	}
}

func (c *Conversation) setReactionsLocked(id string, rs []models.Reaction) bool {
	v := c.store.Version()
	c.store.SetReactions(id, rs)
	changed := c.store.Version() != v
	if c.thread != nil {
		tv := c.thread.store.Version()
		c.thread.store.SetReactions(id, rs)
		changed = changed || c.thread.store.Version() != tv
	}
	return changed
}

func (c *Conversation) inThread(m *models.Message) bool {
	return c.thread != nil && (m.ThreadID == c.thread.rootID || m.ID == c.thread.rootID)
}

func (c *Conversation) mirrorUpsert(m models.Message) bool {
	if !c.inThread(&m) {
		return false
	}
	return c.thread.store.Upsert(m) != Unchanged
}

func (c *Conversation) mirrorReplace(tempID string, m models.Message) {
	if c.inThread(&m) {
		c.thread.store.Replace(tempID, m)
	}
}

func (c *Conversation) mirrorStatus(id string, status models.Status) {
	if c.thread != nil {
		if err := c.thread.store.SetStatus(id, status); err != nil {
			log.Debug("Thread status of %s: %v", id, err)
		}
	}
}
