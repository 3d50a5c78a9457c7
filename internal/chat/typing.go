package chat

import (
	"encoding/json"
	"time"

	"github.com/ammar1510/mesh/internal/models"
)

type typingState struct {
	active bool
	seq    uint64
	timer  *time.Timer
}

func (c *Conversation) onTyping(epoch uint64, data json.RawMessage) {
	var p models.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn("Dropping malformed typing event: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(epoch) || p.SenderID != c.peerID || p.RecipientID != c.self.ID {
		return
	}

	was := c.typing.active
	c.typing.active = true
	c.typing.seq++
	seq := c.typing.seq
	if c.typing.timer != nil {
		c.typing.timer.Stop()
	}
	c.typing.timer = time.AfterFunc(c.opts.TypingTimeout, func() {
		c.expireTyping(epoch, seq)
	})
	if !was {
		c.notifyLocked()
	}
}

// expireTyping hides the indicator unless a newer typing event re-armed
// the timer.
func (c *Conversation) expireTyping(epoch, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(epoch) || c.typing.seq != seq || !c.typing.active {
		return
	}
	c.typing.active = false
	c.notifyLocked()
}

func (c *Conversation) stopTypingLocked() {
	if c.typing.timer != nil {
		c.typing.timer.Stop()
	}
	c.typing.seq++
	c.typing.timer = nil
	c.typing.active = false
}

// Typing tells the peer the user is typing. Calls are rate limited so a
// burst of keystrokes emits at most one event per interval.
func (c *Conversation) Typing() {
	c.mu.Lock()
	if !c.open || c.rt == nil || !c.limiter.Allow() {
		c.mu.Unlock()
		return
	}
	payload := models.TypingPayload{SenderID: c.self.ID, RecipientID: c.peerID}
	c.mu.Unlock()

	if err := c.rt.Emit(models.EventTyping, payload); err != nil {
		log.Debug("Typing event not sent: %v", err)
	}
}
