package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/ammar1510/mesh/internal/api"
	"github.com/ammar1510/mesh/internal/drafts"
	"github.com/ammar1510/mesh/internal/models"
)

// SendOptions attaches a reply quote or a thread to an outgoing message.
type SendOptions struct {
	ReplyTo  *models.ReplyRef
	ThreadID string
}

// VoiceNote is a recorded clip to send. LocalURL is shown as the audio
// source until the server returns the hosted one.
type VoiceNote struct {
	Audio    []byte
	FileName string
	Duration float64
	LocalURL string
	ReplyTo  *models.ReplyRef
}

// Send adds a provisional message to the list right away and delivers it.
// A failed delivery is not an error: the returned record carries
// StatusFailed and can be retried.
func (c *Conversation) Send(ctx context.Context, content string, opts SendOptions) (models.Message, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}
	req := models.SendRequest{
		Content:  text,
		Kind:     models.KindText,
		ReplyTo:  opts.ReplyTo,
		ThreadID: opts.ThreadID,
	}
	return c.submit(ctx, req, nil, "")
}

// SendVoiceNote uploads a voice note the same way Send delivers text.
// Progress is available from UploadProgress and Snapshot while the upload
// runs.
func (c *Conversation) SendVoiceNote(ctx context.Context, note VoiceNote) (models.Message, error) {
	if len(note.Audio) == 0 {
		return models.Message{}, api.ErrEmptyAudio
	}
	req := models.SendRequest{Kind: models.KindAudio, ReplyTo: note.ReplyTo}
	voice := &models.VoiceNote{
		Audio:    note.Audio,
		FileName: note.FileName,
		Duration: note.Duration,
		ReplyTo:  note.ReplyTo,
	}
	return c.submit(ctx, req, voice, note.LocalURL)
}

func (c *Conversation) submit(ctx context.Context, req models.SendRequest, voice *models.VoiceNote, localURL string) (models.Message, error) {
	c.mu.Lock()
	if !c.open || c.notFound {
		c.mu.Unlock()
		return models.Message{}, ErrNotOpen
	}

	clientID := uuid.NewString()
	req.ClientID = clientID
	m := models.Message{
		ID:        models.ProvisionalPrefix + clientID,
		ClientID:  clientID,
		Sender:    c.self,
		Recipient: c.peerRef(),
		Content:   req.Content,
		Kind:      req.Kind,
		CreatedAt: c.opts.Now(),
		ReplyTo:   req.ReplyTo,
		ThreadID:  req.ThreadID,
		Status:    models.StatusSending,
	}
	if voice != nil {
		voice.ClientID = clientID
		m.AudioURL = localURL
		m.AudioDuration = voice.Duration
		c.uploads[m.ID] = 0
	}

	c.store.Upsert(m)
	c.mirrorUpsert(m)
	c.pending[m.ID] = pendingSend{req: req, voice: voice}
	c.viewport.ScrollToBottom()
	epoch := c.epoch
	c.notifyLocked()
	c.mu.Unlock()

	return c.deliver(ctx, epoch, m.ID)
}

// Retry re-sends a failed message under its original client id.
func (c *Conversation) Retry(ctx context.Context, id string) (models.Message, error) {
	c.mu.Lock()
	m, ok := c.store.Get(id)
	if !ok {
		c.mu.Unlock()
		return models.Message{}, ErrUnknownMessage
	}
	p, ok := c.pending[id]
	if m.Status != models.StatusFailed || !ok {
		c.mu.Unlock()
		return models.Message{}, ErrNotRetryable
	}
	if err := c.store.SetStatus(id, models.StatusSending); err != nil {
		c.mu.Unlock()
		return models.Message{}, err
	}
	c.mirrorStatus(id, models.StatusSending)
	if p.voice != nil {
		c.uploads[id] = 0
	}
	c.opts.Metrics.sendRetried()
	epoch := c.epoch
	c.notifyLocked()
	c.mu.Unlock()

	return c.deliver(ctx, epoch, id)
}

func (c *Conversation) deliver(ctx context.Context, epoch uint64, tempID string) (models.Message, error) {
	c.mu.Lock()
	p, ok := c.pending[tempID]
	peerID := c.peerID
	stale := !c.current(epoch)
	c.mu.Unlock()
	if stale {
		return models.Message{}, ErrStale
	}
	if !ok {
		return models.Message{}, ErrUnknownMessage
	}

	var resp *models.Message
	var err error
	if p.voice != nil {
		note := *p.voice
		note.OnProgress = func(pct int) { c.progress(epoch, tempID, pct) }
		c.opts.Metrics.voiceNote(len(note.Audio))
		resp, err = c.client.UploadVoiceNote(ctx, peerID, note)
	} else {
		resp, err = c.client.SendMessage(ctx, peerID, p.req)
	}
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}

	c.mu.Lock()
	if !c.current(epoch) {
		c.mu.Unlock()
		log.Debug("Discarding send result for %s after conversation changed", tempID)
		return models.Message{}, ErrStale
	}

	if err != nil {
		defer c.mu.Unlock()
		delete(c.uploads, tempID)
		failed, ok := c.store.Get(tempID)
		if !ok {
			// The socket echo confirmed the message before the call failed.
			done, _ := c.store.Find(func(m *models.Message) bool { return m.ClientID == p.req.ClientID })
			return done, nil
		}
		log.Warn("Failed to send %s to %s: %v", tempID, peerID, err)
		c.opts.Metrics.sendFailed()
		if serr := c.store.SetStatus(tempID, models.StatusFailed); serr != nil {
			log.Error("Status of %s: %v", tempID, serr)
		}
		c.mirrorStatus(tempID, models.StatusFailed)
		failed, _ = c.store.Get(tempID)
		c.notifyLocked()
		return failed, nil
	}

	m := c.normalize(*resp)
	c.store.Replace(tempID, m)
	c.mirrorReplace(tempID, m)
	delete(c.pending, tempID)
	delete(c.uploads, tempID)
	c.opts.Metrics.messageSent()
	clearDraft := p.voice == nil && c.composer.Text == "" && c.composer.EditingID == ""
	key := drafts.Key(c.self.ID, peerID)
	c.notifyLocked()
	c.mu.Unlock()

	if clearDraft {
		if err := c.opts.Drafts.Delete(key); err != nil {
			log.Warn("Failed to clear draft %s: %v", key, err)
		}
	}
	return m, nil
}

func (c *Conversation) progress(epoch uint64, tempID string, pct int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(epoch) {
		return
	}
	if cur, ok := c.uploads[tempID]; !ok || cur == pct {
		return
	}
	c.uploads[tempID] = pct
	c.notifyLocked()
}

// Edit changes the text of one of the user's confirmed messages.
func (c *Conversation) Edit(ctx context.Context, id, content string) (models.Message, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}

	c.mu.Lock()
	m, err := c.editableLocked(id)
	epoch := c.epoch
	c.mu.Unlock()
	if err != nil {
		return models.Message{}, err
	}
	if m.Content == text {
		return m, nil
	}

	updated, err := c.client.EditMessage(ctx, id, text)
	if err != nil {
		log.Warn("Failed to edit %s: %v", id, err)
		return models.Message{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(epoch) {
		return models.Message{}, ErrStale
	}
	c.store.ApplyEdit(*updated)
	if c.thread != nil {
		c.thread.store.ApplyEdit(*updated)
	}
	c.notifyLocked()
	m, _ = c.lookupLocked(id)
	return m, nil
}

func (c *Conversation) editableLocked(id string) (models.Message, error) {
	if !c.open {
		return models.Message{}, ErrNotOpen
	}
	m, ok := c.lookupLocked(id)
	if !ok {
		return models.Message{}, ErrUnknownMessage
	}
	if m.IsProvisional() {
		return models.Message{}, ErrNotConfirmed
	}
	if m.Sender.ID != c.self.ID || m.Kind != models.KindText {
		return models.Message{}, ErrNotEditable
	}
	return m, nil
}

// React toggles the user's reaction locally and reports it to the server.
// The server's reaction event replaces the local set; if the call fails
// the local change is rolled back.
func (c *Conversation) React(ctx context.Context, id, emoji string) error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return ErrNotOpen
	}
	m, ok := c.lookupLocked(id)
	if !ok {
		c.mu.Unlock()
		return ErrUnknownMessage
	}
	if m.IsProvisional() {
		c.mu.Unlock()
		return ErrNotConfirmed
	}
	before := m.Reactions
	optimistic := toggleReaction(before, c.self.ID, emoji)
	c.setReactionsLocked(id, optimistic)
	epoch := c.epoch
	c.notifyLocked()
	c.mu.Unlock()

	if err := c.client.ReactToMessage(ctx, id, emoji); err != nil {
		log.Warn("Failed to react to %s: %v", id, err)
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.lookupLocked(id); ok && c.current(epoch) && sameReactions(cur.Reactions, optimistic) {
			c.setReactionsLocked(id, before)
			c.notifyLocked()
		}
		return err
	}
	return nil
}
