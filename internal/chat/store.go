package chat

import (
	"errors"
	"sort"
	"time"

	"github.com/ammar1510/mesh/internal/models"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// UpsertResult says what an upsert did to the store
type UpsertResult int

const (
	Unchanged UpsertResult = iota
	Inserted
	Replaced
)

var transitions = map[models.Status][]models.Status{
	models.StatusSending: {models.StatusSent, models.StatusFailed},
	models.StatusFailed:  {models.StatusSending},
}

// Store is the ordered, de-duplicated message set of one conversation.
// Messages are kept in ascending CreatedAt order; equal timestamps keep
// arrival order. Store is not safe for concurrent use; the Conversation
// owning it serializes access.
type Store struct {
	messages []models.Message
	pos      map[string]int
	version  uint64
}

func NewStore() *Store {
	return &Store{pos: make(map[string]int)}
}

// Version increases on every change that alters what would be rendered.
func (s *Store) Version() uint64 { return s.version }

func (s *Store) Len() int { return len(s.messages) }

// Get returns a copy of the message with id
func (s *Store) Get(id string) (models.Message, bool) {
	i, ok := s.pos[id]
	if !ok {
		return models.Message{}, false
	}
	return s.messages[i].Clone(), true
}

// Messages returns a copy of the ordered message list
func (s *Store) Messages() []models.Message {
	out := make([]models.Message, len(s.messages))
	for i := range s.messages {
		out[i] = s.messages[i].Clone()
	}
	return out
}

// Oldest returns the first message in order
func (s *Store) Oldest() (models.Message, bool) {
	if len(s.messages) == 0 {
		return models.Message{}, false
	}
	return s.messages[0].Clone(), true
}

// Find returns the oldest message matching pred
func (s *Store) Find(pred func(m *models.Message) bool) (models.Message, bool) {
	for i := range s.messages {
		if pred(&s.messages[i]) {
			return s.messages[i].Clone(), true
		}
	}
	return models.Message{}, false
}

// Reset empties the store
func (s *Store) Reset() {
	s.messages = nil
	s.pos = make(map[string]int)
	s.version++
}

// Upsert inserts m at its ordered position, or replaces the record with
// the same id wholesale. Re-delivering an identical record is a no-op.
func (s *Store) Upsert(m models.Message) UpsertResult {
	m = m.Clone()
	i, ok := s.pos[m.ID]
	if !ok {
		s.insert(m)
		s.version++
		return Inserted
	}

	if sameMessage(&s.messages[i], &m) {
		return Unchanged
	}

	if s.messages[i].CreatedAt.Equal(m.CreatedAt) {
		s.messages[i] = m
	} else {
		s.remove(i)
		s.insert(m)
	}
	s.version++
	return Replaced
}

// Replace swaps the provisional record tempID for its confirmed
// counterpart, keeping the slot when the confirmed timestamp still fits
// there. If the confirmed id is already present the provisional record is
// dropped so exactly one copy remains.
func (s *Store) Replace(tempID string, confirmed models.Message) UpsertResult {
	i, ok := s.pos[tempID]
	if !ok {
		return s.Upsert(confirmed)
	}
	if tempID == confirmed.ID {
		return s.Upsert(confirmed)
	}

	if _, dup := s.pos[confirmed.ID]; dup {
		s.remove(i)
		s.version++
		s.Upsert(confirmed)
		return Replaced
	}

	confirmed = confirmed.Clone()
	if s.fitsAt(i, confirmed.CreatedAt) {
		s.messages[i] = confirmed
		delete(s.pos, tempID)
		s.pos[confirmed.ID] = i
	} else {
		s.remove(i)
		s.insert(confirmed)
	}
	s.version++
	return Replaced
}

// SetStatus moves a locally originated message through
// sending -> sent | failed and failed -> sending.
func (s *Store) SetStatus(id string, status models.Status) error {
	i, ok := s.pos[id]
	if !ok {
		return nil
	}
	cur := s.messages[i].Status
	if cur == status {
		return nil
	}
	for _, next := range transitions[cur] {
		if next == status {
			s.messages[i].Status = status
			s.version++
			return nil
		}
	}
	return ErrInvalidTransition
}

// ApplyEdit copies the edited content and markers of m onto the stored
// record. It reports whether the id was known.
func (s *Store) ApplyEdit(m models.Message) bool {
	i, ok := s.pos[m.ID]
	if !ok {
		return false
	}
	cur := &s.messages[i]
	cur.Content = m.Content
	cur.Edited = true
	if m.EditedAt != nil {
		t := *m.EditedAt
		cur.EditedAt = &t
	}
	s.version++
	return true
}

// SetReactions replaces the reaction set of id wholesale
func (s *Store) SetReactions(id string, reactions []models.Reaction) bool {
	i, ok := s.pos[id]
	if !ok {
		return false
	}
	if sameReactions(s.messages[i].Reactions, reactions) {
		return true
	}
	s.messages[i].Reactions = append([]models.Reaction(nil), reactions...)
	s.version++
	return true
}

// ToggleReaction applies a user's reaction locally: the same emoji again
// removes it, a different emoji replaces it.
func (s *Store) ToggleReaction(id, userID, emoji string) bool {
	i, ok := s.pos[id]
	if !ok {
		return false
	}
	s.messages[i].Reactions = toggleReaction(s.messages[i].Reactions, userID, emoji)
	s.version++
	return true
}

func toggleReaction(rs []models.Reaction, userID, emoji string) []models.Reaction {
	out := make([]models.Reaction, 0, len(rs)+1)
	removed := false
	for _, r := range rs {
		if r.UserID != userID {
			out = append(out, r)
			continue
		}
		if r.Emoji == emoji {
			removed = true
		}
	}
	if !removed {
		out = append(out, models.Reaction{UserID: userID, Emoji: emoji})
	}
	return out
}

func (s *Store) fitsAt(i int, t time.Time) bool {
	if i > 0 && s.messages[i-1].CreatedAt.After(t) {
		return false
	}
	if i < len(s.messages)-1 && s.messages[i+1].CreatedAt.Before(t) {
		return false
	}
	return true
}

func (s *Store) insert(m models.Message) {
	at := sort.Search(len(s.messages), func(j int) bool {
		return s.messages[j].CreatedAt.After(m.CreatedAt)
	})
	s.messages = append(s.messages, models.Message{})
	copy(s.messages[at+1:], s.messages[at:])
	s.messages[at] = m
	s.reindex(at)
}

func (s *Store) remove(i int) {
	delete(s.pos, s.messages[i].ID)
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	s.reindex(i)
}

func (s *Store) reindex(from int) {
	for j := from; j < len(s.messages); j++ {
		s.pos[s.messages[j].ID] = j
	}
}

func sameMessage(a, b *models.Message) bool {
	if a.ID != b.ID || a.ClientID != b.ClientID || a.Content != b.Content || a.Kind != b.Kind ||
		a.Status != b.Status || a.ThreadID != b.ThreadID || a.Edited != b.Edited ||
		a.AudioURL != b.AudioURL || a.AudioDuration != b.AudioDuration ||
		a.Sender != b.Sender || a.Recipient != b.Recipient {
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	if (a.EditedAt == nil) != (b.EditedAt == nil) || (a.EditedAt != nil && !a.EditedAt.Equal(*b.EditedAt)) {
		return false
	}
	if (a.ReplyTo == nil) != (b.ReplyTo == nil) || (a.ReplyTo != nil && *a.ReplyTo != *b.ReplyTo) {
		return false
	}
	return sameReactions(a.Reactions, b.Reactions)
}

// sameReactions compares reaction sets ignoring order
func sameReactions(a, b []models.Reaction) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[models.Reaction]int, len(a))
	for _, r := range a {
		seen[r]++
	}
	for _, r := range b {
		if seen[r] == 0 {
			return false
		}
		seen[r]--
	}
	return true
}
