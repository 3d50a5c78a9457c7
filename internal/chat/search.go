package chat

import (
	"strings"
	"time"

	"github.com/ammar1510/mesh/internal/models"
)

// Filter narrows the loaded messages. Query matches content or the
// sender's name. Empty fields match everything; date bounds are inclusive.
type Filter struct {
	Query string
	From  *time.Time
	To    *time.Time
}

func (f Filter) matches(m *models.Message) bool {
	if f.From != nil && m.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && m.CreatedAt.After(*f.To) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		return strings.Contains(strings.ToLower(m.Content), q) ||
			strings.Contains(strings.ToLower(senderName(m.Sender)), q)
	}
	return true
}

func senderName(u models.UserRef) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

// Search filters msgs by f, preserving order. It never queries the server:
// only loaded history is searched.
func Search(msgs []models.Message, f Filter) []models.Message {
	out := make([]models.Message, 0)
	for i := range msgs {
		if f.matches(&msgs[i]) {
			out = append(out, msgs[i])
		}
	}
	return out
}
