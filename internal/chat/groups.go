package chat

import (
	"time"

	"github.com/ammar1510/mesh/internal/models"
)

// Group is a run of consecutive messages from one sender where each
// message follows the previous one within the grouping window.
type Group struct {
	Sender   models.UserRef
	Messages []models.Message
}

// Start returns the timestamp of the first message in the group
func (g Group) Start() time.Time { return g.Messages[0].CreatedAt }

// End returns the timestamp of the last message in the group
func (g Group) End() time.Time { return g.Messages[len(g.Messages)-1].CreatedAt }

// GroupMessages clusters ordered messages by sender. A gap strictly longer
// than window starts a new group even for the same sender.
func GroupMessages(msgs []models.Message, window time.Duration) []Group {
	var groups []Group
	for _, m := range msgs {
		if n := len(groups); n > 0 {
			last := &groups[n-1]
			prev := last.Messages[len(last.Messages)-1]
			if prev.Sender.ID == m.Sender.ID && m.CreatedAt.Sub(prev.CreatedAt) <= window {
				last.Messages = append(last.Messages, m)
				continue
			}
		}
		groups = append(groups, Group{Sender: m.Sender, Messages: []models.Message{m}})
	}
	return groups
}

// DateSeparator marks that the message at Index starts a new calendar day.
type DateSeparator struct {
	Index int
	Date  time.Time
}

// DateSeparators returns one separator per calendar day change in loc,
// including one before the first message.
func DateSeparators(msgs []models.Message, loc *time.Location) []DateSeparator {
	if loc == nil {
		loc = time.Local
	}
	var seps []DateSeparator
	var prev time.Time
	for i, m := range msgs {
		day := startOfDay(m.CreatedAt.In(loc))
		if i == 0 || !day.Equal(prev) {
			seps = append(seps, DateSeparator{Index: i, Date: day})
			prev = day
		}
	}
	return seps
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
