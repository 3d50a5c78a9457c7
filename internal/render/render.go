// Package render draws conversation snapshots as plain text for the
// terminal client.
package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ammar1510/mesh/internal/chat"
	"github.com/ammar1510/mesh/internal/models"
)

const defaultWidth = 80

// Options controls layout. Zero values pick sensible defaults.
type Options struct {
	Width    int
	Now      time.Time
	Location *time.Location
	Self     string
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = defaultWidth
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Conversation writes the message list of s with date separators, sender
// headers per group and the peer's typing state.
func Conversation(w io.Writer, s chat.Snapshot, opts Options) error {
	opts = opts.withDefaults()
	var b strings.Builder

	if s.PeerNotFound {
		fmt.Fprintf(&b, "User %s was not found.\n", s.PeerID)
		_, err := io.WriteString(w, b.String())
		return err
	}

	if s.HasMore {
		b.WriteString(center("/older for earlier messages", opts.Width))
	} else if len(s.Messages) > 0 {
		b.WriteString(center("start of conversation", opts.Width))
	}

	seps := make(map[int]time.Time, len(s.Separators))
	for _, sep := range s.Separators {
		seps[sep.Index] = sep.Date
	}

	i := 0
	for _, g := range s.Groups {
		for j, m := range g.Messages {
			if day, ok := seps[i]; ok {
				b.WriteString(center(DateLabel(day, opts.Now.In(opts.Location)), opts.Width))
			}
			if j == 0 || isSeparated(seps, i) {
				fmt.Fprintf(&b, "%s · %s\n", senderName(g.Sender, opts.Self), humanize.RelTime(m.CreatedAt, opts.Now, "ago", "from now"))
			}
			writeMessage(&b, m, s.Uploads, opts)
			i++
		}
	}

	if s.PeerTyping {
		fmt.Fprintf(&b, "%s is typing…\n", peerName(s))
	}
	if s.NewMessages {
		b.WriteString(center("new messages below", opts.Width))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Thread writes the open thread panel
func Thread(w io.Writer, t *chat.ThreadSnapshot, opts Options) error {
	if t == nil {
		return nil
	}
	opts = opts.withDefaults()
	var b strings.Builder

	b.WriteString(center("thread "+t.RootID, opts.Width))
	if t.HasMore {
		b.WriteString(center("/older for earlier replies", opts.Width))
	}
	for _, m := range t.Messages {
		fmt.Fprintf(&b, "%s · %s\n", senderName(m.Sender, opts.Self), humanize.RelTime(m.CreatedAt, opts.Now, "ago", "from now"))
		writeMessage(&b, m, nil, opts)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Results writes search matches, one per line.
func Results(w io.Writer, query string, msgs []models.Message, opts Options) error {
	opts = opts.withDefaults()
	var b strings.Builder
	fmt.Fprintf(&b, "%s for %q\n", humanize.Comma(int64(len(msgs)))+" "+plural(len(msgs), "match", "matches"), query)
	for _, m := range msgs {
		fmt.Fprintf(&b, "  [%s] %s: %s\n", m.ID, senderName(m.Sender, opts.Self), m.Content)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeMessage(b *strings.Builder, m models.Message, uploads map[string]int, opts Options) {
	if m.ReplyTo != nil {
		fmt.Fprintf(b, "  ┆ %s: %s\n", senderName(m.ReplyTo.Sender, opts.Self), truncate(m.ReplyTo.Content, opts.Width-8))
	}

	body := m.Content
	if m.Kind == models.KindAudio {
		body = "♪ voice note " + formatDuration(m.AudioDuration)
		if pct, ok := uploads[m.ID]; ok {
			body += fmt.Sprintf(" (uploading %d%%)", pct)
		}
	}
	if m.Edited {
		body += " (edited)"
	}
	if m.ThreadID != "" && m.ThreadID != m.ID {
		body = "↳ " + body
	}

	prefix := fmt.Sprintf("  [%s] ", shortID(m.ID))
	lines := wrap(body, opts.Width-len([]rune(prefix)))
	for k, line := range lines {
		if k == 0 {
			b.WriteString(prefix + line)
		} else {
			b.WriteString(strings.Repeat(" ", len([]rune(prefix))) + line)
		}
		if k == len(lines)-1 {
			if mark := StatusMark(m); mark != "" {
				b.WriteString(" " + mark)
			}
		}
		b.WriteByte('\n')
	}

	if len(m.Reactions) > 0 {
		b.WriteString("    " + Reactions(m.Reactions) + "\n")
	}
}

// StatusMark is the delivery indicator of a locally sent message
func StatusMark(m models.Message) string {
	switch m.Status {
	case models.StatusSending:
		return "…"
	case models.StatusSent:
		return "✓"
	case models.StatusFailed:
		return fmt.Sprintf("✗ failed, /retry %s", m.ID)
	}
	return ""
}

// Reactions summarises reactions as "👍 2  ❤️ 1" in first-seen order.
func Reactions(rs []models.Reaction) string {
	var order []string
	counts := make(map[string]int)
	for _, r := range rs {
		if counts[r.Emoji] == 0 {
			order = append(order, r.Emoji)
		}
		counts[r.Emoji]++
	}
	parts := make([]string, len(order))
	for i, e := range order {
		parts[i] = fmt.Sprintf("%s %d", e, counts[e])
	}
	return strings.Join(parts, "  ")
}

// DateLabel names a separator day relative to now.
func DateLabel(day, now time.Time) string {
	y1, m1, d1 := day.Date()
	y2, m2, d2 := now.Date()
	today := time.Date(y2, m2, d2, 0, 0, 0, 0, now.Location())
	that := time.Date(y1, m1, d1, 0, 0, 0, 0, now.Location())
	switch {
	case that.Equal(today):
		return "Today"
	case that.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	case y1 == y2:
		return day.Format("Monday, January 2")
	}
	return day.Format("January 2, 2006")
}

func isSeparated(seps map[int]time.Time, i int) bool {
	_, ok := seps[i]
	return ok
}

func senderName(u models.UserRef, self string) string {
	if u.ID == self && self != "" {
		return "You"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

func peerName(s chat.Snapshot) string {
	if s.Peer != nil {
		return s.Peer.Ref().DisplayName
	}
	return s.PeerID
}

func shortID(id string) string {
	if strings.HasPrefix(id, models.ProvisionalPrefix) {
		return "pending"
	}
	return id
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func center(s string, width int) string {
	label := " " + s + " "
	pad := width - len([]rune(label))
	if pad < 2 {
		return label + "\n"
	}
	left := pad / 2
	return strings.Repeat("─", left) + label + strings.Repeat("─", pad-left) + "\n"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// wrap breaks s into lines of at most width runes at word boundaries.
// Words longer than width are split.
func wrap(s string, width int) []string {
	if width < 10 {
		width = 10
	}
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		var line []rune
		for _, word := range strings.Fields(para) {
			wr := []rune(word)
			for len(wr) > width {
				if len(line) > 0 {
					lines = append(lines, string(line))
					line = nil
				}
				lines = append(lines, string(wr[:width]))
				wr = wr[width:]
			}
			switch {
			case len(line) == 0:
				line = wr
			case len(line)+1+len(wr) <= width:
				line = append(append(line, ' '), wr...)
			default:
				lines = append(lines, string(line))
				line = wr
			}
		}
		lines = append(lines, string(line))
	}
	return lines
}
