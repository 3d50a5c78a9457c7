package chat

import (
	"time"

	"github.com/ammar1510/mesh/internal/drafts"
)

// Defaults for Options. Pixel thresholds are in the host's layout units.
const (
	DefaultPageSize            = 30
	DefaultThreadPageSize      = 20
	DefaultNearTopThreshold    = 80
	DefaultNearBottomThreshold = 120
	DefaultScrollIdleGrace     = time.Second
	DefaultTypingTimeout       = 3 * time.Second
	DefaultTypingEmitInterval  = 2 * time.Second
	DefaultGroupWindow         = 5 * time.Minute
)

// Options tunes a Conversation. Zero values take the defaults above.
type Options struct {
	PageSize       int
	ThreadPageSize int

	// NearTopThreshold is how close to the top a user scroll must come to
	// trigger loading older history.
	NearTopThreshold float64
	// NearBottomThreshold is how close to the bottom the viewport must be
	// for new messages to scroll it automatically.
	NearBottomThreshold float64
	// ScrollIdleGrace is how long after a manual scroll autoscroll stays
	// suppressed.
	ScrollIdleGrace time.Duration

	TypingTimeout      time.Duration
	TypingEmitInterval time.Duration
	GroupWindow        time.Duration

	// Location is used for date separators. Defaults to time.Local.
	Location *time.Location

	Drafts  drafts.Store
	Metrics *Metrics
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.ThreadPageSize <= 0 {
		o.ThreadPageSize = DefaultThreadPageSize
	}
	if o.NearTopThreshold <= 0 {
		o.NearTopThreshold = DefaultNearTopThreshold
	}
	if o.NearBottomThreshold <= 0 {
		o.NearBottomThreshold = DefaultNearBottomThreshold
	}
	if o.ScrollIdleGrace <= 0 {
		o.ScrollIdleGrace = DefaultScrollIdleGrace
	}
	if o.TypingTimeout <= 0 {
		o.TypingTimeout = DefaultTypingTimeout
	}
	if o.TypingEmitInterval <= 0 {
		o.TypingEmitInterval = DefaultTypingEmitInterval
	}
	if o.GroupWindow <= 0 {
		o.GroupWindow = DefaultGroupWindow
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Drafts == nil {
		o.Drafts = drafts.NewMemoryStore()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
