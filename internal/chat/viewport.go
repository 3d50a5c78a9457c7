package chat

import "time"

// Viewport models the host's scroll container. The host reports user
// scrolls and layout passes; the Conversation decides where the view
// should be.
type Viewport struct {
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64

	lastManualScroll time.Time
	anchorHeight     float64
	anchored         bool
	stickToBottom    bool
	newMessages      bool
}

// DistanceFromBottom is how far the view is from the newest content.
func (v *Viewport) DistanceFromBottom() float64 {
	d := v.ScrollHeight - v.ClientHeight - v.ScrollTop
	if d < 0 {
		return 0
	}
	return d
}

func (v *Viewport) NearTop(threshold float64) bool {
	return v.ScrollTop <= threshold
}

func (v *Viewport) NearBottom(threshold float64) bool {
	return v.DistanceFromBottom() <= threshold
}

// Idle reports whether the user has left the scroll position alone for at
// least grace.
func (v *Viewport) Idle(now time.Time, grace time.Duration) bool {
	return v.lastManualScroll.IsZero() || now.Sub(v.lastManualScroll) >= grace
}

// NewMessages reports whether messages arrived out of view
func (v *Viewport) NewMessages() bool { return v.newMessages }

// UserScroll records a manual scroll. Reaching the bottom clears the
// new-message affordance.
func (v *Viewport) UserScroll(top float64, now time.Time, bottomThreshold float64) {
	v.ScrollTop = top
	v.lastManualScroll = now
	v.stickToBottom = false
	if v.NearBottom(bottomThreshold) {
		v.newMessages = false
	}
}

// AnchorPrepend captures the content height before older messages are
// inserted above the view.
func (v *Viewport) AnchorPrepend() {
	if v.anchored || v.ScrollHeight == 0 {
		return
	}
	v.anchorHeight = v.ScrollHeight
	v.anchored = true
}

// ScrollToBottom pins the view to the newest content on the next layout.
func (v *Viewport) ScrollToBottom() {
	v.stickToBottom = true
	v.newMessages = false
	v.ScrollTop = v.bottom()
}

// Arrived applies the autoscroll policy for a message from the peer.
func (v *Viewport) Arrived(now time.Time, bottomThreshold float64, grace time.Duration) {
	if v.NearBottom(bottomThreshold) && v.Idle(now, grace) {
		v.ScrollToBottom()
		return
	}
	v.newMessages = true
}

// Layout records the geometry after a render pass. A pending prepend
// anchor shifts the view by the added height so the visible content stays
// put; a pending bottom stick moves the view to the end.
func (v *Viewport) Layout(scrollHeight, clientHeight float64) {
	if clientHeight > 0 {
		v.ClientHeight = clientHeight
	}
	if v.anchored {
		v.ScrollTop += scrollHeight - v.anchorHeight
		v.anchored = false
	}
	v.ScrollHeight = scrollHeight
	if v.stickToBottom {
		v.ScrollTop = v.bottom()
		v.stickToBottom = false
	}
	if v.ScrollTop < 0 {
		v.ScrollTop = 0
	}
}

func (v *Viewport) bottom() float64 {
	b := v.ScrollHeight - v.ClientHeight
	if b < 0 {
		return 0
	}
	return b
}
