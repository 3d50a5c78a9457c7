package chat

import "errors"

var (
	ErrLoadInFlight  = errors.New("history fetch already in flight")
	ErrNoMoreHistory = errors.New("no older history")
)

// HistoryLoader guards backward pagination: at most one fetch in flight,
// and no fetch once the server has run out of pages.
type HistoryLoader struct {
	hasMore  bool
	inFlight bool
	pages    int
}

func NewHistoryLoader() HistoryLoader {
	return HistoryLoader{hasMore: true}
}

func (h *HistoryLoader) HasMore() bool { return h.hasMore }

func (h *HistoryLoader) Loading() bool { return h.inFlight }

// Pages is the number of pages applied so far.
func (h *HistoryLoader) Pages() int { return h.pages }

// Begin claims the single fetch slot.
func (h *HistoryLoader) Begin() error {
	if !h.hasMore {
		return ErrNoMoreHistory
	}
	if h.inFlight {
		return ErrLoadInFlight
	}
	h.inFlight = true
	return nil
}

// Complete releases the slot after a page of n messages was applied. An
// empty page or a server reporting no more history ends pagination.
func (h *HistoryLoader) Complete(n int, serverHasMore bool) {
	h.inFlight = false
	h.pages++
	if n == 0 || !serverHasMore {
		h.hasMore = false
	}
}

// Fail releases the slot without changing hasMore so the fetch can be
// retried by the next trigger.
func (h *HistoryLoader) Fail() {
	h.inFlight = false
}
