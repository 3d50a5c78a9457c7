package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/mesh/internal/models"
)

func TestGroupMessages(t *testing.T) {
	msgs := []models.Message{
		msg("1", alice, me, "a", 0),
		msg("2", alice, me, "b", time.Minute),
		msg("3", alice, me, "c", 6*time.Minute),                // exactly the window after 2
		msg("4", alice, me, "d", 11*time.Minute+time.Second),   // just past it
		msg("5", me, alice, "e", 11*time.Minute+2*time.Second), // sender change
	}

	groups := GroupMessages(msgs, DefaultGroupWindow)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"1", "2", "3"}, ids(groups[0].Messages))
	assert.Equal(t, []string{"4"}, ids(groups[1].Messages))
	assert.Equal(t, []string{"5"}, ids(groups[2].Messages))
	assert.Equal(t, "me", groups[2].Sender.ID)
	assert.True(t, groups[0].Start().Equal(base))
	assert.True(t, groups[0].End().Equal(base.Add(6*time.Minute)))

	assert.Empty(t, GroupMessages(nil, DefaultGroupWindow))
}

func TestDateSeparators(t *testing.T) {
	late := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	msgs := []models.Message{
		{ID: "1", CreatedAt: late},
		{ID: "2", CreatedAt: late.Add(5 * time.Minute)},
		{ID: "3", CreatedAt: late.Add(15 * time.Minute)},
		{ID: "4", CreatedAt: late.Add(49 * time.Hour)},
	}

	seps := DateSeparators(msgs, time.UTC)
	require.Len(t, seps, 3)
	assert.Equal(t, 0, seps[0].Index)
	assert.Equal(t, 2, seps[1].Index)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), seps[1].Date)
	assert.Equal(t, 3, seps[2].Index)

	// The same instants fall on one day further east
	tokyo := time.FixedZone("JST", 9*60*60)
	assert.Len(t, DateSeparators(msgs[:3], tokyo), 1)
}

func TestSearch(t *testing.T) {
	msgs := []models.Message{
		msg("1", alice, me, "Lunch tomorrow?", 0),
		msg("2", me, alice, "sure, LUNCH at noon", time.Hour),
		msg("3", alice, me, "see you", 2*time.Hour),
	}

	assert.Equal(t, []string{"1", "2"}, ids(Search(msgs, Filter{Query: "lunch"})))
	assert.Equal(t, []string{"1", "2", "3"}, ids(Search(msgs, Filter{})))

	from, to := base.Add(time.Hour), base.Add(2*time.Hour)
	assert.Equal(t, []string{"2", "3"}, ids(Search(msgs, Filter{From: &from, To: &to})))
	assert.Equal(t, []string{"2"}, ids(Search(msgs, Filter{Query: "lunch", From: &from})))
	assert.Empty(t, Search(msgs, Filter{Query: "dinner"}))
}

func TestSearchMatchesSenderName(t *testing.T) {
	carol := models.UserRef{ID: "carol"}
	msgs := []models.Message{
		msg("1", alice, me, "see you soon", 0),
		msg("2", me, alice, "ok", time.Minute),
		msg("3", carol, me, "hey", 2*time.Minute),
	}

	assert.Equal(t, []string{"1"}, ids(Search(msgs, Filter{Query: "alice"})))
	assert.Equal(t, []string{"1"}, ids(Search(msgs, Filter{Query: "ALI"})))

	// Without a display name the sender id is the name
	assert.Equal(t, []string{"3"}, ids(Search(msgs, Filter{Query: "carol"})))
}
