package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ammar1510/mesh/internal/models"
)

func pagePath(base string, q models.PageQuery) string {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Before != nil {
		v.Set("before", q.Before.UTC().Format(time.RFC3339Nano))
	}
	if len(v) == 0 {
		return base
	}
	return base + "?" + v.Encode()
}

// GetMessages returns one page of the conversation with peerID, newest
// page first when Before is nil.
func (c *Client) GetMessages(ctx context.Context, peerID string, q models.PageQuery) (*models.MessagePage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pagePath("/api/messages/"+url.PathEscape(peerID), q), nil)
	if err != nil {
		return nil, err
	}

	var page models.MessagePage
	if err := c.do(req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SendMessage creates a message to peerID and returns the confirmed record
func (c *Client) SendMessage(ctx context.Context, peerID string, body models.SendRequest) (*models.Message, error) {
	if body.Kind == "" {
		body.Kind = models.KindText
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/messages/"+url.PathEscape(peerID), body)
	if err != nil {
		return nil, err
	}

	var msg models.Message
	if err := c.do(req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessage replaces the content of one of the user's messages
func (c *Client) EditMessage(ctx context.Context, messageID, content string) (*models.Message, error) {
	req, err := c.newRequest(ctx, http.MethodPut, "/api/messages/item/"+url.PathEscape(messageID), models.EditRequest{Content: content})
	if err != nil {
		return nil, err
	}

	var msg models.Message
	if err := c.do(req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ReactToMessage toggles the user's reaction. The resulting reaction set is
// delivered over the socket, so the response body is ignored.
func (c *Client) ReactToMessage(ctx context.Context, messageID, emoji string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/messages/item/"+url.PathEscape(messageID)+"/reactions", models.ReactionRequest{Emoji: emoji})
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// GetThreadMessages returns one page of the thread rooted at rootID
func (c *Client) GetThreadMessages(ctx context.Context, rootID string, q models.PageQuery) (*models.MessagePage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pagePath("/api/messages/thread/"+url.PathEscape(rootID), q), nil)
	if err != nil {
		return nil, err
	}

	var page models.MessagePage
	if err := c.do(req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetUser fetches a user profile. A missing user yields an error matching
// ErrNotFound.
func (c *Client) GetUser(ctx context.Context, userID string) (*models.User, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := c.do(req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
