package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/mesh/internal/models"
)

const testToken = "test-token"

// MockBackend records what the fake API server received
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) GetMessages(peerID string, limit int, before string) (*models.MessagePage, error) {
	args := m.Called(peerID, limit, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessagePage), args.Error(1)
}

func (m *MockBackend) SendMessage(peerID string, req models.SendRequest) (*models.Message, error) {
	args := m.Called(peerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockBackend) EditMessage(id, content string) (*models.Message, error) {
	args := m.Called(id, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockBackend) React(id, emoji string) error {
	args := m.Called(id, emoji)
	return args.Error(0)
}

func (m *MockBackend) GetThread(rootID string, limit int, before string) (*models.MessagePage, error) {
	args := m.Called(rootID, limit, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MessagePage), args.Error(1)
}

func (m *MockBackend) GetUser(id string) (*models.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockBackend) Voice(peerID string, audio []byte, duration, clientID, replyTo string) (*models.Message, error) {
	args := m.Called(peerID, audio, duration, clientID, replyTo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func respond(c *gin.Context, status int, v interface{}, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(status, v)
}

// setupTestServer creates a fake Mesh API backed by a MockBackend
func setupTestServer(t *testing.T) (*Client, *MockBackend) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	backend := new(MockBackend)

	group := router.Group("/api")
	group.Use(func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer "+testToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}
		c.Next()
	})

	group.GET("/messages/thread/:rootID", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		page, err := backend.GetThread(c.Param("rootID"), limit, c.Query("before"))
		respond(c, http.StatusOK, page, err)
	})
	group.PUT("/messages/item/:id", func(c *gin.Context) {
		var req models.EditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		msg, err := backend.EditMessage(c.Param("id"), req.Content)
		respond(c, http.StatusOK, msg, err)
	})
	group.POST("/messages/item/:id/reactions", func(c *gin.Context) {
		var req models.ReactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := backend.React(c.Param("id"), req.Emoji); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})
	group.GET("/messages/:peerID", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		page, err := backend.GetMessages(c.Param("peerID"), limit, c.Query("before"))
		respond(c, http.StatusOK, page, err)
	})
	group.POST("/messages/:peerID", func(c *gin.Context) {
		var req models.SendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		msg, err := backend.SendMessage(c.Param("peerID"), req)
		respond(c, http.StatusCreated, msg, err)
	})
	group.POST("/messages/:peerID/voice", func(c *gin.Context) {
		fh, err := c.FormFile("audio")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f, err := fh.Open()
		require.NoError(t, err)
		defer f.Close()
		audio := make([]byte, fh.Size)
		_, err = f.Read(audio)
		require.NoError(t, err)

		msg, err := backend.Voice(c.Param("peerID"), audio, c.PostForm("duration"), c.PostForm("clientId"), c.PostForm("replyTo"))
		respond(c, http.StatusCreated, msg, err)
	})
	group.GET("/users/:id", func(c *gin.Context) {
		user, err := backend.GetUser(c.Param("id"))
		if err == nil && user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		respond(c, http.StatusOK, user, err)
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return NewClient(server.URL+"/", testToken), backend
}

func testMessage(id, content string) *models.Message {
	return &models.Message{
		ID:        id,
		Sender:    models.UserRef{ID: "me", DisplayName: "Me"},
		Recipient: models.UserRef{ID: "peer", DisplayName: "Peer"},
		Content:   content,
		Kind:      models.KindText,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestGetMessages(t *testing.T) {
	client, backend := setupTestServer(t)
	ctx := context.Background()

	t.Run("Latest page", func(t *testing.T) {
		page := &models.MessagePage{Messages: []models.Message{*testMessage("m1", "hi")}, HasMore: true}
		backend.On("GetMessages", "peer", 30, "").Return(page, nil).Once()

		got, err := client.GetMessages(ctx, "peer", models.PageQuery{Limit: 30})
		require.NoError(t, err)
		assert.True(t, got.HasMore)
		require.Len(t, got.Messages, 1)
		assert.Equal(t, "hi", got.Messages[0].Content)
		assert.True(t, got.Messages[0].CreatedAt.Equal(page.Messages[0].CreatedAt))
	})

	t.Run("Older page", func(t *testing.T) {
		before := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
		backend.On("GetMessages", "peer", 10, before.Format(time.RFC3339Nano)).
			Return(&models.MessagePage{}, nil).Once()

		got, err := client.GetMessages(ctx, "peer", models.PageQuery{Limit: 10, Before: &before})
		require.NoError(t, err)
		assert.Empty(t, got.Messages)
		assert.False(t, got.HasMore)
	})

	backend.AssertExpectations(t)
}

func TestSendMessage(t *testing.T) {
	client, backend := setupTestServer(t)

	t.Run("Defaults to text", func(t *testing.T) {
		want := models.SendRequest{Content: "hello", Kind: models.KindText, ClientID: "c-1"}
		backend.On("SendMessage", "peer", want).Return(testMessage("m1", "hello"), nil).Once()

		msg, err := client.SendMessage(context.Background(), "peer", models.SendRequest{Content: "hello", ClientID: "c-1"})
		require.NoError(t, err)
		assert.Equal(t, "m1", msg.ID)
	})

	t.Run("Server error", func(t *testing.T) {
		backend.On("SendMessage", "peer", mock.Anything).Return(nil, assert.AnError).Once()

		_, err := client.SendMessage(context.Background(), "peer", models.SendRequest{Content: "boom"})
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Equal(t, assert.AnError.Error(), apiErr.Message)
	})

	backend.AssertExpectations(t)
}

func TestEditAndReact(t *testing.T) {
	client, backend := setupTestServer(t)
	ctx := context.Background()

	edited := testMessage("m1", "fixed")
	edited.Edited = true
	backend.On("EditMessage", "m1", "fixed").Return(edited, nil).Once()
	backend.On("React", "m1", "👍").Return(nil).Once()

	msg, err := client.EditMessage(ctx, "m1", "fixed")
	require.NoError(t, err)
	assert.True(t, msg.Edited)

	require.NoError(t, client.ReactToMessage(ctx, "m1", "👍"))
	backend.AssertExpectations(t)
}

func TestGetThreadMessages(t *testing.T) {
	client, backend := setupTestServer(t)

	reply := testMessage("m2", "in thread")
	reply.ThreadID = "m1"
	backend.On("GetThread", "m1", 20, "").
		Return(&models.MessagePage{Messages: []models.Message{*reply}}, nil).Once()

	page, err := client.GetThreadMessages(context.Background(), "m1", models.PageQuery{Limit: 20})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m1", page.Messages[0].ThreadID)
}

func TestGetUser(t *testing.T) {
	client, backend := setupTestServer(t)
	ctx := context.Background()

	backend.On("GetUser", "peer").Return(&models.User{ID: "peer", Username: "bob"}, nil).Once()
	backend.On("GetUser", "ghost").Return(nil, nil).Once()

	user, err := client.GetUser(ctx, "peer")
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Ref().DisplayName)

	_, err = client.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnauthorized(t *testing.T) {
	client, _ := setupTestServer(t)
	client.token = "wrong"

	_, err := client.GetUser(context.Background(), "peer")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, strings.Contains(err.Error(), "Invalid token"))
}

func TestTransportError(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", testToken)

	_, err := client.SendMessage(context.Background(), "peer", models.SendRequest{Content: "x"})
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
