package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/mesh/internal/models"
)

// fakeServer is a minimal event server: it records every envelope it
// receives and lets the test push events to the latest client.
type fakeServer struct {
	received chan Envelope
	connects chan string

	mutex sync.Mutex
	conn  *websocket.Conn
}

func setupTestServer(t *testing.T) (*fakeServer, string) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	fs := &fakeServer{
		received: make(chan Envelope, 64),
		connects: make(chan string, 8),
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	router.GET("/ws", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		fs.mutex.Lock()
		fs.conn = conn
		fs.mutex.Unlock()
		fs.connects <- c.GetHeader("Authorization")

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if json.Unmarshal(data, &env) == nil {
				fs.received <- env
			}
		}
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return fs, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

func (fs *fakeServer) push(t *testing.T, frame string) {
	t.Helper()
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	require.NotNil(t, fs.conn)
	require.NoError(t, fs.conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (fs *fakeServer) drop() {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	if fs.conn != nil {
		fs.conn.Close()
	}
}

func (fs *fakeServer) next(t *testing.T) Envelope {
	t.Helper()
	select {
	case env := <-fs.received:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event")
		return Envelope{}
	}
}

func connect(t *testing.T, url string) *Conn {
	t.Helper()
	conn := New(Config{URL: url, Token: "tok", ReconnectAttempts: 3, ReconnectDelay: 10 * time.Millisecond, AttemptTimeout: time.Second})
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnectSendsBearerToken(t *testing.T) {
	fs, url := setupTestServer(t)
	conn := connect(t, url)

	select {
	case auth := <-fs.connects:
		assert.Equal(t, "Bearer tok", auth)
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for connection")
	}
	assert.Eventually(t, conn.Connected, time.Second, 10*time.Millisecond)
}

func TestEmitAndJoin(t *testing.T) {
	fs, url := setupTestServer(t)
	conn := connect(t, url)

	require.NoError(t, conn.Join("u1"))
	env := fs.next(t)
	assert.Equal(t, models.EventJoin, env.Event)
	assert.JSONEq(t, `{"userId":"u1"}`, string(env.Data))

	require.NoError(t, conn.Emit(models.EventTyping, models.TypingPayload{SenderID: "u1", RecipientID: "u2"}))
	env = fs.next(t)
	assert.Equal(t, models.EventTyping, env.Event)
	assert.JSONEq(t, `{"senderId":"u1","recipientId":"u2"}`, string(env.Data))
}

func TestSubscribeDispatch(t *testing.T) {
	fs, url := setupTestServer(t)
	conn := connect(t, url)
	<-fs.connects

	got := make(chan string, 4)
	unsubscribe := conn.Subscribe(models.EventNewMessage, func(data json.RawMessage) {
		var m models.Message
		require.NoError(t, json.Unmarshal(data, &m))
		got <- m.ID
	})
	assert.Equal(t, 1, conn.Listeners(models.EventNewMessage))

	// Two events batched into one frame
	fs.push(t, `{"event":"newMessage","data":{"id":"m1"}}`+"\n"+`{"event":"newMessage","data":{"id":"m2"}}`)
	for _, want := range []string{"m1", "m2"} {
		select {
		case id := <-got:
			assert.Equal(t, want, id)
		case <-time.After(2 * time.Second):
			t.Fatal("Timeout waiting for dispatch")
		}
	}

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, conn.Listeners(models.EventNewMessage))

	fs.push(t, `{"event":"newMessage","data":{"id":"m3"}}`)
	select {
	case id := <-got:
		t.Fatalf("Unexpected dispatch after unsubscribe: %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribeKeepsOtherListeners(t *testing.T) {
	conn := New(Config{URL: "ws://unused"})

	first := conn.Subscribe(models.EventTyping, func(json.RawMessage) {})
	conn.Subscribe(models.EventTyping, func(json.RawMessage) {})
	assert.Equal(t, 2, conn.Listeners(models.EventTyping))

	first()
	assert.Equal(t, 1, conn.Listeners(models.EventTyping))
	require.NoError(t, conn.Close())
}

func TestReconnectReplaysJoin(t *testing.T) {
	fs, url := setupTestServer(t)
	conn := connect(t, url)
	<-fs.connects

	require.NoError(t, conn.Join("u1"))
	assert.Equal(t, models.EventJoin, fs.next(t).Event)

	fs.drop()

	select {
	case <-fs.connects:
	case <-time.After(2 * time.Second):
		t.Fatal("Client did not reconnect")
	}
	env := fs.next(t)
	assert.Equal(t, models.EventJoin, env.Event)
	assert.JSONEq(t, `{"userId":"u1"}`, string(env.Data))
	assert.Eventually(t, conn.Connected, time.Second, 10*time.Millisecond)
}

func TestConnectGivesUpAfterAttempts(t *testing.T) {
	conn := New(Config{URL: "ws://127.0.0.1:1/ws", ReconnectAttempts: 2, ReconnectDelay: time.Millisecond, AttemptTimeout: 200 * time.Millisecond})

	err := conn.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 attempts failed")
	assert.False(t, conn.Connected())
	require.NoError(t, conn.Close())
}

func TestEmitAfterClose(t *testing.T) {
	_, url := setupTestServer(t)
	conn := connect(t, url)

	require.NoError(t, conn.Close())
	assert.ErrorIs(t, conn.Emit(models.EventTyping, nil), ErrClosed)
}
