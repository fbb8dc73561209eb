package websocket

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/chat"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// recordingFrames replies to every frame with an echo envelope
type recordingFrames struct {
	mu           sync.Mutex
	frames       []types.Inbound
	conns        []interfaces.Connection
	disconnected chan string
}

func newRecordingFrames() *recordingFrames {
	return &recordingFrames{disconnected: make(chan string, 4)}
}

func (r *recordingFrames) Handle(ctx context.Context, conn interfaces.Connection, frame types.Inbound) {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.conns = append(r.conns, conn)
	r.mu.Unlock()
	_ = conn.WriteJSON(types.Envelope{Type: types.EventPong, Data: frame.Type})
}

func (r *recordingFrames) Disconnect(ctx context.Context, conn interfaces.Connection) {
	r.disconnected <- conn.ID()
}

func dial(t *testing.T, frames FrameHandler) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(NewHandler(frames, Options{}, slog.New(slog.DiscardHandler)))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func readEnvelope(t *testing.T, client *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var envelope map[string]interface{}
	require.NoError(t, client.ReadJSON(&envelope))
	return envelope
}

func TestHandler_ForwardsDecodedFrames(t *testing.T) {
	frames := newRecordingFrames()
	client := dial(t, frames)

	require.NoError(t, client.WriteJSON(map[string]interface{}{
		"type":       types.InboundSendMessage,
		"session_id": "s1",
		"content":    "Hello",
		"to_bot":     true,
		"provider":   "claude",
	}))

	envelope := readEnvelope(t, client)
	assert.Equal(t, types.EventPong, envelope["type"])
	assert.Equal(t, types.InboundSendMessage, envelope["data"])

	frames.mu.Lock()
	defer frames.mu.Unlock()
	require.Len(t, frames.frames, 1)
	frame := frames.frames[0]
	assert.Equal(t, "Hello", frame.Content)
	assert.True(t, frame.ToBot)
	require.NotNil(t, frame.Provider)
	assert.Equal(t, types.ProviderAnthropic, *frame.Provider)
	assert.Len(t, frames.conns[0].ID(), 36)
}

func TestHandler_RejectsMalformedFrames(t *testing.T) {
	frames := newRecordingFrames()
	client := dial(t, frames)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("{not json")))

	envelope := readEnvelope(t, client)
	assert.Equal(t, types.EventError, envelope["type"])
	data := envelope["data"].(map[string]interface{})
	assert.Equal(t, chat.CodeInvalidFrame, data["code"])

	// The connection stays usable
	require.NoError(t, client.WriteJSON(map[string]string{"type": types.InboundPing}))
	assert.Equal(t, types.EventPong, readEnvelope(t, client)["type"])
}

func TestHandler_DisconnectRunsOnce(t *testing.T) {
	frames := newRecordingFrames()
	client := dial(t, frames)

	require.NoError(t, client.WriteJSON(map[string]string{"type": types.InboundPing}))
	readEnvelope(t, client)
	require.NoError(t, client.Close())

	select {
	case id := <-frames.disconnected:
		assert.NotEmpty(t, id)
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect was not called")
	}

	select {
	case <-frames.disconnected:
		t.Fatal("Disconnect called twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnection_WriteJSONErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	// No writer goroutine: the queue only fills
	c := &Connection{id: "c1", send: make(chan []byte, 1), ctx: ctx, cancel: cancel, logger: slog.New(slog.DiscardHandler)}

	assert.ErrorIs(t, c.WriteJSON(make(chan int)), ErrInvalidJSON)
	assert.NoError(t, c.WriteJSON("first"))
	assert.ErrorIs(t, c.WriteJSON("second"), ErrSendBufferFull)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.WriteJSON("late"), ErrConnectionClosed)

	select {
	case <-c.Done():
	default:
		t.Error("Done should be closed after Close")
	}
}

func TestConnection_ConcurrentWritesArriveIntact(t *testing.T) {
	frames := newRecordingFrames()
	client := dial(t, frames)

	require.NoError(t, client.WriteJSON(map[string]string{"type": types.InboundPing}))
	readEnvelope(t, client)

	frames.mu.Lock()
	conn := frames.conns[0]
	frames.mu.Unlock()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, conn.WriteJSON(types.Envelope{Type: types.EventMessageReceived}))
		}()
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		assert.Equal(t, types.EventMessageReceived, readEnvelope(t, client)["type"])
	}
}

func TestOptions_Defaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, DefaultBufferSize, opts.BufferSize)
	assert.Equal(t, DefaultPingInterval, opts.PingInterval)
	assert.Equal(t, DefaultReadTimeout, opts.ReadTimeout)

	custom := Options{BufferSize: 5, PingInterval: time.Second}.withDefaults()
	assert.Equal(t, 5, custom.BufferSize)
	assert.Equal(t, time.Second, custom.PingInterval)
}

func TestHandler_CloseAllReachesHijackedConnections(t *testing.T) {
	frames := newRecordingFrames()
	handler := NewHandler(frames, Options{}, slog.New(slog.DiscardHandler))
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteJSON(map[string]string{"type": types.InboundPing}))
	readEnvelope(t, client)
	assert.Equal(t, 1, handler.Active())

	assert.Equal(t, 1, handler.CloseAll())

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	select {
	case <-frames.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect was not called")
	}
	assert.Eventually(t, func() bool { return handler.Active() == 0 }, time.Second, 10*time.Millisecond)
}
