package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prudhvinik1/boardsync/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureServer accepts one websocket and hands every frame it reads to frames.
func captureServer(t *testing.T) (string, <-chan protocol.Envelope) {
	t.Helper()
	frames := make(chan protocol.Envelope, 32)
	upgrader := websocket.Upgrader{}

	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.ParseFrame(msg)
			if err == nil {
				frames <- env
			}
		}
	}))
	t.Cleanup(httpServer.Close)

	return "ws" + strings.TrimPrefix(httpServer.URL, "http"), frames
}

func nextFrame(t *testing.T, frames <-chan protocol.Envelope) protocol.Envelope {
	t.Helper()
	select {
	case env := <-frames:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return protocol.Envelope{}
	}
}

func TestClient_EmitHelpersUseClientEventNames(t *testing.T) {
	url, frames := captureServer(t)
	c := New(url, WithBoard("b1"))
	runClient(t, c)

	join := nextFrame(t, frames)
	assert.Equal(t, protocol.EventJoinBoard, join.Event)
	assert.JSONEq(t, `"b1"`, string(join.Data))

	tests := []struct {
		emit     func() error
		wantName string
		wantData string
	}{
		{
			emit:     func() error { return c.EmitItemAdded("b1", "c1", protocol.Entity{"id": "i1", "title": "Doc"}) },
			wantName: "add-item",
			wantData: `{"boardId":"b1","collectionId":"c1","itemId":"i1","item":{"id":"i1","title":"Doc"}}`,
		},
		{
			emit:     func() error { return c.EmitItemUpdated("b1", "c1", "i1", map[string]any{"title": "New"}) },
			wantName: "update-item",
			wantData: `{"boardId":"b1","collectionId":"c1","itemId":"i1","fields":{"title":"New"}}`,
		},
		{
			emit:     func() error { return c.EmitItemDeleted("b1", "c1", "i1") },
			wantName: "delete-item",
			wantData: `{"boardId":"b1","collectionId":"c1","itemId":"i1"}`,
		},
		{
			emit:     func() error { return c.EmitLinkAdded("b1", "c1", protocol.Entity{"id": "l1"}) },
			wantName: "add-link",
			wantData: `{"boardId":"b1","collectionId":"c1","linkId":"l1","link":{"id":"l1"}}`,
		},
		{
			emit:     func() error { return c.EmitLinkUpdated("b1", "c1", "l1", map[string]any{"url": "https://x.example"}) },
			wantName: "update-link",
			wantData: `{"boardId":"b1","collectionId":"c1","linkId":"l1","fields":{"url":"https://x.example"}}`,
		},
		{
			emit:     func() error { return c.EmitLinkDeleted("b1", "c1", "l1") },
			wantName: "delete-link",
			wantData: `{"boardId":"b1","collectionId":"c1","linkId":"l1"}`,
		},
		{
			emit:     func() error { return c.EmitCollectionAdded("b1", protocol.Entity{"id": "c2", "name": "Papers"}) },
			wantName: "collection-created",
			wantData: `{"boardId":"b1","collectionId":"c2","collection":{"id":"c2","name":"Papers"}}`,
		},
		{
			emit:     func() error { return c.EmitCollectionUpdated("b1", "c2", map[string]any{"name": "Docs"}) },
			wantName: "collection-updated",
			wantData: `{"boardId":"b1","collectionId":"c2","fields":{"name":"Docs"}}`,
		},
		{
			emit:     func() error { return c.EmitCollectionDeleted("b1", "c2") },
			wantName: "collection-deleted",
			wantData: `{"boardId":"b1","collectionId":"c2"}`,
		},
		{
			emit:     func() error { return c.EmitBoardAdded(protocol.Entity{"id": "b2", "name": "New"}) },
			wantName: "board-created",
			wantData: `{"boardId":"b2","board":{"id":"b2","name":"New"}}`,
		},
		{
			emit:     func() error { return c.EmitBoardUpdated("b2", map[string]any{"name": "Renamed"}) },
			wantName: "board-updated",
			wantData: `{"boardId":"b2","fields":{"name":"Renamed"}}`,
		},
		{
			emit:     func() error { return c.EmitBoardDeleted("b2") },
			wantName: "board-deleted",
			wantData: `{"boardId":"b2"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			require.NoError(t, tt.emit())
			env := nextFrame(t, frames)
			assert.Equal(t, tt.wantName, env.Event)
			assert.JSONEq(t, tt.wantData, string(env.Data))
		})
	}
}
