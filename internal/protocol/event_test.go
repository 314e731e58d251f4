package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientEvent_ItemAdded(t *testing.T) {
	data := []byte(`{"boardId":"board-1","collectionId":"c1","item":{"id":"i1","title":"Doc"}}`)

	ev, err := DecodeClientEvent("add-item", data)
	require.NoError(t, err)

	assert.Equal(t, KindItem, ev.Kind)
	assert.Equal(t, OpAdded, ev.Op)
	assert.Equal(t, "board-1", ev.BoardID)
	assert.Equal(t, "c1", ev.CollectionID)
	assert.Equal(t, "i1", ev.EntityID)
	assert.Equal(t, Entity{"id": "i1", "title": "Doc"}, ev.Entity)
	assert.Equal(t, "item-added", ev.ServerName())
}

func TestDecodeClientEvent_AllNames(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantKind   Kind
		wantOp     Op
		wantServer string
		wantID     string
	}{
		{"update-item", `{"boardId":"b","collectionId":"c","itemId":"i","fields":{"title":"x"}}`, KindItem, OpUpdated, "item-updated", "i"},
		{"delete-item", `{"boardId":"b","collectionId":"c","itemId":"i"}`, KindItem, OpDeleted, "item-deleted", "i"},
		{"add-link", `{"boardId":"b","collectionId":"c","link":{"id":"l"}}`, KindLink, OpAdded, "link-added", "l"},
		{"update-link", `{"boardId":"b","collectionId":"c","linkId":"l","fields":{"url":"u"}}`, KindLink, OpUpdated, "link-updated", "l"},
		{"delete-link", `{"boardId":"b","collectionId":"c","linkId":"l9"}`, KindLink, OpDeleted, "link-deleted", "l9"},
		{"collection-created", `{"boardId":"b","collection":{"id":"c","name":"n"}}`, KindCollection, OpAdded, "collection-added", "c"},
		{"collection-updated", `{"boardId":"b","collectionId":"c","fields":{"name":"m"}}`, KindCollection, OpUpdated, "collection-updated", "c"},
		{"collection-deleted", `{"boardId":"b","collectionId":"c"}`, KindCollection, OpDeleted, "collection-deleted", "c"},
		{"board-created", `{"board":{"id":"b","name":"n"}}`, KindBoard, OpAdded, "board-added", "b"},
		{"board-updated", `{"boardId":"b","fields":{"name":"m"}}`, KindBoard, OpUpdated, "board-updated", "b"},
		{"board-deleted", `{"boardId":"b"}`, KindBoard, OpDeleted, "board-deleted", "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeClientEvent(tt.name, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, ev.Kind)
			assert.Equal(t, tt.wantOp, ev.Op)
			assert.Equal(t, tt.wantServer, ev.ServerName())
			assert.Equal(t, tt.name, ev.ClientName())
			assert.Equal(t, tt.wantID, ev.EntityID)
			assert.Equal(t, "b", ev.BoardID)
		})
	}
}

func TestDecodeClientEvent_BareBoardObject(t *testing.T) {
	ev, err := DecodeClientEvent("board-created", []byte(`{"id":"b7","name":"Research"}`))
	require.NoError(t, err)

	assert.Equal(t, "b7", ev.BoardID)
	assert.Equal(t, "b7", ev.EntityID)
	assert.Equal(t, "Research", ev.Entity["name"])
}

func TestDecodeClientEvent_UpdateWithoutFieldsObject(t *testing.T) {
	ev, err := DecodeClientEvent("board-updated", []byte(`{"boardId":"b","name":"Renamed"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Renamed"}, ev.Fields)

	ev, err = DecodeClientEvent("update-link", []byte(`{"boardId":"b","collectionId":"c","link":{"id":"l1","url":"https://go.dev"}}`))
	require.NoError(t, err)
	assert.Equal(t, "l1", ev.EntityID)
	assert.Equal(t, map[string]any{"url": "https://go.dev"}, ev.Fields)
}

func TestDecodeClientEvent_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		data    string
		wantErr error
	}{
		{"unknown name", "rename-item", `{}`, ErrUnknownEvent},
		{"server name from client", "item-added", `{}`, ErrUnknownEvent},
		{"bad json", "add-item", `{`, ErrInvalidEvent},
		{"missing board", "delete-item", `{"collectionId":"c","itemId":"i"}`, ErrInvalidEvent},
		{"missing collection", "delete-link", `{"boardId":"b","linkId":"l"}`, ErrInvalidEvent},
		{"missing entity", "add-item", `{"boardId":"b","collectionId":"c"}`, ErrInvalidEvent},
		{"missing id", "update-item", `{"boardId":"b","collectionId":"c","fields":{}}`, ErrInvalidEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientEvent(tt.event, []byte(tt.data))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEncodeServerFrame_RoundTripsThroughClientDecoder(t *testing.T) {
	ev := MutationEvent{
		Kind:         KindItem,
		Op:           OpUpdated,
		BoardID:      "board-1",
		CollectionID: "c1",
		EntityID:     "i1",
		Fields:       map[string]any{"title": "Renamed"},
	}

	frame, err := EncodeServerFrame(ev)
	require.NoError(t, err)

	env, err := ParseFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, "item-updated", env.Event)
	assert.JSONEq(t, `{"boardId":"board-1","collectionId":"c1","itemId":"i1","fields":{"title":"Renamed"}}`, string(env.Data))

	decoded, err := DecodeServerEvent(env.Event, env.Data)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestEncodeServerFrame_CollectionUsesCollectionID(t *testing.T) {
	ev := MutationEvent{Kind: KindCollection, Op: OpDeleted, BoardID: "b", CollectionID: "c", EntityID: "c"}

	frame, err := EncodeServerFrame(ev)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, "collection-deleted", env.Event)
	assert.JSONEq(t, `{"boardId":"b","collectionId":"c"}`, string(env.Data))
}

func TestEntity_MergeKeepsIDAndUntouchedFields(t *testing.T) {
	e := Entity{"id": "i1", "title": "Doc", "url": "https://a"}

	merged := e.Merge(map[string]any{"title": "New", "id": "other"})

	assert.Equal(t, Entity{"id": "i1", "title": "New", "url": "https://a"}, merged)
	assert.Equal(t, "Doc", e["title"], "original must not change")
}

func TestEntity_NumericID(t *testing.T) {
	var e Entity
	require.NoError(t, json.Unmarshal([]byte(`{"id": 42}`), &e))
	assert.Equal(t, "42", e.ID())
}

func TestDecodeClientEvent_LargeIntegersSurviveReencode(t *testing.T) {
	data := []byte(`{"boardId":"b","collectionId":"c","item":{"id":"i1","sizeBytes":9007199254740993,"position":12345678901234567891}}`)

	ev, err := DecodeClientEvent("add-item", data)
	require.NoError(t, err)
	frame, err := EncodeServerFrame(ev)
	require.NoError(t, err)

	assert.Contains(t, string(frame), `"sizeBytes":9007199254740993`)
	assert.Contains(t, string(frame), `"position":12345678901234567891`)
}

func TestDecodeClientEvent_LargeIntegersInFields(t *testing.T) {
	ev, err := DecodeClientEvent("update-item", []byte(`{"boardId":"b","collectionId":"c","itemId":"i","fields":{"position":9007199254740993}}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), ev.Fields["position"])

	ev, err = DecodeClientEvent("board-updated", []byte(`{"boardId":"b","order":9007199254740995}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740995"), ev.Fields["order"])

	ev, err = DecodeClientEvent("board-created", []byte(`{"id":"b","createdAt":1700000000000000001}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("1700000000000000001"), ev.Entity["createdAt"])
}

func TestParseBoardRef(t *testing.T) {
	id, err := ParseBoardRef(json.RawMessage(`"board-1"`))
	require.NoError(t, err)
	assert.Equal(t, "board-1", id)

	id, err = ParseBoardRef(json.RawMessage(`{"boardId":"board-2"}`))
	require.NoError(t, err)
	assert.Equal(t, "board-2", id)

	_, err = ParseBoardRef(json.RawMessage(`""`))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = ParseBoardRef(nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestParseFrame_MissingEvent(t *testing.T) {
	_, err := ParseFrame([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}
