package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prudhvinik1/boardsync/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingForwarder struct {
	mu     sync.Mutex
	boards []string
	origin []string
	err    error
}

func (f *recordingForwarder) Forward(_ context.Context, boardID, originID string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards = append(f.boards, boardID)
	f.origin = append(f.origin, originID)
	return f.err
}

func itemAdded() protocol.MutationEvent {
	return protocol.MutationEvent{
		Kind:         protocol.KindItem,
		Op:           protocol.OpAdded,
		BoardID:      "board-1",
		CollectionID: "c1",
		EntityID:     "i1",
		Entity:       protocol.Entity{"id": "i1", "title": "Doc"},
	}
}

func TestBroadcaster_PublishSkipsOriginator(t *testing.T) {
	r := NewRegistry(0)
	b := NewBroadcaster(r)
	a, bb := newFakeMember("a"), newFakeMember("b")
	_, _ = r.Join(a, "board-1")
	_, _ = r.Join(bb, "board-1")

	delivered, err := b.Publish(context.Background(), "board-1", itemAdded(), "a")
	require.NoError(t, err)

	assert.Equal(t, 1, delivered)
	assert.Empty(t, a.received())
	require.Len(t, bb.received(), 1)

	env, err := protocol.ParseFrame(bb.received()[0])
	require.NoError(t, err)
	assert.Equal(t, "item-added", env.Event)
	assert.JSONEq(t, `{"boardId":"board-1","collectionId":"c1","itemId":"i1","item":{"id":"i1","title":"Doc"}}`, string(env.Data))
}

func TestBroadcaster_LoneMemberReceivesNothing(t *testing.T) {
	r := NewRegistry(0)
	b := NewBroadcaster(r)
	a := newFakeMember("a")
	_, _ = r.Join(a, "board-1")

	ev := protocol.MutationEvent{Kind: protocol.KindLink, Op: protocol.OpDeleted, BoardID: "board-1", CollectionID: "c1", EntityID: "l9"}
	delivered, err := b.Publish(context.Background(), "board-1", ev, "a")

	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
	assert.Empty(t, a.received())
}

func TestBroadcaster_OnlyRoomMembersReceive(t *testing.T) {
	r := NewRegistry(0)
	b := NewBroadcaster(r)
	inRoom, elsewhere := newFakeMember("in"), newFakeMember("elsewhere")
	_, _ = r.Join(inRoom, "board-1")
	_, _ = r.Join(elsewhere, "board-2")

	_, err := b.Publish(context.Background(), "board-1", itemAdded(), "")
	require.NoError(t, err)

	assert.Len(t, inRoom.received(), 1)
	assert.Empty(t, elsewhere.received())
}

func TestBroadcaster_MultiRoomMemberStillReceivesFromFirstRoom(t *testing.T) {
	r := NewRegistry(0)
	b := NewBroadcaster(r)
	roamer := newFakeMember("roamer")
	_, _ = r.Join(roamer, "board-a")
	_, _ = r.Join(roamer, "board-b")

	ev := itemAdded()
	ev.BoardID = "board-a"
	_, err := b.Publish(context.Background(), "board-a", ev, "")
	require.NoError(t, err)

	assert.Len(t, roamer.received(), 1)
}

func TestBroadcaster_FullMemberIsSkipped(t *testing.T) {
	r := NewRegistry(0)
	b := NewBroadcaster(r)
	slow, fast := newFakeMember("slow"), newFakeMember("fast")
	slow.full = true
	_, _ = r.Join(slow, "board-1")
	_, _ = r.Join(fast, "board-1")

	delivered, err := b.Publish(context.Background(), "board-1", itemAdded(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, delivered)
	assert.Empty(t, slow.received())
	assert.Len(t, fast.received(), 1)
}

func TestBroadcaster_DisconnectedMemberNotAttempted(t *testing.T) {
	r := NewRegistry(0)
	b := NewBroadcaster(r)
	gone := newFakeMember("gone")
	_, _ = r.Join(gone, "board-1")
	r.LeaveAll(gone)

	delivered, err := b.Publish(context.Background(), "board-1", itemAdded(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)
	assert.Empty(t, gone.received())
}

func TestBroadcaster_ForwardsWithOrigin(t *testing.T) {
	r := NewRegistry(0)
	b := NewBroadcaster(r)
	fwd := &recordingForwarder{}
	b.SetForwarder(fwd)

	_, err := b.Publish(context.Background(), "board-1", itemAdded(), "a")
	require.NoError(t, err)

	assert.Equal(t, []string{"board-1"}, fwd.boards)
	assert.Equal(t, []string{"a"}, fwd.origin)
}

func TestBroadcaster_ForwardErrorIsNotReturned(t *testing.T) {
	r := NewRegistry(0)
	b := NewBroadcaster(r)
	b.SetForwarder(&recordingForwarder{err: errors.New("redis down")})
	m := newFakeMember("m")
	_, _ = r.Join(m, "board-1")

	delivered, err := b.Publish(context.Background(), "board-1", itemAdded(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}

func TestBroadcaster_UnknownEventKind(t *testing.T) {
	b := NewBroadcaster(NewRegistry(0))

	_, err := b.Publish(context.Background(), "board-1", protocol.MutationEvent{Kind: "widget", Op: protocol.OpAdded}, "")
	assert.ErrorIs(t, err, protocol.ErrUnknownEvent)
}
