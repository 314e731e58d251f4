package realtime

import (
	"errors"
	"slices"
	"sync"

	"github.com/prudhvinik1/boardsync/internal/metrics"
)

var ErrRoomFull = errors.New("room is full")

// Member is anything that can sit in a board room and accept frames.
type Member interface {
	ID() string
	// Send queues a frame without blocking. It reports false when the frame
	// could not be accepted.
	Send(frame []byte) bool
}

// Registry tracks which connections are in which board room. Rooms exist
// only while they have members.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]map[string]Member // boardID -> memberID -> member
	memberships map[string]map[string]struct{}
	maxMembers  int
}

// NewRegistry creates a registry. maxMembers <= 0 means rooms are unbounded.
func NewRegistry(maxMembers int) *Registry {
	return &Registry{
		rooms:       make(map[string]map[string]Member),
		memberships: make(map[string]map[string]struct{}),
		maxMembers:  maxMembers,
	}
}

// Join adds m to the room for boardID. Joining a room twice is a no-op and
// reports joined=false. Joining another room keeps earlier memberships.
func (r *Registry) Join(m Member, boardID string) (joined bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[boardID]
	if exists {
		if _, already := room[m.ID()]; already {
			return false, nil
		}
		if r.maxMembers > 0 && len(room) >= r.maxMembers {
			metrics.RoomJoins.WithLabelValues("rejected").Inc()
			return false, ErrRoomFull
		}
	} else {
		room = make(map[string]Member)
		r.rooms[boardID] = room
		metrics.RoomsActive.Inc()
	}
	room[m.ID()] = m

	boards, ok := r.memberships[m.ID()]
	if !ok {
		boards = make(map[string]struct{})
		r.memberships[m.ID()] = boards
	}
	boards[boardID] = struct{}{}

	metrics.RoomJoins.WithLabelValues("join").Inc()
	return true, nil
}

// Leave removes m from a single room and reports whether it was a member.
func (r *Registry) Leave(m Member, boardID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(m.ID(), boardID)
}

// LeaveAll removes m from every room and returns the boards it left, sorted.
func (r *Registry) LeaveAll(m Member) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	boards := make([]string, 0, len(r.memberships[m.ID()]))
	for boardID := range r.memberships[m.ID()] {
		boards = append(boards, boardID)
	}
	slices.Sort(boards)

	for _, boardID := range boards {
		r.leaveLocked(m.ID(), boardID)
	}
	return boards
}

func (r *Registry) leaveLocked(memberID, boardID string) bool {
	room, exists := r.rooms[boardID]
	if !exists {
		return false
	}
	if _, ok := room[memberID]; !ok {
		return false
	}

	delete(room, memberID)
	if len(room) == 0 {
		delete(r.rooms, boardID)
		metrics.RoomsActive.Dec()
	}

	if boards, ok := r.memberships[memberID]; ok {
		delete(boards, boardID)
		if len(boards) == 0 {
			delete(r.memberships, memberID)
		}
	}

	metrics.RoomJoins.WithLabelValues("leave").Inc()
	return true
}

// Members returns a snapshot of the room's members.
func (r *Registry) Members(boardID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[boardID]
	members := make([]Member, 0, len(room))
	for _, m := range room {
		members = append(members, m)
	}
	return members
}

// Rooms returns the boards m has joined, sorted.
func (r *Registry) Rooms(m Member) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	boards := make([]string, 0, len(r.memberships[m.ID()]))
	for boardID := range r.memberships[m.ID()] {
		boards = append(boards, boardID)
	}
	slices.Sort(boards)
	return boards
}

func (r *Registry) MemberCount(boardID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[boardID])
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
