package client

import (
	"sync"

	"github.com/prudhvinik1/boardsync/internal/protocol"
)

// EntityList is an ordered local copy of entities keyed by id. It is not safe
// for concurrent use; State serializes access to the lists it owns.
type EntityList struct {
	order []string
	byID  map[string]protocol.Entity
}

func NewEntityList(entities ...protocol.Entity) *EntityList {
	l := &EntityList{byID: make(map[string]protocol.Entity, len(entities))}
	for _, e := range entities {
		l.Add(e)
	}
	return l
}

// Add appends e unless an entity with the same id is already present.
// Entities without an id are ignored.
func (l *EntityList) Add(e protocol.Entity) bool {
	id := e.ID()
	if id == "" {
		return false
	}
	if _, ok := l.byID[id]; ok {
		return false
	}
	l.order = append(l.order, id)
	l.byID[id] = e.Clone()
	return true
}

// Update merges fields into the entity with the given id. Unknown ids are a
// no-op.
func (l *EntityList) Update(id string, fields map[string]any) bool {
	e, ok := l.byID[id]
	if !ok {
		return false
	}
	l.byID[id] = e.Merge(fields)
	return true
}

// Delete removes the entity with the given id. Unknown ids are a no-op.
func (l *EntityList) Delete(id string) bool {
	if _, ok := l.byID[id]; !ok {
		return false
	}
	delete(l.byID, id)
	for i, existing := range l.order {
		if existing == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// Apply patches the list with a single mutation event of any kind.
func (l *EntityList) Apply(ev protocol.MutationEvent) bool {
	switch ev.Op {
	case protocol.OpAdded:
		return l.Add(ev.Entity)
	case protocol.OpUpdated:
		return l.Update(ev.EntityID, ev.Fields)
	case protocol.OpDeleted:
		return l.Delete(ev.EntityID)
	}
	return false
}

func (l *EntityList) Get(id string) (protocol.Entity, bool) {
	e, ok := l.byID[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

func (l *EntityList) IDs() []string {
	return append([]string(nil), l.order...)
}

func (l *EntityList) Len() int {
	return len(l.order)
}

// Entities returns copies of the entities in order.
func (l *EntityList) Entities() []protocol.Entity {
	out := make([]protocol.Entity, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id].Clone())
	}
	return out
}

// State is the local view of the boards a client follows: boards, collections
// per board, and links and items per collection.
type State struct {
	mu          sync.Mutex
	boards      *EntityList
	collections map[string]*EntityList
	links       map[string]*EntityList
	items       map[string]*EntityList
}

func NewState() *State {
	return &State{
		boards:      NewEntityList(),
		collections: make(map[string]*EntityList),
		links:       make(map[string]*EntityList),
		items:       make(map[string]*EntityList),
	}
}

// SetBoards replaces the board list with an initial load.
func (s *State) SetBoards(boards ...protocol.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards = NewEntityList(boards...)
}

func (s *State) SetCollections(boardID string, collections ...protocol.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[boardID] = NewEntityList(collections...)
}

func (s *State) SetLinks(collectionID string, links ...protocol.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[collectionID] = NewEntityList(links...)
}

func (s *State) SetItems(collectionID string, items ...protocol.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[collectionID] = NewEntityList(items...)
}

// Apply patches the view with ev and reports whether anything changed.
// Deleting a board or collection also drops what it contained.
func (s *State) Apply(ev protocol.MutationEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case protocol.KindBoard:
		changed := s.boards.Apply(ev)
		if ev.Op == protocol.OpDeleted {
			s.dropBoard(ev.EntityID)
		}
		return changed
	case protocol.KindCollection:
		changed := listFor(s.collections, ev.BoardID, ev.Op).Apply(ev)
		if ev.Op == protocol.OpDeleted {
			s.dropCollection(ev.EntityID)
		}
		return changed
	case protocol.KindLink:
		return listFor(s.links, ev.CollectionID, ev.Op).Apply(ev)
	case protocol.KindItem:
		return listFor(s.items, ev.CollectionID, ev.Op).Apply(ev)
	}
	return false
}

func (s *State) dropBoard(boardID string) {
	if collections, ok := s.collections[boardID]; ok {
		for _, id := range collections.IDs() {
			s.dropCollection(id)
		}
	}
	delete(s.collections, boardID)
}

func (s *State) dropCollection(collectionID string) {
	delete(s.links, collectionID)
	delete(s.items, collectionID)
}

// listFor returns the list under key, creating it only for adds so that
// updates and deletes against unknown parents stay no-ops.
func listFor(lists map[string]*EntityList, key string, op protocol.Op) *EntityList {
	l, ok := lists[key]
	if ok {
		return l
	}
	l = NewEntityList()
	if op == protocol.OpAdded {
		lists[key] = l
	}
	return l
}

func (s *State) Boards() []protocol.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boards.Entities()
}

func (s *State) Collections(boardID string) []protocol.Entity {
	return s.snapshot(s.collections, boardID)
}

func (s *State) Links(collectionID string) []protocol.Entity {
	return s.snapshot(s.links, collectionID)
}

func (s *State) Items(collectionID string) []protocol.Entity {
	return s.snapshot(s.items, collectionID)
}

func (s *State) snapshot(lists map[string]*EntityList, key string) []protocol.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := lists[key]; ok {
		return l.Entities()
	}
	return []protocol.Entity{}
}
