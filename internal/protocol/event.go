package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrInvalidEvent = errors.New("invalid event")
)

// Entity is the transient shape of a board, collection, link or item as it
// travels inside an event. The sync layer never interprets fields beyond "id".
type Entity map[string]any

// ID returns the entity's "id" field, or "" when absent.
func (e Entity) ID() string {
	return idString(e["id"])
}

// Clone returns a shallow copy.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	return maps.Clone(e)
}

// Merge returns a copy of e with fields applied on top. The id never changes.
func (e Entity) Merge(fields map[string]any) Entity {
	out := make(Entity, len(e)+len(fields))
	maps.Copy(out, e)
	for k, v := range fields {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

// MutationEvent is the tagged union of entity kind and operation. Entity is
// set on add, Fields on update, and only EntityID on delete.
type MutationEvent struct {
	Kind         Kind
	Op           Op
	BoardID      string
	CollectionID string
	EntityID     string
	Entity       Entity
	Fields       map[string]any
}

// ClientName is the wire name a client uses to emit this event.
func (e MutationEvent) ClientName() string {
	return clientNames[eventKey{e.Kind, e.Op}]
}

// ServerName is the wire name the server fans this event out under.
func (e MutationEvent) ServerName() string {
	return serverNames[eventKey{e.Kind, e.Op}]
}

// Validate checks the routing keys every event must carry.
func (e MutationEvent) Validate() error {
	if _, ok := serverNames[eventKey{e.Kind, e.Op}]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownEvent, e.Kind, e.Op)
	}
	if e.BoardID == "" {
		return fmt.Errorf("%w: missing boardId", ErrInvalidEvent)
	}
	if e.EntityID == "" {
		return fmt.Errorf("%w: missing %s id", ErrInvalidEvent, e.Kind)
	}
	if (e.Kind == KindItem || e.Kind == KindLink) && e.CollectionID == "" {
		return fmt.Errorf("%w: missing collectionId", ErrInvalidEvent)
	}
	if e.Op == OpAdded && e.Entity == nil {
		return fmt.Errorf("%w: missing %s payload", ErrInvalidEvent, e.Kind)
	}
	return nil
}

// payload is the JSON body carried in an envelope's data field.
type payload struct {
	BoardID      string         `json:"boardId,omitempty"`
	CollectionID string         `json:"collectionId,omitempty"`
	ItemID       string         `json:"itemId,omitempty"`
	LinkID       string         `json:"linkId,omitempty"`
	Item         Entity         `json:"item,omitempty"`
	Link         Entity         `json:"link,omitempty"`
	Collection   Entity         `json:"collection,omitempty"`
	Board        Entity         `json:"board,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
}

var payloadKeys = map[string]bool{
	"boardId": true, "collectionId": true, "itemId": true, "linkId": true,
	"item": true, "link": true, "collection": true, "board": true, "fields": true,
}

func (p *payload) entity(kind Kind) Entity {
	switch kind {
	case KindItem:
		return p.Item
	case KindLink:
		return p.Link
	case KindCollection:
		return p.Collection
	default:
		return p.Board
	}
}

func (p *payload) setEntity(kind Kind, e Entity) {
	switch kind {
	case KindItem:
		p.Item = e
	case KindLink:
		p.Link = e
	case KindCollection:
		p.Collection = e
	default:
		p.Board = e
	}
}

func (p *payload) id(kind Kind) string {
	switch kind {
	case KindItem:
		return p.ItemID
	case KindLink:
		return p.LinkID
	case KindCollection:
		return p.CollectionID
	default:
		return p.BoardID
	}
}

func (p *payload) setID(kind Kind, id string) {
	switch kind {
	case KindItem:
		p.ItemID = id
	case KindLink:
		p.LinkID = id
	case KindCollection:
		p.CollectionID = id
	default:
		p.BoardID = id
	}
}

// DecodeClientEvent parses the data of a client→server mutation event.
func DecodeClientEvent(name string, data []byte) (MutationEvent, error) {
	key, ok := clientEvents[name]
	if !ok {
		return MutationEvent{}, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	return decode(key, data)
}

// DecodeServerEvent parses the data of a server→client mutation event.
func DecodeServerEvent(name string, data []byte) (MutationEvent, error) {
	key, ok := serverEvents[name]
	if !ok {
		return MutationEvent{}, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	return decode(key, data)
}

func decode(key eventKey, data []byte) (MutationEvent, error) {
	var p payload
	if err := unmarshalNumbers(data, &p); err != nil {
		return MutationEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	ev := MutationEvent{
		Kind:         key.kind,
		Op:           key.op,
		BoardID:      p.BoardID,
		CollectionID: p.CollectionID,
	}
	entity := p.entity(key.kind)

	switch key.op {
	case OpAdded:
		// Some clients send a bare board object for board-created.
		if entity == nil && key.kind == KindBoard {
			var raw Entity
			if err := unmarshalNumbers(data, &raw); err == nil && raw.ID() != "" {
				entity = raw
			}
		}
		ev.Entity = entity
		ev.EntityID = entity.ID()
	case OpUpdated:
		ev.EntityID = p.id(key.kind)
		if ev.EntityID == "" {
			ev.EntityID = entity.ID()
		}
		ev.Fields = p.Fields
		if ev.Fields == nil && entity != nil {
			ev.Fields = entity.Merge(nil)
			delete(ev.Fields, "id")
		}
		if ev.Fields == nil {
			ev.Fields = looseFields(data)
		}
	case OpDeleted:
		ev.EntityID = p.id(key.kind)
		if ev.EntityID == "" {
			ev.EntityID = entity.ID()
		}
	}

	switch key.kind {
	case KindBoard:
		if ev.BoardID == "" {
			ev.BoardID = ev.EntityID
		}
	case KindCollection:
		ev.CollectionID = ev.EntityID
	}

	if err := ev.Validate(); err != nil {
		return MutationEvent{}, err
	}
	return ev, nil
}

// looseFields collects top-level keys that are not part of the payload shape,
// for update events sent as {"boardId": "...", "name": "..."}.
func looseFields(data []byte) map[string]any {
	var raw map[string]any
	if err := unmarshalNumbers(data, &raw); err != nil {
		return map[string]any{}
	}
	fields := make(map[string]any)
	for k, v := range raw {
		if !payloadKeys[k] {
			fields[k] = v
		}
	}
	return fields
}

// unmarshalNumbers decodes numbers as json.Number so entity fields survive a
// decode and re-encode unchanged.
func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func (e MutationEvent) payload() payload {
	p := payload{BoardID: e.BoardID}
	if e.Kind == KindItem || e.Kind == KindLink {
		p.CollectionID = e.CollectionID
	}

	switch e.Op {
	case OpAdded:
		p.setEntity(e.Kind, e.Entity)
		p.setID(e.Kind, e.EntityID)
	case OpUpdated:
		p.setID(e.Kind, e.EntityID)
		p.Fields = e.Fields
	case OpDeleted:
		p.setID(e.Kind, e.EntityID)
	}
	return p
}

// MarshalJSON encodes the event's data payload (without envelope).
func (e MutationEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.payload())
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}
