package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is one websocket text frame: {"event": "...", "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the data of an "error" frame sent back to a single connection.
type ErrorPayload struct {
	Message string `json:"message"`
	BoardID string `json:"boardId,omitempty"`
}

type boardRef struct {
	BoardID string `json:"boardId"`
}

// ParseFrame decodes an envelope. The data field is left raw.
func ParseFrame(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrInvalidEvent)
	}
	return env, nil
}

// EncodeFrame wraps data in an envelope under name.
func EncodeFrame(name string, data any) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}
	return json.Marshal(Envelope{Event: name, Data: body})
}

// EncodeServerFrame encodes ev under its server→client name.
func EncodeServerFrame(ev MutationEvent) ([]byte, error) {
	name := ev.ServerName()
	if name == "" {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownEvent, ev.Kind, ev.Op)
	}
	return EncodeFrame(name, ev)
}

// EncodeClientFrame encodes ev under its client→server name.
func EncodeClientFrame(ev MutationEvent) ([]byte, error) {
	name := ev.ClientName()
	if name == "" {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownEvent, ev.Kind, ev.Op)
	}
	return EncodeFrame(name, ev)
}

// ParseBoardRef accepts either a bare JSON string or {"boardId": "..."}.
func ParseBoardRef(data json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: missing boardId", ErrInvalidEvent)
	}

	var id string
	if trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
	} else {
		var ref boardRef
		if err := json.Unmarshal(trimmed, &ref); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		id = ref.BoardID
	}

	if id == "" {
		return "", fmt.Errorf("%w: missing boardId", ErrInvalidEvent)
	}
	return id, nil
}
