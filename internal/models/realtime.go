package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Realtime event names.
const (
	EventJoin        = "join"
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "send_message"

	EventReceiveMessage   = "receive_message"
	EventUpdateChatlist   = "update_chatlist"
	EventUserStatusChange = "userStatusChange"
	EventMessageError     = "message_error"
)

// Envelope is one WebSocket text frame: an event name and its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent builds the wire frame for an outgoing event.
func EncodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// DecodeEnvelope parses an incoming frame.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Event == "" {
		return env, errors.New("malformed frame: missing event")
	}
	return env, nil
}

// JoinPayload announces the user behind a connection.
// The wire form is either a bare id or {"userId": id}.
type JoinPayload struct {
	UserID uint `json:"userId"`
}

func (p *JoinPayload) UnmarshalJSON(data []byte) error {
	id, err := decodeID(data, "userId")
	if err != nil {
		return err
	}
	p.UserID = id
	return nil
}

// RoomPayload addresses a room in joinRoom / leaveRoom.
// The wire form is either a bare id or {"roomId": id}.
type RoomPayload struct {
	RoomID uint `json:"roomId"`
}

func (p *RoomPayload) UnmarshalJSON(data []byte) error {
	id, err := decodeID(data, "roomId")
	if err != nil {
		return err
	}
	p.RoomID = id
	return nil
}

// SendMessagePayload is the body of send_message.
type SendMessagePayload struct {
	RoomID   uint   `json:"room_id"`
	SenderID uint   `json:"sender_id"`
	Message  string `json:"message"`
}

// Validate checks the shape of the payload before it enters the pipeline.
func (p SendMessagePayload) Validate() error {
	switch {
	case p.RoomID == 0:
		return errors.New("room_id is required")
	case p.SenderID == 0:
		return errors.New("sender_id is required")
	case strings.TrimSpace(p.Message) == "":
		return errors.New("message is empty")
	}
	return nil
}

// StatusChange is the payload of userStatusChange.
type StatusChange struct {
	ID       uint `json:"id"`
	IsOnline bool `json:"isOnline"`
}

// MessageError is the payload of message_error.
type MessageError struct {
	Error string `json:"error"`
}

// decodeID accepts a JSON number, a numeric string or an object with the
// given key. Zero is rejected.
func decodeID(data []byte, key string) (uint, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, fmt.Errorf("%s is required", key)
	}

	var id uint
	switch data[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		raw, ok := obj[key]
		if !ok {
			return 0, fmt.Errorf("%s is required", key)
		}
		return decodeID(raw, key)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 0)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q", key, s)
		}
		id = uint(n)
	default:
		if err := json.Unmarshal(data, &id); err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if id == 0 {
		return 0, fmt.Errorf("%s is required", key)
	}
	return id, nil
}
