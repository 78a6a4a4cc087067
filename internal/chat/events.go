package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event names on the realtime channel.
const (
	eventJoin   = "join"
	eventLeave  = "leave"
	eventJoined = "joined"
	eventTyping = "typing"
	eventChat   = "chat:new"
)

// envelope is the wire frame: one event name plus its JSON payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Direction tells whether a message was received from the conversation or
// sent by this client's user.
type Direction string

const (
	DirectionReceived Direction = "received"
	DirectionUser     Direction = "user"
)

// Message is one normalized chat message.
type Message struct {
	ID        string
	Text      string
	Direction Direction
	Status    string
	CreatedAt time.Time
}

// dedupeKey identifies a message for duplicate suppression: the server id
// when present, otherwise a key synthesized from the creation instant and
// the text.
func (m Message) dedupeKey() string {
	if m.ID != "" {
		return "id:" + m.ID
	}
	return "k:" + m.CreatedAt.UTC().Format(time.RFC3339Nano) + "_" + m.Text
}

// flexString decodes a JSON value that may arrive as a string or a number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// wireMessage is a chat:new payload item in any of the field-name variants
// the backend has been seen to produce.
type wireMessage struct {
	ID        flexString `json:"id"`
	MessageID flexString `json:"message_id"`
	SID       flexString `json:"sid"`

	BotID    flexString `json:"whatsappbot_id"`
	AltBotID flexString `json:"bot_id"`
	UID      flexString `json:"uid"`
	ChatUID  flexString `json:"chat_uid"`

	Message string `json:"message"`
	Text    string `json:"text"`

	IsIncoming flexString `json:"is_incoming_message"`
	Direction  string     `json:"direction"`
	Status     string     `json:"status"`

	CreatedAt string     `json:"created_at"`
	Timestamp flexString `json:"timestamp"`
}

// room returns the conversation this event is tagged with.
func (w wireMessage) room() RoomKey {
	key := RoomKey{BotID: string(w.BotID), UserID: string(w.UID)}
	if key.BotID == "" {
		key.BotID = string(w.AltBotID)
	}
	if key.UserID == "" {
		key.UserID = string(w.ChatUID)
	}
	return key
}

// normalize converts a wire event into the canonical Message shape.
func (w wireMessage) normalize(now time.Time) Message {
	msg := Message{
		Text:   w.Message,
		Status: w.Status,
	}
	if msg.Text == "" {
		msg.Text = w.Text
	}
	if msg.Status == "" {
		msg.Status = string(DirectionReceived)
	}

	for _, id := range []flexString{w.ID, w.MessageID, w.SID} {
		if id != "" {
			msg.ID = string(id)
			break
		}
	}

	if w.IsIncoming == "1" || strings.EqualFold(w.Direction, "inbound") {
		msg.Direction = DirectionReceived
	} else {
		msg.Direction = DirectionUser
	}

	msg.CreatedAt = parseCreatedAt(w.CreatedAt, string(w.Timestamp), now)
	return msg
}

// parseCreatedAt resolves the creation instant from created_at (RFC 3339 or
// the backend's "2006-01-02 15:04:05" form), falling back to a Unix
// timestamp and finally to the receipt time.
func parseCreatedAt(createdAt, timestamp string, now time.Time) time.Time {
	if createdAt != "" {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, createdAt); err == nil {
				return t
			}
		}
	}
	if timestamp != "" {
		if secs, err := strconv.ParseInt(timestamp, 10, 64); err == nil && secs > 0 {
			// Millisecond timestamps are 13 digits; anything that far in
			// the future in seconds is one of those.
			if secs > 1e12 {
				return time.UnixMilli(secs)
			}
			return time.Unix(secs, 0)
		}
	}
	return now
}

// parseChatPayload accepts both a single event object and a batch.
func parseChatPayload(data json.RawMessage) ([]wireMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var batch []wireMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode chat batch: %w", err)
		}
		return batch, nil
	}

	var single wireMessage
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("failed to decode chat event: %w", err)
	}
	return []wireMessage{single}, nil
}

// typingEvent is a typing-indicator payload.
type typingEvent struct {
	BotID flexString `json:"whatsappbot_id"`
	UID   flexString `json:"uid"`
	By    flexString `json:"by"`
}

func (t typingEvent) room() RoomKey {
	return RoomKey{BotID: string(t.BotID), UserID: string(t.UID)}
}

// roomPayload is the join/leave/typing request body for a room.
func roomPayload(key RoomKey, by string) map[string]string {
	payload := map[string]string{
		"whatsappbot_id": key.BotID,
		"uid":            key.UserID,
	}
	if by != "" {
		payload["by"] = by
	}
	return payload
}
