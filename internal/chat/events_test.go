package chat

import (
	"encoding/json"
	"testing"
	"time"
)

func TestWireMessageNormalize(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{
			name: "canonical incoming message",
			raw:  `{"id":42,"whatsappbot_id":"9","uid":"u-1","message":"hello","is_incoming_message":1,"created_at":"2026-03-01T11:59:00Z"}`,
			want: Message{
				ID:        "42",
				Text:      "hello",
				Direction: DirectionReceived,
				Status:    "received",
				CreatedAt: time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
			},
		},
		{
			name: "alternate field names",
			raw:  `{"message_id":"m-7","bot_id":9,"chat_uid":"u-1","text":"alt","direction":"inbound","timestamp":1772366340}`,
			want: Message{
				ID:        "m-7",
				Text:      "alt",
				Direction: DirectionReceived,
				Status:    "received",
				CreatedAt: time.Unix(1772366340, 0),
			},
		},
		{
			name: "outgoing message",
			raw:  `{"sid":"s-3","whatsappbot_id":"9","uid":"u-1","message":"sent by me","is_incoming_message":0,"status":"delivered","created_at":"2026-03-01 11:58:00"}`,
			want: Message{
				ID:        "s-3",
				Text:      "sent by me",
				Direction: DirectionUser,
				Status:    "delivered",
				CreatedAt: time.Date(2026, 3, 1, 11, 58, 0, 0, time.UTC),
			},
		},
		{
			name: "no timestamp falls back to receipt time",
			raw:  `{"id":"1","whatsappbot_id":"9","uid":"u-1","message":"x","is_incoming_message":"1"}`,
			want: Message{
				ID:        "1",
				Text:      "x",
				Direction: DirectionReceived,
				Status:    "received",
				CreatedAt: now,
			},
		},
		{
			name: "millisecond timestamp",
			raw:  `{"id":"1","whatsappbot_id":"9","uid":"u-1","message":"x","is_incoming_message":"1","timestamp":"1772366340123"}`,
			want: Message{
				ID:        "1",
				Text:      "x",
				Direction: DirectionReceived,
				Status:    "received",
				CreatedAt: time.UnixMilli(1772366340123),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var wire wireMessage
			if err := json.Unmarshal([]byte(tt.raw), &wire); err != nil {
				t.Fatalf("failed to decode wire message: %v", err)
			}

			got := wire.normalize(now)
			if got.ID != tt.want.ID {
				t.Errorf("ID = %q, want %q", got.ID, tt.want.ID)
			}
			if got.Text != tt.want.Text {
				t.Errorf("Text = %q, want %q", got.Text, tt.want.Text)
			}
			if got.Direction != tt.want.Direction {
				t.Errorf("Direction = %q, want %q", got.Direction, tt.want.Direction)
			}
			if got.Status != tt.want.Status {
				t.Errorf("Status = %q, want %q", got.Status, tt.want.Status)
			}
			if !got.CreatedAt.Equal(tt.want.CreatedAt) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, tt.want.CreatedAt)
			}
		})
	}
}

func TestWireMessageRoom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want RoomKey
	}{
		{"primary fields", `{"whatsappbot_id":"9","uid":"u-1"}`, RoomKey{BotID: "9", UserID: "u-1"}},
		{"numeric bot id", `{"whatsappbot_id":9,"uid":"u-1"}`, RoomKey{BotID: "9", UserID: "u-1"}},
		{"alternate fields", `{"bot_id":"9","chat_uid":"u-1"}`, RoomKey{BotID: "9", UserID: "u-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var wire wireMessage
			if err := json.Unmarshal([]byte(tt.raw), &wire); err != nil {
				t.Fatalf("failed to decode wire message: %v", err)
			}
			if got := wire.room(); got != tt.want {
				t.Errorf("room() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDedupeKey(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	withID := Message{ID: "42", Text: "hello", CreatedAt: at}
	if withID.dedupeKey() != (Message{ID: "42", Text: "other", CreatedAt: at.Add(time.Hour)}).dedupeKey() {
		t.Error("messages with the same id must share a dedupe key")
	}

	noID := Message{Text: "hello", CreatedAt: at}
	same := Message{Text: "hello", CreatedAt: at}
	if noID.dedupeKey() != same.dedupeKey() {
		t.Error("identical id-less messages must share a dedupe key")
	}

	different := Message{Text: "hello", CreatedAt: at.Add(time.Second)}
	if noID.dedupeKey() == different.dedupeKey() {
		t.Error("id-less messages at different instants must not collide")
	}
}

func TestParseChatPayload(t *testing.T) {
	t.Parallel()

	t.Run("single object", func(t *testing.T) {
		t.Parallel()

		events, err := parseChatPayload(json.RawMessage(`{"id":"1","message":"x"}`))
		if err != nil {
			t.Fatalf("parseChatPayload() error = %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
	})

	t.Run("batch", func(t *testing.T) {
		t.Parallel()

		events, err := parseChatPayload(json.RawMessage(`[{"id":"1"},{"id":"2"},{"id":"3"}]`))
		if err != nil {
			t.Fatalf("parseChatPayload() error = %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("got %d events, want 3", len(events))
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		t.Parallel()

		events, err := parseChatPayload(nil)
		if err != nil {
			t.Fatalf("parseChatPayload() error = %v", err)
		}
		if len(events) != 0 {
			t.Errorf("got %d events, want 0", len(events))
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		t.Parallel()

		if _, err := parseChatPayload(json.RawMessage(`[{"id":`)); err == nil {
			t.Error("parseChatPayload() expected error")
		}
	})
}

func TestFlexString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want flexString
	}{
		{`"abc"`, "abc"},
		{`42`, "42"},
		{`42.0`, "42.0"},
		{`null`, ""},
	}

	for _, tt := range tests {
		var got flexString
		if err := json.Unmarshal([]byte(tt.raw), &got); err != nil {
			t.Errorf("Unmarshal(%s) error = %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
