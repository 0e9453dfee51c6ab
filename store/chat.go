package store

import (
	"encoding/json"
	"time"

	"github.com/uselocalchat/localchat/chat"
)

// Chat is one persisted conversation record.
type Chat struct {
	ID         string
	UserID     string
	Title      string
	Visibility string
	CreatedTs  int64
}

// Message is a single persisted message within a chat. ToolInvocations holds
// the JSON-encoded invocation list so tool calls round-trip losslessly.
type Message struct {
	ID              string
	ChatID          string
	Role            string
	Content         string
	ToolInvocations string
	CreatedTs       int64
}

// FindChat filters for ListChats / GetChat.
type FindChat struct {
	ID     *string
	UserID *string
}

// FindMessage filters for ListMessages.
type FindMessage struct {
	ChatID string
}

// Record converts the stored chat into its wire shape.
func (c *Chat) Record() *chat.Record {
	return &chat.Record{
		ID:         c.ID,
		UserID:     c.UserID,
		Title:      c.Title,
		Visibility: chat.Visibility(c.Visibility),
	}
}

// FromUIMessage converts a wire message into its stored row.
func FromUIMessage(m chat.Message) (*Message, error) {
	invocations := ""
	if len(m.ToolInvocations) > 0 {
		raw, err := json.Marshal(m.ToolInvocations)
		if err != nil {
			return nil, err
		}
		invocations = string(raw)
	}
	createdTs := m.CreatedAt.Unix()
	if m.CreatedAt.IsZero() {
		createdTs = time.Now().Unix()
	}
	return &Message{
		ID:              m.ID,
		ChatID:          m.ChatID,
		Role:            string(m.Role),
		Content:         m.Content,
		ToolInvocations: invocations,
		CreatedTs:       createdTs,
	}, nil
}

// UIMessage converts a stored row back into the wire shape.
func (m *Message) UIMessage() (chat.Message, error) {
	out := chat.Message{
		ID:        m.ID,
		Role:      chat.Role(m.Role),
		Content:   m.Content,
		CreatedAt: time.Unix(m.CreatedTs, 0).UTC(),
		ChatID:    m.ChatID,
	}
	if m.ToolInvocations != "" {
		if err := json.Unmarshal([]byte(m.ToolInvocations), &out.ToolInvocations); err != nil {
			return chat.Message{}, err
		}
	}
	return out, nil
}
