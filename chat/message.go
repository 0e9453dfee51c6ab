// Package chat holds the message shapes shared by the worker and the
// persistence backend: UI messages, tool invocations, and chat records.
package chat

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolInvocationState tracks the lifecycle of a tool invocation. An
// invocation transitions call → result exactly once; one left in "call"
// forever is pending, not broken.
type ToolInvocationState string

const (
	ToolStateCall   ToolInvocationState = "call"
	ToolStateResult ToolInvocationState = "result"
)

// ToolInvocation is a single tool call made by the assistant, optionally
// carrying its result.
type ToolInvocation struct {
	State      ToolInvocationState `json:"state"`
	ToolCallID string              `json:"toolCallId"`
	ToolName   string              `json:"toolName"`
	Args       json.RawMessage     `json:"args,omitempty"`
	Result     json.RawMessage     `json:"result,omitempty"`
}

// Message is one conversation message in the shape the UI exchanges with the
// worker and the backend.
type Message struct {
	ID              string           `json:"id,omitempty"`
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty"`
	CreatedAt       time.Time        `json:"createdAt,omitzero"`
	ChatID          string           `json:"chatId,omitempty"`
}

// Visibility controls who can read a chat.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Record is the persisted metadata of one conversation.
type Record struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Title      string     `json:"title"`
	Visibility Visibility `json:"visibility"`
}

// MostRecentUserMessage returns the last user-role message, or nil when the
// list contains none.
func MostRecentUserMessage(messages []Message) *Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			m := messages[i]
			return &m
		}
	}
	return nil
}

// PendingToolCalls returns the invocations still in "call" state that no
// later invocation in the list has resolved.
func PendingToolCalls(messages []Message) []ToolInvocation {
	resolved := make(map[string]bool)
	for _, m := range messages {
		for _, inv := range m.ToolInvocations {
			if inv.State == ToolStateResult {
				resolved[inv.ToolCallID] = true
			}
		}
	}

	var pending []ToolInvocation
	for _, m := range messages {
		for _, inv := range m.ToolInvocations {
			if inv.State == ToolStateCall && !resolved[inv.ToolCallID] {
				pending = append(pending, inv)
			}
		}
	}
	return pending
}
