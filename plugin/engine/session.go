package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/uselocalchat/localchat/chat"
)

// streamBuffer bounds unread chunks; the generator blocks once the consumer
// falls this far behind, which is what backpressure should do here.
const streamBuffer = 16

const temperature = 0.5

const titlePrompt = `You will generate a short title based on the first message a user begins a conversation with.
- Ensure it is not more than 80 characters long
- The title should be a summary of the user's message
- Do not use quotes or colons

Message:
%s`

// Session is one initialized engine session. It stays valid across calls
// until the Manager replaces it with a different model.
type Session struct {
	modelID     string
	accelerated bool
	llm         *ollama.LLM
}

func (s *Session) ModelID() string {
	return s.modelID
}

func (s *Session) Accelerated() bool {
	return s.accelerated
}

// Stream generates a reply to the conversation and yields it incrementally.
// The first chunk arrives before generation completes. The returned channel
// always terminates: the last chunk carries Done on success or Err on a
// mid-stream engine failure; cancellation just closes the channel. The
// session stays usable for the next call either way.
func (s *Session) Stream(ctx context.Context, messages []chat.Message) (<-chan Chunk, error) {
	content := toModelMessages(messages)
	if len(content) == 0 {
		return nil, errors.Wrap(ErrGenerationFailed, "empty conversation")
	}

	ch := make(chan Chunk, streamBuffer)
	go func() {
		defer close(ch)
		_, err := s.llm.GenerateContent(ctx, content,
			llms.WithTemperature(temperature),
			llms.WithStreamingFunc(func(ctx context.Context, part []byte) error {
				select {
				case ch <- Chunk{Content: string(part)}:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}),
		)
		if err != nil {
			if ctx.Err() != nil {
				// Caller aborted; teardown, not an error.
				slog.Debug("engine: stream cancelled", "model", s.modelID)
				return
			}
			ch <- Chunk{Err: errors.Wrapf(ErrGenerationFailed, "model %s: %v", s.modelID, err)}
			return
		}
		ch <- Chunk{Done: true}
	}()
	return ch, nil
}

// GenerateTitle runs one short non-streamed completion summarizing the
// user's opening message. Callers own cleanup and fallback of the result.
func (s *Session) GenerateTitle(ctx context.Context, userText string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, s.llm, fmt.Sprintf(titlePrompt, userText),
		llms.WithTemperature(temperature))
	if err != nil {
		return "", errors.Wrapf(ErrGenerationFailed, "derive title: %v", err)
	}
	return out, nil
}

// toModelMessages maps wire messages onto the engine's message types. Tool
// results travel as tool-role text so local models see them in context.
func toModelMessages(messages []chat.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		text := m.Content
		if text == "" && len(m.ToolInvocations) > 0 {
			raw, err := json.Marshal(m.ToolInvocations)
			if err != nil {
				continue
			}
			text = string(raw)
		}
		if text == "" {
			continue
		}
		out = append(out, llms.TextParts(roleToMessageType(m.Role), text))
	}
	return out
}

func roleToMessageType(role chat.Role) llms.ChatMessageType {
	switch role {
	case chat.RoleUser:
		return llms.ChatMessageTypeHuman
	case chat.RoleAssistant:
		return llms.ChatMessageTypeAI
	case chat.RoleSystem:
		return llms.ChatMessageTypeSystem
	case chat.RoleTool:
		return llms.ChatMessageTypeTool
	default:
		return llms.ChatMessageTypeGeneric
	}
}
