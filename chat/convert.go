package chat

// mergeToolResults folds a tool-role message into the preceding assistant
// messages: every invocation whose toolCallId matches a result carried by the
// tool message transitions to "result". Results that match no prior call are
// dropped on the floor — a result must never appear without its call.
func mergeToolResults(toolMessage Message, messages []Message) []Message {
	results := make(map[string]ToolInvocation, len(toolMessage.ToolInvocations))
	for _, inv := range toolMessage.ToolInvocations {
		if inv.State == ToolStateResult {
			results[inv.ToolCallID] = inv
		}
	}

	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if len(m.ToolInvocations) == 0 {
			out = append(out, m)
			continue
		}
		merged := make([]ToolInvocation, 0, len(m.ToolInvocations))
		for _, inv := range m.ToolInvocations {
			if res, ok := results[inv.ToolCallID]; ok && inv.State == ToolStateCall {
				inv.State = ToolStateResult
				inv.Result = res.Result
			}
			merged = append(merged, inv)
		}
		m.ToolInvocations = merged
		out = append(out, m)
	}
	return out
}

// ToUIMessages rebuilds the UI-facing message list from persisted messages.
// Tool-role rows are merged into the assistant invocations they answer and do
// not surface as standalone messages.
func ToUIMessages(messages []Message) []Message {
	var out []Message
	for _, m := range messages {
		if m.Role == RoleTool {
			out = mergeToolResults(m, out)
			continue
		}
		out = append(out, m)
	}
	return out
}
