package chat

// SanitizeUIMessages removes tool invocations that never received a result
// and drops messages left with neither text nor invocations. The UI calls the
// same shape before re-submitting a conversation for regeneration.
func SanitizeUIMessages(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != RoleAssistant || len(m.ToolInvocations) == 0 {
			if keepMessage(m) {
				out = append(out, m)
			}
			continue
		}

		resolved := make(map[string]bool)
		for _, inv := range m.ToolInvocations {
			if inv.State == ToolStateResult {
				resolved[inv.ToolCallID] = true
			}
		}

		kept := make([]ToolInvocation, 0, len(m.ToolInvocations))
		for _, inv := range m.ToolInvocations {
			if inv.State == ToolStateResult || resolved[inv.ToolCallID] {
				kept = append(kept, inv)
			}
		}
		m.ToolInvocations = kept

		if keepMessage(m) {
			out = append(out, m)
		}
	}
	return out
}

func keepMessage(m Message) bool {
	return len(m.Content) > 0 || len(m.ToolInvocations) > 0
}
