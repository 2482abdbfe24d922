package model

import "strings"

// BufferString renders a conversation as a plain transcript, one
// "Role: content" line per message, using Human / AI / System / Tool
// prefixes.
func BufferString(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, rolePrefix(m.Role)+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

func rolePrefix(role string) string {
	switch role {
	case RoleUser:
		return "Human"
	case RoleAssistant:
		return "AI"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	default:
		return role
	}
}
