// Package channel implements the chat surfaces: Twitch, Discord, Telegram,
// Slack and the local WebSocket API. Each surface publishes inbound
// messages onto the bus under a namespaced channel id and filters outbound
// events back to the ids it owns.
package channel

import "strings"

// splitMessage splits text into chunks that fit within maxLen, preferring
// to cut on a newline when one falls in the second half of the window.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
