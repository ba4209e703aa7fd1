package domain

import "context"

// Surface is a user-facing chat transport (Twitch, Discord, Telegram,
// Slack, the local WebSocket API). A surface publishes inbound messages to
// the bus and registers an outbound handler for events it owns.
//
// Channel ids are namespaced "<surface>:<native id>" so surfaces can cheaply
// ignore events belonging to other transports.
type Surface interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}

// OwnsChannel reports whether a channel id belongs to the named surface.
func OwnsChannel(surfaceName, channelID string) bool {
	return len(channelID) > len(surfaceName) &&
		channelID[:len(surfaceName)] == surfaceName &&
		channelID[len(surfaceName)] == ':'
}

// NativeChannelID strips the surface namespace from a channel id.
func NativeChannelID(channelID string) string {
	for i := 0; i < len(channelID); i++ {
		if channelID[i] == ':' {
			return channelID[i+1:]
		}
	}
	return channelID
}

// ChannelID builds a namespaced channel id for a surface.
func ChannelID(surfaceName, nativeID string) string {
	return surfaceName + ":" + nativeID
}
