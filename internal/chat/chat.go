// Package chat abstracts the chat platform the bot talks through.
package chat

// Event is one inbound message from the platform's event stream.
type Event struct {
	UserID    string
	ChannelID string
	Text      string
	// Hidden marks events with no user-visible payload (edits, system
	// notices, bot chatter). The dispatch loop drops them.
	Hidden bool
	// DirectMessage is true when the message arrived on a 1:1 channel.
	DirectMessage bool
}

// Sender delivers outbound messages.
type Sender interface {
	// ResolveDirectChannel returns the 1:1 channel id for a user, creating
	// the channel if the platform requires it.
	ResolveDirectChannel(userID string) (string, error)
	SendMessage(channelID, text string) error
}
