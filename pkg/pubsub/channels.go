package pubsub

// Bus channels shared by every delivery node.
const (
	// ChannelChatEvents carries message, read-receipt and typing events
	// addressed to individual recipients.
	ChannelChatEvents = "chat:events"

	// ChannelPresence carries online/offline transitions.
	ChannelPresence = "presence:events"
)

// Event types on ChannelChatEvents.
const (
	EventReceiveMessage = "receive_message"
	EventMessageRead    = "message_read"
	EventUserTyping     = "user_typing"
)

// Event types on ChannelPresence.
const (
	EventUserStatus = "user_status"
)
