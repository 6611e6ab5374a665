package events

// Wire frame type discriminators. Outbound frames are what the widget
// writes to the realtime channel, inbound frames are what the server
// pushes back.

// Outbound frame types
const (
	TypeChatMessage = "chat_message"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
	TypePing        = "ping"
)

// Inbound frame types
const (
	TypeUserMessage           = "user_message"
	TypeAIResponse            = "ai_response"
	TypeStatusUpdate          = "status_update"
	TypeReactionUpdate        = "reaction_update"
	TypeConnectionEstablished = "connection_established"
	TypeError                 = "error"
	// typing_start / typing_stop are bidirectional; inbound frames carry
	// the remote identity in user_id.
)
