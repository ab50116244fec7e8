package core

import "context"

// OutboundPort is the outbound half of the chat adapter contract (§6): the
// minimal surface every service (C9/C10/C11) needs to talk back to a chat,
// independent of which chat platform is attached.
type OutboundPort interface {
	SendMessage(ctx context.Context, chatID int64, text string) (messageID int64, err error)
	EditMessage(ctx context.Context, chatID, messageID int64, text string) error
	ReplyTo(ctx context.Context, chatID, origMessageID int64, text string) (messageID int64, err error)
}

// AgentClient is the Agent contract (§6) driven by C9/C10/C11.
type AgentClient interface {
	Process(ctx context.Context, req AgentRequest) (AgentResult, error)
}
