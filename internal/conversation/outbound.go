package conversation

import "context"

// ReplyMessenger delivers bot replies back to the patient over the messaging channel.
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}

// OutboundReply carries the data required to push a message to the user.
type OutboundReply struct {
	To       string
	From     string
	Body     string
	Metadata map[string]string
}
