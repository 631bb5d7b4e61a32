package transport

import "context"

// ChatTarget addresses a chat, optionally a forum topic inside it.
type ChatTarget struct {
	ChatID   int64
	ThreadID int // 0 if none
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// Message is an incoming chat message.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int
	FromID       int64
	FromUsername string
	FromBot      bool
	Text         string
}

func (m Message) Ref() MessageRef {
	return MessageRef{ChatID: m.ChatID, ThreadID: m.ThreadID, MessageID: m.ID}
}

type Update struct {
	Message *Message
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender posts text to a chat. The roster relay depends only on this.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Reactor attaches emoji reactions to an existing message.
type Reactor interface {
	React(ctx context.Context, ref MessageRef, emojis []string) error
}

// Adapter is a chat platform connection.
type Adapter interface {
	Sender
	Reactor
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
