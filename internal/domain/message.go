package domain

import "time"

// InboundMessage is one chat message handed to the bot by a channel.
type InboundMessage struct {
	UpdateID   int
	ChatID     int64
	MessageID  int
	Sender     User
	Text       string
	Command    string // bot command without the leading slash, empty for plain text
	ReceivedAt time.Time
}

// IsCommand reports whether the message carries a bot command.
func (m InboundMessage) IsCommand() bool { return m.Command != "" }

// OutboundText is a text reply.
type OutboundText struct {
	ChatID    int64
	Text      string
	ParseMode string // "" | "Markdown" | "MarkdownV2" | "HTML"
	ReplyTo   int    // message id to reply to, 0 = none
}

// OutboundVideo is a video reply streamed from Media.
type OutboundVideo struct {
	ChatID    int64
	ReplyTo   int
	Caption   string
	ParseMode string
	Media     *Media
}
