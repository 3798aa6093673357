package core

import (
	"time"
)

// Message is a single entry read from or written to a log. It is created by
// the log on a successful append and is immutable afterwards; readers must not
// modify Content.
type Message struct {
	SenderID  string
	Timestamp time.Time
	Content   []byte
}

// NewMessage constructs a message. Content ownership passes to the message;
// callers that need to reuse the slice must copy it first.
func NewMessage(senderID string, ts time.Time, content []byte) Message {
	return Message{
		SenderID:  senderID,
		Timestamp: ts,
		Content:   content,
	}
}
