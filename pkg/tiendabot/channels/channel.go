// Package channels defines the transport contract the dispatcher consumes.
// A channel delivers inbound messages, fetches the bytes of media attached to
// them and sends replies back to the originating chat.
package channels

import (
	"context"
	"fmt"
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageAudio    MessageType = "audio"
	MessageDocument MessageType = "document"
	MessageSticker  MessageType = "sticker"
)

// EventClass selects the dispatcher entry point for a message.
type EventClass string

const (
	ClassText  EventClass = "text"
	ClassMedia EventClass = "media"
)

// Channel defines the interface that every communication channel must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "whatsapp").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a message to the specified recipient.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns a Go channel that emits incoming messages.
	// The channel is closed on Disconnect.
	Receive() <-chan *IncomingMessage
}

// MediaChannel extends Channel with media download.
type MediaChannel interface {
	Channel

	// DownloadMedia fetches the decrypted bytes referenced by media.
	DownloadMedia(ctx context.Context, media *MediaInfo) ([]byte, error)
}

// PresenceChannel extends Channel with typing indicators.
type PresenceChannel interface {
	Channel

	// SendTyping sends a "typing..." indicator to the recipient.
	SendTyping(ctx context.Context, to string) error
}

// IncomingMessage represents a message received from a channel.
// It is treated as immutable once emitted.
type IncomingMessage struct {
	// ID is the unique message identifier in the source channel.
	ID string

	// Channel identifies the source channel (e.g. "whatsapp").
	Channel string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name (if available).
	FromName string

	// ChatID is the group or DM identifier replies go to.
	ChatID string

	// IsGroup indicates whether the message is from a group chat.
	IsGroup bool

	// Type is the primary content type of the message itself.
	Type MessageType

	// Content is the text body, or the caption for media messages.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// Slots holds the media attached directly to this message, keyed by kind.
	Slots map[MessageType]*MediaInfo

	// Quoted is the message this one replies to or forwards, if any.
	Quoted *QuotedMessage

	// Raw is the channel-native message, kept for quoting replies.
	Raw any
}

// QuotedMessage is one level of quoted or forwarded content.
type QuotedMessage struct {
	// ID is the identifier of the quoted message (may be empty for forwards).
	ID string

	// Content is the quoted text or caption.
	Content string

	// Slots holds the media attached to the quoted message.
	Slots map[MessageType]*MediaInfo
}

// HasMedia reports whether the message carries media directly or one quote deep.
func (m *IncomingMessage) HasMedia() bool {
	if m == nil {
		return false
	}
	if len(m.Slots) > 0 {
		return true
	}
	return m.Quoted != nil && len(m.Quoted.Slots) > 0
}

// Class returns the event class used to pick the dispatcher entry point.
func (m *IncomingMessage) Class() EventClass {
	if m.HasMedia() {
		return ClassMedia
	}
	return ClassText
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text content of the message.
	Content string

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string

	// Quote is the originating message, used by channels that embed quotes.
	Quote *IncomingMessage
}

// MediaInfo describes a media sub-structure found in a message.
type MediaInfo struct {
	// Type is the media kind.
	Type MessageType

	// MimeType is the MIME type of the media (may be empty).
	MimeType string

	// Filename is the original filename (documents only).
	Filename string

	// FileSize is the size in bytes as announced by the sender.
	FileSize uint64

	// Caption is the media caption text.
	Caption string

	// Raw is the channel-native handle required to download the bytes.
	Raw any
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrSendFailed          = fmt.Errorf("failed to send message")
	ErrMediaNotSupported   = fmt.Errorf("media not supported by this channel")
	ErrMediaDownloadFailed = fmt.Errorf("failed to download media")
)
