// Package media locates media payloads in inbound messages, names them and
// keeps the downloaded bytes in the asset directory.
package media

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/tiendabot/pkg/tiendabot/channels"
)

// DefaultExtension is used when the MIME type gives no usable subtype.
const DefaultExtension = "bin"

// ErrNoMediaFound is returned when no recognized media exists in the message
// or in the message it quotes.
var ErrNoMediaFound = errors.New("no media found in message")

// Descriptor is the media resolved from a message.
type Descriptor struct {
	Kind     channels.MessageType
	MimeType string

	// Quoted is true when the media came from the quoted message.
	Quoted bool

	// Info is the transport handle needed to download the bytes.
	Info *channels.MediaInfo
}

// Extension returns the file extension derived from the MIME type.
func (d *Descriptor) Extension() string {
	return Extension(d.MimeType)
}

// slotExtractor pulls the media of one kind out of a slot set.
type slotExtractor struct {
	kind    channels.MessageType
	extract func(slots map[channels.MessageType]*channels.MediaInfo) *channels.MediaInfo
}

func bySlot(kind channels.MessageType) slotExtractor {
	return slotExtractor{
		kind: kind,
		extract: func(slots map[channels.MessageType]*channels.MediaInfo) *channels.MediaInfo {
			return slots[kind]
		},
	}
}

// extractors lists the recognized kinds in priority order.
var extractors = []slotExtractor{
	bySlot(channels.MessageImage),
	bySlot(channels.MessageVideo),
	bySlot(channels.MessageAudio),
	bySlot(channels.MessageDocument),
	bySlot(channels.MessageSticker),
}

// Kinds returns the recognized media kinds in priority order.
func Kinds() []channels.MessageType {
	kinds := make([]channels.MessageType, len(extractors))
	for i, e := range extractors {
		kinds[i] = e.kind
	}
	return kinds
}

// Extract resolves the media carried by msg. Direct slots are checked first;
// the quoted message is checked only when no direct slot matches, and only one
// level deep. Extract inspects the message only and performs no I/O.
func Extract(msg *channels.IncomingMessage) (*Descriptor, error) {
	if msg == nil {
		return nil, ErrNoMediaFound
	}
	if d := firstMatch(msg.Slots); d != nil {
		return d, nil
	}
	if msg.Quoted != nil {
		if d := firstMatch(msg.Quoted.Slots); d != nil {
			d.Quoted = true
			return d, nil
		}
	}
	return nil, ErrNoMediaFound
}

func firstMatch(slots map[channels.MessageType]*channels.MediaInfo) *Descriptor {
	if len(slots) == 0 {
		return nil
	}
	for _, e := range extractors {
		if info := e.extract(slots); info != nil {
			return &Descriptor{
				Kind:     e.kind,
				MimeType: info.MimeType,
				Info:     info,
			}
		}
	}
	return nil
}

// Extension returns the MIME subtype of mimeType, without parameters
// ("audio/ogg; codecs=opus" gives "ogg") and cut at any further '/'.
// Falls back to DefaultExtension when mimeType is empty, has no subtype or
// the subtype holds characters unsafe in a file name.
func Extension(mimeType string) string {
	_, sub, ok := strings.Cut(mimeType, "/")
	if !ok {
		return DefaultExtension
	}
	if i := strings.IndexByte(sub, ';'); i >= 0 {
		sub = sub[:i]
	}
	if i := strings.IndexByte(sub, '/'); i >= 0 {
		sub = sub[:i]
	}
	sub = strings.TrimSpace(sub)
	if !validExtension(sub) {
		return DefaultExtension
	}
	return sub
}

// validExtension allows [A-Za-z0-9.+_-] and needs at least one non-dot character.
func validExtension(ext string) bool {
	if strings.Trim(ext, ".") == "" {
		return false
	}
	for _, r := range ext {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '+', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// FileName builds the asset name <kind>_<unix-millis>.<ext>.
func FileName(kind channels.MessageType, mimeType string, now time.Time) string {
	return fmt.Sprintf("%s_%d.%s", kind, now.UnixMilli(), Extension(mimeType))
}
