package whatsapp

import (
	"fmt"
	"strings"

	"github.com/jholhewres/tiendabot/pkg/tiendabot/channels"
	"google.golang.org/protobuf/proto"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// convertMessage fills msg from a whatsmeow message. It reports false when
// the message carries nothing the dispatcher handles (no text, no media and
// no quoted media).
func convertMessage(waMsg *waE2E.Message, msg *channels.IncomingMessage) bool {
	waMsg = unwrap(waMsg)
	if waMsg == nil {
		return false
	}

	msg.Type = channels.MessageText
	msg.Content = messageText(waMsg)
	msg.Slots = mediaSlots(waMsg)
	for _, kind := range primaryOrder {
		if _, ok := msg.Slots[kind]; ok {
			msg.Type = kind
			break
		}
	}

	if ctxInfo := contextInfo(waMsg); ctxInfo != nil && ctxInfo.QuotedMessage != nil {
		quoted := unwrap(ctxInfo.GetQuotedMessage())
		msg.Quoted = &channels.QuotedMessage{
			ID:      ctxInfo.GetStanzaID(),
			Content: messageText(quoted),
			Slots:   mediaSlots(quoted),
		}
	}

	hasText := waMsg.Conversation != nil || waMsg.ExtendedTextMessage != nil
	return hasText || msg.Content != "" || msg.HasMedia()
}

var primaryOrder = []channels.MessageType{
	channels.MessageImage,
	channels.MessageVideo,
	channels.MessageAudio,
	channels.MessageDocument,
	channels.MessageSticker,
}

// unwrap strips the ephemeral, view-once and document-with-caption envelopes.
func unwrap(m *waE2E.Message) *waE2E.Message {
	for m != nil {
		switch {
		case m.GetEphemeralMessage().GetMessage() != nil:
			m = m.GetEphemeralMessage().GetMessage()
		case m.GetViewOnceMessage().GetMessage() != nil:
			m = m.GetViewOnceMessage().GetMessage()
		case m.GetViewOnceMessageV2().GetMessage() != nil:
			m = m.GetViewOnceMessageV2().GetMessage()
		case m.GetDocumentWithCaptionMessage().GetMessage() != nil:
			m = m.GetDocumentWithCaptionMessage().GetMessage()
		default:
			return m
		}
	}
	return nil
}

// messageText returns the text body or the media caption.
func messageText(m *waE2E.Message) string {
	switch {
	case m == nil:
		return ""
	case m.Conversation != nil:
		return m.GetConversation()
	case m.ExtendedTextMessage != nil:
		return m.GetExtendedTextMessage().GetText()
	case m.ImageMessage != nil:
		return m.GetImageMessage().GetCaption()
	case m.VideoMessage != nil:
		return m.GetVideoMessage().GetCaption()
	case m.DocumentMessage != nil:
		return m.GetDocumentMessage().GetCaption()
	}
	return ""
}

// mediaSlots collects every media sub-message present in m.
func mediaSlots(m *waE2E.Message) map[channels.MessageType]*channels.MediaInfo {
	if m == nil {
		return nil
	}
	slots := make(map[channels.MessageType]*channels.MediaInfo)

	if img := m.GetImageMessage(); img != nil {
		slots[channels.MessageImage] = &channels.MediaInfo{
			Type:     channels.MessageImage,
			MimeType: img.GetMimetype(),
			FileSize: img.GetFileLength(),
			Caption:  img.GetCaption(),
			Raw:      img,
		}
	}
	if video := m.GetVideoMessage(); video != nil {
		slots[channels.MessageVideo] = &channels.MediaInfo{
			Type:     channels.MessageVideo,
			MimeType: video.GetMimetype(),
			FileSize: video.GetFileLength(),
			Caption:  video.GetCaption(),
			Raw:      video,
		}
	}
	if audio := m.GetAudioMessage(); audio != nil {
		slots[channels.MessageAudio] = &channels.MediaInfo{
			Type:     channels.MessageAudio,
			MimeType: audio.GetMimetype(),
			FileSize: audio.GetFileLength(),
			Raw:      audio,
		}
	}
	if doc := m.GetDocumentMessage(); doc != nil {
		slots[channels.MessageDocument] = &channels.MediaInfo{
			Type:     channels.MessageDocument,
			MimeType: doc.GetMimetype(),
			Filename: doc.GetFileName(),
			FileSize: doc.GetFileLength(),
			Caption:  doc.GetCaption(),
			Raw:      doc,
		}
	}
	if sticker := m.GetStickerMessage(); sticker != nil {
		slots[channels.MessageSticker] = &channels.MediaInfo{
			Type:     channels.MessageSticker,
			MimeType: sticker.GetMimetype(),
			FileSize: sticker.GetFileLength(),
			Raw:      sticker,
		}
	}

	if len(slots) == 0 {
		return nil
	}
	return slots
}

// contextInfo returns the first context info that quotes another message.
func contextInfo(m *waE2E.Message) *waE2E.ContextInfo {
	candidates := []*waE2E.ContextInfo{
		m.GetExtendedTextMessage().GetContextInfo(),
		m.GetImageMessage().GetContextInfo(),
		m.GetVideoMessage().GetContextInfo(),
		m.GetAudioMessage().GetContextInfo(),
		m.GetDocumentMessage().GetContextInfo(),
		m.GetStickerMessage().GetContextInfo(),
	}
	var first *waE2E.ContextInfo
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if c.QuotedMessage != nil {
			return c
		}
		if first == nil {
			first = c
		}
	}
	return first
}

// buildReply builds the outgoing text, quoting the originating message when
// its whatsmeow event is available.
func buildReply(out *channels.OutgoingMessage) *waE2E.Message {
	var ctxInfo *waE2E.ContextInfo

	if out.Quote != nil {
		if evt, ok := out.Quote.Raw.(*events.Message); ok && evt != nil {
			ctxInfo = &waE2E.ContextInfo{
				StanzaID:      proto.String(string(evt.Info.ID)),
				Participant:   proto.String(evt.Info.Sender.ToNonAD().String()),
				QuotedMessage: evt.Message,
			}
		}
	}
	if ctxInfo == nil && out.ReplyTo != "" {
		ctxInfo = &waE2E.ContextInfo{StanzaID: proto.String(out.ReplyTo)}
	}

	if ctxInfo == nil {
		return &waE2E.Message{Conversation: proto.String(out.Content)}
	}
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(out.Content),
			ContextInfo: ctxInfo,
		},
	}
}

// parseJID converts a string JID to types.JID.
// Accepts "5215512345678", "5215512345678@s.whatsapp.net" or group IDs
// like "123456789-1234@g.us".
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
