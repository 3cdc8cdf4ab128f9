package media

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jholhewres/tiendabot/pkg/tiendabot/channels"
)

func slots(kinds ...channels.MessageType) map[channels.MessageType]*channels.MediaInfo {
	out := make(map[channels.MessageType]*channels.MediaInfo, len(kinds))
	for _, k := range kinds {
		out[k] = &channels.MediaInfo{Type: k, MimeType: mimeFor(k)}
	}
	return out
}

func mimeFor(k channels.MessageType) string {
	switch k {
	case channels.MessageImage:
		return "image/jpeg"
	case channels.MessageVideo:
		return "video/mp4"
	case channels.MessageAudio:
		return "audio/ogg; codecs=opus"
	case channels.MessageDocument:
		return "application/pdf"
	case channels.MessageSticker:
		return "image/webp"
	}
	return ""
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name       string
		msg        *channels.IncomingMessage
		wantKind   channels.MessageType
		wantQuoted bool
		wantErr    error
	}{
		{
			name:     "direct image",
			msg:      &channels.IncomingMessage{Slots: slots(channels.MessageImage)},
			wantKind: channels.MessageImage,
		},
		{
			name:     "direct sticker",
			msg:      &channels.IncomingMessage{Slots: slots(channels.MessageSticker)},
			wantKind: channels.MessageSticker,
		},
		{
			name:     "priority among direct slots",
			msg:      &channels.IncomingMessage{Slots: slots(channels.MessageDocument, channels.MessageVideo, channels.MessageAudio)},
			wantKind: channels.MessageVideo,
		},
		{
			name: "direct image beats quoted video",
			msg: &channels.IncomingMessage{
				Slots:  slots(channels.MessageImage),
				Quoted: &channels.QuotedMessage{Slots: slots(channels.MessageVideo)},
			},
			wantKind: channels.MessageImage,
		},
		{
			name: "direct sticker beats quoted image",
			msg: &channels.IncomingMessage{
				Slots:  slots(channels.MessageSticker),
				Quoted: &channels.QuotedMessage{Slots: slots(channels.MessageImage)},
			},
			wantKind: channels.MessageSticker,
		},
		{
			name: "quoted media when no direct slot",
			msg: &channels.IncomingMessage{
				Content: "guarda esto",
				Quoted:  &channels.QuotedMessage{Slots: slots(channels.MessageAudio, channels.MessageDocument)},
			},
			wantKind:   channels.MessageAudio,
			wantQuoted: true,
		},
		{
			name:    "text only",
			msg:     &channels.IncomingMessage{Content: "hola"},
			wantErr: ErrNoMediaFound,
		},
		{
			name: "quoted text only",
			msg: &channels.IncomingMessage{
				Content: "hola",
				Quoted:  &channels.QuotedMessage{Content: "adios"},
			},
			wantErr: ErrNoMediaFound,
		},
		{
			name: "unrecognized slot kind",
			msg: &channels.IncomingMessage{
				Slots: map[channels.MessageType]*channels.MediaInfo{"location": {}},
			},
			wantErr: ErrNoMediaFound,
		},
		{
			name:    "nil message",
			msg:     nil,
			wantErr: ErrNoMediaFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Extract(tt.msg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Extract() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() unexpected error: %v", err)
			}
			if d.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", d.Kind, tt.wantKind)
			}
			if d.Quoted != tt.wantQuoted {
				t.Errorf("Quoted = %v, want %v", d.Quoted, tt.wantQuoted)
			}
			if d.MimeType != mimeFor(tt.wantKind) {
				t.Errorf("MimeType = %q, want %q", d.MimeType, mimeFor(tt.wantKind))
			}
			if d.Info == nil {
				t.Error("Info handle is nil")
			}
		})
	}
}

func TestKindsPriority(t *testing.T) {
	want := []channels.MessageType{
		channels.MessageImage,
		channels.MessageVideo,
		channels.MessageAudio,
		channels.MessageDocument,
		channels.MessageSticker,
	}
	got := Kinds()
	if len(got) != len(want) {
		t.Fatalf("Kinds() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Kinds()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"image/jpeg", "jpeg"},
		{"video/mp4", "mp4"},
		{"audio/ogg; codecs=opus", "ogg"},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"", DefaultExtension},
		{"jpeg", DefaultExtension},
		{"image/", DefaultExtension},
		{"image/svg+xml", "svg+xml"},
		{"application/x/y", "x"},
		{"image/a/..", "a"},
		{"image/../x", DefaultExtension},
		{"image/..", DefaultExtension},
		{"image/jp eg", DefaultExtension},
		{"application/x\\y", DefaultExtension},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			if got := Extension(tt.mime); got != tt.want {
				t.Errorf("Extension(%q) = %q, want %q", tt.mime, got, tt.want)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	if got := FileName(channels.MessageImage, "image/jpeg", now); got != "image_1700000000123.jpeg" {
		t.Errorf("FileName() = %q", got)
	}
	if got := FileName(channels.MessageDocument, "", now); got != "document_1700000000123.bin" {
		t.Errorf("FileName() without MIME = %q", got)
	}
	for _, mime := range []string{"application/x/y", "image/a/..", "image/../../etc"} {
		got := FileName(channels.MessageDocument, mime, now)
		if !strings.HasPrefix(got, "document_1700000000123.") || strings.ContainsAny(got, `/\`) {
			t.Errorf("FileName(%q) = %q, want a flat name keeping kind and time", mime, got)
		}
	}
}

func TestLimitsValidate(t *testing.T) {
	limits := Limits{MaxImageSize: 10, MaxMediaSize: 100}
	image := &Descriptor{Kind: channels.MessageImage}
	video := &Descriptor{Kind: channels.MessageVideo}

	if err := limits.Validate(image, 10); err != nil {
		t.Errorf("image at limit: unexpected error %v", err)
	}
	if err := limits.Validate(image, 11); !errors.Is(err, ErrMediaTooLarge) {
		t.Errorf("image over limit: error = %v, want ErrMediaTooLarge", err)
	}
	if err := limits.Validate(video, 50); err != nil {
		t.Errorf("video under limit: unexpected error %v", err)
	}
	if err := limits.Validate(video, 0); err == nil {
		t.Error("empty payload: expected error")
	}
	if err := (Limits{}).Validate(video, 1<<30); err != nil {
		t.Errorf("zero limits should not reject: %v", err)
	}
}
