package channels

import "testing"

func TestIncomingMessageClass(t *testing.T) {
	image := &MediaInfo{Type: MessageImage, MimeType: "image/jpeg"}

	tests := []struct {
		name string
		msg  *IncomingMessage
		want EventClass
	}{
		{
			name: "plain text",
			msg:  &IncomingMessage{Content: "hola"},
			want: ClassText,
		},
		{
			name: "direct media",
			msg:  &IncomingMessage{Slots: map[MessageType]*MediaInfo{MessageImage: image}},
			want: ClassMedia,
		},
		{
			name: "quoted media",
			msg: &IncomingMessage{
				Content: "que es esto?",
				Quoted:  &QuotedMessage{Slots: map[MessageType]*MediaInfo{MessageImage: image}},
			},
			want: ClassMedia,
		},
		{
			name: "quoted text only",
			msg: &IncomingMessage{
				Content: "si",
				Quoted:  &QuotedMessage{Content: "confirmas?"},
			},
			want: ClassText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Class(); got != tt.want {
				t.Errorf("Class() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHasMediaNil(t *testing.T) {
	var msg *IncomingMessage
	if msg.HasMedia() {
		t.Error("nil message should not report media")
	}
}
