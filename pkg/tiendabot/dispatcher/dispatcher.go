// Package dispatcher turns one inbound message into exactly one reply.
//
// Text messages are parsed as store commands (save, read) or forwarded to the
// completion gateway as a question. Media messages are extracted, persisted as
// assets, optionally described by the vision model and summarized by the
// completion gateway. Every failure on either path becomes a fixed apology, so
// a dispatch never returns an error and never panics.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/channels"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/command"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/llm"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/media"
	"github.com/jholhewres/tiendabot/pkg/tiendabot/storage"
)

// Gateway is the completion service used by both paths.
type Gateway interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
	DescribeImage(ctx context.Context, instruction, localPath string) (string, error)
}

// MediaFetcher downloads the bytes of a media attachment.
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, info *channels.MediaInfo) ([]byte, error)
}

// Config tunes the Run loop.
type Config struct {
	// MaxConcurrent bounds dispatches running at once. Zero or less means 8.
	MaxConcurrent int `yaml:"max_concurrent"`

	// SendTyping shows a typing indicator while a reply is being built.
	SendTyping bool `yaml:"send_typing"`
}

// DefaultConfig returns the default dispatcher settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 8,
		SendTyping:    true,
	}
}

// Deps are the collaborators a Dispatcher needs.
type Deps struct {
	Store   storage.TextStore
	Assets  media.AssetStore
	Fetcher MediaFetcher
	Gateway Gateway
	Limits  media.Limits

	// Now overrides the clock used for asset names.
	Now func() time.Time
}

// Dispatcher routes inbound messages. It holds no per-message state and is
// safe for concurrent use.
type Dispatcher struct {
	cfg     Config
	store   storage.TextStore
	assets  media.AssetStore
	fetcher MediaFetcher
	gateway Gateway
	limits  media.Limits
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a dispatcher.
func New(cfg Config, deps Deps, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		cfg:     cfg,
		store:   deps.Store,
		assets:  deps.Assets,
		fetcher: deps.Fetcher,
		gateway: deps.Gateway,
		limits:  deps.Limits,
		now:     now,
		logger:  logger.With("component", "dispatcher"),
	}
}

type handlerFunc func(ctx context.Context, msg *channels.IncomingMessage, logger *slog.Logger) (string, error)

// Dispatch picks the entry point by event class and returns the reply.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *channels.IncomingMessage) string {
	if takesMediaPath(msg) {
		return d.HandleMedia(ctx, msg)
	}
	return d.HandleText(ctx, msg)
}

// takesMediaPath reports whether msg goes to the media path. A save or read
// command that only quotes media is still a command.
func takesMediaPath(msg *channels.IncomingMessage) bool {
	if msg == nil || msg.Class() != channels.ClassMedia {
		return false
	}
	if len(msg.Slots) > 0 {
		return true
	}
	switch command.Parse(msg.Content).(type) {
	case command.Save, command.Read:
		return false
	}
	return true
}

// HandleText runs the text path. It always returns a reply.
func (d *Dispatcher) HandleText(ctx context.Context, msg *channels.IncomingMessage) string {
	return d.guard(ctx, msg, textApology, d.handleText)
}

// HandleMedia runs the media path. It always returns a reply.
func (d *Dispatcher) HandleMedia(ctx context.Context, msg *channels.IncomingMessage) string {
	return d.guard(ctx, msg, mediaApology, d.handleMedia)
}

// guard converts a returned error or a panic from h into apology.
func (d *Dispatcher) guard(ctx context.Context, msg *channels.IncomingMessage, apology string, h handlerFunc) (reply string) {
	logger := d.logger.With("dispatch_id", uuid.NewString())
	if msg != nil {
		logger = logger.With("msg_id", msg.ID, "chat_id", msg.ChatID)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch panicked",
				"panic", r,
				"stack", string(debug.Stack()))
			reply = apology
		}
	}()

	if msg == nil {
		logger.Error("dispatch failed", "error", "nil message")
		return apology
	}

	out, err := h(ctx, msg, logger)
	if err != nil {
		logger.Error("dispatch failed", "error", err)
		return apology
	}
	return out
}

func (d *Dispatcher) handleText(ctx context.Context, msg *channels.IncomingMessage, logger *slog.Logger) (string, error) {
	switch cmd := command.Parse(msg.Content).(type) {
	case command.Save:
		logger.Info("save command", "name", cmd.Name, "bytes", len(cmd.Content))
		if !d.store.SaveText(ctx, cmd.Name, cmd.Content) {
			return saveFailed, nil
		}
		return fmt.Sprintf(saveOKFormat, cmd.Name), nil

	case command.Read:
		logger.Info("read command", "name", cmd.Name)
		content, ok := d.store.ReadText(ctx, cmd.Name)
		if !ok || content == "" {
			return fmt.Sprintf(readMissingFormat, cmd.Name), nil
		}
		return content, nil

	case command.Query:
		logger.Debug("query", "preview", truncate(cmd.Text, 50))
		reply, err := d.gateway.Complete(ctx, []llm.Message{
			{Role: llm.RoleSystem, Content: textPersona},
			{Role: llm.RoleUser, Content: cmd.Text},
		})
		if err != nil {
			return "", fmt.Errorf("completing query: %w", err)
		}
		return reply, nil

	default:
		return "", fmt.Errorf("unknown command %T", cmd)
	}
}

func (d *Dispatcher) handleMedia(ctx context.Context, msg *channels.IncomingMessage, logger *slog.Logger) (string, error) {
	desc, err := media.Extract(msg)
	if err != nil {
		return "", err
	}
	logger = logger.With("kind", desc.Kind, "mime", desc.MimeType, "quoted", desc.Quoted)

	if d.fetcher == nil {
		return "", channels.ErrMediaNotSupported
	}
	data, err := d.fetcher.DownloadMedia(ctx, desc.Info)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", desc.Kind, err)
	}
	if err := d.limits.Validate(desc, len(data)); err != nil {
		return "", err
	}

	asset, err := d.assets.SaveAsset(ctx, media.FileName(desc.Kind, desc.MimeType, d.now()), data)
	if err != nil {
		return "", fmt.Errorf("saving asset: %w", err)
	}
	logger.Info("media saved", "file", asset.FileName, "size", asset.Size)

	var info string
	if desc.Kind == channels.MessageImage {
		text, err := d.gateway.DescribeImage(ctx, visionInstruction, asset.Path)
		if err != nil {
			return "", fmt.Errorf("describing image: %w", err)
		}
		info = imageInfoPrefix + text
	} else {
		info = fmt.Sprintf(genericInfoFormat, desc.Kind, asset.FileName)
	}

	if caption := mediaCaption(msg, desc); caption != "" {
		info += captionPrefix + caption
	}

	reply, err := d.gateway.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: mediaPersona},
		{Role: llm.RoleUser, Content: mediaUserPrefix + info},
	})
	if err != nil {
		return "", fmt.Errorf("completing media summary: %w", err)
	}
	return reply, nil
}

// mediaCaption prefers the message text, then the caption on the media itself.
func mediaCaption(msg *channels.IncomingMessage, desc *media.Descriptor) string {
	if c := strings.TrimSpace(msg.Content); c != "" {
		return c
	}
	if desc.Info != nil {
		return strings.TrimSpace(desc.Info.Caption)
	}
	return ""
}

// truncate shortens s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
