// Package whatsapp implements the WhatsApp channel using whatsmeow, a native Go
// WhatsApp Web library.
//
// Features:
//   - QR code login rendered in the terminal, persistent sqlite session
//   - Receive text, images, audio, video, documents and stickers
//   - Quoted media one level deep
//   - Replies that quote the originating message
//   - Typing indicators and read receipts
//   - Automatic reconnection and a silent-connection watchdog
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/jholhewres/tiendabot/pkg/tiendabot/channels"
	"github.com/mdp/qrterminal/v3"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for session store.
)

// Config holds WhatsApp channel configuration.
type Config struct {
	// SessionDir is the directory for the session database.
	// Ignored if DatabasePath is set.
	SessionDir string `yaml:"session_dir"`

	// DatabasePath is the SQLite file holding the whatsmeow_ tables.
	// Defaults to {SessionDir}/whatsapp.db.
	DatabasePath string `yaml:"database_path"`

	// DeviceName is shown in the phone's linked devices list.
	DeviceName string `yaml:"device_name"`

	// RespondToGroups enables handling messages from group chats.
	RespondToGroups bool `yaml:"respond_to_groups"`

	// RespondToDMs enables handling direct messages.
	RespondToDMs bool `yaml:"respond_to_dms"`

	// AutoRead marks incoming messages as read.
	AutoRead bool `yaml:"auto_read"`

	// QRTerminal prints the pairing QR code to stdout.
	QRTerminal bool `yaml:"qr_terminal"`

	// Debug routes whatsmeow's internal logs to stdout.
	Debug bool `yaml:"debug"`

	// HealthMonitor configures the silent-connection watchdog.
	HealthMonitor HealthMonitorConfig `yaml:"health_monitor"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SessionDir:      "./sessions/whatsapp",
		DeviceName:      "Tiendabot",
		RespondToGroups: true,
		RespondToDMs:    true,
		AutoRead:        true,
		QRTerminal:      true,
		HealthMonitor:   DefaultHealthMonitorConfig(),
	}
}

// WhatsApp implements channels.Channel, channels.MediaChannel and
// channels.PresenceChannel.
type WhatsApp struct {
	cfg    Config
	client *whatsmeow.Client
	logger *slog.Logger

	// qrOut receives the rendered pairing code.
	qrOut io.Writer

	messages chan *channels.IncomingMessage

	connected atomic.Bool
	state     atomic.Value // ConnectionState
	lastMsg   atomic.Value // time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// messagesClosed prevents sends on the closed messages channel.
	messagesClosed atomic.Bool

	// monitorRunning is set while a health watchdog goroutine is alive.
	monitorRunning atomic.Bool
}

// New creates a new WhatsApp channel instance.
func New(cfg Config, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = "Tiendabot"
	}

	w := &WhatsApp{
		cfg:      cfg,
		logger:   logger.With("component", "whatsapp"),
		qrOut:    os.Stdout,
		messages: make(chan *channels.IncomingMessage, 256),
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.setState(StateDisconnected)
	return w
}

// ---------- State ----------

func (w *WhatsApp) getState() ConnectionState {
	if v := w.state.Load(); v != nil {
		return v.(ConnectionState)
	}
	return StateDisconnected
}

func (w *WhatsApp) setState(state ConnectionState) {
	w.state.Store(state)
}

// State returns the current connection state.
func (w *WhatsApp) State() ConnectionState { return w.getState() }

func (w *WhatsApp) getClientJID() string {
	if w.client != nil && w.client.Store.ID != nil {
		return w.client.Store.ID.String()
	}
	return ""
}

// ---------- Channel Interface ----------

// Name returns "whatsapp".
func (w *WhatsApp) Name() string { return "whatsapp" }

// Connect opens the session store and connects. Without a stored session the
// QR login runs in the background and Connect returns immediately.
func (w *WhatsApp) Connect(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.setState(StateConnecting)
	w.logger.Info("whatsapp: initializing connection...")

	dbPath := w.cfg.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(w.cfg.SessionDir, "whatsapp.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("creating session dir: %w", err)
	}
	w.logger.Info("whatsapp: using session database", "path", dbPath)

	container, err := sqlstore.New(w.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath),
		w.waLogger("Database"))
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := w.getDevice(w.ctx, container)
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("getting device: %w", err)
	}

	store.SetOSInfo(w.cfg.DeviceName, [3]uint32{1, 0, 0})

	w.client = whatsmeow.NewClient(device, w.waLogger("Client"))
	w.client.AddEventHandler(w.handleEvent)
	w.client.EnableAutoReconnect = true
	w.client.InitialAutoReconnect = true

	if w.client.Store.ID == nil {
		w.setState(StateWaitingQR)
		w.logger.Info("whatsapp: no existing session, QR code required")
		go func() {
			if err := w.loginWithQR(w.ctx); err != nil {
				w.logger.Warn("whatsapp: QR login pending", "error", err)
			}
		}()
		return nil
	}

	if err := w.client.Connect(); err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("connecting: %w", err)
	}

	w.connected.Store(true)
	w.logger.Info("whatsapp: connected (existing session)", "jid", w.getClientJID())

	w.StartHealthMonitor(w.ctx, w.cfg.HealthMonitor)
	return nil
}

// Disconnect closes the connection and the receive channel.
func (w *WhatsApp) Disconnect() error {
	w.setState(StateDisconnected)
	w.connected.Store(false)

	if w.cancel != nil {
		w.cancel()
	}
	if w.client != nil {
		w.client.Disconnect()
	}
	if w.messagesClosed.CompareAndSwap(false, true) {
		close(w.messages)
	}

	w.logger.Info("whatsapp: disconnected")
	return nil
}

// Send delivers a text reply, quoting msg.Quote when present.
func (w *WhatsApp) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	if !w.connected.Load() {
		return channels.ErrChannelDisconnected
	}

	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", to, err)
	}

	if _, err := w.client.SendMessage(ctx, jid, buildReply(msg)); err != nil {
		return fmt.Errorf("%w: %w", channels.ErrSendFailed, err)
	}
	return nil
}

// Receive returns the incoming messages channel.
func (w *WhatsApp) Receive() <-chan *channels.IncomingMessage {
	return w.messages
}

// IsConnected returns true if WhatsApp is connected.
func (w *WhatsApp) IsConnected() bool {
	return w.connected.Load()
}

// ---------- MediaChannel Interface ----------

// DownloadMedia fetches and decrypts the bytes behind info.
func (w *WhatsApp) DownloadMedia(ctx context.Context, info *channels.MediaInfo) ([]byte, error) {
	if w.client == nil {
		return nil, channels.ErrChannelDisconnected
	}
	if info == nil {
		return nil, fmt.Errorf("%w: no media", channels.ErrMediaDownloadFailed)
	}
	dl, ok := info.Raw.(whatsmeow.DownloadableMessage)
	if !ok || dl == nil {
		return nil, fmt.Errorf("%w: %s has no download handle", channels.ErrMediaDownloadFailed, info.Type)
	}

	data, err := w.client.Download(ctx, dl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", channels.ErrMediaDownloadFailed, err)
	}
	w.logger.Debug("whatsapp: media downloaded",
		"type", info.Type, "size", len(data))
	return data, nil
}

// ---------- PresenceChannel Interface ----------

// SendTyping sends a typing indicator.
func (w *WhatsApp) SendTyping(ctx context.Context, to string) error {
	if !w.connected.Load() {
		return nil
	}
	jid, err := parseJID(to)
	if err != nil {
		return err
	}
	return w.client.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

// MarkRead marks messages as read.
func (w *WhatsApp) MarkRead(ctx context.Context, chatID string, messageIDs []string) error {
	if !w.connected.Load() {
		return nil
	}
	jid, err := parseJID(chatID)
	if err != nil {
		return err
	}

	ids := make([]types.MessageID, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = types.MessageID(id)
	}
	return w.client.MarkRead(ctx, ids, time.Now(), jid, jid)
}

// ---------- Internal ----------

func (w *WhatsApp) waLogger(module string) waLog.Logger {
	if w.cfg.Debug {
		return waLog.Stdout(module, "DEBUG", true)
	}
	return waLog.Noop
}

// getDevice retrieves an existing device or creates a new one.
func (w *WhatsApp) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// loginWithQR runs the pairing flow, printing each code to qrOut.
func (w *WhatsApp) loginWithQR(ctx context.Context) error {
	qrChan, err := w.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			w.setState(StateDisconnected)
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("QR channel closed unexpectedly")
			}

			switch evt.Event {
			case "code":
				attempts++
				w.setState(StateWaitingQR)
				w.logger.Info("whatsapp: QR code ready", "attempt", attempts)
				if w.cfg.QRTerminal {
					fmt.Fprintln(w.qrOut, "Scan this QR code with WhatsApp > Linked devices:")
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, w.qrOut)
				}

			case "success":
				w.connected.Store(true)
				w.setState(StateConnected)
				w.logger.Info("whatsapp: login successful")
				w.StartHealthMonitor(ctx, w.cfg.HealthMonitor)
				return nil

			case "timeout":
				w.setState(StateDisconnected)
				w.logger.Warn("whatsapp: QR code expired")
				return fmt.Errorf("QR code timeout")

			default:
				if evt.Error != nil {
					w.setState(StateDisconnected)
					w.logger.Error("whatsapp: QR login error", "error", evt.Error)
					return fmt.Errorf("QR login error: %w", evt.Error)
				}
			}
		}
	}
}

// emitMessage sends a message to the incoming messages channel.
func (w *WhatsApp) emitMessage(msg *channels.IncomingMessage) {
	if w.messagesClosed.Load() {
		return
	}

	select {
	case w.messages <- msg:
		w.UpdateLastMsgTime()
	case <-w.ctx.Done():
	default:
		w.logger.Warn("whatsapp: message channel full, dropping message",
			"from", msg.From, "type", msg.Type)
	}
}
