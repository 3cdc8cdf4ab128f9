package whatsapp

import (
	"time"

	"github.com/jholhewres/tiendabot/pkg/tiendabot/channels"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// ConnectionState represents the current connection state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateWaitingQR    ConnectionState = "waiting_qr"
	StateBanned       ConnectionState = "banned"
)

// handleEvent is the whatsmeow event handler.
func (w *WhatsApp) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessageEvt(evt)

	case *events.Connected:
		w.setState(StateConnected)
		w.connected.Store(true)
		w.UpdateLastMsgTime()
		w.logger.Info("whatsapp: connected", "jid", w.getClientJID())

	case *events.Disconnected:
		// whatsmeow reconnects on its own; this only tracks state.
		w.setState(StateReconnecting)
		w.connected.Store(false)
		w.logger.Warn("whatsapp: disconnected, waiting for auto-reconnect")

	case *events.StreamReplaced:
		w.setState(StateDisconnected)
		w.connected.Store(false)
		w.logger.Error("whatsapp: stream replaced - another client connected with this session")

	case *events.LoggedOut:
		w.setState(StateDisconnected)
		w.connected.Store(false)
		w.logger.Error("whatsapp: logged out, re-pairing required",
			"reason", evt.Reason.String(),
			"on_connect", evt.OnConnect)
		go func() {
			if err := w.loginWithQR(w.ctx); err != nil {
				w.logger.Warn("whatsapp: QR re-login failed", "error", err)
			}
		}()

	case *events.TemporaryBan:
		w.setState(StateBanned)
		w.connected.Store(false)
		w.logger.Error("whatsapp: temporary ban",
			"code", evt.Code.String(),
			"expire", evt.Expire)

	case *events.KeepAliveTimeout:
		w.logger.Warn("whatsapp: keep-alive timeout",
			"error_count", evt.ErrorCount,
			"last_success", evt.LastSuccess)

	case *events.KeepAliveRestored:
		w.logger.Info("whatsapp: keep-alive restored")

	case *events.PairSuccess:
		w.logger.Info("whatsapp: device paired",
			"jid", evt.ID,
			"platform", evt.Platform)

	case *events.Receipt:
		if evt.Type == types.ReceiptTypeRead {
			w.logger.Debug("whatsapp: message read",
				"from", evt.Chat, "ids", evt.MessageIDs)
		}
	}
}

// handleMessageEvt filters a message event and emits it.
func (w *WhatsApp) handleMessageEvt(evt *events.Message) {
	w.UpdateLastMsgTime()

	if !w.accepts(evt.Info) {
		return
	}

	msg := &channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      w.resolveJID(evt.Info.Sender),
		FromName:  evt.Info.PushName,
		ChatID:    w.resolveJID(evt.Info.Chat),
		IsGroup:   evt.Info.IsGroup,
		Timestamp: evt.Info.Timestamp,
		Raw:       evt,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	if !convertMessage(evt.Message, msg) {
		w.logger.Debug("whatsapp: ignoring unsupported message",
			"msg_id", msg.ID, "from", msg.From)
		return
	}

	if w.cfg.AutoRead {
		go func() {
			_ = w.MarkRead(w.ctx, msg.ChatID, []string{msg.ID})
		}()
	}

	w.emitMessage(msg)
}

// accepts applies the self, broadcast and group/DM filters.
func (w *WhatsApp) accepts(info types.MessageInfo) bool {
	if info.IsFromMe {
		return false
	}
	if info.Chat.Server == types.BroadcastServer {
		return false
	}
	if info.IsGroup {
		return w.cfg.RespondToGroups
	}
	return w.cfg.RespondToDMs
}

// resolveJID maps a LID (linked identity) JID to its phone JID when known.
func (w *WhatsApp) resolveJID(jid types.JID) string {
	if jid.Server != types.HiddenUserServer || w.client == nil || w.client.Store == nil {
		return jid.String()
	}
	alt, err := w.client.Store.GetAltJID(w.ctx, jid)
	if err != nil || alt.IsEmpty() {
		return jid.String()
	}
	w.logger.Debug("whatsapp: resolved LID to phone",
		"lid", jid.String(), "phone", alt.String())
	return alt.String()
}
