package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/jholhewres/tiendabot/pkg/tiendabot/channels"
	"golang.org/x/sync/semaphore"
)

// Run consumes ch until its receive channel closes or ctx is done. Each
// message is dispatched in its own goroutine and gets exactly one reply.
// When ctx is done, messages already buffered in the receive channel get the
// apology without being dispatched. Run returns after every in-flight
// dispatch has delivered.
func (d *Dispatcher) Run(ctx context.Context, ch channels.Channel) {
	sem := semaphore.NewWeighted(int64(d.cfg.MaxConcurrent))
	var wg sync.WaitGroup
	defer wg.Wait()

	d.logger.Info("dispatcher running",
		"channel", ch.Name(),
		"max_concurrent", d.cfg.MaxConcurrent)

	in := ch.Receive()
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				d.logger.Info("receive channel closed")
				return
			}
			if msg == nil {
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				d.decline(ctx, ch, msg)
				d.drain(ctx, ch, in)
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				d.deliver(context.WithoutCancel(ctx), ch, msg)
			}()

		case <-ctx.Done():
			d.drain(ctx, ch, in)
			return
		}
	}
}

// drain declines every message already buffered in the receive channel.
func (d *Dispatcher) drain(ctx context.Context, ch channels.Channel, in <-chan *channels.IncomingMessage) {
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			if msg != nil {
				d.decline(ctx, ch, msg)
			}
		default:
			return
		}
	}
}

// decline replies with the apology for msg's path without dispatching it.
func (d *Dispatcher) decline(ctx context.Context, ch channels.Channel, msg *channels.IncomingMessage) {
	reply := textApology
	if takesMediaPath(msg) {
		reply = mediaApology
	}
	out := &channels.OutgoingMessage{Content: reply, ReplyTo: msg.ID, Quote: msg}
	if err := ch.Send(context.WithoutCancel(ctx), msg.ChatID, out); err != nil {
		d.logger.Error("failed to send shutdown reply", "msg_id", msg.ID, "error", err)
		return
	}
	d.logger.Warn("message declined on shutdown", "msg_id", msg.ID, "chat_id", msg.ChatID)
}

// deliver dispatches msg and sends the reply back to its chat.
func (d *Dispatcher) deliver(ctx context.Context, ch channels.Channel, msg *channels.IncomingMessage) {
	start := time.Now()
	logger := d.logger.With(
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"from", msg.From,
		"msg_id", msg.ID,
	)
	logger.Info("incoming message",
		"class", msg.Class(),
		"type", msg.Type,
		"is_group", msg.IsGroup,
	)

	if d.cfg.SendTyping {
		if pc, ok := ch.(channels.PresenceChannel); ok {
			if err := pc.SendTyping(ctx, msg.ChatID); err != nil {
				logger.Debug("typing indicator failed", "error", err)
			}
		}
	}

	reply := d.Dispatch(ctx, msg)

	out := &channels.OutgoingMessage{
		Content: reply,
		ReplyTo: msg.ID,
		Quote:   msg,
	}
	if err := ch.Send(ctx, msg.ChatID, out); err != nil {
		logger.Error("failed to send reply", "error", err)
		return
	}
	logger.Info("reply sent",
		"duration_ms", time.Since(start).Milliseconds(),
		"reply_len", len(reply))
}
