package notification

import (
	"context"
	"fmt"

	"github.com/gregdel/pushover"
	"github.com/rs/zerolog"
)

// LogDeliverer writes fired notifications to the log. It is the fallback
// when no push channel is configured.
type LogDeliverer struct {
	logger zerolog.Logger
}

func NewLogDeliverer(logger zerolog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(_ context.Context, content Content) error {
	ev := d.logger.Info().Str("title", content.Title).Str("body", content.Body)
	for k, v := range content.Data {
		ev = ev.Str(k, v)
	}
	ev.Msg("notification fired")
	return nil
}

// PushoverDeliverer sends fired notifications through Pushover.
type PushoverDeliverer struct {
	app       *pushover.Pushover
	recipient *pushover.Recipient
	device    string
}

// NewPushoverDeliverer builds a deliverer for the given application token and
// user key. An empty device sends to all of the user's devices.
func NewPushoverDeliverer(apiToken, userKey, device string) *PushoverDeliverer {
	return &PushoverDeliverer{
		app:       pushover.New(apiToken),
		recipient: pushover.NewRecipient(userKey),
		device:    device,
	}
}

func (d *PushoverDeliverer) Deliver(ctx context.Context, content Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := pushover.NewMessageWithTitle(content.Body, content.Title)
	msg.DeviceName = d.device

	if _, err := d.app.SendMessage(msg, d.recipient); err != nil {
		return fmt.Errorf("send pushover message: %w", err)
	}
	return nil
}
