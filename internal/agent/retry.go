package agent

import (
	"context"

	"github.com/p-blackswan/agentropic/internal/message"
	"github.com/p-blackswan/agentropic/internal/retry"
)

// SendWithRetry sends msg, backing off while the recipient's mailbox is full.
// Other routing errors are returned immediately.
func SendWithRetry(ctx Context, cfg retry.Config, msg message.Message) error {
	return retry.Do(ctx, cfg, func(context.Context) error {
		return ctx.Send(msg)
	})
}
