package runtime

import (
	"errors"

	perrors "github.com/p-blackswan/agentropic/internal/errors"
	"github.com/p-blackswan/agentropic/internal/message"
)

// Send routes msg to its receiver's mailbox. Errors are synchronous: an
// unregistered or terminated receiver yields ErrUnknownRecipient, a full
// reject-new mailbox ErrMailboxOverflow, both wrapped in a RoutingError.
//
// The registry read lock is held while enqueueing so a concurrent
// deregistration cannot close the mailbox mid-delivery.
func (r *Runtime) Send(msg message.Message) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.hosts[msg.Receiver()]
	if !ok || h.State().Terminal() {
		r.metrics.RecordRejected("unknown_recipient")
		return &perrors.RoutingError{Receiver: msg.Receiver().String(), Err: perrors.ErrUnknownRecipient}
	}

	evicted, dropped, err := h.Mailbox().Enqueue(msg)
	if err != nil {
		reason := "overflow"
		if errors.Is(err, perrors.ErrMailboxClosed) {
			reason = "closed"
		}
		r.metrics.RecordRejected(reason)
		return &perrors.RoutingError{Receiver: msg.Receiver().String(), Err: err}
	}
	if dropped {
		h.Logger().Debug().Str("evicted_id", evicted.ID()).Msg("mailbox full, dropped oldest message")
	}
	r.metrics.RecordRouted(dropped)
	return nil
}
