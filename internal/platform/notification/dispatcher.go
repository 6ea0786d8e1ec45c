package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RecipientResolver maps a user id to a deliverable address. Implemented by
// an adapter over the patient registry.
type RecipientResolver interface {
	Recipient(ctx context.Context, userID uuid.UUID) (address string, channel NotificationType, err error)
}

// Dispatcher delivers appointment notifications in the background so the
// scheduling path never waits on an email gateway. Failed deliveries are
// retried with a short backoff before being parked for manual retry.
type Dispatcher struct {
	manager  *Manager
	resolver RecipientResolver
	logger   zerolog.Logger
	retries  int
	backoff  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(manager *Manager, resolver RecipientResolver, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		manager:  manager,
		resolver: resolver,
		logger:   logger.With().Str("component", "notification").Logger(),
		retries:  3,
		backoff:  500 * time.Millisecond,
	}
}

// Notify resolves the recipient and delivers asynchronously. The request
// context is not reused; delivery outlives the HTTP request.
func (d *Dispatcher) Notify(ctx context.Context, userID uuid.UUID, title, message, category string, appointmentID uuid.UUID) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.send(context.Background(), userID, title, message, category, appointmentID)
	}()
}

func (d *Dispatcher) send(ctx context.Context, userID uuid.UUID, title, message, category string, appointmentID uuid.UUID) {
	address, channel, err := d.resolver.Recipient(ctx, userID)
	if err != nil {
		d.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("no deliverable address")
		return
	}

	apptID := appointmentID
	n := &Notification{
		Type:          channel,
		UserID:        userID,
		AppointmentID: &apptID,
		Category:      category,
		Recipient:     address,
		Subject:       title,
		Body:          message,
	}
	if err := d.manager.Send(ctx, n); err == nil {
		return
	}
	for attempt := 1; attempt < d.retries; attempt++ {
		time.Sleep(d.backoff * time.Duration(attempt))
		if err := d.manager.Retry(ctx, n.ID); err == nil {
			return
		}
	}
	d.logger.Error().
		Str("notification_id", n.ID).
		Str("user_id", userID.String()).
		Msg("notification delivery failed after retries")
}

// Wait blocks until all in-flight deliveries finish. Used on shutdown and in
// tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
