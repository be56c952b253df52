// Package worker consumes account events from Pub/Sub and fans them out as
// push notifications.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/push"
)

// Account event types accepted on the subscription.
const (
	EventDeviceConnected    = "device_connected"
	EventDeviceDisconnected = "device_disconnected"
	EventPasswordChanged    = "password_changed"
	EventPasswordReset      = "password_reset"
	EventProfileUpdated     = "profile_updated"
	EventAccountDestroyed   = "account_destroyed"
	EventCollectionChanged  = "collection_changed"
)

// errUnknownEvent marks events the worker does not understand. They are
// acked, redelivery would not help.
var errUnknownEvent = errors.New("unknown account event")

// AccountEvent is the message published by the account server when
// account state changes.
type AccountEvent struct {
	Event       string   `json:"event"`
	AccountID   string   `json:"account_id"`
	DeviceID    string   `json:"device_id,omitempty"`
	DeviceName  string   `json:"device_name,omitempty"`
	Collections []string `json:"collections,omitempty"`
}

// HandlerConfig holds configuration for the Pub/Sub event handler.
type HandlerConfig struct {
	ProjectID        string
	SubscriptionName string
	Pusher           *push.Service
	Logger           zerolog.Logger
}

// Handler consumes account events and triggers push fan-outs.
type Handler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	pusher           *push.Service
	logger           zerolog.Logger
}

// NewHandler creates a new Pub/Sub event handler.
func NewHandler(ctx context.Context, cfg HandlerConfig) (*Handler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &Handler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		pusher:           cfg.Pusher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is
// cancelled or the subscription fails.
func (h *Handler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting account event handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *Handler) Close() error {
	return h.client.Close()
}

func (h *Handler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	if h.consume(ctx, msg.Data, logger) {
		msg.Ack()
		return
	}
	msg.Nack()
}

// consume processes one raw event and reports whether the message should be
// acked. Only transient failures are nacked for redelivery; a message that
// cannot parse or dispatch today will not parse tomorrow either, so those
// are acked and dropped.
func (h *Handler) consume(ctx context.Context, data []byte, logger zerolog.Logger) bool {
	startTime := time.Now()

	var event AccountEvent
	if err := json.Unmarshal(data, &event); err != nil {
		logger.Warn().Err(err).Msg("dropping unparseable account event")
		return true
	}

	result, err := h.Dispatch(ctx, event)
	if err != nil {
		if retryable(err) {
			logger.Error().Err(err).Str("event", event.Event).Msg("fan-out failed, will retry")
			return false
		}
		logger.Warn().Err(err).Str("event", event.Event).Msg("dropping account event")
		return true
	}

	logger.Info().
		Str("event", event.Event).
		Str("account_id", event.AccountID).
		Int("attempted", result.Attempted()).
		Int("delivered", result.Delivered).
		Dur("duration", time.Since(startTime)).
		Msg("account event fanned out")

	return true
}

// Dispatch maps an account event onto the matching push fan-out.
func (h *Handler) Dispatch(ctx context.Context, event AccountEvent) (*push.NotifyResult, error) {
	if event.AccountID == "" {
		return nil, fmt.Errorf("%w: missing account_id", errUnknownEvent)
	}

	switch event.Event {
	case EventDeviceConnected:
		return h.pusher.NotifyDeviceConnected(ctx, event.AccountID, event.DeviceName, push.NotifyOptions{
			ExcludeDeviceIDs: excludeSelf(event.DeviceID),
		})
	case EventDeviceDisconnected:
		if event.DeviceID == "" {
			return nil, fmt.Errorf("%w: %s missing device_id", errUnknownEvent, event.Event)
		}
		return h.pusher.NotifyDeviceDisconnected(ctx, event.AccountID, event.DeviceID)
	case EventPasswordChanged:
		return h.pusher.NotifyPasswordChanged(ctx, event.AccountID, push.NotifyOptions{
			ExcludeDeviceIDs: excludeSelf(event.DeviceID),
		})
	case EventPasswordReset:
		return h.pusher.NotifyPasswordReset(ctx, event.AccountID, push.NotifyOptions{
			ExcludeDeviceIDs: excludeSelf(event.DeviceID),
		})
	case EventProfileUpdated:
		return h.pusher.NotifyProfileUpdated(ctx, event.AccountID)
	case EventAccountDestroyed:
		return h.pusher.NotifyAccountDestroyed(ctx, event.AccountID)
	case EventCollectionChanged:
		return h.pusher.NotifyCollectionChanged(ctx, event.AccountID, event.Collections, push.NotifyOptions{
			ExcludeDeviceIDs: excludeSelf(event.DeviceID),
		})
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownEvent, event.Event)
	}
}

// excludeSelf builds the exclusion list for the device that triggered an
// event; it already knows what it did.
func excludeSelf(deviceID string) []string {
	if deviceID == "" {
		return nil
	}
	return []string{deviceID}
}

// retryable reports whether redelivering the event could succeed.
func retryable(err error) bool {
	return errors.Is(err, push.ErrRegistryUnavailable)
}
