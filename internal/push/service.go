package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/device"
	"github.com/pushgate/pushgate/internal/push/webpush"
)

// Whole-call errors. Per-device failures never surface here; they are
// reported through NotifyResult outcomes.
var (
	ErrPushDisabled        = errors.New("push sending is disabled")
	ErrRegistryUnavailable = errors.New("device registry unavailable")
)

// DefaultTTL is the push message time-to-live handed to the push service
// when no override is configured.
const DefaultTTL = 30 * time.Second

// SendResult is the transport-level result of one delivery attempt.
type SendResult struct {
	// StatusCode is the push service response status.
	StatusCode int

	// Detail carries response context worth keeping (throttle hints).
	Detail string
}

// Sender delivers an encrypted message to a single push endpoint. A returned
// error means the request never produced a status (network failure, circuit
// open); implementations must not retry, delivery is at-most-once.
type Sender interface {
	Send(ctx context.Context, endpoint string, msg *webpush.Message, ttl time.Duration) (*SendResult, error)
}

// FeatureFlags exposes the runtime switches the push service consults.
type FeatureFlags interface {
	// PushSendingDisabled is the kill switch for all outbound push.
	PushSendingDisabled(ctx context.Context) bool

	// PruneKeysOnStale reports whether pruning a stale registration also
	// clears the stored encryption keys.
	PruneKeysOnStale(ctx context.Context) bool

	// PushTTLSeconds overrides the default message TTL. Zero or negative
	// means use the configured default.
	PushTTLSeconds(ctx context.Context) int
}

// ServiceConfig holds dependencies and settings for the push service.
type ServiceConfig struct {
	Registry device.Registry
	Sender   Sender
	Flags    FeatureFlags
	Builder  *Builder
	Logger   zerolog.Logger

	// TTL is the default message time-to-live. Default: DefaultTTL.
	TTL time.Duration
}

// Service resolves an account's devices and fans a notification out to every
// push-eligible one.
type Service struct {
	registry device.Registry
	sender   Sender
	flags    FeatureFlags
	builder  *Builder
	logger   zerolog.Logger
	ttl      time.Duration
}

// NewService creates a push service.
func NewService(cfg ServiceConfig) *Service {
	builder := cfg.Builder
	if builder == nil {
		builder = NewBuilder(BuilderConfig{})
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Service{
		registry: cfg.Registry,
		sender:   cfg.Sender,
		flags:    cfg.Flags,
		builder:  builder,
		logger:   cfg.Logger,
		ttl:      ttl,
	}
}

// NotifyOptions tunes a single notify call.
type NotifyOptions struct {
	// ExcludeDeviceIDs lists devices to skip, typically the device that
	// triggered the event.
	ExcludeDeviceIDs []string

	// TTL overrides the message time-to-live for this call.
	TTL time.Duration
}

// Notify resolves the account's devices, builds the payload for command once
// and delivers to every push-eligible device concurrently. The returned
// result always covers every attempted device; an error is returned only when
// the whole call could not proceed (registry unreachable, payload invalid,
// push disabled). With no eligible devices the payload is never built.
func (s *Service) Notify(ctx context.Context, accountID string, command Command, data map[string]any, opts NotifyOptions) (*NotifyResult, error) {
	if s.flags != nil && s.flags.PushSendingDisabled(ctx) {
		return nil, ErrPushDisabled
	}

	listed, err := s.registry.ListByAccount(ctx, accountID, device.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	targets := s.selectTargets(listed.Items, opts.ExcludeDeviceIDs)

	result := &NotifyResult{
		Command:   command,
		AccountID: accountID,
	}

	if len(targets) == 0 {
		result.NoEligibleDevices = true
		s.logger.Debug().
			Str("account_id", accountID).
			Str("command", string(command)).
			Msg("no push-eligible devices")
		return result, nil
	}

	built, err := s.builder.Build(command, data)
	if err != nil {
		return nil, err
	}

	ttl := s.resolveTTL(ctx, opts.TTL)
	pruneKeys := true
	if s.flags != nil {
		pruneKeys = s.flags.PruneKeysOnStale(ctx)
	}

	outcomes := make(chan Outcome, len(targets))
	var wg sync.WaitGroup

	for _, target := range targets {
		wg.Add(1)
		go func(d *device.Device) {
			defer wg.Done()
			outcomes <- s.deliver(ctx, accountID, d, built, ttl, pruneKeys)
		}(target)
	}

	wg.Wait()
	close(outcomes)

	for outcome := range outcomes {
		result.record(outcome)
	}

	s.logger.Info().
		Str("account_id", accountID).
		Str("command", string(command)).
		Int("attempted", result.Attempted()).
		Int("delivered", result.Delivered).
		Int("stale", result.StaleEndpoints).
		Int("throttled", result.Throttled).
		Msg("push fan-out complete")

	return result, nil
}

// selectTargets filters devices down to push-eligible ones minus exclusions.
func (s *Service) selectTargets(devices []*device.Device, exclude []string) []*device.Device {
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	targets := make([]*device.Device, 0, len(devices))
	for _, d := range devices {
		if _, skip := excluded[d.ID]; skip {
			continue
		}
		if !d.IsPushEligible() {
			continue
		}
		targets = append(targets, d)
	}
	return targets
}

func (s *Service) resolveTTL(ctx context.Context, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if s.flags != nil {
		if secs := s.flags.PushTTLSeconds(ctx); secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return s.ttl
}

// deliver makes exactly one delivery attempt to one device and classifies
// the result. It never returns an error: every failure mode maps to an
// outcome kind.
func (s *Service) deliver(ctx context.Context, accountID string, d *device.Device, built *BuiltPayload, ttl time.Duration, pruneKeys bool) Outcome {
	msg, outcome := s.encode(d, built)
	if outcome != nil {
		return *outcome
	}

	if len(msg.Body) > s.builder.MaxPayloadBytes() {
		return Outcome{
			DeviceID: d.ID,
			Kind:     OutcomePayloadTooLarge,
			Detail:   fmt.Sprintf("encrypted body %d bytes exceeds %d", len(msg.Body), s.builder.MaxPayloadBytes()),
		}
	}

	res, err := s.sender.Send(ctx, d.PushEndpoint, msg, ttl)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("account_id", accountID).
			Str("device_id", d.ID).
			Msg("push delivery failed before a status was received")
		return Outcome{
			DeviceID: d.ID,
			Kind:     OutcomeTransportError,
			Detail:   err.Error(),
		}
	}

	out := Outcome{
		DeviceID:   d.ID,
		Kind:       classifyStatus(res.StatusCode),
		StatusCode: res.StatusCode,
		Detail:     res.Detail,
	}

	if out.Kind == OutcomeStaleEndpoint {
		out.Pruned = s.prune(ctx, accountID, d.ID, pruneKeys)
	}

	return out
}

// encode produces the wire message for a device: encrypted when the device
// registered usable keys, an empty tickle when it registered none. Malformed
// keys are an encryption failure, not a reason to fall back to a tickle.
func (s *Service) encode(d *device.Device, built *BuiltPayload) (*webpush.Message, *Outcome) {
	if !d.HasPushKeys() {
		return webpush.Tickle(), nil
	}

	keys, err := webpush.ParseSubscriptionKeys(d.PushPublicKey, d.PushAuthKey)
	if err != nil {
		return nil, &Outcome{
			DeviceID: d.ID,
			Kind:     OutcomeEncryptionUnavailable,
			Detail:   err.Error(),
		}
	}

	msg, err := webpush.Encrypt(built.Raw, keys)
	if err != nil {
		return nil, &Outcome{
			DeviceID: d.ID,
			Kind:     OutcomeEncryptionUnavailable,
			Detail:   err.Error(),
		}
	}

	return msg, nil
}

// prune removes a stale push registration. A prune failure is logged and
// reported as not-pruned; it does not affect the delivery outcome kind.
func (s *Service) prune(ctx context.Context, accountID, deviceID string, clearKeys bool) bool {
	if err := s.registry.ClearPushSubscription(ctx, accountID, deviceID, clearKeys); err != nil {
		s.logger.Error().
			Err(err).
			Str("account_id", accountID).
			Str("device_id", deviceID).
			Msg("failed to prune stale push registration")
		return false
	}
	return true
}

// NotifyDeviceConnected tells an account's devices that a new device joined.
func (s *Service) NotifyDeviceConnected(ctx context.Context, accountID, deviceName string, opts NotifyOptions) (*NotifyResult, error) {
	return s.Notify(ctx, accountID, CommandDeviceConnected, map[string]any{
		"deviceName": deviceName,
	}, opts)
}

// NotifyDeviceDisconnected tells an account's devices that a device was
// disconnected. The disconnected device itself is also notified so it can
// tear down its local state.
func (s *Service) NotifyDeviceDisconnected(ctx context.Context, accountID, disconnectedDeviceID string) (*NotifyResult, error) {
	return s.Notify(ctx, accountID, CommandDeviceDisconnected, map[string]any{
		"id": disconnectedDeviceID,
	}, NotifyOptions{})
}

// NotifyPasswordChanged tells an account's devices the password changed.
func (s *Service) NotifyPasswordChanged(ctx context.Context, accountID string, opts NotifyOptions) (*NotifyResult, error) {
	return s.Notify(ctx, accountID, CommandPasswordChanged, nil, opts)
}

// NotifyPasswordReset tells an account's devices the password was reset.
func (s *Service) NotifyPasswordReset(ctx context.Context, accountID string, opts NotifyOptions) (*NotifyResult, error) {
	return s.Notify(ctx, accountID, CommandPasswordReset, nil, opts)
}

// NotifyProfileUpdated tells an account's devices the profile changed.
func (s *Service) NotifyProfileUpdated(ctx context.Context, accountID string) (*NotifyResult, error) {
	return s.Notify(ctx, accountID, CommandProfileUpdated, nil, NotifyOptions{})
}

// NotifyAccountDestroyed tells an account's devices the account is gone.
func (s *Service) NotifyAccountDestroyed(ctx context.Context, accountID string) (*NotifyResult, error) {
	return s.Notify(ctx, accountID, CommandAccountDestroyed, map[string]any{
		"uid": accountID,
	}, NotifyOptions{})
}

// NotifyCollectionChanged tells an account's devices that sync collections
// changed and a sync should be scheduled.
func (s *Service) NotifyCollectionChanged(ctx context.Context, accountID string, collections []string, opts NotifyOptions) (*NotifyResult, error) {
	return s.Notify(ctx, accountID, CommandCollectionChanged, map[string]any{
		"collections": collections,
	}, opts)
}
