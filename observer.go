package dashclient

import (
	"context"
	"time"

	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/gate"
	"github.com/sentimenta/dashclient/stream"
)

var (
	_ gate.Observer   = (*Client)(nil)
	_ stream.Observer = (*Client)(nil)
)

// GateAuthorized implements gate.Observer.
func (c *Client) GateAuthorized(ctx context.Context, id api.Identity, elapsed time.Duration) {
	c.metrics.Inc(MetricGateAuthorized)
	c.metrics.Observe(MetricVerifyLatency, elapsed)
	c.audit.Emit(ctx, AuditEvent{
		EventType: AuditGateAuthorized,
		UserID:    id.ID,
		View:      viewNameFromContext(ctx),
		Success:   true,
		Metadata:  map[string]string{"plan": id.Plan},
	})
}

// GateRedirected implements gate.Observer. A failed verification also
// cleared the stored credential.
func (c *Client) GateRedirected(ctx context.Context, reason gate.RedirectReason, elapsed time.Duration) {
	view := viewNameFromContext(ctx)
	switch reason {
	case gate.VerificationFailed:
		c.metrics.Inc(MetricGateRedirectInvalid)
		c.metrics.Inc(MetricSessionCleared)
		c.metrics.Observe(MetricVerifyLatency, elapsed)
		c.audit.Emit(ctx, AuditEvent{
			EventType: AuditSessionCleared,
			View:      view,
			Success:   true,
		})
	default:
		c.metrics.Inc(MetricGateRedirectNoCredential)
	}
	c.audit.Emit(ctx, AuditEvent{
		EventType: AuditGateRedirected,
		View:      view,
		Success:   false,
		Metadata:  map[string]string{"reason": reason.String()},
	})
}

// StreamStarted implements stream.Observer.
func (c *Client) StreamStarted(subID, target string) {
	c.targets.Store(subID, target)
	c.metrics.Inc(MetricStreamStarted)
	c.audit.Emit(context.Background(), AuditEvent{
		EventType:      AuditStreamStarted,
		SubscriptionID: subID,
		Target:         target,
		Success:        true,
	})
}

func (c *Client) StreamConnected(string) {
	c.metrics.Inc(MetricStreamConnected)
}

func (c *Client) StreamProgress(string) {
	c.metrics.Inc(MetricStreamProgress)
}

func (c *Client) StreamCompleted(subID string) {
	c.metrics.Inc(MetricStreamComplete)
	c.audit.Emit(context.Background(), AuditEvent{
		EventType:      AuditStreamComplete,
		SubscriptionID: subID,
		Target:         c.forget(subID),
		Success:        true,
	})
}

func (c *Client) StreamFrameDropped(string, string) {
	c.metrics.Inc(MetricStreamFrameDropped)
}

func (c *Client) StreamTransientError(string, error) {
	c.metrics.Inc(MetricStreamTransientError)
}

func (c *Client) StreamFailed(subID string, err error) {
	c.metrics.Inc(MetricStreamFatalError)
	ev := AuditEvent{
		EventType:      AuditStreamFailed,
		SubscriptionID: subID,
		Target:         c.forget(subID),
		Success:        false,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.audit.Emit(context.Background(), ev)
}

func (c *Client) StreamStopped(subID string) {
	c.metrics.Inc(MetricStreamStopped)
	c.audit.Emit(context.Background(), AuditEvent{
		EventType:      AuditStreamStopped,
		SubscriptionID: subID,
		Target:         c.forget(subID),
		Success:        true,
	})
}

func (c *Client) forget(subID string) string {
	v, _ := c.targets.LoadAndDelete(subID)
	s, _ := v.(string)
	return s
}
