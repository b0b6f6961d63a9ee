// Package notify delivers best-effort messages to agents and administrators.
// Delivery failures are logged and counted; they never fail a ledger operation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"agentledger/internal/metrics"
)

const (
	EventVoucherSold            = "voucher_sold"
	EventPaymentReceived        = "payment_received"
	EventBalanceRequestCreated  = "balance_request_created"
	EventBalanceRequestApproved = "balance_request_approved"
	EventBalanceRequestRejected = "balance_request_rejected"
	EventProvisioningFailed     = "provisioning_failed"
	EventBalanceAdjusted        = "balance_adjusted"
)

type Dispatcher interface {
	Notify(ctx context.Context, target, eventType string, payload map[string]any) error
}

type message struct {
	Target  string         `json:"target"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
	SentAt  time.Time      `json:"sent_at"`
}

// HTTPDispatcher posts a JSON message to a messaging gateway.
type HTTPDispatcher struct {
	url    string
	token  string
	client *http.Client
}

func NewHTTPDispatcher(url, token string, timeout time.Duration) *HTTPDispatcher {
	return &HTTPDispatcher{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDispatcher) Notify(ctx context.Context, target, eventType string, payload map[string]any) error {
	body, err := json.Marshal(message{Target: target, Event: eventType, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification gateway returned %d", resp.StatusCode)
	}
	return nil
}

// LogDispatcher only writes the message to the log. Used when no gateway is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Notify(ctx context.Context, target, eventType string, payload map[string]any) error {
	d.logger.InfoContext(ctx, "notification", "target", target, "event", eventType, "payload", payload)
	return nil
}

// Async sends through the wrapped dispatcher on its own goroutine with a
// bounded timeout. Notify always returns nil.
type Async struct {
	next    Dispatcher
	timeout time.Duration
	logger  *slog.Logger
}

func NewAsync(next Dispatcher, timeout time.Duration, logger *slog.Logger) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{next: next, timeout: timeout, logger: logger}
}

func (a *Async) Notify(_ context.Context, target, eventType string, payload map[string]any) error {
	if a == nil || a.next == nil || target == "" {
		return nil
	}
	go a.deliver(target, eventType, payload)
	return nil
}

func (a *Async) deliver(target, eventType string, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			metrics.NotificationsTotal.WithLabelValues("panic").Inc()
			a.logger.Error("panic in notification delivery", "event", eventType, "panic", fmt.Sprint(r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.next.Notify(ctx, target, eventType, payload); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		a.logger.Warn("notification failed", "event", eventType, "target", target, "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, string, string, map[string]any) error { return nil }
