package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/akiraliebert/event-driven-notification-system/internal/store"
)

// HTTPGatewayConfig configures a channel whose provider is a simple JSON
// webhook gateway (the shape most SMS and push aggregator APIs expose).
type HTTPGatewayConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// HTTPGatewaySender implements Sender by POSTing the rendered content to a
// gateway endpoint, used for the SMS and push channels. A non-2xx response
// or transport error is reported as Success=false, never returned as an
// error, per C4's must-not-raise contract.
type HTTPGatewaySender struct {
	cfg    HTTPGatewayConfig
	client *http.Client
}

// NewHTTPGatewaySender builds a sender posting to cfg.Endpoint.
func NewHTTPGatewaySender(cfg HTTPGatewayConfig) *HTTPGatewaySender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGatewaySender{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

type gatewayRequest struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}

func (s *HTTPGatewaySender) Send(ctx context.Context, n store.Notification) Result {
	recipient := n.Content["recipient"]
	if recipient == "" {
		recipient = n.UserID.String()
	}

	payload, err := json.Marshal(gatewayRequest{Recipient: recipient, Body: n.Content["body"]})
	if err != nil {
		return Result{Success: false, Details: fmt.Sprintf("encoding request: %v", err), Retryable: false}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{Success: false, Details: fmt.Sprintf("building request: %v", err), Retryable: false}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{Success: false, Details: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Result{Success: false, Details: fmt.Sprintf("gateway returned %d", resp.StatusCode), Retryable: true}
	}
	if resp.StatusCode >= 400 {
		return Result{Success: false, Details: fmt.Sprintf("gateway returned %d", resp.StatusCode), Retryable: false}
	}
	return Result{Success: true, Details: "sent"}
}
