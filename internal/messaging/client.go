// Package messaging sends text messages through the tenant's messaging gateway.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crm_pipeline_backend/platform/config"
	"crm_pipeline_backend/platform/logger"
	"crm_pipeline_backend/platform/phone"

	"golang.org/x/time/rate"
)

const requestTimeout = 10 * time.Second

// ErrDisabled is returned when no gateway is configured.
var ErrDisabled = errors.New("messaging gateway is not configured")

// Client talks to the gateway's sendText endpoint. A nil Client is disabled.
type Client struct {
	baseURL string
	apiKey  string
	region  string
	limiter *rate.Limiter
	http    *http.Client
	log     *logger.Logger
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

func NewClient(cfg config.MessagingConfig, log *logger.Logger) *Client {
	if !cfg.IsMessagingEnabled() || cfg.GetMessagingGatewayURL() == "" {
		return nil
	}

	perSecond := cfg.GetMessagingRatePerSecond()
	if perSecond <= 0 {
		perSecond = 5
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetMessagingGatewayURL(), "/"),
		apiKey:  cfg.GetMessagingGatewayKey(),
		region:  cfg.GetMessagingDefaultRegion(),
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		http:    &http.Client{Timeout: requestTimeout},
		log:     log,
	}
}

// SendText delivers text to number through the named instance.
// The instance token wins over the global key when both are present.
func (c *Client) SendText(ctx context.Context, instanceName, token, number, text string) error {
	if c == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(instanceName) == "" {
		return fmt.Errorf("messaging instance name is empty")
	}

	normalized := strings.TrimPrefix(phone.NormalizeE164In(number, c.region), "+")
	if normalized == "" {
		return fmt.Errorf("messaging recipient is empty")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("messaging rate limit: %w", err)
	}

	body, err := json.Marshal(sendTextRequest{Number: normalized, Text: text})
	if err != nil {
		return fmt.Errorf("marshal messaging payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, url.PathEscape(instanceName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if key := c.keyFor(token); key != "" {
		req.Header.Set("apikey", key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("messaging request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("messaging gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("message sent via gateway", "instance", instanceName, "number", normalized)
	return nil
}

func (c *Client) keyFor(token string) string {
	if token = strings.TrimSpace(token); token != "" {
		return token
	}
	return c.apiKey
}
