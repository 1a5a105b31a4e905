package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioTransport sends messages through the Twilio Messages API.
type TwilioTransport struct {
	accountSID string
	authToken  string
	from       string
	client     *http.Client
	logger     *zap.Logger
}

// NewTwilioTransport creates a Twilio-backed transport.
func NewTwilioTransport(accountSID, authToken, from string, logger *zap.Logger) *TwilioTransport {
	return &TwilioTransport{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Message string `json:"message"`
}

// Send posts the message, retrying transient provider failures (429/5xx)
// with fibonacci backoff.
func (t *TwilioTransport) Send(ctx context.Context, to, body string) (string, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", twilioAPIBase, t.accountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.from)
	form.Set("Body", body)
	payload := form.Encode()

	var sid string
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload))
		if err != nil {
			return err
		}
		req.SetBasicAuth(t.accountSID, t.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := t.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read response: %w", err))
		}

		var parsed twilioMessageResponse
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := json.Unmarshal(raw, &parsed); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			sid = parsed.SID
			return nil
		}

		_ = json.Unmarshal(raw, &parsed)
		sendErr := fmt.Errorf("twilio send failed: status %d: %s", resp.StatusCode, parsed.Message)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(sendErr)
		}
		return sendErr
	})
	if err != nil {
		return "", err
	}

	t.logger.Debug("sms sent", zap.String("to", to), zap.String("sid", sid))
	return sid, nil
}

// DisabledTransport is used when Twilio credentials are not configured:
// it logs what would have been sent and reports failure, matching how the
// rest of the system treats an undeliverable message.
type DisabledTransport struct {
	logger *zap.Logger
}

// NewDisabledTransport creates a log-only transport.
func NewDisabledTransport(logger *zap.Logger) *DisabledTransport {
	return &DisabledTransport{logger: logger}
}

func (t *DisabledTransport) Send(_ context.Context, to, body string) (string, error) {
	t.logger.Info("sms transport disabled, dropping message",
		zap.String("to", to),
		zap.Int("body_len", len(body)))
	return "", fmt.Errorf("sms transport not configured")
}
