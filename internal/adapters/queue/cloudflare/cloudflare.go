package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	v1 "vgate/internal/contracts/videojob/v1"
	"vgate/internal/ports"
)

// Response bodies are relayed verbatim up to maxResponseBytes. A longer body
// is cut there and ends with truncatedMarker.
const (
	maxResponseBytes = 64 << 10
	truncatedMarker  = "...[truncated]"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	AccountID string
	QueueName string
	APIToken  string
	Timeout   time.Duration
	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
}

// Client implements ports.QueuePublisher on the Cloudflare Queues REST API
// (POST /accounts/{account}/queues/{queue}/messages).
type Client struct {
	endpoint  string
	queueName string
	client    *http.Client
}

func New(opt Options) *Client {
	base := opt.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Client{
		endpoint: opt.BaseURL + "/accounts/" + url.PathEscape(opt.AccountID) +
			"/queues/" + url.PathEscape(opt.QueueName) + "/messages",
		queueName: opt.QueueName,
		client: &http.Client{
			Timeout: opt.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opt.APIToken, TokenType: "Bearer"}),
				Base:   base,
			},
		},
	}
}

func (c *Client) Backend() string { return "cloudflare" }
func (c *Client) Queue() string   { return c.queueName }
func (c *Client) Close() error    { return nil }

type message struct {
	Body v1.Record `json:"body"`
}

type envelope struct {
	Messages []message `json:"messages"`
}

// response is the part of the v4 API envelope we rely on. Success is a
// pointer so that an absent flag is told apart from false. The errors array
// reaches the caller inside the raw body.
type response struct {
	Success *bool `json:"success"`
}

// Publish sends job as the only message of a batch.
func (c *Client) Publish(ctx context.Context, job v1.Record) (ports.Ack, error) {
	payload, err := json.Marshal(envelope{Messages: []message{{Body: job}}})
	if err != nil {
		return ports.Ack{}, ports.Transport(fmt.Errorf("encode batch: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return ports.Ack{}, ports.Transport(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return ports.Ack{}, ports.Transport(redact(err))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if err != nil {
		return ports.Ack{}, ports.Transport(fmt.Errorf("read response: %w", err))
	}
	body := string(raw)
	if len(raw) > maxResponseBytes {
		raw = raw[:maxResponseBytes]
		body = string(raw) + truncatedMarker
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return ports.Ack{}, ports.Backend(res.StatusCode, body)
	}

	// A 2xx only means the request arrived; the payload says whether the
	// batch was accepted. Anything short of success:true is a rejection.
	var out response
	if err := json.Unmarshal(raw, &out); err != nil || out.Success == nil || !*out.Success {
		return ports.Ack{}, ports.Rejected(body)
	}

	return ports.Ack{Backend: c.Backend(), Queue: c.queueName}, nil
}

// redact strips the request URL from client errors; it embeds the account id.
func redact(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}
