package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/stockroomhq/inventory-gateway/internal/apierr"
	"github.com/stockroomhq/inventory-gateway/internal/config"
	"github.com/stockroomhq/inventory-gateway/internal/models"
)

const maxResponseBytes = 1 << 20

// Client validates access tokens against the tenant authority. Every
// request is validated remotely; outcomes are never cached, so a revoked
// token stops working on the very next request.
type Client struct {
	pool    *Pool
	http    *http.Client
	timeout time.Duration
}

func NewClient(cfg config.AuthorityConfig) *Client {
	return &Client{
		pool:    NewPool(cfg.BaseURLs, cfg.Cooldown()),
		http:    &http.Client{},
		timeout: cfg.Timeout(),
	}
}

func (c *Client) Pool() *Pool {
	return c.pool
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *struct {
		Tenant    models.TenantIdentity `json:"tenant"`
		TokenMeta models.TokenMeta      `json:"tokenMeta"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Details any    `json:"details"`
	} `json:"error"`
}

// Validate exchanges the token for a verified tenant identity.
//
// Error mapping: authority 4xx responses are relayed with their original
// status, code and message; connection failures become 503, deadline
// expiry becomes 504, anything else becomes a detail-free 500.
func (c *Client) Validate(ctx context.Context, token string) (*models.TenantIdentity, *models.TokenMeta, error) {
	body, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return nil, nil, apierr.AuthServiceError()
	}

	base := c.pool.Next()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/validate", bytes.NewReader(body))
	if err != nil {
		return nil, nil, apierr.AuthServiceError()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, c.classifyTransportError(base, err)
	}
	defer resp.Body.Close()

	c.pool.MarkUp(base)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, apierr.AuthServiceError()
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out validateResponse
		if err := json.Unmarshal(raw, &out); err != nil || !out.Success || out.Data == nil {
			return nil, nil, apierr.AuthServiceError()
		}
		return &out.Data.Tenant, &out.Data.TokenMeta, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, nil, relayFailure(resp.StatusCode, raw)

	default:
		return nil, nil, apierr.AuthServiceError()
	}
}

func (c *Client) classifyTransportError(base string, err error) error {
	c.pool.MarkDown(base)

	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.ServiceTimeout()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierr.ServiceTimeout()
	}

	if errors.Is(err, context.Canceled) {
		// Caller went away; nothing useful to respond with.
		return fmt.Errorf("authority validate: %w", err)
	}

	return apierr.ServiceUnavailable()
}

// The authority's own verdicts (invalid, expired, revoked, ...) are
// relayed verbatim so the client sees the original classification.
func relayFailure(status int, raw []byte) *apierr.Error {
	var out validateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return apierr.AuthServiceError()
	}

	code := apierr.CodeAuthTokenInvalid
	if out.Error != nil && out.Error.Code != "" {
		code = apierr.Code(out.Error.Code)
	}

	message := out.Message
	if message == "" {
		message = "Token validation failed"
	}

	e := apierr.New(status, code, message)
	if out.Error != nil && out.Error.Details != nil {
		e.WithDetails(out.Error.Details)
	}
	return e
}
