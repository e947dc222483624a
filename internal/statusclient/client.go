// Package statusclient fetches a tenant's public maintenance status and
// turns it into the popup notice shown on the tenant's site.
package statusclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	maintenancedomain "github.com/smallbiznis/upkeep/internal/maintenance/domain"
	"go.uber.org/zap"
)

const statusPath = "/api/maintenance/status/{client_id}"

var (
	ErrMissingBaseURL   = errors.New("status client: base url is required")
	ErrMissingCode      = errors.New("status client: client code is required")
	ErrUnexpectedStatus = errors.New("status client: unexpected response status")
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

type Client struct {
	http *resty.Client
	log  *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("status client: invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		http: httpClient,
		log:  log.Named("statusclient"),
	}, nil
}

// Fetch returns the public status for clientCode. Rate limiting and server
// errors are reported as ErrUnexpectedStatus.
func (c *Client) Fetch(ctx context.Context, clientCode string) (maintenancedomain.PublicStatus, error) {
	code := strings.TrimSpace(clientCode)
	if code == "" {
		return maintenancedomain.PublicStatus{}, ErrMissingCode
	}

	var status maintenancedomain.PublicStatus
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("client_id", code).
		SetResult(&status).
		Get(statusPath)
	if err != nil {
		return maintenancedomain.PublicStatus{}, fmt.Errorf("status client: request failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		c.log.Warn("status endpoint returned non-200",
			zap.String("client_code", code),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("retry_after", resp.Header().Get("Retry-After")),
		)
		return maintenancedomain.PublicStatus{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode())
	}

	return status, nil
}
