package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/snow-ghost/adaptmgr/core"
	"github.com/snow-ghost/adaptmgr/pkg/limiter"
)

// ClientConfig holds the remote service endpoints
type ClientConfig struct {
	MetricsURL    string
	KnobsURL      string
	BlackboardURL string
	Timeout       time.Duration
}

// Client talks to the managed system over HTTP/JSON. It implements
// core.MetricsSource, core.KnobSource and core.Blackboard. Each call is a
// single attempt; retrying is left to the caller.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	group      singleflight.Group
	logger     *zap.Logger
}

// NewClient creates a new managed system client
func NewClient(config ClientConfig, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

var (
	_ core.MetricsSource = (*Client)(nil)
	_ core.KnobSource    = (*Client)(nil)
	_ core.Blackboard    = (*Client)(nil)
)

// GetMetrics fetches the current quality requirement measurements
func (c *Client) GetMetrics(ctx context.Context) ([]core.MetricObservation, error) {
	v, err, shared := c.group.Do(c.config.MetricsURL, func() (interface{}, error) {
		var resp MetricsResponse
		if err := c.do(ctx, http.MethodGet, c.config.MetricsURL, nil, &resp); err != nil {
			return nil, err
		}
		return resp.QRs, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("metrics fetch coalesced", zap.String("url", c.config.MetricsURL))
	}
	return cloneObservations(v.([]core.MetricObservation)), nil
}

// GetKnobs fetches the knob catalogue
func (c *Client) GetKnobs(ctx context.Context) ([]core.Knob, error) {
	v, err, shared := c.group.Do(c.config.KnobsURL, func() (interface{}, error) {
		var resp KnobsResponse
		if err := c.do(ctx, http.MethodGet, c.config.KnobsURL, nil, &resp); err != nil {
			return nil, err
		}
		return resp.VariableParameters, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("knobs fetch coalesced", zap.String("url", c.config.KnobsURL))
	}
	return cloneKnobs(v.([]core.Knob)), nil
}

// SetValue writes key=value on the blackboard
func (c *Client) SetValue(ctx context.Context, key, value string) (bool, error) {
	req := SetBlackboardRequest{
		KeyName:    key,
		Value:      value,
		ScriptCode: BlackboardScript(key, value),
	}
	var resp SetBlackboardResponse
	if err := c.do(ctx, http.MethodPost, c.config.BlackboardURL, req, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", core.ErrServiceUnavailable, method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", core.ErrServiceUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := limiter.NewHTTPError(resp.StatusCode, http.StatusText(resp.StatusCode), string(respBody))
		if limiter.IsRetryableHTTPError(resp.StatusCode) {
			return fmt.Errorf("%w: %w", core.ErrServiceUnavailable, httpErr)
		}
		return httpErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

// singleflight hands the same slice to every waiter
func cloneObservations(in []core.MetricObservation) []core.MetricObservation {
	out := make([]core.MetricObservation, len(in))
	copy(out, in)
	return out
}

func cloneKnobs(in []core.Knob) []core.Knob {
	out := make([]core.Knob, len(in))
	for i, k := range in {
		k.AdmissibleValues = append([]core.Value(nil), k.AdmissibleValues...)
		out[i] = k
	}
	return out
}
