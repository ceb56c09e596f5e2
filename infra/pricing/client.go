// Package pricing implements the day-ahead spot price client.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/viklund/heatopt/core/model"
	"github.com/viklund/heatopt/infra/logger"
)

// Config holds the spot price API parameters.
type Config struct {
	// BaseURL is the price API endpoint; start, end and area are passed as
	// query parameters.
	BaseURL string `json:"base_url"`
	// Area is the bidding zone, e.g. "SE3".
	Area string `json:"area"`
	// APIKey is sent as a bearer token when set.
	APIKey string `json:"api_key"`
	// TimeoutS bounds each request, seconds.
	TimeoutS int `json:"timeout_s"`
	// Step is the curve resolution the API serves.
	Step time.Duration `json:"-"`
	// StepMinutes is the config-file form of Step.
	StepMinutes int `json:"step_minutes"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.TimeoutS <= 0 {
		c.TimeoutS = 10
	}
	if c.StepMinutes <= 0 {
		c.StepMinutes = 15
	}
	c.Step = time.Duration(c.StepMinutes) * time.Minute
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("price: base_url is required")
	}
	if c.Area == "" {
		return fmt.Errorf("price: area is required")
	}
	return nil
}

// pricePoint is the wire format of one curve entry.
type pricePoint struct {
	Start time.Time `json:"start"`
	Price float64   `json:"price"`
}

// Client fetches day-ahead prices over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger
}

// NewClient creates a client for the configured area.
func NewClient(cfg Config) *Client {
	cfg.SetDefaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutS) * time.Second},
		log:  logger.New("price_client"),
	}
}

// FetchPrices retrieves the curve covering [start, end). Points are sorted
// and validated before being returned; a curve with gaps is rejected here
// rather than surfacing as a planner error later.
func (c *Client) FetchPrices(ctx context.Context, start, end time.Time) (model.PriceCurve, error) {
	url := fmt.Sprintf("%s?start=%s&end=%s&area=%s",
		c.cfg.BaseURL, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), c.cfg.Area)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.PriceCurve{}, fmt.Errorf("failed to create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.PriceCurve{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return model.PriceCurve{}, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.PriceCurve{}, fmt.Errorf("failed to read response: %w", err)
	}
	var points []pricePoint
	if err := json.Unmarshal(body, &points); err != nil {
		return model.PriceCurve{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(points) == 0 {
		return model.PriceCurve{}, fmt.Errorf("%w: empty price response for %s", model.ErrDataUnavailable, c.cfg.Area)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Start.Before(points[j].Start) })
	curve := model.PriceCurve{Step: c.cfg.Step}
	for _, p := range points {
		curve.Points = append(curve.Points, model.PricePoint{Timestamp: p.Start, Price: p.Price})
	}
	if err := curve.Validate(); err != nil {
		return model.PriceCurve{}, fmt.Errorf("price response invalid: %w", err)
	}
	c.log.Debugf("fetched %d price points for %s", len(curve.Points), c.cfg.Area)
	return curve.Slice(start, end), nil
}
