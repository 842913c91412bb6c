package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const simplePricePath = "/simple/price"

// CoingeckoOptions parameterise the spot price fetcher.
type CoingeckoOptions struct {
	BaseURL    string
	AssetID    string
	VsCurrency string
	Timeout    time.Duration
	UserAgent  string
}

// Coingecko fetches spot prices from the CoinGecko simple price endpoint.
type Coingecko struct {
	opts    CoingeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoingecko constructs a price fetcher.
func NewCoingecko(opts CoingeckoOptions, logger zerolog.Logger) *Coingecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	if opts.VsCurrency == "" {
		opts.VsCurrency = "usd"
	}

	return &Coingecko{
		opts:    opts,
		logger:  logger.With().Str("component", "price_fetcher").Str("asset", opts.AssetID).Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPrice issues a single GET and returns the quoted price. It never
// retries; every failure is logged and returned wrapped in ErrUnavailable.
func (c *Coingecko) FetchPrice(ctx context.Context) (decimal.Decimal, error) {
	price, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("price fetch failed")
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.logger.Info().Str("price", price.String()).Msg("price retrieved from API")
	return price, nil
}

func (c *Coingecko) fetch(ctx context.Context) (decimal.Decimal, error) {
	if c.opts.AssetID == "" {
		return decimal.Decimal{}, fmt.Errorf("asset id not configured")
	}

	query := url.Values{}
	query.Set("ids", c.opts.AssetID)
	query.Set("vs_currencies", c.opts.VsCurrency)
	endpoint := c.baseURL + simplePricePath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "kaspawatch/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, parseHTTPError(resp.StatusCode, payload)
	}

	return c.parsePrice(payload)
}

// parsePrice extracts {"<asset>": {"<currency>": <number>}}.
func (c *Coingecko) parsePrice(payload []byte) (decimal.Decimal, error) {
	var body map[string]map[string]json.Number
	if err := json.Unmarshal(payload, &body); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode price response: %w", err)
	}

	quotes, ok := body[c.opts.AssetID]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("missing %q in price response", c.opts.AssetID)
	}
	raw, ok := quotes[c.opts.VsCurrency]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("missing %q quote for %q", c.opts.VsCurrency, c.opts.AssetID)
	}

	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse price %q: %w", raw.String(), err)
	}
	return price, nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Status.ErrorMessage != "" {
			return fmt.Errorf("price api error (%d): %s", status, apiErr.Status.ErrorMessage)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("price api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("price api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("price api error (%d)", status)
}

var _ PriceFetcher = (*Coingecko)(nil)
