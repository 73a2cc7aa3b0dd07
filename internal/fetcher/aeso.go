package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	poolPricePath  = "/price/poolPrice"
	aesoDateLayout = "2006-01-02"
	aesoHourLayout = "2006-01-02 15:04"
)

// AESOOptions parameterise the pool-price API client.
type AESOOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// AESO fetches hourly pool prices from the AESO public API.
type AESO struct {
	opts    AESOOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewAESO constructs an AESO pool-price fetcher.
func NewAESO(opts AESOOptions, logger zerolog.Logger) *AESO {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://apimgw.aeso.ca/public/poolprice-api/v1.1"
	}

	return &AESO{
		opts:    opts,
		logger:  logger.With().Str("component", "aeso_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPoolPrices retrieves settled hours in [from, to]. Hours the market
// has not settled yet are reported with an empty price and are skipped.
func (a *AESO) FetchPoolPrices(ctx context.Context, from, to time.Time) ([]PricePoint, error) {
	if a.opts.APIKey == "" {
		return nil, errors.New("aeso api key not configured")
	}
	if !from.Before(to) {
		return nil, errors.New("from must be before to")
	}

	query := url.Values{}
	query.Set("startDate", from.UTC().Format(aesoDateLayout))
	query.Set("endDate", to.UTC().Format(aesoDateLayout))

	endpoint := a.baseURL + poolPricePath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", a.opts.APIKey)
	if ua := strings.TrimSpace(a.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "twelvecp/1.0")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var parsed poolPriceResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode pool price report: %w", err)
	}

	points := make([]PricePoint, 0, len(parsed.Return.Report))
	for _, row := range parsed.Return.Report {
		priceStr := strings.TrimSpace(row.PoolPrice)
		if priceStr == "" || priceStr == "-" {
			continue
		}

		begin, err := time.ParseInLocation(aesoHourLayout, row.BeginUTC, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse hour %q: %w", row.BeginUTC, err)
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("parse pool price %q: %w", priceStr, err)
		}

		point := PricePoint{Begin: begin, PoolPrice: price}
		points = append(points, point)
	}

	a.logger.Debug().
		Int("rows", len(parsed.Return.Report)).
		Int("settled", len(points)).
		Msg("pool price report fetched")
	return points, nil
}

type poolPriceResponse struct {
	Return struct {
		Report []poolPriceRow `json:"Pool Price Report"`
	} `json:"return"`
}

type poolPriceRow struct {
	BeginUTC  string `json:"begin_datetime_utc"`
	BeginMPT  string `json:"begin_datetime_mpt"`
	PoolPrice string `json:"pool_price"`
}

type errorResponse struct {
	ResponseCode string `json:"responseCode"`
	Message      string `json:"message"`
	Error        string `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("aeso api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("aeso api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("aeso api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("aeso api error (%d)", status)
}

var _ PoolPriceFetcher = (*AESO)(nil)
