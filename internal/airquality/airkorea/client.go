// Package airkorea provides a client for the AirKorea real-time measurement API.
package airkorea

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/breatheroute/airdata-extract/internal/airquality"
)

const (
	// DefaultBaseURL is the base URL of the AirKorea air pollution service.
	DefaultBaseURL = "https://apis.data.go.kr/B552584/ArpltnInforInqireSvc"

	// ProviderName identifies this provider.
	ProviderName = "airkorea"

	// measurementPath returns real-time measurements for a single station.
	measurementPath = "/getMsrstnAcctoRltmMesureDnsty"
)

// ErrTransport is returned when the API could not be reached.
var ErrTransport = errors.New("airkorea transport error")

// ClientConfig holds configuration for the AirKorea client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// ServiceKey is the data.go.kr API key.
	ServiceKey string

	// HTTPClient is the HTTP client to use.
	// If nil, a plain http.Client with Timeout is created.
	HTTPClient HTTPDoer

	// Timeout for the request. Zero leaves the transport default in place.
	Timeout time.Duration
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an AirKorea API client.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient HTTPDoer
}

// NewClient creates a new AirKorea client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: httpClient,
	}
}

// Fetch issues one request for the given query and returns the raw response.
// A non-2xx status is not an error; the caller decides what to do with it.
func (c *Client) Fetch(ctx context.Context, q airquality.Query) (*airquality.RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(q, c.serviceKey), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}

	return &airquality.RawResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		URL:        c.requestURL(q, "REDACTED"),
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *Client) requestURL(q airquality.Query, serviceKey string) string {
	params := url.Values{}
	params.Set("serviceKey", serviceKey)
	params.Set("returnType", "json")
	params.Set("numOfRows", strconv.Itoa(q.NumOfRows))
	params.Set("pageNo", strconv.Itoa(q.PageNo))
	params.Set("stationName", q.StationName)
	params.Set("dataTerm", q.DataTerm)
	params.Set("ver", q.Version)
	return c.baseURL + measurementPath + "?" + params.Encode()
}
