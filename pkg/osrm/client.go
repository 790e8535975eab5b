// Package osrm is a retrying client for the route service of an OSRM-compatible
// routing engine.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"golang.org/x/time/rate"
)

var (
	// ErrNoRoute is returned when the service answers with fewer than two
	// geometry vertices. It is not retried.
	ErrNoRoute = errors.New("route geometry has fewer than two vertices")
	// ErrRetriesExhausted wraps the last failure once every attempt failed.
	ErrRetriesExhausted = errors.New("routing retries exhausted")
	ErrServiceCode      = errors.New("routing service returned a non-Ok code")
	ErrHTTPStatus       = errors.New("routing service returned an unexpected http status")
)

const (
	DefaultMaxRetries  = 5
	DefaultTimeout     = 15 * time.Second
	DefaultBackoffUnit = time.Second
	DefaultProfile     = "driving"
)

type Config struct {
	BaseURL     string
	Profile     string
	Geometry    string
	MaxRetries  int
	Timeout     time.Duration
	// BackoffUnit scales the 2^n + jitter backoff. Zero means DefaultBackoffUnit;
	// tests skip the wait with SetSleep.
	BackoffUnit time.Duration
}

func (c Config) withDefaults() Config {
	if c.Profile == "" {
		c.Profile = DefaultProfile
	}
	if c.Geometry == "" {
		c.Geometry = GeometryGeoJSON
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = DefaultBackoffUnit
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// Shared is the state the clients of all workers of one run may share.
// Every field is optional.
type Shared struct {
	Limiter *rate.Limiter
	Cache   *RouteCache
	Metrics *metrics.Pipeline
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type SleepFunc func(ctx context.Context, d time.Duration) error

// Client routes one segment at a time. A Client is owned by a single worker:
// it is not safe for concurrent use and keeps its own connection pool, so
// connections are reused only across that worker's calls.
type Client struct {
	cfg        Config
	shared     Shared
	httpClient HTTPDoer
	rng        *rand.Rand
	sleep      SleepFunc
	log        *zap.Logger
}

func NewClient(cfg Config, shared Shared, log *zap.Logger) *Client {
	return &Client{
		cfg:        cfg.withDefaults(),
		shared:     shared,
		httpClient: newHTTPClient(),
		rng:        rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
		sleep:      sleepContext,
		log:        log,
	}
}

func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 2
	transport.MaxIdleConnsPerHost = 2
	return &http.Client{Transport: transport}
}

func (c *Client) SetHTTPClient(doer HTTPDoer) {
	c.httpClient = doer
}

func (c *Client) SetSleep(sleep SleepFunc) {
	c.sleep = sleep
}

// SetSeed makes the backoff jitter reproducible.
func (c *Client) SetSeed(seed uint64) {
	c.rng = rand.New(rand.NewSource(seed))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// routePath is the coordinate part of the request, also used as cache key.
func (c *Client) routePath(start, end da.GPSPoint) string {
	return fmt.Sprintf("route/v1/%s/%s,%s;%s,%s", c.cfg.Profile,
		formatCoord(start.Lon()), formatCoord(start.Lat()),
		formatCoord(end.Lon()), formatCoord(end.Lat()))
}

func (c *Client) routeURL(path string) string {
	q := url.Values{}
	q.Set("geometries", c.cfg.Geometry)
	q.Set("overview", "full")
	return c.cfg.BaseURL + "/" + path + "?" + q.Encode()
}

// Backoff is the wait after the n-th failed attempt: 2^n + U(0,1) backoff units.
func (c *Client) Backoff(attempt int) time.Duration {
	return time.Duration((math.Pow(2, float64(attempt)) + c.rng.Float64()) * float64(c.cfg.BackoffUnit))
}

// Route returns the road geometry between start and end and the number of
// attempts it took. Transport errors, non-2xx responses, undecodable bodies and
// non-Ok codes are retried up to MaxRetries attempts; ErrNoRoute is returned
// without retrying.
func (c *Client) Route(ctx context.Context, start, end da.GPSPoint) (da.RouteGeometry, int, error) {
	path := c.routePath(start, end)
	if geometry, ok := c.shared.Cache.Get(path); ok {
		c.shared.Metrics.CacheHit()
		return geometry, 0, nil
	}

	reqURL := c.routeURL(path)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		geometry, err := c.fetch(ctx, reqURL)
		if err == nil {
			c.shared.Cache.Add(path, geometry)
			return geometry, attempt, nil
		}
		if errors.Is(err, ErrNoRoute) {
			return nil, attempt, err
		}
		lastErr = err

		if attempt == c.cfg.MaxRetries {
			break
		}

		backoff := c.Backoff(attempt)
		c.shared.Metrics.Retry()
		c.log.Debug("routing attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.cfg.MaxRetries),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if err := c.sleep(ctx, backoff); err != nil {
			return nil, attempt, fmt.Errorf("routing %s: %w", path, err)
		}
	}

	return nil, c.cfg.MaxRetries, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.cfg.MaxRetries, lastErr)
}

func (c *Client) fetch(ctx context.Context, reqURL string) (da.RouteGeometry, error) {
	if c.shared.Limiter != nil {
		if err := c.shared.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}

	var body routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode route response: %w", err)
	}

	if body.Code != codeOk {
		return nil, fmt.Errorf("%w: %s %s", ErrServiceCode, body.Code, body.Message)
	}
	if len(body.Routes) == 0 {
		return nil, fmt.Errorf("route response has no routes")
	}

	geometry, err := decodeGeometry(body.Routes[0].Geometry, c.cfg.Geometry)
	if err != nil {
		return nil, err
	}
	if !geometry.Routable() {
		return nil, ErrNoRoute
	}
	return geometry, nil
}
