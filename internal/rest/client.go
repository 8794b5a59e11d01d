// Package rest is the command channel to a single node.
package rest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Ryuzii/FerraEura/internal/cache"
	"github.com/Ryuzii/FerraEura/internal/protocol"
	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	// BaseURL is scheme://host:port of the node.
	BaseURL  string
	Password string
	// Version is the path prefix, "v4" unless talking to a legacy node.
	Version string

	Timeout         time.Duration
	MaxConnsPerHost int
	IdleConnTimeout time.Duration
	// InsecureSkipVerify disables TLS certificate checks for nodes with
	// self-signed certificates.
	InsecureSkipVerify bool

	ReadCacheTTL  time.Duration
	ReadCacheMax  int
	TrackCacheTTL time.Duration
	TrackCacheMax int
	// SweepInterval is how often expired responses are dropped from both
	// caches. Negative disables sweeping.
	SweepInterval time.Duration
	// Clock defaults to the wall clock.
	Clock clock.Clock

	// HTTPClient overrides the pooled client built from the fields above.
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.Version == "" {
		c.Version = "v4"
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxConnsPerHost == 0 {
		c.MaxConnsPerHost = 50
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 60 * time.Second
	}
	if c.ReadCacheTTL == 0 {
		c.ReadCacheTTL = 30 * time.Second
	}
	if c.ReadCacheMax == 0 {
		c.ReadCacheMax = 500
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
	if c.TrackCacheTTL == 0 {
		c.TrackCacheTTL = 5 * time.Minute
	}
	if c.TrackCacheMax == 0 {
		c.TrackCacheMax = 200
	}
	return c
}

type Client struct {
	http     *http.Client
	baseURL  string
	password string
	version  string

	mu        sync.RWMutex
	sessionID string

	reads    *cache.Cache[string, []byte]
	tracks   *cache.Cache[string, *protocol.LoadResult]
	inflight singleflight.Group
	stop     context.CancelFunc

	logger *slog.Logger
}

func New(cfg Config) *Client {
	cfg = cfg.withDefaults()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
				MaxConnsPerHost:     cfg.MaxConnsPerHost,
				IdleConnTimeout:     cfg.IdleConnTimeout,
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
			},
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	c := &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		password: cfg.Password,
		version:  cfg.Version,
		reads: cache.New[string, []byte](cache.Options{
			TTL:     cfg.ReadCacheTTL,
			MaxSize: cfg.ReadCacheMax,
			Clock:   cfg.Clock,
		}),
		tracks: cache.New[string, *protocol.LoadResult](cache.Options{
			TTL:     cfg.TrackCacheTTL,
			MaxSize: cfg.TrackCacheMax,
			Clock:   cfg.Clock,
		}),
		stop:   stop,
		logger: slog.Default().With("component", "rest", "baseURL", cfg.BaseURL),
	}
	if cfg.SweepInterval > 0 {
		c.reads.StartSweeper(ctx, cfg.SweepInterval)
		c.tracks.StartSweeper(ctx, cfg.SweepInterval)
	}
	return c
}

func (c *Client) SetSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

func (c *Client) Version() string {
	return c.version
}

// Do sends a request and decodes a JSON response into out when out is
// non-nil. Non-2xx responses are returned as *RequestError.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out any) error {
	data, err := c.roundTrip(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	return decode(data, out)
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newRequestError(method, endpoint, resp.StatusCode, data)
	}
	return data, nil
}

// cachedRead serves idempotent reads from the response cache and collapses
// concurrent identical requests into one. A response is only cached when
// keep is nil or accepts it.
func (c *Client) cachedRead(ctx context.Context, method, endpoint string, body, out any, keep func([]byte) bool) error {
	key := method + " " + endpoint
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		sum := sha256.Sum256(payload)
		key += " " + hex.EncodeToString(sum[:])
	}

	if data, ok := c.reads.Get(key); ok {
		return decode(data, out)
	}

	v, err, _ := c.inflight.Do(key, func() (any, error) {
		data, err := c.roundTrip(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
		if keep == nil || keep(data) {
			c.reads.Set(key, data)
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	return decode(v.([]byte), out)
}

func decode(data []byte, out any) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) playerPath(guildID string) (string, error) {
	sessionID := c.SessionID()
	if sessionID == "" {
		return "", ErrNoSession
	}
	return fmt.Sprintf("/%s/sessions/%s/players/%s", c.version, sessionID, guildID), nil
}

func (c *Client) UpdatePlayer(ctx context.Context, guildID string, patch protocol.PlayerPatch) (*protocol.Player, error) {
	path, err := c.playerPath(guildID)
	if err != nil {
		return nil, err
	}
	var player protocol.Player
	if err := c.Do(ctx, http.MethodPatch, path+"?noReplace=false", patch, &player); err != nil {
		return nil, err
	}
	return &player, nil
}

func (c *Client) DestroyPlayer(ctx context.Context, guildID string) error {
	path, err := c.playerPath(guildID)
	if err != nil {
		return err
	}
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) Players(ctx context.Context) ([]protocol.Player, error) {
	sessionID := c.SessionID()
	if sessionID == "" {
		return nil, ErrNoSession
	}
	var players []protocol.Player
	err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/%s/sessions/%s/players", c.version, sessionID), nil, &players)
	return players, err
}

// UpdateSession configures resuming for the current node session.
func (c *Client) UpdateSession(ctx context.Context, update protocol.SessionUpdate) error {
	sessionID := c.SessionID()
	if sessionID == "" {
		return ErrNoSession
	}
	return c.Do(ctx, http.MethodPatch, fmt.Sprintf("/%s/sessions/%s", c.version, sessionID), update, nil)
}

// LoadTracks resolves an identifier or search query. Results are kept in a
// bounded cache.
func (c *Client) LoadTracks(ctx context.Context, identifier string) (*protocol.LoadResult, error) {
	if result, ok := c.tracks.Get(identifier); ok {
		return result, nil
	}
	var result protocol.LoadResult
	endpoint := fmt.Sprintf("/%s/loadtracks?identifier=%s", c.version, url.QueryEscape(identifier))
	if err := c.cachedRead(ctx, http.MethodGet, endpoint, nil, &result, loadSucceeded); err != nil {
		return nil, err
	}
	if result.LoadType != protocol.LoadTypeError {
		c.tracks.Set(identifier, &result)
	}
	return &result, nil
}

// loadSucceeded keeps failed loads out of the response cache so a transient
// source error is retried on the next request.
func loadSucceeded(data []byte) bool {
	var result struct {
		LoadType protocol.LoadType `json:"loadType"`
	}
	return json.Unmarshal(data, &result) == nil && result.LoadType != protocol.LoadTypeError
}

func (c *Client) DecodeTrack(ctx context.Context, encoded string) (*protocol.Track, error) {
	var track protocol.Track
	endpoint := fmt.Sprintf("/%s/decodetrack?encodedTrack=%s", c.version, url.QueryEscape(encoded))
	if err := c.cachedRead(ctx, http.MethodGet, endpoint, nil, &track, nil); err != nil {
		return nil, err
	}
	return &track, nil
}

func (c *Client) DecodeTracks(ctx context.Context, encoded []string) ([]protocol.Track, error) {
	var tracks []protocol.Track
	if err := c.cachedRead(ctx, http.MethodPost, fmt.Sprintf("/%s/decodetracks", c.version), encoded, &tracks, nil); err != nil {
		return nil, err
	}
	return tracks, nil
}

// Stats is never cached; it is the live load report.
func (c *Client) Stats(ctx context.Context) (*protocol.Stats, error) {
	var stats protocol.Stats
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/%s/stats", c.version), nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) Info(ctx context.Context) (*protocol.Info, error) {
	var info protocol.Info
	if err := c.cachedRead(ctx, http.MethodGet, fmt.Sprintf("/%s/info", c.version), nil, &info, nil); err != nil {
		return nil, err
	}
	return &info, nil
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.reads.Clear()
	c.tracks.Clear()
}

// CacheLen reports how many responses and load results are cached.
func (c *Client) CacheLen() (responses, loads int) {
	return c.reads.Len(), c.tracks.Len()
}

// Close stops the cache sweepers and releases pooled connections and cached
// responses.
func (c *Client) Close() {
	c.stop()
	c.ClearCache()
	c.http.CloseIdleConnections()
	c.logger.Debug("rest client closed")
}
