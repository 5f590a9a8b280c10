// Package client sends CRUD, query and relationship messages to one
// organization's Web API.
//
// A Client authenticates with the OAuth2 client-credentials grant, loads
// entity metadata on first use (from the SQLite cache when one is
// attached), and builds every request with messages.Builder.
//
// Thread-safety: a Client is safe for concurrent use. Metadata is swapped
// atomically under a read-write lock; in-flight requests keep the snapshot
// they started with.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/roach88/dvsdk/internal/config"
	"github.com/roach88/dvsdk/internal/messages"
	"github.com/roach88/dvsdk/internal/metadata"
	"github.com/roach88/dvsdk/internal/store"
)

// DefaultMaxPages bounds RetrieveAll so a query that keeps reporting more
// records cannot page forever.
const DefaultMaxPages = 500

// tokenExpiryDelta refreshes tokens this long before they expire.
const tokenExpiryDelta = 5 * time.Minute

// Client is a Web API client for one organization.
type Client struct {
	cfg      *config.Config
	http     *http.Client
	store    *store.Store
	maxPages int

	baseHTTP    *http.Client
	tokenSource oauth2.TokenSource

	mu   sync.RWMutex
	meta *metadata.OrgMetadata
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for token and Web API requests. Its
// transport is wrapped with bearer-token authentication.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.baseHTTP = hc
	}
}

// WithTokenSource replaces the client-credentials token source.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.tokenSource = ts
	}
}

// WithStore caches entity metadata in s. The client does not close s.
func WithStore(s *store.Store) Option {
	return func(c *Client) {
		c.store = s
	}
}

// WithMetadata preloads organization metadata, skipping the first fetch.
func WithMetadata(m *metadata.OrgMetadata) Option {
	return func(c *Client) {
		c.meta = m
	}
}

// WithMaxPages sets the RetrieveAll page limit.
//
// Default: 500 pages (DefaultMaxPages).
func WithMaxPages(n int) Option {
	return func(c *Client) {
		c.maxPages = n
	}
}

// New returns a client for the organization in cfg. cfg is validated and
// copied; ctx only scopes the token source construction.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	copied := *cfg
	copied.ApplyDefaults()
	if err := copied.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		cfg:      &copied,
		maxPages: DefaultMaxPages,
		baseHTTP: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxPages <= 0 {
		return nil, fmt.Errorf("max pages must be positive, got %d", c.maxPages)
	}

	ts := c.tokenSource
	if ts == nil {
		cc := clientcredentials.Config{
			ClientID:     copied.ClientID,
			ClientSecret: copied.ClientSecret,
			TokenURL:     copied.TokenURL(),
			Scopes:       copied.Scopes(),
		}
		ts = cc.TokenSource(context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, c.baseHTTP))
	}

	c.http = &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSourceWithExpiry(nil, ts, tokenExpiryDelta),
			Base:   c.baseHTTP.Transport,
		},
		Timeout: copied.Timeout,
	}

	slog.Debug("client created",
		"resource_url", copied.ResourceURL,
		"api_version", copied.APIVersion,
		"metadata_cache", c.store != nil,
	)
	return c, nil
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() config.Config {
	return *c.cfg
}

// Metadata returns the organization metadata, loading it on first use.
func (c *Client) Metadata(ctx context.Context) (*metadata.OrgMetadata, error) {
	c.mu.RLock()
	m := c.meta
	c.mu.RUnlock()
	if m != nil {
		return m, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.meta != nil {
		return c.meta, nil
	}
	m, err := c.loadMetadata(ctx, false)
	if err != nil {
		return nil, wrap("load_metadata", "", err)
	}
	c.meta = m
	return m, nil
}

// RefreshMetadata fetches entity definitions from the Web API, bypassing
// the cache, and replaces the cached snapshot.
func (c *Client) RefreshMetadata(ctx context.Context) (*metadata.OrgMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, err := c.loadMetadata(ctx, true)
	if err != nil {
		return nil, wrap("refresh_metadata", "", err)
	}
	c.meta = m
	return m, nil
}

// loadMetadata must be called with c.mu held.
func (c *Client) loadMetadata(ctx context.Context, force bool) (*metadata.OrgMetadata, error) {
	if c.store != nil && !force {
		m, snap, err := c.store.LoadMetadata(ctx, c.cfg.ResourceURL, c.cfg.APIVersion, c.cfg.MetadataMaxAge)
		switch {
		case err == nil && (m.ContainsRelationships || !c.cfg.FetchRelationships):
			slog.Debug("metadata loaded from cache",
				"resource_url", snap.ResourceURL,
				"fingerprint", snap.Fingerprint,
				"fetched_at", snap.FetchedAt,
			)
			return m, nil
		case err == nil:
			slog.Debug("cached metadata lacks relationships, refetching")
		case errors.Is(err, store.ErrCacheMiss):
			slog.Debug("metadata cache miss", "resource_url", c.cfg.ResourceURL)
		default:
			slog.Warn("metadata cache unreadable, refetching", "error", err)
		}
	}

	b := &messages.Builder{BaseURL: c.cfg.ResourceURL, APIVersion: c.cfg.APIVersion}
	req, err := b.Definitions(ctx, c.cfg.FetchRelationships)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := messages.CheckResponse(resp); err != nil {
		return nil, err
	}
	m, err := metadata.Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	slog.Info("metadata fetched",
		"entities", len(m.Entities),
		"relationships", m.ContainsRelationships,
	)

	if c.store != nil {
		snap, err := c.store.SaveMetadata(ctx, c.cfg.ResourceURL, c.cfg.APIVersion, m)
		if err != nil {
			// The fetched metadata is still usable without the cache.
			slog.Warn("metadata cache write failed", "error", err)
		} else {
			slog.Debug("metadata cached", "fingerprint", snap.Fingerprint)
		}
	}
	return m, nil
}

// builder returns a request builder bound to the current metadata.
func (c *Client) builder(ctx context.Context) (*messages.Builder, error) {
	m, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	b, err := messages.NewBuilder(c.cfg.ResourceURL, m)
	if err != nil {
		return nil, err
	}
	b.APIVersion = c.cfg.APIVersion
	b.Tag = c.cfg.Tag
	b.SuppressDuplicateDetection = c.cfg.SuppressDuplicateDetection
	b.BypassCustomPluginExecution = c.cfg.BypassCustomPluginExecution
	return b, nil
}

// do sends req. The caller closes the response body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("web api request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"error", err,
		)
		return nil, err
	}
	slog.Debug("web api request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)
	return resp, nil
}
