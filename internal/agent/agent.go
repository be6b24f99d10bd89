package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cristianoliveira/freshshell/internal/cachestore"
	"github.com/cristianoliveira/freshshell/internal/logging"
	"github.com/cristianoliveira/freshshell/internal/policy"
	"golang.org/x/sync/errgroup"
)

const defaultPrecacheConcurrency = 8

// Config configures one agent version.
type Config struct {
	Version             string
	Origin              *url.URL
	Table               policy.Table
	Manifest            policy.Manifest
	Store               cachestore.Store
	Fetcher             Fetcher
	Logger              logging.Logger
	Metrics             *Metrics
	Now                 func() time.Time
	PrecacheConcurrency int
}

// Agent resolves requests for one deployed version.
type Agent struct {
	cfg      Config
	precache string
	log      logging.Logger
}

// New validates cfg and returns an agent for cfg.Version.
func New(cfg Config) (*Agent, error) {
	if cfg.Version == "" {
		return nil, errors.New("agent: version is required")
	}
	if cfg.Origin == nil || cfg.Origin.Host == "" {
		return nil, errors.New("agent: origin is required")
	}
	if cfg.Store == nil || cfg.Fetcher == nil {
		return nil, errors.New("agent: store and fetcher are required")
	}
	if err := cfg.Table.Validate(); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PrecacheConcurrency <= 0 {
		cfg.PrecacheConcurrency = defaultPrecacheConcurrency
	}
	return &Agent{
		cfg:      cfg,
		precache: policy.PrecacheName(cfg.Version),
		log:      cfg.Logger.With("component", "agent", "version", cfg.Version),
	}, nil
}

// Version returns the deployed version served by the agent.
func (a *Agent) Version() string { return a.cfg.Version }

// PrecacheName returns the cache holding this version's build assets.
func (a *Agent) PrecacheName() string { return a.precache }

// Install precaches every asset selected by the manifest. It fails if any
// selected asset cannot be fetched with a 2xx status.
func (a *Agent) Install(ctx context.Context, assets []string) error {
	selected := a.cfg.Manifest.Select(assets)
	a.log.Info("installing", "assets", len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.PrecacheConcurrency)
	for _, asset := range selected {
		asset := asset
		g.Go(func() error {
			return a.precacheAsset(gctx, asset)
		})
	}
	err := g.Wait()
	a.cfg.Metrics.observeInstall(err)
	if err != nil {
		a.log.Warn("install failed", "error", err)
		return err
	}
	return nil
}

func (a *Agent) precacheAsset(ctx context.Context, asset string) error {
	ref, err := url.Parse(asset)
	if err != nil {
		return fmt.Errorf("precache %s: %w", asset, err)
	}
	u := a.cfg.Origin.ResolveReference(ref)
	req := policy.Request{Method: http.MethodGet, URL: u, Mode: policy.ModeSameOrigin}

	resp, err := fetchWithTimeout(ctx, a.cfg.Fetcher, req, 0)
	if err != nil {
		return fmt.Errorf("precache %s: %w", asset, err)
	}
	if !resp.OK() {
		return fmt.Errorf("precache %s: unexpected status %d", asset, resp.Status)
	}
	return a.cfg.Store.Put(ctx, cachestore.Entry{
		Cache:    a.precache,
		Key:      req.Key(),
		Status:   resp.Status,
		Header:   storableHeader(resp.Header),
		Body:     resp.Body,
		StoredAt: a.cfg.Now(),
	})
}

// Activate deletes caches that belong neither to the policy table nor to
// this version's precache.
func (a *Agent) Activate(ctx context.Context) error {
	keep := append(a.cfg.Table.CacheNames(), a.precache)
	deleted, err := cachestore.CleanupOutdated(ctx, a.cfg.Store, keep)
	if err != nil {
		return err
	}
	if len(deleted) > 0 {
		a.log.Info("deleted outdated caches", "caches", deleted)
	}
	return nil
}

// Handle resolves req. Precached assets are served from the cache only,
// matched GET requests follow their policy and everything else goes to the
// network untouched.
func (a *Agent) Handle(ctx context.Context, req policy.Request) (Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	if req.Method == http.MethodGet && !req.IsNavigation() {
		if e, err := a.cfg.Store.Get(ctx, a.precache, req.Key()); err == nil {
			a.cfg.Metrics.observeServed("precache", SourcePrecache)
			return a.fromEntry(e, SourcePrecache), nil
		}
	}

	p, ok := a.cfg.Table.Match(req)
	if !ok || req.Method != http.MethodGet {
		resp, err := fetchWithTimeout(ctx, a.cfg.Fetcher, req, 0)
		if err != nil {
			a.cfg.Metrics.observeFailure("")
			return Response{}, err
		}
		a.cfg.Metrics.observeServed("", SourceNetwork)
		return a.stamp(resp), nil
	}

	switch p.Strategy {
	case policy.CacheFirst:
		return a.cacheFirst(ctx, p, req)
	default:
		return a.networkFirst(ctx, p, req)
	}
}

// networkFirst serves the network response. Once the policy's network
// timeout elapses a fresh cached copy of the same URL is served instead; with
// nothing cached it keeps waiting for the network until ctx is done.
func (a *Agent) networkFirst(ctx context.Context, p policy.CachePolicy, req policy.Request) (Response, error) {
	type result struct {
		resp Response
		err  error
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan result, 1)
	go func() {
		resp, err := fetchWithTimeout(fetchCtx, a.cfg.Fetcher, req, 0)
		done <- result{resp, err}
	}()

	var timeout <-chan time.Time
	if p.NetworkTimeout > 0 {
		t := time.NewTimer(p.NetworkTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case res := <-done:
		return a.settleNetwork(ctx, p, req, res.resp, res.err)
	case <-timeout:
		if cached, ok := a.lookup(ctx, p, req); ok {
			a.log.Info("serving cached response after network timeout", "policy", p.Name, "url", req.Key())
			a.cfg.Metrics.observeServed(p.Name, SourceCache)
			return cached, nil
		}
		a.log.Debug("network slow and nothing cached, still waiting", "policy", p.Name, "url", req.Key())
		res := <-done
		return a.settleNetwork(ctx, p, req, res.resp, res.err)
	}
}

// settleNetwork caches a successful network response, or falls back to a
// fresh cached copy when the network failed.
func (a *Agent) settleNetwork(ctx context.Context, p policy.CachePolicy, req policy.Request, resp Response, err error) (Response, error) {
	if err == nil {
		if resp.OK() {
			a.put(ctx, p, req, resp)
		}
		a.cfg.Metrics.observeServed(p.Name, SourceNetwork)
		return a.stamp(resp), nil
	}

	a.cfg.Metrics.observeFailure(p.Name)
	cached, ok := a.lookup(ctx, p, req)
	if !ok {
		a.log.Warn("network failed and nothing cached", "policy", p.Name, "url", req.Key(), "error", err)
		return Response{}, err
	}
	a.log.Info("serving cached response after network failure", "policy", p.Name, "url", req.Key())
	a.cfg.Metrics.observeServed(p.Name, SourceCache)
	return cached, nil
}

func (a *Agent) cacheFirst(ctx context.Context, p policy.CachePolicy, req policy.Request) (Response, error) {
	if cached, ok := a.lookup(ctx, p, req); ok {
		a.cfg.Metrics.observeServed(p.Name, SourceCache)
		return cached, nil
	}
	resp, err := fetchWithTimeout(ctx, a.cfg.Fetcher, req, p.NetworkTimeout)
	if err != nil {
		a.cfg.Metrics.observeFailure(p.Name)
		return Response{}, err
	}
	if resp.OK() {
		a.put(ctx, p, req, resp)
	}
	a.cfg.Metrics.observeServed(p.Name, SourceNetwork)
	return a.stamp(resp), nil
}

// lookup returns the cached entry for req if it is younger than the policy's max age.
func (a *Agent) lookup(ctx context.Context, p policy.CachePolicy, req policy.Request) (Response, bool) {
	e, err := a.cfg.Store.Get(ctx, p.CacheName, req.Key())
	if err != nil {
		if !errors.Is(err, cachestore.ErrNotFound) {
			a.log.Warn("cache read failed", "cache", p.CacheName, "error", err)
		}
		return Response{}, false
	}
	if !cachestore.Fresh(e, p.MaxAge, a.cfg.Now()) {
		return Response{}, false
	}
	return a.fromEntry(e, SourceCache), true
}

// put stores resp and then enforces the policy's limits. Cache write
// failures never fail the request.
func (a *Agent) put(ctx context.Context, p policy.CachePolicy, req policy.Request, resp Response) {
	now := a.cfg.Now()
	err := a.cfg.Store.Put(ctx, cachestore.Entry{
		Cache:    p.CacheName,
		Key:      req.Key(),
		Status:   resp.Status,
		Header:   storableHeader(resp.Header),
		Body:     resp.Body,
		StoredAt: now,
	})
	if err != nil {
		a.log.Warn("cache write failed", "cache", p.CacheName, "error", err)
		return
	}
	removed, err := cachestore.Expire(ctx, a.cfg.Store, p.CacheName, p.MaxEntries, p.MaxAge, now)
	if err != nil {
		a.log.Warn("cache expiration failed", "cache", p.CacheName, "error", err)
		return
	}
	if removed > 0 {
		a.log.Debug("expired cache entries", "cache", p.CacheName, "removed", removed)
	}
}

// storableHeader drops per-client headers before a response is cached.
func storableHeader(h http.Header) http.Header {
	out := h.Clone()
	out.Del("Set-Cookie")
	out.Del("Set-Cookie2")
	return out
}

func (a *Agent) fromEntry(e cachestore.Entry, source Source) Response {
	return Response{
		Status:   e.Status,
		Header:   e.Header,
		Body:     e.Body,
		Source:   source,
		Version:  a.cfg.Version,
		StoredAt: e.StoredAt,
	}
}

func (a *Agent) stamp(resp Response) Response {
	resp.Version = a.cfg.Version
	return resp
}
