// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feed retrieves the advisory catalog over HTTP.
//
// # Description
//
// The feed serves an XML list of advisory ids and one XML detail
// record per advisory. Patch content is fetched lazily by reference
// and arrives either as raw mbox text or base64 wrapped. The client
// rate-limits all requests, retries transient failures with
// exponential backoff (client errors are permanent), and optionally
// caches decoded patch content in a local badger store since patch
// artifacts are immutable.
//
// # Thread Safety
//
// Client is safe for concurrent use. FetchAll fans detail fetches out
// across a bounded worker group.
package feed

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tdm/vuln-patcher/pkg/logging"
	"github.com/tdm/vuln-patcher/services/patcher/advisory"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrFetchFailed indicates an HTTP request did not produce a usable
	// response after retries.
	ErrFetchFailed = errors.New("feed fetch failed")

	// ErrParseFailed indicates a feed payload does not match the wire
	// format.
	ErrParseFailed = errors.New("feed parse failed")
)

// =============================================================================
// Client
// =============================================================================

// HTTPClient interface allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	defaultTimeout     = 30 * time.Second
	defaultRatePerSec  = 10
	defaultConcurrency = 8

	// maxTries bounds attempts per request, first try included.
	maxTries = 4

	userAgent = "vulnpatch/1.0"
)

// Config holds feed client configuration. The zero value of every
// field except BaseURL is usable; defaults are applied by NewClient.
type Config struct {
	// BaseURL is the feed root, e.g. "http://code.nwwn.com/vuln".
	// Required.
	BaseURL string

	// Timeout applies to the default HTTP client only. Default 30s.
	Timeout time.Duration

	// RatePerSec throttles outgoing requests. Default 10.
	RatePerSec float64

	// Concurrency bounds parallel detail fetches. Default 8.
	Concurrency int

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient HTTPClient

	// Cache holds decoded patch content across runs. Optional.
	Cache *Cache

	// Logger receives fetch diagnostics. Default logging.Default().
	Logger *logging.Logger

	// Progress receives the operator-facing fetch progress line.
	// Default io.Discard.
	Progress io.Writer
}

// Client fetches the advisory feed. It implements
// patch.ContentFetcher for the advisories it constructs.
type Client struct {
	base     string
	http     HTTPClient
	limiter  *rate.Limiter
	workers  int
	cache    *Cache
	log      *logging.Logger
	progress io.Writer

	// retryInterval seeds the exponential backoff. Tests shrink it.
	retryInterval time.Duration
}

// NewClient builds a feed client.
//
// # Inputs
//
//   - cfg: Client configuration; BaseURL is required
//
// # Outputs
//
//   - *Client: Ready-to-use client
//   - error: Non-nil when BaseURL is empty
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("feed base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Progress == nil {
		cfg.Progress = io.Discard
	}

	return &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		http:     cfg.HTTPClient,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Concurrency),
		workers:  cfg.Concurrency,
		cache:    cfg.Cache,
		log:      cfg.Logger.With("component", "feed"),
		progress: cfg.Progress,

		retryInterval: 500 * time.Millisecond,
	}, nil
}

// List fetches the advisory id list.
func (c *Client) List(ctx context.Context) ([]string, error) {
	data, err := c.get(ctx, c.base+"/vuln_list.php?format=xml")
	if err != nil {
		return nil, err
	}
	return parseList(data)
}

// Detail fetches one advisory's detail record.
func (c *Client) Detail(ctx context.Context, id string) (advisory.Params, error) {
	u := fmt.Sprintf("%s/vuln_detail.php?format=xml&id=%s", c.base, url.QueryEscape(id))
	data, err := c.get(ctx, u)
	if err != nil {
		return advisory.Params{}, err
	}
	params, err := parseDetail(data)
	if err != nil {
		return advisory.Params{}, fmt.Errorf("advisory %s: %w", id, err)
	}
	return params, nil
}

// FetchAll fetches the full catalog: the id list, then every detail
// record across a bounded worker group, preserving list order before
// the final sort.
//
// # Description
//
// Writes the operator progress line ("Fetching vuln list: " plus a
// dot per ten advisories) to the configured Progress writer. Any
// fetch or schema failure aborts the whole catalog; a partial
// catalog would silently narrow the reconciliation.
//
// # Outputs
//
//   - []*advisory.Advisory: The catalog in sort-key order
//   - error: Non-nil on any list, detail, or construction failure
func (c *Client) FetchAll(ctx context.Context) ([]*advisory.Advisory, error) {
	fmt.Fprint(c.progress, "Fetching vuln list: ")

	ids, err := c.List(ctx)
	if err != nil {
		fmt.Fprint(c.progress, "\n")
		return nil, err
	}
	c.log.Debug("fetched advisory list", "count", len(ids))

	advs := make([]*advisory.Advisory, len(ids))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, id := range ids {
		g.Go(func() error {
			params, err := c.Detail(gctx, id)
			if err != nil {
				return err
			}
			adv, err := advisory.New(params, c)
			if err != nil {
				return fmt.Errorf("advisory %s: %w", id, err)
			}

			mu.Lock()
			advs[i] = adv
			done++
			if done%10 == 0 {
				fmt.Fprint(c.progress, ".")
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprint(c.progress, "\n")
		return nil, err
	}
	fmt.Fprint(c.progress, "\n")

	advisory.Sort(advs)
	c.log.Info("advisory catalog fetched", "count", len(advs))
	return advs, nil
}

// FetchContent retrieves and transport-decodes patch content,
// consulting the cache first. Implements patch.ContentFetcher.
func (c *Client) FetchContent(ctx context.Context, ref string) ([]byte, error) {
	if c.cache != nil {
		content, ok, err := c.cache.Get(ref)
		if err != nil {
			c.log.Warn("patch content cache read failed", "ref", ref, "error", err)
		} else if ok {
			c.log.Debug("patch content cache hit", "ref", ref)
			return content, nil
		}
	}

	body, err := c.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	content, err := decodeContent(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}

	if c.cache != nil {
		if err := c.cache.Put(ref, content); err != nil {
			c.log.Warn("patch content cache write failed", "ref", ref, "error", err)
		}
	}
	return content, nil
}

// decodeContent unwraps the transport encoding: raw mbox text passes
// through, anything else is treated as base64. Servers wrap base64
// lines, so whitespace is stripped before decoding.
func decodeContent(body []byte) ([]byte, error) {
	if bytes.HasPrefix(body, []byte("From ")) {
		return body, nil
	}
	compact := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, string(body))
	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 transport: %v", ErrParseFailed, err)
	}
	return decoded, nil
}

// get performs one rate-limited GET with retries. Server errors and
// transport failures retry with exponential backoff; client errors
// (4xx) are permanent.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrFetchFailed, err))
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.Debug("feed request failed", "url", u, "attempt", attempt, "error", err)
			return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, u, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err := fmt.Errorf("%w: %s returned %s", ErrFetchFailed, u, resp.Status)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, backoff.Permanent(err)
			}
			c.log.Debug("feed request failed", "url", u, "attempt", attempt, "status", resp.Status)
			return nil, err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrFetchFailed, u, err)
		}
		return body, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(maxTries),
	)
}
