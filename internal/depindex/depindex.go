// Package depindex queries an external dependency and memory index on behalf
// of the context injector. The index itself is opaque: it is invoked as a
// subprocess (or, if configured, an HTTP endpoint) and is expected to answer
// in JSON. Every query is bounded by a soft-timeout budget and never returns
// an error the caller must act on — a failed or slow query degrades to "no
// context" so the guard can never block an agent on index unavailability.
package depindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/adwhq/adw-orchestrator/pkg/httputil"
	"github.com/adwhq/adw-orchestrator/pkg/logger"
	"github.com/adwhq/adw-orchestrator/pkg/ratelimit"
)

var log = logger.New("depindex")

// DependentsResult is the answer to a Deps query: the direct dependents of a
// workspace-relative path, up to the caller's requested depth.
type DependentsResult struct {
	Path       string   `json:"path"`
	Dependents []string `json:"dependents"`
}

// MemoryHit is a single search result from the failures or decisions corpus.
type MemoryHit struct {
	Summary   string `json:"summary"`
	Detail    string `json:"detail"`
	Reference string `json:"reference"`
}

// Client queries the index. Every method degrades to a zero-value result on
// any error, timeout, or malformed response — callers never need an error
// path.
type Client interface {
	Deps(ctx context.Context, path string, depth int) DependentsResult
	SearchFailures(ctx context.Context, query string, limit int) []MemoryHit
	SearchDecisions(ctx context.Context, query string, limit int) []MemoryHit
}

// Config selects and bounds the index backend.
type Config struct {
	// Command is the subprocess to invoke, e.g. "kotadb". Empty disables the
	// subprocess transport.
	Command string
	// BaseURL, if set, is used instead of Command: the client issues HTTP GET
	// requests against BaseURL instead of shelling out.
	BaseURL string
	// Timeout bounds every individual query. The spec's soft-timeout budget.
	Timeout time.Duration
}

// DefaultTimeout is used when a Config leaves Timeout unset.
const DefaultTimeout = 2 * time.Second

type client struct {
	cfg Config
	hc  *httputil.Client
}

// New constructs a Client from cfg. A zero Config yields a client that always
// returns empty results (no subprocess, no HTTP endpoint configured) — useful
// as the default when no index is wired up.
func New(cfg Config) Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	hc := httputil.NewClient(&httputil.ClientOptions{Timeout: cfg.Timeout, UserAgent: "adw-orchestrator-depindex"})
	return &client{cfg: cfg, hc: hc}
}

func (c *client) Deps(ctx context.Context, path string, depth int) DependentsResult {
	if path == "" {
		return DependentsResult{}
	}

	var out DependentsResult

	raw, err := c.query(ctx, "deps", []string{path, "--depth", strconv.Itoa(depth)}, map[string]string{
		"path":  path,
		"depth": strconv.Itoa(depth),
	})
	if err != nil {
		log.Printf("deps query for %s failed: %v", path, err)
		return out
	}

	var payload struct {
		Dependents []string `json:"dependents"`
		Error      string   `json:"error"`
	}
	if jsonErr := json.Unmarshal(raw, &payload); jsonErr != nil {
		log.Printf("deps query for %s returned non-JSON output: %v", path, jsonErr)
		return out
	}
	if payload.Error != "" {
		log.Printf("deps query for %s reported: %s", path, payload.Error)
		return out
	}

	out.Path = path
	out.Dependents = payload.Dependents
	return out
}

func (c *client) SearchFailures(ctx context.Context, query string, limit int) []MemoryHit {
	return c.search(ctx, "search-failures", query, limit)
}

func (c *client) SearchDecisions(ctx context.Context, query string, limit int) []MemoryHit {
	return c.search(ctx, "search-decisions", query, limit)
}

func (c *client) search(ctx context.Context, subcommand, query string, limit int) []MemoryHit {
	if query == "" {
		return nil
	}

	raw, err := c.query(ctx, subcommand, []string{query, "--limit", strconv.Itoa(limit)}, map[string]string{
		"q":     query,
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		log.Printf("%s query %q failed: %v", subcommand, query, err)
		return nil
	}

	var payload struct {
		Results []MemoryHit `json:"results"`
		Error   string      `json:"error"`
	}
	if jsonErr := json.Unmarshal(raw, &payload); jsonErr != nil {
		log.Printf("%s query %q returned non-JSON output: %v", subcommand, query, jsonErr)
		return nil
	}
	if payload.Error != "" {
		log.Printf("%s query %q reported: %s", subcommand, query, payload.Error)
		return nil
	}

	return payload.Results
}

// query dispatches to the subprocess or HTTP transport depending on cfg, or
// returns an error immediately if neither is configured.
func (c *client) query(ctx context.Context, verb string, args []string, params map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := ratelimit.Wait(ctx, ratelimit.OperationDependencyIndex); err != nil {
		return nil, fmt.Errorf("rate limit wait for index %s: %w", verb, err)
	}

	switch {
	case c.cfg.BaseURL != "":
		return c.queryHTTP(ctx, verb, params)
	case c.cfg.Command != "":
		return c.querySubprocess(ctx, verb, args)
	default:
		return nil, fmt.Errorf("no index backend configured")
	}
}

func (c *client) querySubprocess(ctx context.Context, verb string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.cfg.Command, append([]string{verb}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", c.cfg.Command, verb, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (c *client) queryHTTP(ctx context.Context, verb string, params map[string]string) ([]byte, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	target := fmt.Sprintf("%s/%s?%s", strings.TrimRight(c.cfg.BaseURL, "/"), verb, q.Encode())

	req, err := c.hc.NewRequest(http.MethodGet, target)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := httputil.ReadResponseBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httputil.FormatHTTPError(resp.StatusCode, body, fmt.Sprintf("index %s", verb))
	}
	return body, nil
}
