// Package client implements the peer side of the sync protocol: probe
// the paired server's state, pull its changes into the local store,
// then push local changes back.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aatrooox/zotepad/internal/schema"
	"github.com/aatrooox/zotepad/internal/server"
	"github.com/aatrooox/zotepad/internal/store"
	zsync "github.com/aatrooox/zotepad/internal/sync"
)

// maxPushAttempts bounds the conflict-driven pull-and-retry loop.
const maxPushAttempts = 3

// Client talks to one paired sync server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *log.Logger
}

// New creates a client for the given peer base URL.
func New(baseURL, token string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Result summarizes one sync run.
type Result struct {
	// Pulled counts remote changes applied to the local store.
	Pulled int

	// Pushed counts local changes the peer accepted.
	Pushed int

	// Conflicts counts push rounds the peer rejected as stale.
	Conflicts int

	// ServerVersion is the peer's version after the run.
	ServerVersion int64
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message *string         `json:"message"`
}

// State probes the peer's replication position.
func (c *Client) State(ctx context.Context) (*server.StateData, error) {
	var state server.StateData
	if err := c.get(ctx, "/state", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Health probes the peer without authentication. Used during pairing
// to confirm the address before a token exchange.
func (c *Client) Health(ctx context.Context) (*server.HealthData, error) {
	var health server.HealthData
	if err := c.get(ctx, "/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Sync runs one full pull-merge-push round against the peer.
//
// Remote changes are applied first so local edits compare against the
// peer's latest timestamps. The push declares the server version
// observed during the pull; if the peer moved on in the meantime it
// answers conflict and the round pulls again before retrying.
func (c *Client) Sync(ctx context.Context, st *store.Store, alloc *zsync.Allocator, cur *Cursor) (*Result, error) {
	state, err := c.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reach peer: %w", err)
	}
	c.logger.Printf("Sync: peer at version %d (build %s)", state.Version, state.ServerVersion)

	result := &Result{ServerVersion: state.Version}

	serverVersion, err := c.pullAll(ctx, st, alloc, cur, result)
	if err != nil {
		return result, err
	}

	for attempt := 1; attempt <= maxPushAttempts; attempt++ {
		pushed, conflict, newVersion, err := c.pushAll(ctx, st, cur, serverVersion)
		if err != nil {
			return result, err
		}
		result.Pushed += pushed
		result.ServerVersion = newVersion

		if !conflict {
			return result, nil
		}

		result.Conflicts++
		c.logger.Printf("Sync: peer rejected push (attempt %d), pulling and retrying", attempt)
		serverVersion, err = c.pullAll(ctx, st, alloc, cur, result)
		if err != nil {
			return result, err
		}
	}

	return result, fmt.Errorf("peer still reports conflict after %d attempts", maxPushAttempts)
}

// pullAll drains every table's remote changes into the local store and
// returns the peer's version.
func (c *Client) pullAll(ctx context.Context, st *store.Store, alloc *zsync.Allocator, cur *Cursor, result *Result) (int64, error) {
	var serverVersion int64

	for _, table := range schema.TableNames() {
		// The cursor holds the next version to request; since_version
		// is inclusive on the wire.
		since := cur.PullSince(table)

		for {
			var page server.PullData
			path := fmt.Sprintf("/pull?table=%s&since_version=%d", table, since)
			if err := c.get(ctx, path, &page); err != nil {
				return 0, fmt.Errorf("failed to pull %s: %w", table, err)
			}
			serverVersion = page.ServerVersion

			for _, change := range page.Changes {
				if change.Table == "" {
					change.Table = table
				}
				applied, err := zsync.ApplyChange(ctx, st, alloc, change, c.logger)
				if err != nil {
					return 0, fmt.Errorf("failed to apply remote change for %s: %w", table, err)
				}
				if applied {
					result.Pulled++
				}
				if change.Version >= since {
					since = change.Version + 1
				}
			}

			cur.SetPullSince(table, since)

			if page.NextVersion == nil {
				break
			}
			if *page.NextVersion > since {
				since = *page.NextVersion
			}
		}
	}

	return serverVersion, nil
}

// pushAll sends local changes the peer has not seen. Returns the
// accepted count, whether the peer reported a batch conflict, and the
// peer's resulting version.
func (c *Client) pushAll(ctx context.Context, st *store.Store, cur *Cursor, clientVersion int64) (int, bool, int64, error) {
	pushed := 0
	serverVersion := clientVersion

	for _, table := range schema.TableNames() {
		since := cur.PushSince(table)

		changes, err := zsync.LoadChanges(ctx, st, table, since, zsync.MaxPageSize, c.logger)
		if err != nil {
			return pushed, false, serverVersion, fmt.Errorf("failed to load local changes for %s: %w", table, err)
		}
		if len(changes) == 0 {
			continue
		}

		req := server.PushRequest{
			Table:         table,
			Changes:       changes,
			ClientVersion: clientVersion,
		}

		var resp server.PushData
		if err := c.post(ctx, "/push", req, &resp); err != nil {
			return pushed, false, serverVersion, fmt.Errorf("failed to push %s: %w", table, err)
		}
		serverVersion = resp.ServerVersion

		if resp.Conflict {
			return pushed, true, serverVersion, nil
		}

		pushed += resp.Applied
		clientVersion = resp.ServerVersion
		cur.SetPushSince(table, changes[len(changes)-1].Version)
	}

	return pushed, false, serverVersion, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, data, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("peer returned %d with unreadable body: %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || !env.Success {
		msg := "unknown error"
		if env.Message != nil {
			msg = *env.Message
		}
		return fmt.Errorf("peer returned %d: %s", resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
