package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/guard"
	"github.com/masterbase/platform/internal/infra"
)

// SteamIDRoster treats in-capture player ids as SteamIDs (full or 32-bit account ids).
type SteamIDRoster struct{}

// Resolve converts player to a SteamID64 string.
func (SteamIDRoster) Resolve(_ context.Context, _ string, player int64) (string, error) {
	return domain.SteamID64FromPlayer(player)
}

// RosterClient resolves in-capture player ids through a roster service that knows
// which account sat in which slot of a session. Answers are cached per session and slot.
// When the service has no entry the id is read as a SteamID.
type RosterClient struct {
	baseURL  string
	logger   *slog.Logger
	client   *http.Client
	cache    *expirable.LRU[string, string]
	fallback SteamIDRoster
	breaker  *guard.CircuitBreaker
}

// NewRosterClient creates a roster client with an LRU cache of size entries expiring after ttl.
func NewRosterClient(baseURL string, size int, ttl time.Duration, logger *slog.Logger) *RosterClient {
	return &RosterClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		client:  &http.Client{Timeout: 3 * time.Second},
		cache:   expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// WithBreaker routes roster lookups through cb.
func (c *RosterClient) WithBreaker(cb *guard.CircuitBreaker) *RosterClient {
	c.breaker = cb
	return c
}

// notCancelled keeps caller cancellations from counting against an upstream.
func notCancelled(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Resolve maps (session, in-capture player) to a SteamID64.
func (c *RosterClient) Resolve(ctx context.Context, sessionID string, player int64) (string, error) {
	key := fmt.Sprintf("%s/%d", sessionID, player)
	if steamID, ok := c.cache.Get(key); ok {
		infra.RosterCacheHits.Inc()
		return steamID, nil
	}
	infra.RosterCacheMisses.Inc()

	var (
		steamID string
		found   bool
		err     error
	)
	if c.breaker == nil {
		steamID, found, err = c.lookup(ctx, sessionID, player)
	} else {
		err = c.breaker.Do("roster", func() error {
			var lookupErr error
			steamID, found, lookupErr = c.lookup(ctx, sessionID, player)
			return lookupErr
		}, notCancelled)
	}
	if err != nil {
		return "", err
	}
	if !found {
		steamID, err = c.fallback.Resolve(ctx, sessionID, player)
		if err != nil {
			return "", err
		}
	}

	c.cache.Add(key, steamID)
	return steamID, nil
}

func (c *RosterClient) lookup(ctx context.Context, sessionID string, player int64) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/sessions/%s/players/%d", c.baseURL, sessionID, player), nil)
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("roster call: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("roster returned %d", resp.StatusCode)
	}

	var body struct {
		SteamID string `json:"steam_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false, fmt.Errorf("decode roster response: %w", err)
	}
	if err := domain.ValidateSteamID(body.SteamID); err != nil {
		return "", false, fmt.Errorf("roster answer for %s/%d: %w", sessionID, player, err)
	}
	return body.SteamID, true, nil
}
