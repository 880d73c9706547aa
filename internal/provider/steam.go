package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/masterbase/platform/internal/guard"
)

// SteamProfileClient reads public Steam community profiles.
type SteamProfileClient struct {
	baseURL string
	logger  *slog.Logger
	client  *http.Client
	breaker *guard.CircuitBreaker
}

// NewSteamProfileClient creates a client against the community site, e.g. https://steamcommunity.com.
func NewSteamProfileClient(baseURL string, logger *slog.Logger) *SteamProfileClient {
	return &SteamProfileClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// WithBreaker sheds profile calls through cb once the community site keeps failing.
func (c *SteamProfileClient) WithBreaker(cb *guard.CircuitBreaker) *SteamProfileClient {
	c.breaker = cb
	return c
}

type steamProfile struct {
	XMLName          xml.Name `xml:"profile"`
	SteamID64        string   `xml:"steamID64"`
	IsLimitedAccount *int     `xml:"isLimitedAccount"`
}

// IsLimitedAccount reports whether the account is a limited (unpaid) Steam account.
// Profiles that do not expose the flag count as not limited.
func (c *SteamProfileClient) IsLimitedAccount(ctx context.Context, steamID string) (bool, error) {
	if c.breaker == nil {
		return c.fetchLimited(ctx, steamID)
	}
	var limited bool
	err := c.breaker.Do("steam-community", func() error {
		var err error
		limited, err = c.fetchLimited(ctx, steamID)
		return err
	}, notCancelled)
	return limited, err
}

func (c *SteamProfileClient) fetchLimited(ctx context.Context, steamID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/profiles/%s?xml=1", c.baseURL, steamID), nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("profile call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("profile returned %d", resp.StatusCode)
	}

	var profile steamProfile
	if err := xml.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return false, fmt.Errorf("decode profile: %w", err)
	}

	if profile.IsLimitedAccount == nil {
		c.logger.Debug("profile has no limited-account flag", "steam_id", steamID)
		return false, nil
	}
	return *profile.IsLimitedAccount != 0, nil
}
