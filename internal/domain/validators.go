package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// steamID64Base is the SteamID64 of individual account number zero.
const steamID64Base = 76561197960265728

// ErrUnresolvablePlayer marks an in-capture player id that cannot be read as a SteamID.
var ErrUnresolvablePlayer = errors.New("unresolvable player id")

var (
	steamIDRegex   = regexp.MustCompile(`^[0-9]{17}$`)
	sessionIDRegex = regexp.MustCompile(`^[0-9A-Za-z-]{1,64}$`)
)

// ValidateSteamID checks that a platform identity is a SteamID64 of an individual account.
func ValidateSteamID(steamID string) error {
	if steamID == "" {
		return fmt.Errorf("steam id is required")
	}
	if !steamIDRegex.MatchString(steamID) {
		return fmt.Errorf("invalid steam id: %s", steamID)
	}
	n, err := strconv.ParseInt(steamID, 10, 64)
	if err != nil || n < steamID64Base || n > steamID64Base+0xFFFFFFFF {
		return fmt.Errorf("invalid steam id: %s", steamID)
	}
	return nil
}

// ValidateSessionID checks a caller-supplied session id: an opaque 128-bit
// identifier rendered as decimal, hex, or a dashed UUID.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session_id is required")
	}
	if !sessionIDRegex.MatchString(id) {
		return fmt.Errorf("invalid session_id: %s", id)
	}
	return nil
}

// SteamID64FromPlayer converts an in-capture player id to a SteamID64 string.
// Captures carry either the full SteamID64 or the 32-bit account id.
func SteamID64FromPlayer(player int64) (string, error) {
	switch {
	case player <= 0:
		return "", fmt.Errorf("%w: %d", ErrUnresolvablePlayer, player)
	case player >= steamID64Base && player <= steamID64Base+0xFFFFFFFF:
		return strconv.FormatInt(player, 10), nil
	case player <= 0xFFFFFFFF:
		return strconv.FormatInt(player+steamID64Base, 10), nil
	default:
		return "", fmt.Errorf("%w: %d is neither an account id nor a SteamID64", ErrUnresolvablePlayer, player)
	}
}
