// Command issue-token mints a JWT for a player, reviewer or admin. There is no
// login flow; operators hand these out.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/masterbase/platform/internal/auth"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/infra"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(os.Args[1:]); err != nil {
		logger.Error("issue token failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	realm := fs.String("realm", string(auth.RealmPlayer), "player, reviewer or admin")
	steamID := fs.String("steam-id", "", "SteamID64 of the subject")
	role := fs.String("role", "", "admin role (analyst or admin); admin realm only")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := domain.ValidateSteamID(*steamID); err != nil {
		return err
	}
	r := auth.Realm(*realm)
	switch r {
	case auth.RealmPlayer, auth.RealmReviewer:
		if *role != "" {
			return fmt.Errorf("role is only valid for the admin realm")
		}
	case auth.RealmAdmin:
		if !auth.ValidAdminRole(*role) {
			return fmt.Errorf("invalid admin role %q", *role)
		}
	default:
		return fmt.Errorf("unknown realm %q", *realm)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTPlayerExpiry, cfg.JWTReviewerExpiry, cfg.JWTAdminExpiry)
	token, err := jwtMgr.GenerateToken(r, *steamID, *role)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	fmt.Println(token)
	return nil
}
