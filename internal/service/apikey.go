package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/masterbase/platform/internal/domain"
	"github.com/masterbase/platform/internal/repository"
)

// AccountChecker tells whether a platform account is too restricted to hold a key.
type AccountChecker interface {
	IsLimitedAccount(ctx context.Context, steamID string) (bool, error)
}

// APIKeyOptions configures provisioning policy.
type APIKeyOptions struct {
	// EarlyAccessOnly restricts provisioning to identities on the allowlist.
	EarlyAccessOnly bool
	// Checker, when set, refuses limited accounts.
	Checker AccountChecker
}

// APIKeyAuthority owns the identity-to-key bindings.
type APIKeyAuthority struct {
	pool   *pgxpool.Pool
	creds  repository.CredentialRepository
	outbox repository.OutboxRepository
	opts   APIKeyOptions
	logger *slog.Logger
	now    func() time.Time
	newKey func() string
}

// NewAPIKeyAuthority creates an APIKeyAuthority.
func NewAPIKeyAuthority(
	pool *pgxpool.Pool,
	creds repository.CredentialRepository,
	outbox repository.OutboxRepository,
	opts APIKeyOptions,
	logger *slog.Logger,
) *APIKeyAuthority {
	return &APIKeyAuthority{
		pool:   pool,
		creds:  creds,
		outbox: outbox,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newKey: func() string { return uuid.NewString() },
	}
}

// HasKey reports whether the identity already holds a key.
func (a *APIKeyAuthority) HasKey(ctx context.Context, steamID string) (bool, error) {
	cred, err := a.creds.FindBySteamID(ctx, a.pool, steamID)
	if err != nil {
		return false, domain.ErrInternal("lookup credential", err)
	}
	return cred != nil, nil
}

// Provision issues the identity's first key.
func (a *APIKeyAuthority) Provision(ctx context.Context, steamID string) (*domain.Credential, error) {
	if err := domain.ValidateSteamID(steamID); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := a.checkEligible(ctx, steamID); err != nil {
		return nil, err
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	existing, err := a.creds.FindBySteamID(ctx, tx, steamID)
	if err != nil {
		return nil, domain.ErrInternal("lookup credential", err)
	}
	if existing != nil {
		return nil, domain.ErrAlreadyProvisioned(steamID)
	}

	now := a.now()
	cred := &domain.Credential{SteamID: steamID, APIKey: a.newKey(), CreatedAt: now, UpdatedAt: now}
	if err := a.creds.Insert(ctx, tx, cred); err != nil {
		return nil, wrapInternal("insert credential", err)
	}
	if err := a.outbox.Insert(ctx, tx, domain.NewAPIKeyEvent(domain.EventAPIKeyProvisioned, steamID, now)); err != nil {
		return nil, domain.ErrInternal("write outbox", err)
	}
	if err := commit(ctx, tx); err != nil {
		return nil, err
	}

	a.logger.Info("api key provisioned", "steam_id", steamID)
	return cred, nil
}

func (a *APIKeyAuthority) checkEligible(ctx context.Context, steamID string) error {
	if a.opts.EarlyAccessOnly {
		ok, err := a.IsPrivileged(ctx, steamID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrForbidden("api keys are limited to early-access accounts")
		}
	}
	if a.opts.Checker != nil {
		limited, err := a.opts.Checker.IsLimitedAccount(ctx, steamID)
		if err != nil {
			return domain.ErrInternal("check account standing", err)
		}
		if limited {
			return domain.ErrForbidden("limited accounts cannot hold an api key")
		}
	}
	return nil
}

// Rotate replaces the identity's key. The old key stops working when the update commits;
// sessions follow the credential through the foreign key cascade.
func (a *APIKeyAuthority) Rotate(ctx context.Context, steamID string) (*domain.Credential, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := a.now()
	cred, err := a.creds.UpdateKey(ctx, tx, steamID, a.newKey(), now)
	if err != nil {
		return nil, wrapInternal("rotate key", err)
	}
	if cred == nil {
		return nil, domain.ErrNotFound("credential", steamID)
	}
	if err := a.outbox.Insert(ctx, tx, domain.NewAPIKeyEvent(domain.EventAPIKeyRotated, steamID, now)); err != nil {
		return nil, domain.ErrInternal("write outbox", err)
	}
	if err := commit(ctx, tx); err != nil {
		return nil, err
	}

	a.logger.Info("api key rotated", "steam_id", steamID)
	return cred, nil
}

// Resolve returns the identity owning apiKey.
func (a *APIKeyAuthority) Resolve(ctx context.Context, apiKey string) (string, error) {
	if apiKey == "" {
		return "", domain.ErrNotFound("api key", "")
	}
	cred, err := a.creds.FindByAPIKey(ctx, a.pool, apiKey)
	if err != nil {
		return "", domain.ErrInternal("lookup credential", err)
	}
	if cred == nil {
		return "", domain.ErrNotFound("api key", "")
	}
	return cred.SteamID, nil
}

// IsPrivileged reports allowlist membership.
func (a *APIKeyAuthority) IsPrivileged(ctx context.Context, steamID string) (bool, error) {
	ok, err := a.creds.IsPrivileged(ctx, a.pool, steamID)
	if err != nil {
		return false, domain.ErrInternal("check allowlist", err)
	}
	return ok, nil
}

// Info returns the identity's credential.
func (a *APIKeyAuthority) Info(ctx context.Context, steamID string) (*domain.Credential, error) {
	cred, err := a.creds.FindBySteamID(ctx, a.pool, steamID)
	if err != nil {
		return nil, domain.ErrInternal("lookup credential", err)
	}
	if cred == nil {
		return nil, domain.ErrNotFound("credential", steamID)
	}
	return cred, nil
}

// Authorize validates apiKey inside tx and holds a share lock on the credential
// until tx ends, so a concurrent rotation waits for it.
func (a *APIKeyAuthority) Authorize(ctx context.Context, tx pgx.Tx, apiKey string) (*domain.Credential, error) {
	if apiKey == "" {
		return nil, domain.ErrUnauthorized("missing api key")
	}
	cred, err := a.creds.LockByAPIKey(ctx, tx, apiKey)
	if err != nil {
		return nil, domain.ErrInternal("lookup credential", err)
	}
	if cred == nil {
		return nil, domain.ErrUnauthorized("invalid api key")
	}
	return cred, nil
}
