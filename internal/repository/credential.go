package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/masterbase/platform/internal/domain"
)

type credentialRepo struct{}

// NewCredentialRepository returns a pgx-backed CredentialRepository.
func NewCredentialRepository() CredentialRepository {
	return &credentialRepo{}
}

var credentialSelect = `SELECT ` + selectList(credentialColumns) + ` FROM api_keys`

func (r *credentialRepo) FindBySteamID(ctx context.Context, db DBTX, steamID string) (*domain.Credential, error) {
	return collectCredential(db.Query(ctx, credentialSelect+` WHERE steam_id = $1`, steamID))
}

func (r *credentialRepo) FindByAPIKey(ctx context.Context, db DBTX, apiKey string) (*domain.Credential, error) {
	return collectCredential(db.Query(ctx, credentialSelect+` WHERE api_key = $1`, apiKey))
}

func (r *credentialRepo) LockByAPIKey(ctx context.Context, tx pgx.Tx, apiKey string) (*domain.Credential, error) {
	return collectCredential(tx.Query(ctx, credentialSelect+` WHERE api_key = $1 FOR SHARE`, apiKey))
}

func (r *credentialRepo) Insert(ctx context.Context, db DBTX, cred *domain.Credential) error {
	_, err := db.Exec(ctx, `
		INSERT INTO api_keys (steam_id, api_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4)`,
		cred.SteamID, cred.APIKey, cred.CreatedAt, cred.UpdatedAt)
	if constraint, ok := uniqueViolation(err); ok {
		if constraint == "api_keys_pkey" {
			return domain.ErrAlreadyProvisioned(cred.SteamID)
		}
		return domain.ErrConflict("generated api key collided; retry")
	}
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (r *credentialRepo) UpdateKey(ctx context.Context, db DBTX, steamID, apiKey string, at time.Time) (*domain.Credential, error) {
	cred, err := collectCredential(db.Query(ctx, `
		UPDATE api_keys SET api_key = $2, updated_at = $3
		WHERE steam_id = $1
		RETURNING `+selectList(credentialColumns), steamID, apiKey, at))
	if _, ok := uniqueViolation(err); ok {
		return nil, domain.ErrConflict("generated api key collided; retry")
	}
	return cred, err
}

func (r *credentialRepo) IsPrivileged(ctx context.Context, db DBTX, steamID string) (bool, error) {
	var ok bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM beta_tester_steam_ids WHERE steam_id = $1)`, steamID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check allowlist: %w", err)
	}
	return ok, nil
}

func collectCredential(rows pgx.Rows, err error) (*domain.Credential, error) {
	if err != nil {
		return nil, fmt.Errorf("query credential: %w", err)
	}
	cred, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[domain.Credential])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	return cred, nil
}
