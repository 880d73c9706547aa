package domain

import "time"

// Credential binds a platform identity to its single long-lived API key.
type Credential struct {
	SteamID   string    `db:"steam_id" json:"steam_id"`
	APIKey    string    `db:"api_key" json:"api_key"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
