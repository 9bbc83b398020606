package domain

import "context"

type VaultRepository interface {
	// GetVault returns nil if the subject never had a vault.
	GetVault(ctx context.Context, subject SubjectId) (*Vault, error)
	GetActiveVaults(ctx context.Context) ([]Vault, error)
	Close()
}
