package token

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"

	"github.com/pulldeck/pulldeck/internal/client/repositories/metadata"
	"github.com/pulldeck/pulldeck/internal/cryptox"
	"github.com/pulldeck/pulldeck/internal/dbx"
)

// SealedStore keeps the credential AES-GCM-sealed in the metadata table under
// a key derived from a per-installation device secret. The secret and salt
// are generated on first use and persisted alongside the blob; this is
// at-rest hygiene, not a defense against an attacker who owns the machine.
type SealedStore struct {
	db   *sql.DB
	meta metadata.Repository
	key  []byte
}

// NewSealedStore loads (or generates) the device secret and sealing salt and
// derives the sealing key.
func NewSealedStore(ctx context.Context, db *sql.DB) (*SealedStore, error) {
	meta := metadata.NewSQLiteRepository(db)

	secret, err := loadOrCreate(ctx, meta, metadata.KeyDeviceSecret, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to init device secret: %w", err)
	}
	salt, err := loadOrCreate(ctx, meta, metadata.KeyCredentialSalt, 16)
	if err != nil {
		return nil, fmt.Errorf("failed to init credential salt: %w", err)
	}

	return &SealedStore{db: db, meta: meta, key: cryptox.DeriveKey(secret, salt)}, nil
}

func loadOrCreate(ctx context.Context, meta metadata.Repository, key string, size int) ([]byte, error) {
	value, err := meta.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if value != nil {
		return value, nil
	}

	value = make([]byte, size)
	if _, err := rand.Read(value); err != nil {
		return nil, err
	}
	if err := meta.Set(ctx, key, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *SealedStore) Load(ctx context.Context) (*AccessCredential, error) {
	blob, err := s.meta.Get(ctx, metadata.KeyCredentialBlob)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if blob == nil {
		return nil, nil
	}

	nonce, err := s.meta.Get(ctx, metadata.KeyCredentialNonce)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential nonce: %w", err)
	}

	var cred AccessCredential
	if err := cryptox.Open(blob, nonce, s.key, &cred); err != nil {
		return nil, fmt.Errorf("failed to unseal credential: %w", err)
	}
	return &cred, nil
}

func (s *SealedStore) Save(ctx context.Context, cred *AccessCredential) error {
	blob, nonce, err := cryptox.Seal(cred, s.key)
	if err != nil {
		return fmt.Errorf("failed to seal credential: %w", err)
	}

	// The blob is useless without its nonce, so both land in one transaction.
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, metadata.KeyCredentialBlob, blob); err != nil {
			return err
		}
		return repo.Set(ctx, metadata.KeyCredentialNonce, nonce)
	})
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (s *SealedStore) Clear(ctx context.Context) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Delete(ctx, metadata.KeyCredentialBlob); err != nil {
			return err
		}
		return repo.Delete(ctx, metadata.KeyCredentialNonce)
	})
	if err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}
