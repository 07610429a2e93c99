// Package providerconfig stores per-tenant marketplace credentials and
// enablement, encrypted at rest. The Edit API consults it to decide which
// providers to enqueue outbox rows for; the drain worker consults it to
// decrypt credentials and read rate-limit overrides.
package providerconfig

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/nacl/secretbox"

	"crypto/rand"
	"crypto/sha256"

	"github.com/wisbric/lotsync/internal/dbtx"
	"github.com/wisbric/lotsync/pkg/provideradapter"
)

// Config is one tenant's configuration for one provider.
type Config struct {
	TenantID           uuid.UUID
	Provider           string
	Enabled            bool
	Credentials        provideradapter.Credentials
	RateLimitCapacity  int
	RateLimitWindowMs  int
	UpdatedAt          time.Time
}

// Store provides database operations for provider configuration, encrypting
// credentials at rest with NaCl secretbox. The encryption key is derived
// once at startup from LOTSYNC_WEBHOOK_KEY_SECRET-adjacent config (see
// internal/app wiring) — reusing the same symmetric-key primitive the repo
// already depends on via golang.org/x/crypto rather than hand-rolling AES.
type Store struct {
	db  dbtx.DBTX
	key [32]byte
}

// NewStore creates a Store. key must be exactly 32 bytes; callers derive it
// once at startup (see pkg/providerconfig.DeriveKey) and never log it.
func NewStore(db dbtx.DBTX, key [32]byte) *Store {
	return &Store{db: db, key: key}
}

// DeriveKey expands an arbitrary-length secret into a 32-byte secretbox key
// by taking its SHA-256 digest — deployments are expected to supply a
// high-entropy secret directly (LOTSYNC_WEBHOOK_KEY_SECRET is
// reused for provider credential encryption since both are symmetric
// at-rest secrets scoped to this deployment).
func DeriveKey(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

func (s *Store) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

func (s *Store) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 24 {
		return nil, fmt.Errorf("ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])
	plaintext, ok := secretbox.Open(nil, ciphertext[24:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("decrypting credentials: authentication failed")
	}
	return plaintext, nil
}

// credSeparator joins APIKey and APISecret into the plaintext that gets
// encrypted; decodeCredentials splits at its first occurrence.
const credSeparator = "\x00"

func encodeCredentials(c provideradapter.Credentials) []byte {
	return []byte(c.APIKey + credSeparator + c.APISecret)
}

func decodeCredentials(raw []byte) provideradapter.Credentials {
	s := string(raw)
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return provideradapter.Credentials{APIKey: s[:i], APISecret: s[i+1:]}
		}
	}
	return provideradapter.Credentials{APIKey: s}
}

// Get fetches a tenant's configuration for provider. Returns a disabled,
// zero-value Config (no error) if no row exists — an unconfigured provider
// is a normal state, not a failure.
func (s *Store) Get(ctx context.Context, tenantID uuid.UUID, provider string) (Config, error) {
	var cfg Config
	cfg.TenantID = tenantID
	cfg.Provider = provider

	var cipher []byte
	var capacity, windowMs *int
	err := s.db.QueryRow(ctx,
		`SELECT enabled, credentials_cipher, rate_limit_capacity, rate_limit_window_ms, updated_at
		 FROM provider_configs WHERE tenant_id = $1 AND provider = $2`,
		tenantID, provider,
	).Scan(&cfg.Enabled, &cipher, &capacity, &windowMs, &cfg.UpdatedAt)
	if err == pgx.ErrNoRows {
		return Config{TenantID: tenantID, Provider: provider, Enabled: false}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading provider config: %w", err)
	}

	if len(cipher) > 0 {
		plaintext, err := s.decrypt(cipher)
		if err != nil {
			return Config{}, err
		}
		cfg.Credentials = decodeCredentials(plaintext)
	}
	if capacity != nil {
		cfg.RateLimitCapacity = *capacity
	}
	if windowMs != nil {
		cfg.RateLimitWindowMs = *windowMs
	}

	return cfg, nil
}

// EnabledProviders returns the providers enabled for a tenant, used by the
// Edit API to decide which outbox rows to enqueue.
func (s *Store) EnabledProviders(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT provider FROM provider_configs WHERE tenant_id = $1 AND enabled = true`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing enabled providers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning provider: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Upsert creates or replaces a tenant's configuration for a provider.
func (s *Store) Upsert(ctx context.Context, tenantID uuid.UUID, provider string, enabled bool, creds provideradapter.Credentials, rateLimitCapacity, rateLimitWindowMs int) error {
	cipher, err := s.encrypt(encodeCredentials(creds))
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO provider_configs (tenant_id, provider, enabled, credentials_cipher, rate_limit_capacity, rate_limit_window_ms)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id, provider) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			credentials_cipher = EXCLUDED.credentials_cipher,
			rate_limit_capacity = EXCLUDED.rate_limit_capacity,
			rate_limit_window_ms = EXCLUDED.rate_limit_window_ms,
			updated_at = now()`,
		tenantID, provider, enabled, cipher, rateLimitCapacity, rateLimitWindowMs,
	)
	if err != nil {
		return fmt.Errorf("upserting provider config: %w", err)
	}
	return nil
}
