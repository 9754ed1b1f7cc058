// Copyright (c) 2025 Justin Cranford
//
//

// Package rotation implements the Key Rotation Engine (C5): the state
// machine owner, key generator/retirer, and active-signing-pair cache.
// Grounded on the teacher's internal/apps/identity/rotation secret
// rotation service, generalized from secret rotation to the RSA JWT
// signing key lifecycle of §3/§4.5.
package rotation

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mpoauthn/internal/apperr"
	josecrypto "mpoauthn/internal/crypto/jose"
	"mpoauthn/internal/domain"
	"mpoauthn/internal/repository/orm"
	"mpoauthn/internal/shared/crypto/keygen"
)

// SigningPair is a decrypted RSA key pair bound to a key id, as handed to
// the Token Signer (C8).
type SigningPair struct {
	KeyID   string
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// activeCache is the single-slot atomic cache described in §4.5's
// caching contract: it holds one decrypted pair or nothing, invalidated
// on any state change.
type activeCache struct {
	mu   sync.Mutex
	pair *SigningPair
}

func (c *activeCache) get() *SigningPair {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pair
}

func (c *activeCache) set(pair *SigningPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pair = pair
}

func (c *activeCache) invalidate() {
	c.set(nil)
}

// Engine owns the key state machine.
type Engine struct {
	logger   *slog.Logger
	keys     orm.KeyRepository
	cipher   *josecrypto.EnvelopeCipher
	cache    activeCache
	keySize  int
	prefix   string
	enabled  bool
	rotation time.Duration
	grace    time.Duration
	retain   time.Duration
	now      func() time.Time
}

// Config configures rotation timing and key parameters.
type Config struct {
	Enabled          bool
	KeySize          int
	KeyIDPrefix      string
	RotationInterval time.Duration
	GracePeriod      time.Duration
	RetentionPeriod  time.Duration
}

// NewEngine constructs a Engine.
func NewEngine(logger *slog.Logger, keys orm.KeyRepository, cipher *josecrypto.EnvelopeCipher, cfg Config) *Engine {
	return &Engine{
		logger: logger, keys: keys, cipher: cipher,
		keySize: cfg.KeySize, prefix: cfg.KeyIDPrefix, enabled: cfg.Enabled,
		rotation: cfg.RotationInterval, grace: cfg.GracePeriod, retain: cfg.RetentionPeriod,
		now: time.Now,
	}
}

// bootstrapKeyID is stable across restarts and does not depend on
// wall-clock time, unlike the timestamped ids minted by later rotations.
func (e *Engine) bootstrapKeyID() string {
	return e.prefix + "-bootstrap"
}

func (e *Engine) timestampedKeyID(t time.Time) string {
	return fmt.Sprintf("%s-%s", e.prefix, t.UTC().Format("2006-01-02-150405"))
}

// Initialize mints a bootstrap ACTIVE key if none exists yet. Idempotent.
func (e *Engine) Initialize(ctx context.Context) error {
	active, err := e.keys.GetActive(ctx)
	if err != nil {
		return err
	}

	if active != nil {
		return nil
	}

	keyID := e.bootstrapKeyID()

	encryptedPrivate, publicPEM, err := e.generateEncryptedKeyMaterial()
	if err != nil {
		return err
	}

	now := e.now().UTC()
	key := &domain.Key{
		KeyID: keyID, PrivateKeyEncrypted: encryptedPrivate, PublicKeyPEM: publicPEM,
		Algorithm: "RS256", KeySize: e.keySize, Status: domain.KeyStatusActive,
		CreatedAt: now, ActivatedAt: &now,
		Metadata: domain.KeyMetadata{"rotation_reason": "bootstrap"},
	}

	if err := e.keys.Save(ctx, key); err != nil {
		return err
	}

	e.logger.Info("bootstrap signing key created", "key_id", keyID)

	return nil
}

// GetActiveSigningKey returns the cached active pair, loading and
// decrypting from the Key Store on a cache miss.
func (e *Engine) GetActiveSigningKey(ctx context.Context) (*SigningPair, error) {
	if pair := e.cache.get(); pair != nil {
		return pair, nil
	}

	active, err := e.keys.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	if active == nil {
		return nil, apperr.ErrKeyNotFound
	}

	pair, err := e.decryptPair(active)
	if err != nil {
		return nil, err
	}

	e.cache.set(pair)

	return pair, nil
}

// Rotate creates a PENDING key with a fresh RSA pair, recording reason
// and the previous active key id, without touching the current ACTIVE
// key.
func (e *Engine) Rotate(ctx context.Context, reason string) (string, error) {
	active, err := e.keys.GetActive(ctx)
	if err != nil {
		return "", err
	}

	previousKeyID := ""
	if active != nil {
		previousKeyID = active.KeyID
	}

	keyID := e.timestampedKeyID(e.now())

	encryptedPrivate, publicPEM, err := e.generateEncryptedKeyMaterial()
	if err != nil {
		return "", err
	}

	key := &domain.Key{
		KeyID: keyID, PrivateKeyEncrypted: encryptedPrivate, PublicKeyPEM: publicPEM,
		Algorithm: "RS256", KeySize: e.keySize, Status: domain.KeyStatusPending,
		CreatedAt: e.now().UTC(),
		Metadata:  domain.KeyMetadata{"rotation_reason": reason, "previous_key_id": previousKeyID},
	}

	if err := e.keys.Save(ctx, key); err != nil {
		return "", err
	}

	e.logger.Info("pending signing key created", "key_id", keyID, "reason", reason)

	return keyID, nil
}

// CheckAndRotateIfNeeded rotates when enabled and the ACTIVE key's age
// has reached the configured interval, then sweeps expired RETIRED keys.
func (e *Engine) CheckAndRotateIfNeeded(ctx context.Context) error {
	if !e.enabled {
		return e.CleanupExpiredKeys(ctx)
	}

	active, err := e.keys.GetActive(ctx)
	if err != nil {
		return err
	}

	if active != nil {
		reference := active.CreatedAt
		if active.ActivatedAt != nil {
			reference = *active.ActivatedAt
		}

		if e.now().Sub(reference) >= e.rotation {
			if _, err := e.Rotate(ctx, "Automatic rotation"); err != nil {
				return err
			}
		}
	}

	return e.CleanupExpiredKeys(ctx)
}

// CheckAndActivatePendingKeys promotes every PENDING key whose age has
// reached the grace period, in insertion order.
func (e *Engine) CheckAndActivatePendingKeys(ctx context.Context) error {
	if !e.enabled {
		return nil
	}

	pending, err := e.keys.ListByStatus(ctx, domain.KeyStatusPending)
	if err != nil {
		return err
	}

	// ListByStatus orders newest-first; activate oldest-eligible first.
	for i := len(pending) - 1; i >= 0; i-- {
		candidate := pending[i]
		if e.now().Sub(candidate.CreatedAt) >= e.grace {
			if err := e.activate(ctx, candidate.KeyID); err != nil {
				return err
			}
		}
	}

	return nil
}

// activate runs the activation sequence of §4.5: retire the current
// ACTIVE key before promoting the PENDING key, so the single-ACTIVE
// invariant is never violated, then invalidate the cache.
func (e *Engine) activate(ctx context.Context, pendingKeyID string) error {
	now := e.now().UTC()

	active, err := e.keys.GetActive(ctx)
	if err != nil {
		return err
	}

	if active != nil {
		if err := e.keys.UpdateStatus(ctx, active.KeyID, domain.KeyStatusRetired, now); err != nil {
			return err
		}

		if err := e.keys.UpdateExpiration(ctx, active.KeyID, now.Add(e.retain)); err != nil {
			return err
		}
	}

	if err := e.keys.UpdateStatus(ctx, pendingKeyID, domain.KeyStatusActive, now); err != nil {
		return err
	}

	e.cache.invalidate()

	e.logger.Info("signing key activated", "key_id", pendingKeyID, "previous_active", active)

	return nil
}

// CleanupExpiredKeys deletes every RETIRED key whose retention window
// has elapsed.
func (e *Engine) CleanupExpiredKeys(ctx context.Context) error {
	retired, err := e.keys.ListByStatus(ctx, domain.KeyStatusRetired)
	if err != nil {
		return err
	}

	now := e.now()

	for _, key := range retired {
		if key.IsExpired(now) {
			if err := e.keys.Delete(ctx, key.KeyID); err != nil {
				return err
			}

			e.logger.Info("retired signing key deleted", "key_id", key.KeyID)
		}
	}

	return nil
}

func (e *Engine) generateEncryptedKeyMaterial() (encryptedPrivate, publicPEM string, err error) {
	pair, err := keygen.GenerateRSAKeyPair(e.keySize)
	if err != nil {
		return "", "", apperr.WrapError(apperr.ErrKeyBackendFailure, err)
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(pair.Private),
	})

	encrypted, err := e.cipher.EncryptToString(string(privatePEM))
	if err != nil {
		return "", "", err
	}

	publicBytes, err := x509.MarshalPKIXPublicKey(pair.Public)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	publicBlock := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicBytes})

	return encrypted, string(publicBlock), nil
}

func (e *Engine) decryptPair(key *domain.Key) (*SigningPair, error) {
	privatePEM, err := e.cipher.DecryptFromString(key.PrivateKeyEncrypted)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return nil, apperr.WrapError(apperr.ErrDecryptionFailure, fmt.Errorf("no PEM block found for key %s", key.KeyID))
	}

	private, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, apperr.WrapError(apperr.ErrDecryptionFailure, fmt.Errorf("failed to parse private key: %w", err))
	}

	return &SigningPair{KeyID: key.KeyID, Private: private, Public: &private.PublicKey}, nil
}
