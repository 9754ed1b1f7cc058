// Copyright (c) 2025 Justin Cranford
//
//

package rotation

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	googleUuid "github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"mpoauthn/internal/apperr"
	josecrypto "mpoauthn/internal/crypto/jose"
	"mpoauthn/internal/domain"
	"mpoauthn/internal/repository/orm"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, orm.KeyRepository) {
	t.Helper()

	dbID, err := googleUuid.NewV7()
	require.NoError(t, err)

	sqlDB, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", dbID.String()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, orm.AutoMigrateSQLite(db))

	keys := orm.NewKeyRepository(db)

	cipher, err := josecrypto.NewEnvelopeCipher("test-master-key")
	require.NoError(t, err)

	if cfg.KeySize == 0 {
		cfg.KeySize = 2048
	}

	if cfg.KeyIDPrefix == "" {
		cfg.KeyIDPrefix = "webauthn"
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := NewEngine(logger, keys, cipher, cfg)

	return engine, keys
}

func TestEngine_Initialize_CreatesBootstrapActiveKey(t *testing.T) {
	t.Parallel()

	engine, keys := newTestEngine(t, Config{})
	ctx := context.Background()

	require.NoError(t, engine.Initialize(ctx))

	active, err := keys.GetActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, "webauthn-bootstrap", active.KeyID)
}

func TestEngine_Initialize_IsIdempotent(t *testing.T) {
	t.Parallel()

	engine, keys := newTestEngine(t, Config{})
	ctx := context.Background()

	require.NoError(t, engine.Initialize(ctx))
	require.NoError(t, engine.Initialize(ctx))

	active, err := keys.GetActive(ctx)
	require.NoError(t, err)
	require.Equal(t, "webauthn-bootstrap", active.KeyID)
}

func TestEngine_GetActiveSigningKey_CachesAfterFirstLoad(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, Config{})
	ctx := context.Background()
	require.NoError(t, engine.Initialize(ctx))

	first, err := engine.GetActiveSigningKey(ctx)
	require.NoError(t, err)
	require.Equal(t, "webauthn-bootstrap", first.KeyID)

	second, err := engine.GetActiveSigningKey(ctx)
	require.NoError(t, err)
	require.Same(t, first, second, "second call should be served from the single-slot cache")
}

func TestEngine_GetActiveSigningKey_NoActiveKey(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t, Config{})

	_, err := engine.GetActiveSigningKey(context.Background())
	require.ErrorIs(t, err, apperr.ErrKeyNotFound)
}

func TestEngine_Rotate_DoesNotTouchActiveKey(t *testing.T) {
	t.Parallel()

	engine, keys := newTestEngine(t, Config{Enabled: true})
	ctx := context.Background()
	require.NoError(t, engine.Initialize(ctx))

	pendingID, err := engine.Rotate(ctx, "manual")
	require.NoError(t, err)
	require.NotEqual(t, "webauthn-bootstrap", pendingID)

	active, err := keys.GetActive(ctx)
	require.NoError(t, err)
	require.Equal(t, "webauthn-bootstrap", active.KeyID, "rotate must not touch the current ACTIVE key")

	pending, err := keys.Get(ctx, pendingID)
	require.NoError(t, err)
	require.Equal(t, domain.KeyStatusPending, pending.Status)
	require.Equal(t, "manual", pending.Metadata["rotation_reason"])
	require.Equal(t, "webauthn-bootstrap", pending.Metadata["previous_key_id"])
}

func TestEngine_AcceleratedRotationLifecycle(t *testing.T) {
	t.Parallel()

	// Scenario 5 of the testable properties, accelerated: rotation_interval
	// 30s, grace_period 15s, retention 30s.
	engine, keys := newTestEngine(t, Config{
		Enabled: true, RotationInterval: 30 * time.Second, GracePeriod: 15 * time.Second, RetentionPeriod: 30 * time.Second,
	})
	ctx := context.Background()
	require.NoError(t, engine.Initialize(ctx))

	fakeNow := time.Now()
	engine.now = func() time.Time { return fakeNow }

	// Tick at t+31s: ACTIVE key is old enough, rotate creates PENDING.
	fakeNow = fakeNow.Add(31 * time.Second)
	require.NoError(t, engine.CheckAndRotateIfNeeded(ctx))
	require.NoError(t, engine.CheckAndActivatePendingKeys(ctx))

	pendingKeys, err := keys.ListByStatus(ctx, domain.KeyStatusPending)
	require.NoError(t, err)
	require.Len(t, pendingKeys, 1)
	k2 := pendingKeys[0].KeyID

	activeStillBootstrap, err := keys.GetActive(ctx)
	require.NoError(t, err)
	require.Equal(t, "webauthn-bootstrap", activeStillBootstrap.KeyID)

	// Tick at t+31+16s: grace period elapsed, K2 activates, K1 retires.
	fakeNow = fakeNow.Add(16 * time.Second)
	require.NoError(t, engine.CheckAndRotateIfNeeded(ctx))
	require.NoError(t, engine.CheckAndActivatePendingKeys(ctx))

	active, err := keys.GetActive(ctx)
	require.NoError(t, err)
	require.Equal(t, k2, active.KeyID)

	retired, err := keys.ListByStatus(ctx, domain.KeyStatusRetired)
	require.NoError(t, err)
	require.Len(t, retired, 1)
	require.Equal(t, "webauthn-bootstrap", retired[0].KeyID)
	require.NotNil(t, retired[0].ExpiresAt)

	publishable, err := keys.ListPublishable(ctx)
	require.NoError(t, err)
	require.Len(t, publishable, 2, "both keys remain published until K1's retention elapses")

	// Tick at t+31+16+31s: K1's retention window elapsed, it is deleted.
	fakeNow = fakeNow.Add(31 * time.Second)
	require.NoError(t, engine.CheckAndRotateIfNeeded(ctx))

	publishable, err = keys.ListPublishable(ctx)
	require.NoError(t, err)
	require.Len(t, publishable, 1)
	require.Equal(t, k2, publishable[0].KeyID)
}

func TestEngine_CheckAndActivatePendingKeys_RespectsGracePeriod(t *testing.T) {
	t.Parallel()

	engine, keys := newTestEngine(t, Config{Enabled: true, GracePeriod: time.Hour})
	ctx := context.Background()
	require.NoError(t, engine.Initialize(ctx))

	_, err := engine.Rotate(ctx, "manual")
	require.NoError(t, err)

	require.NoError(t, engine.CheckAndActivatePendingKeys(ctx))

	pending, err := keys.ListByStatus(ctx, domain.KeyStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1, "a PENDING key younger than the grace period must not activate")
}

func TestEngine_Disabled_NeverRotatesOrActivates(t *testing.T) {
	t.Parallel()

	engine, keys := newTestEngine(t, Config{Enabled: false, RotationInterval: time.Nanosecond, GracePeriod: time.Nanosecond})
	ctx := context.Background()
	require.NoError(t, engine.Initialize(ctx))

	require.NoError(t, engine.CheckAndRotateIfNeeded(ctx))
	require.NoError(t, engine.CheckAndActivatePendingKeys(ctx))

	pending, err := keys.ListByStatus(ctx, domain.KeyStatusPending)
	require.NoError(t, err)
	require.Empty(t, pending)
}
