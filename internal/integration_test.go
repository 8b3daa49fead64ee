package internal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-session-backend/config"
	"laundry-session-backend/internal/db"
	"laundry-session-backend/internal/laundry"
	"laundry-session-backend/internal/model"
	"laundry-session-backend/internal/notification"
	"laundry-session-backend/internal/store"
	"laundry-session-backend/internal/verify"
)

type recordingDispatcher struct {
	machines []string
}

func (d *recordingDispatcher) Dispatch(machineID string) bool {
	d.machines = append(d.machines, machineID)
	return true
}

// TestSessionLifecycle drives one load from registration to pickup against a file-backed
// sqlite database built from a config file, then reopens the database as a restart would.
func TestSessionLifecycle(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "laundry.sqlite3")
	configPath := filepath.Join(dir, "config.yaml")
	yaml := "database:\n" +
		"  driver: sqlite\n" +
		"  dsn: " + dsn + "\n" +
		"laundry:\n" +
		"  cycle_minutes: 40\n" +
		"  grace_minutes: 5\n" +
		"  supervisor_code: \"135790\"\n"
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o600))

	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("SUPERVISOR_CODE", "")

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 40*time.Minute, cfg.Laundry.CycleDuration)

	gormDB, err := db.Init(&cfg.Database)
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	dispatcher := &recordingDispatcher{}
	appStore := store.NewGormStore(gormDB)
	svc := laundry.NewService(
		appStore,
		verify.NewGate(cfg.Laundry.SupervisorCode),
		notification.NewTwilioProvider(cfg.SMS),
		dispatcher,
		laundry.Options{
			CycleDuration: cfg.Laundry.CycleDuration,
			GraceMinutes:  cfg.Laundry.GraceMinutes,
			Now:           func() time.Time { return now },
		},
	)
	ctx := context.Background()

	// --- Scan and register ---
	scan, err := svc.Scan(ctx, "FD5")
	require.NoError(t, err)
	assert.Equal(t, laundry.ActionStart, scan.Action)

	session, err := svc.StartSession(ctx, "FD5", laundry.StartRequest{
		FirstName: "Lin",
		LastName:  "Wei",
		Phone:     "(555) 010-2030",
	})
	require.NoError(t, err)
	assert.Equal(t, "5550102030", session.Phone)

	// --- Cycle ends; SMS is not configured so the failure is recorded ---
	now = now.Add(40 * time.Minute)
	res, err := svc.NotifyFinish(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, model.FailedStatus(notification.KindMissingConfig), res.Status)

	// --- Pickup 17 minutes late ---
	now = now.Add(17 * time.Minute)
	_, err = svc.VerifyPickup(ctx, "FD5", session.VerificationCode)
	require.NoError(t, err)
	done, err := svc.ConfirmPickup(ctx, session.ID, session.VerificationCode)
	require.NoError(t, err)
	assert.Equal(t, 17, done.Delay.LateMinutes)
	assert.Equal(t, 12, done.Delay.DelayMinutes)
	assert.Equal(t, []string{"FD5"}, dispatcher.machines)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	// --- Restart: migrations are idempotent and state survives ---
	reopened, err := db.Init(&cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := reopened.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	restarted := store.NewGormStore(reopened)

	stored, err := restarted.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionPickedUp, stored.Status)
	require.NotNil(t, stored.DelayMinutes)
	assert.Equal(t, 12, *stored.DelayMinutes)
	assert.Equal(t, "FAILED:MISSING_CONFIG", stored.FinishNotifyStatus)

	m, err := restarted.GetMachine(ctx, "FD5")
	require.NoError(t, err)
	assert.Equal(t, model.OccupancyVacant, m.Occupancy)

	// the partial unique index was recreated
	_, err = restarted.CreateSession(ctx, store.NewSession{MachineID: "FD5", Phone: "5550000000", TimeIn: now, ExpectedEnd: now})
	require.NoError(t, err)
	_, err = restarted.CreateSession(ctx, store.NewSession{MachineID: "FD5", Phone: "5550000000", TimeIn: now, ExpectedEnd: now})
	assert.ErrorIs(t, err, store.ErrActiveSessionExists)
}
