package laundry

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"laundry-session-backend/internal/db"
	"laundry-session-backend/internal/model"
	"laundry-session-backend/internal/notification"
	"laundry-session-backend/internal/store"
	"laundry-session-backend/internal/verify"
)

const supervisorCode = "246810"

type fakeProvider struct {
	mu     sync.Mutex
	calls  []string
	result notification.Result
}

func (f *fakeProvider) Send(_ context.Context, to, body string) notification.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, to+"|"+body)
	return f.result
}

func (f *fakeProvider) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDispatcher struct {
	machines []string
}

func (f *fakeDispatcher) Dispatch(machineID string) bool {
	f.machines = append(f.machines, machineID)
	return true
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	svc     *Service
	store   store.Store
	sms     *fakeProvider
	vacancy *fakeDispatcher
	clock   *clock
}

func newFixture(t *testing.T) *fixture {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gormDB, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gormDB))

	f := &fixture{
		store:   store.NewGormStore(gormDB),
		sms:     &fakeProvider{result: notification.Result{Success: true, MessageID: "SM42"}},
		vacancy: &fakeDispatcher{},
		clock:   &clock{t: time.Date(2025, 3, 1, 9, 15, 0, 0, time.UTC)},
	}
	f.svc = NewService(f.store, verify.NewGate(supervisorCode), f.sms, f.vacancy, Options{
		CycleDuration: 45 * time.Minute,
		GraceMinutes:  6,
		Now:           f.clock.now,
	})
	return f
}

func (f *fixture) start(t *testing.T, machineID string) *model.Session {
	t.Helper()
	s, err := f.svc.StartSession(context.Background(), machineID, StartRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Phone:     "(555) 123-4567",
	})
	require.NoError(t, err)
	return s
}

func TestService_Scan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Scan(ctx, "XA1")
	assert.ErrorIs(t, err, ErrInvalidMachineID)

	res, err := f.svc.Scan(ctx, "MA3")
	require.NoError(t, err)
	assert.Equal(t, ActionStart, res.Action)
	assert.Nil(t, res.ActiveSession)
	assert.Equal(t, model.OccupancyVacant, res.Machine.Occupancy)

	session := f.start(t, "MA3")
	res, err = f.svc.Scan(ctx, "MA3")
	require.NoError(t, err)
	assert.Equal(t, ActionVerify, res.Action)
	require.NotNil(t, res.ActiveSession)
	assert.Equal(t, session.ID, res.ActiveSession.ID)

	_, err = f.svc.ReportBroken(ctx, "FD8", supervisorCode, "")
	require.NoError(t, err)
	res, err = f.svc.Scan(ctx, "FD8")
	require.NoError(t, err)
	assert.Equal(t, ActionUnavailable, res.Action)
}

func TestService_StartSession(t *testing.T) {
	t.Run("registers and occupies", func(t *testing.T) {
		f := newFixture(t)
		s := f.start(t, "MB1")

		assert.Equal(t, "5551234567", s.Phone)
		assert.Len(t, s.VerificationCode, verify.CodeDigits)
		assert.Equal(t, f.clock.t, s.TimeIn)
		assert.Equal(t, f.clock.t.Add(45*time.Minute), s.ExpectedEnd)

		m, err := f.store.GetMachine(context.Background(), "MB1")
		require.NoError(t, err)
		assert.Equal(t, model.OccupancyOccupied, m.Occupancy)
	})

	t.Run("rejects invalid fields without touching state", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.StartSession(context.Background(), "MB1", StartRequest{
			FirstName: "  ",
			Phone:     "555-1234",
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "firstName")
		assert.Contains(t, verr.Fields, "lastName")
		assert.Contains(t, verr.Fields, "phone")

		_, err = f.store.GetMachine(context.Background(), "MB1")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("rejects an invalid machine id", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.StartSession(context.Background(), "ma1", StartRequest{FirstName: "A", LastName: "B", Phone: "5551234567"})
		assert.ErrorIs(t, err, ErrInvalidMachineID)
	})

	t.Run("second start is refused", func(t *testing.T) {
		f := newFixture(t)
		f.start(t, "MB1")
		_, err := f.svc.StartSession(context.Background(), "MB1", StartRequest{FirstName: "B", LastName: "C", Phone: "5559876543"})
		assert.ErrorIs(t, err, store.ErrActiveSessionExists)
	})

	t.Run("broken machine is refused", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ReportBroken(context.Background(), "MB1", supervisorCode, "leaking")
		require.NoError(t, err)
		_, err = f.svc.StartSession(context.Background(), "MB1", StartRequest{FirstName: "A", LastName: "B", Phone: "5551234567"})
		assert.ErrorIs(t, err, store.ErrMachineBroken)
	})
}

func TestService_VerifyPickup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.VerifyPickup(ctx, "FA2", "123456")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	s := f.start(t, "FA2")

	got, err := f.svc.VerifyPickup(ctx, "FA2", s.VerificationCode)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	_, err = f.svc.VerifyPickup(ctx, "FA2", supervisorCode)
	assert.NoError(t, err, "supervisor code is accepted for any session")

	wrong := "000000"
	if s.VerificationCode == wrong {
		wrong = "111111"
	}
	_, err = f.svc.VerifyPickup(ctx, "FA2", wrong)
	assert.ErrorIs(t, err, verify.ErrIncorrectCode)

	m, err := f.store.GetMachine(ctx, "FA2")
	require.NoError(t, err)
	assert.Equal(t, model.OccupancyOccupied, m.Occupancy, "verification never mutates state")
}

func TestService_Pickup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, "MC4")

	f.clock.advance(45*time.Minute + 12*time.Minute)

	preview, err := f.svc.PreviewPickup(ctx, s.ID, s.VerificationCode)
	require.NoError(t, err)
	assert.Equal(t, Delay{LateMinutes: 12, DelayMinutes: 6}, preview.Delay)

	stored, err := f.store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, stored.Status, "preview does not mutate")

	// commit time is authoritative
	f.clock.advance(3 * time.Minute)
	done, err := f.svc.ConfirmPickup(ctx, s.ID, s.VerificationCode)
	require.NoError(t, err)
	assert.Equal(t, Delay{LateMinutes: 15, DelayMinutes: 9}, done.Delay)
	assert.Equal(t, model.SessionPickedUp, done.Session.Status)
	require.NotNil(t, done.Session.DelayMinutes)
	assert.Equal(t, 9, *done.Session.DelayMinutes)

	m, err := f.store.GetMachine(ctx, "MC4")
	require.NoError(t, err)
	assert.Equal(t, model.OccupancyVacant, m.Occupancy)
	assert.Equal(t, []string{"MC4"}, f.vacancy.machines)

	_, err = f.svc.ConfirmPickup(ctx, s.ID, s.VerificationCode)
	assert.ErrorIs(t, err, store.ErrAlreadyPickedUp)
	_, err = f.svc.PreviewPickup(ctx, s.ID, s.VerificationCode)
	assert.ErrorIs(t, err, store.ErrAlreadyPickedUp)

	_, err = f.svc.ConfirmPickup(ctx, s.ID+100, s.VerificationCode)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_ConfirmPickup_WrongCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.start(t, "MC4")

	wrong := "999999"
	if s.VerificationCode == wrong {
		wrong = "888888"
	}
	_, err := f.svc.ConfirmPickup(ctx, s.ID, wrong)
	assert.ErrorIs(t, err, verify.ErrIncorrectCode)

	stored, err := f.store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, stored.Status)
	assert.Empty(t, f.vacancy.machines)
}

func TestService_PickupBeforeExpectedEnd(t *testing.T) {
	f := newFixture(t)
	s := f.start(t, "MD1")
	f.clock.advance(10 * time.Minute)

	done, err := f.svc.ConfirmPickup(context.Background(), s.ID, supervisorCode)
	require.NoError(t, err)
	assert.Equal(t, Delay{}, done.Delay)
}

func TestService_NotifyFinish(t *testing.T) {
	t.Run("refused before the cycle ends", func(t *testing.T) {
		f := newFixture(t)
		s := f.start(t, "FB3")

		_, err := f.svc.NotifyFinish(context.Background(), s.ID)
		assert.ErrorIs(t, err, ErrCycleNotFinished)
		assert.Zero(t, f.sms.count())
	})

	t.Run("sends once and returns the cached result afterwards", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		s := f.start(t, "FB3")
		f.clock.advance(45 * time.Minute)

		res, err := f.svc.NotifyFinish(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "SENT:SM42", res.Status)
		assert.False(t, res.Cached)
		require.Equal(t, 1, f.sms.count())
		assert.True(t, strings.HasPrefix(f.sms.calls[0], "+15551234567|Hi Ada, Your session is done."))
		assert.Contains(t, f.sms.calls[0], "washing machine 3 in hallway B, second floor (Girls)")

		require.NotNil(t, res.SentAt)
		assert.True(t, f.clock.t.Equal(*res.SentAt))
		sentAt := *res.SentAt

		f.clock.advance(5 * time.Minute)
		again, err := f.svc.NotifyFinish(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, again.Cached)
		assert.Equal(t, "SM42", again.MessageID)
		assert.Equal(t, "SENT:SM42", again.Status)
		require.NotNil(t, again.SentAt)
		assert.True(t, sentAt.Equal(*again.SentAt), "cached timestamp is unchanged")
		assert.Equal(t, 1, f.sms.count(), "no second send")

		stored, err := f.store.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "SENT:SM42", stored.FinishNotifyStatus)
		require.NotNil(t, stored.FinishNotifySentAt)
	})

	t.Run("failure is recorded and retried", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.sms.result = notification.Result{ErrorKind: notification.KindTimeout}
		s := f.start(t, "FB3")
		f.clock.advance(50 * time.Minute)

		res, err := f.svc.NotifyFinish(ctx, s.ID)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "FAILED:TIMEOUT", res.Status)

		stored, err := f.store.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "FAILED:TIMEOUT", stored.FinishNotifyStatus)

		f.sms.result = notification.Result{Success: true, MessageID: "SM7"}
		res, err = f.svc.NotifyFinish(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 2, f.sms.count())
	})

	t.Run("cached result survives pickup", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		s := f.start(t, "FB3")
		f.clock.advance(45 * time.Minute)
		sentAt := f.clock.t

		_, err := f.svc.NotifyFinish(ctx, s.ID)
		require.NoError(t, err)
		f.clock.advance(10 * time.Minute)
		_, err = f.svc.ConfirmPickup(ctx, s.ID, s.VerificationCode)
		require.NoError(t, err)

		res, err := f.svc.NotifyFinish(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.True(t, res.Cached)
		assert.Equal(t, "SM42", res.MessageID)
		assert.Equal(t, "SENT:SM42", res.Status)
		require.NotNil(t, res.SentAt)
		assert.True(t, sentAt.Equal(*res.SentAt))
		assert.Equal(t, 1, f.sms.count())
	})

	t.Run("refused after pickup", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		s := f.start(t, "FB3")
		f.clock.advance(50 * time.Minute)
		_, err := f.svc.ConfirmPickup(ctx, s.ID, s.VerificationCode)
		require.NoError(t, err)

		_, err = f.svc.NotifyFinish(ctx, s.ID)
		assert.ErrorIs(t, err, store.ErrAlreadyPickedUp)
		assert.Zero(t, f.sms.count())
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.NotifyFinish(context.Background(), 404)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestService_Condition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ReportBroken(ctx, "MA8", "wrong", "")
	assert.ErrorIs(t, err, verify.ErrUnauthorized)

	s := f.start(t, "MA8")

	m, err := f.svc.ReportBroken(ctx, "MA8", supervisorCode, "  door latch  ")
	require.NoError(t, err)
	assert.Equal(t, model.ConditionBroken, m.Condition)
	assert.Equal(t, "door latch", m.ConditionReason)

	_, err = f.svc.ReportBroken(ctx, "MA8", supervisorCode, "")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	// the running session can still be picked up on a broken machine
	_, err = f.svc.ConfirmPickup(ctx, s.ID, s.VerificationCode)
	require.NoError(t, err)

	f.clock.advance(2 * time.Hour)
	m, err = f.svc.ResolveIssue(ctx, "MA8", supervisorCode, "fixed")
	require.NoError(t, err)
	assert.Equal(t, model.ConditionNormal, m.Condition)
	minutes, ok := m.RepairMinutes()
	assert.True(t, ok)
	assert.Equal(t, 120, minutes)

	_, err = f.svc.ResolveIssue(ctx, "MA8", supervisorCode, "")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestService_Summary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Summary(ctx, "")
	assert.ErrorIs(t, err, verify.ErrUnauthorized)

	s := f.start(t, "MA1")
	f.start(t, "MA2")
	f.clock.advance(45*time.Minute + 20*time.Minute)
	_, err = f.svc.ConfirmPickup(ctx, s.ID, s.VerificationCode)
	require.NoError(t, err)

	rows, err := f.svc.Summary(ctx, supervisorCode)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "MA1", rows[0].MachineID)
	assert.Equal(t, 1, rows[0].CompletedSessions)
	assert.Equal(t, 1, rows[0].LateSessions)
	assert.Equal(t, 14, rows[0].MaxDelayMinutes)
	assert.Equal(t, 1, rows[1].ActiveSessions)
}
