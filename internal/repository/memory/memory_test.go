package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atinyakov/GraphPaste/internal/models"
	"github.com/atinyakov/GraphPaste/internal/repository"
	"github.com/atinyakov/GraphPaste/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser_UniqueUsername(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := &models.User{Username: "alice", PasswordHash: "h"}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.Equal(t, int64(1), u.ID)

	err := s.CreateUser(ctx, &models.User{Username: "alice"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := s.UserByCredentials(ctx, "alice", "h")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	got, err = s.UserByCredentials(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEnsureUser_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	first, err := s.EnsureUser(ctx, models.DefaultOwner, now)
	require.NoError(t, err)
	second, err := s.EnsureUser(ctx, models.DefaultOwner, now)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestRecordLoginFailure_LocksAtThreshold(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := &models.User{Username: "bob"}
	require.NoError(t, s.CreateUser(ctx, u))

	lockUntil := time.Now().Add(15 * time.Minute)
	for i := 1; i < 5; i++ {
		n, locked, err := s.RecordLoginFailure(ctx, u.ID, 5, lockUntil)
		require.NoError(t, err)
		assert.Equal(t, i, n)
		assert.Nil(t, locked)
	}
	n, locked, err := s.RecordLoginFailure(ctx, u.ID, 5, lockUntil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NotNil(t, locked)
	assert.True(t, locked.Equal(lockUntil))

	require.NoError(t, s.RecordLoginSuccess(ctx, u.ID, time.Now()))
	got, _ := s.UserByID(ctx, u.ID)
	assert.Zero(t, got.FailedLoginAttempts)
	assert.Nil(t, got.LockedUntil)
	assert.NotNil(t, got.LastLogin)
}

func TestTouchRequest_Window(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := &models.User{Username: "carol"}
	require.NoError(t, s.CreateUser(ctx, u))

	start := time.Now()
	for i := 1; i <= 3; i++ {
		at := start.Add(time.Duration(i) * time.Second)
		n, err := s.TouchRequest(ctx, u.ID, at, at.Add(-time.Minute))
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	later := start.Add(2 * time.Minute)
	n, err := s.TouchRequest(ctx, u.ID, later, later.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.TouchRequest(ctx, 999, later, later)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAtomic_RollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(q service.Queries) error {
		p := &models.Paste{Title: "t", Version: 1}
		if err := q.CreatePaste(ctx, p); err != nil {
			return err
		}
		if err := q.CreatePasteVersion(ctx, &models.PasteVersion{PasteID: p.ID, Version: 1}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	pastes, err := s.ListPastes(ctx, models.PasteFilter{})
	require.NoError(t, err)
	assert.Empty(t, pastes)
	versions, err := s.PasteVersions(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, versions)

	err = s.Atomic(ctx, func(q service.Queries) error {
		return q.CreatePaste(ctx, &models.Paste{Title: "kept"})
	})
	require.NoError(t, err)
	p, err := s.PasteByTitle(ctx, "kept")
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestListPastes_OrderFilterLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Now()
	for i, public := range []bool{true, false, true, true} {
		require.NoError(t, s.CreatePaste(ctx, &models.Paste{
			Title: "p", Public: public, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := s.ListPastes(ctx, models.PasteFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, int64(4), all[0].ID)

	public := true
	limited, err := s.ListPastes(ctx, models.PasteFilter{Public: &public, Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, int64(4), limited[0].ID)
	assert.Equal(t, int64(3), limited[1].ID)

	first, err := s.PasteByTitle(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.ID)
}

func TestDeletePaste_CascadesAndNullsAudits(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := &models.Paste{Title: "t"}
	require.NoError(t, s.CreatePaste(ctx, p))
	require.NoError(t, s.CreatePasteVersion(ctx, &models.PasteVersion{PasteID: p.ID, Version: 1}))
	require.NoError(t, s.CreateAudit(ctx, &models.Audit{PasteID: &p.ID, Action: models.ActionCreate}))

	ok, err := s.DeletePaste(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	versions, _ := s.PasteVersions(ctx, p.ID)
	assert.Empty(t, versions)
	audits, _ := s.ListAudits(ctx, 0)
	require.Len(t, audits, 1)
	assert.Nil(t, audits[0].PasteID)

	ok, err = s.DeletePaste(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := New()
	sess := &models.Session{UserID: 1, Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.CreateSession(ctx, sess))
	assert.Error(t, s.CreateSession(ctx, &models.Session{Token: "tok"}))

	ok, err := s.RevokeSession(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.RevokeSession(ctx, "tok")
	assert.False(t, ok)

	got, err := s.SessionByToken(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
}

func TestUpsertServerMode(t *testing.T) {
	ctx := context.Background()
	s := New()

	m, err := s.ServerMode(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = s.UpsertServerMode(ctx, models.ModeHard, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.ModeHard, m.Mode)
	assert.Equal(t, 100, m.RateLimit)

	m, err = s.UpsertServerMode(ctx, models.ModeEasy, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.ModeEasy, m.Mode)
	assert.Equal(t, int64(models.ServerModeID), m.ID)
}

func TestListAudits_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, action := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateAudit(ctx, &models.Audit{Action: action}))
	}
	audits, err := s.ListAudits(ctx, 2)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, "c", audits[0].Action)
	assert.Equal(t, "b", audits[1].Action)
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	old := now.Add(-40 * 24 * time.Hour)
	past := now.Add(-time.Hour)

	u := &models.User{Username: "u"}
	require.NoError(t, s.CreateUser(ctx, u))
	_, err := s.TouchRequest(ctx, u.ID, past, past)
	require.NoError(t, err)

	require.NoError(t, s.CreateSession(ctx, &models.Session{Token: "old", ExpiresAt: past}))
	require.NoError(t, s.CreateSession(ctx, &models.Session{Token: "new", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, s.CreatePaste(ctx, &models.Paste{Title: "gone", ExpiresAt: &past}))
	require.NoError(t, s.CreatePaste(ctx, &models.Paste{Title: "kept"}))
	require.NoError(t, s.CreateAudit(ctx, &models.Audit{Timestamp: old}))
	require.NoError(t, s.CreateAudit(ctx, &models.Audit{Timestamp: now}))
	require.NoError(t, s.CreateLoginAttempt(ctx, &models.LoginAttempt{Timestamp: old}))

	report, err := s.Cleanup(ctx, service.Cleanup{Now: now, Retention: 30 * 24 * time.Hour, RateWindow: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, service.CleanupReport{Sessions: 1, Pastes: 1, Audits: 1, LoginAttempts: 1, RateCounters: 1}, report)

	got, _ := s.SessionByToken(ctx, "new")
	assert.NotNil(t, got)
	assert.Empty(t, s.LoginAttempts())
	user, _ := s.UserByID(ctx, u.ID)
	assert.Zero(t, user.RequestCount)
}
