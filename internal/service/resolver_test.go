package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperr "github.com/atinyakov/GraphPaste/internal/errors"
	"github.com/atinyakov/GraphPaste/internal/models"
	"github.com/atinyakov/GraphPaste/internal/repository/memory"
	"github.com/atinyakov/GraphPaste/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func createPaste(t *testing.T, f *fixture, ctx context.Context, title, content string, public bool) *models.Paste {
	t.Helper()
	p, err := f.resolver.CreatePaste(ctx, service.CreatePasteInput{Title: title, Content: content, Public: public})
	require.NoError(t, err)
	return p
}

func TestCreatePaste_StoresVersionAndAudit(t *testing.T) {
	f := newFixture(t)
	ctx, _ := callerCtx("")

	p := createPaste(t, f, ctx, "x", "hello", false)
	assert.Equal(t, 5, p.Size)
	assert.Equal(t, 1, p.Version)
	assert.False(t, p.Public)
	assert.False(t, p.Burn)
	assert.Equal(t, "192.0.2.1", p.IPAddress)
	assert.Equal(t, "test-agent", p.UserAgent)

	owner, err := f.store.UserByUsername(ctx, models.DefaultOwner)
	require.NoError(t, err)
	require.NotNil(t, owner)
	require.NotNil(t, p.OwnerID)
	assert.Equal(t, owner.ID, *p.OwnerID)

	versions, err := f.resolver.PasteVersions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, "hello", versions[0].Content)

	audits, err := f.resolver.Audits(ctx, 0)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, models.ActionCreate, audits[0].Action)
	require.NotNil(t, audits[0].PasteID)
	assert.Equal(t, p.ID, *audits[0].PasteID)
	assert.Equal(t, models.OperationMutation, audits[0].OperationType)
	assert.Equal(t, "test-agent", audits[0].RequestHeaders["User-Agent"])

	// The default owner is reused.
	createPaste(t, f, ctx, "y", "again", true)
	users, err := f.resolver.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestCreatePaste_OptionalFields(t *testing.T) {
	f := newFixture(t)
	ctx, _ := callerCtx("")

	p, err := f.resolver.CreatePaste(ctx, service.CreatePasteInput{
		Title:     "cfg",
		Content:   "a: 1",
		Language:  "yaml",
		Metadata:  map[string]any{"tags": "ops"},
		ExpiresIn: time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, "yaml", p.Language)
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(time.Hour), *p.ExpiresAt)

	stored, err := f.resolver.Paste(ctx, service.PasteLookup{ID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, "ops", stored.Metadata["tags"])
}

func TestCreatePaste_AuditVisibleBeforeEvent(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := f.resolver.SubscribePasteCreated(ctx)
	p := createPaste(t, f, context.Background(), "t", "c", true)

	select {
	case got := <-events:
		assert.Equal(t, p.ID, got.ID)
		audits, err := f.store.ListAudits(context.Background(), 0)
		require.NoError(t, err)
		require.Len(t, audits, 1)
		assert.Equal(t, p.ID, *audits[0].PasteID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestSubscribePasteCreated_NoReplay(t *testing.T) {
	f := newFixture(t)
	before, cancelBefore := context.WithCancel(context.Background())
	defer cancelBefore()

	early := f.resolver.SubscribePasteCreated(before)
	p := createPaste(t, f, context.Background(), "t", "c", true)

	after, cancelAfter := context.WithCancel(context.Background())
	defer cancelAfter()
	late := f.resolver.SubscribePasteCreated(after)

	select {
	case got := <-early:
		assert.Equal(t, p.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("early subscriber missed the event")
	}

	select {
	case got := <-early:
		t.Fatalf("unexpected second event %+v", got)
	case got := <-late:
		t.Fatalf("late subscriber received replayed event %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribePasteCreated_CancelUnsubscribes(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	events := f.resolver.SubscribePasteCreated(ctx)
	assert.Equal(t, 1, f.broker.Len())
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Equal(t, 0, f.broker.Len())
}

func TestSubscribePasteCreated_WithoutBroker(t *testing.T) {
	f := newFixture(t)
	r := service.NewResolver(f.store, f.auth, f.tokens, f.audit, f.rate, nil, zap.NewNop())

	events := r.SubscribePasteCreated(context.Background())
	_, ok := <-events
	assert.False(t, ok)

	_, err := r.CreatePaste(context.Background(), service.CreatePasteInput{Title: "t", Content: "c"})
	assert.NoError(t, err)
}

type failingAuditStore struct {
	*memory.Store
}

func (s failingAuditStore) Atomic(ctx context.Context, fn func(q service.Queries) error) error {
	return s.Store.Atomic(ctx, func(q service.Queries) error {
		return fn(failingAudit{q})
	})
}

type failingAudit struct {
	service.Queries
}

func (failingAudit) CreateAudit(context.Context, *models.Audit) error {
	return errors.New("disk full")
}

func TestCreatePaste_RollsBackWhenAuditFails(t *testing.T) {
	store := memory.New()
	f := newFixtureWithStore(t, failingAuditStore{store})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := f.resolver.SubscribePasteCreated(ctx)

	_, err := f.resolver.CreatePaste(context.Background(), service.CreatePasteInput{Title: "t", Content: "c"})
	require.ErrorIs(t, err, apperr.ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")

	pastes, err := store.ListPastes(context.Background(), models.PasteFilter{})
	require.NoError(t, err)
	assert.Empty(t, pastes)
	owner, err := store.UserByUsername(context.Background(), models.DefaultOwner)
	require.NoError(t, err)
	assert.Nil(t, owner)

	select {
	case p := <-events:
		t.Fatalf("event published for rolled back paste %+v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUpdatePaste_Versions(t *testing.T) {
	f := newFixture(t)
	ctx, _ := callerCtx("")
	p := createPaste(t, f, ctx, "t", "one", false)

	two := "two!"
	updated, err := f.resolver.UpdatePaste(ctx, service.UpdatePasteInput{ID: p.ID, Content: &two})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 4, updated.Size)

	title := "renamed"
	updated, err = f.resolver.UpdatePaste(ctx, service.UpdatePasteInput{ID: p.ID, Title: &title, Content: &two})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version, "unchanged content keeps the version")
	assert.Equal(t, "renamed", updated.Title)

	three := "three"
	updated, err = f.resolver.UpdatePaste(ctx, service.UpdatePasteInput{ID: p.ID, Content: &three})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Version)

	versions, err := f.resolver.PasteVersions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Version)
	}

	stored, err := f.resolver.Paste(ctx, service.PasteLookup{ID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, "three", stored.Content)
	assert.Equal(t, 3, stored.Version)

	audits, err := f.resolver.Audits(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ActionUpdate, audits[0].Action)

	_, err = f.resolver.UpdatePaste(ctx, service.UpdatePasteInput{ID: 999, Content: &three})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

// lockedReadsStore refuses unlocked paste reads inside transactions.
type lockedReadsStore struct {
	*memory.Store
}

func (s lockedReadsStore) Atomic(ctx context.Context, fn func(q service.Queries) error) error {
	return s.Store.Atomic(ctx, func(q service.Queries) error {
		return fn(lockedReads{q})
	})
}

type lockedReads struct {
	service.Queries
}

func (lockedReads) PasteByID(context.Context, int64) (*models.Paste, error) {
	return nil, errors.New("paste read without row lock")
}

func TestUpdateAndDeletePaste_LockThePasteRow(t *testing.T) {
	store := memory.New()
	f := newFixtureWithStore(t, lockedReadsStore{store})
	ctx, _ := callerCtx("")
	p := createPaste(t, f, ctx, "t", "one", false)

	two := "two"
	updated, err := f.resolver.UpdatePaste(ctx, service.UpdatePasteInput{ID: p.ID, Content: &two})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	ok, err := f.resolver.DeletePaste(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdatePaste_ConcurrentRevisions(t *testing.T) {
	f := newFixture(t)
	ctx, _ := callerCtx("")
	p := createPaste(t, f, ctx, "t", "v0", false)

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := fmt.Sprintf("v%d", i)
			_, err := f.resolver.UpdatePaste(ctx, service.UpdatePasteInput{ID: p.ID, Content: &content})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	versions, err := f.resolver.PasteVersions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, writers+1)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Version)
	}
	stored, err := f.resolver.Paste(ctx, service.PasteLookup{ID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, writers+1, stored.Version)
}

func TestDeletePaste(t *testing.T) {
	f := newFixture(t)
	ctx, _ := callerCtx("")
	p := createPaste(t, f, ctx, "t", "c", true)

	ok, err := f.resolver.DeletePaste(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	gone, err := f.resolver.Paste(ctx, service.PasteLookup{ID: p.ID})
	require.NoError(t, err)
	assert.Nil(t, gone)
	versions, err := f.resolver.PasteVersions(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)

	audits, err := f.resolver.Audits(ctx, 0)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, models.ActionDelete, audits[0].Action)
	assert.Equal(t, models.SeverityWarning, audits[0].SecurityLevel)

	_, err = f.resolver.DeletePaste(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPastes_FilterAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, public := range []bool{true, false, true} {
		createPaste(t, f, ctx, "p", "c", public)
		f.clock.Advance(time.Duration(i+1) * time.Second)
	}

	all, err := f.resolver.Pastes(ctx, service.PastesFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	public := true
	pub, err := f.resolver.Pastes(ctx, service.PastesFilter{Public: &public})
	require.NoError(t, err)
	assert.Len(t, pub, 2)

	private := false
	priv, err := f.resolver.Pastes(ctx, service.PastesFilter{Public: &private})
	require.NoError(t, err)
	assert.Len(t, priv, 1)

	limited, err := f.resolver.Pastes(ctx, service.PastesFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, int64(3), limited[0].ID, "newest first")

	unlimited, err := f.resolver.Pastes(ctx, service.PastesFilter{Limit: -4})
	require.NoError(t, err)
	assert.Len(t, unlimited, 3)
}

func TestPaste_Lookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := createPaste(t, f, ctx, "alpha", "a", true)
	b := createPaste(t, f, ctx, "beta", "b", true)

	got, err := f.resolver.Paste(ctx, service.PasteLookup{ID: a.ID, Title: "beta"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID, "id takes precedence")

	got, err = f.resolver.Paste(ctx, service.PasteLookup{Title: "beta"})
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	got, err = f.resolver.Paste(ctx, service.PasteLookup{ID: 404})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = f.resolver.Paste(ctx, service.PasteLookup{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.createUser(t, "ivy", "pw")
	assert.NotEqual(t, "pw", u.PasswordHash)
	assert.True(t, service.CheckPassword(u.PasswordHash, "pw"))

	audits, err := f.resolver.Audits(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ActionCreateUser, audits[0].Action)
	assert.Equal(t, u.ID, *audits[0].UserID)

	_, err = f.resolver.CreateUser(ctx, service.CreateUserInput{Username: "ivy", Password: "other"})
	assert.ErrorIs(t, err, apperr.ErrPersistence)
}

func TestLogin_ComparesStoredValueVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "jack", "pw")

	_, err := f.resolver.Login(ctx, service.LoginInput{Username: "jack", Password: "pw"})
	assert.ErrorIs(t, err, apperr.ErrAuthenticationFailed)
	assert.Equal(t, "Authentication failed", err.Error())

	pair, err := f.resolver.Login(ctx, service.LoginInput{Username: "jack", Password: u.PasswordHash})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	// Failed logins are not counted.
	stored, _ := f.store.UserByID(ctx, u.ID)
	assert.Zero(t, stored.FailedLoginAttempts)
	assert.Empty(t, f.store.LoginAttempts())
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "kate", "pw")

	ctx, _ := callerCtx("")
	_, err := f.resolver.Me(ctx)
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)
	assert.Equal(t, "Not authenticated", err.Error())

	pair, err := f.tokens.Generate("kate")
	require.NoError(t, err)
	ctx, _ = callerCtx(pair.AccessToken)
	me, err := f.resolver.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)
}

func TestAuthenticateAndLogout(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "liam", "pw")

	ctx, _ := callerCtx("")
	res, err := f.resolver.Authenticate(ctx, service.LoginInput{Username: "liam", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", res.Session.IPAddress)

	_, err = f.resolver.Logout(ctx)
	assert.ErrorIs(t, err, apperr.ErrNotAuthenticated)

	ctx, _ = callerCtx(res.Session.Token)
	ok, err := f.resolver.Logout(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	audits, err := f.resolver.Audits(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ActionLogout, audits[0].Action)
}

func TestAdmit_RateLimitOnlyInHardMode(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "mia", "pw")
	pair, err := f.tokens.Generate("mia")
	require.NoError(t, err)

	admit := func() error {
		ctx, _ := callerCtx(pair.AccessToken)
		return f.resolver.Admit(ctx)
	}

	// Easy mode counts but never rejects.
	for i := 0; i < 150; i++ {
		require.NoError(t, admit())
	}

	f.clock.Advance(2 * time.Minute)
	_, err = f.resolver.SetDifficulty(context.Background(), models.ModeHard)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, admit(), "request %d", i+1)
	}
	assert.ErrorIs(t, admit(), apperr.ErrRateLimited)

	// Switching back to easy lifts the restriction immediately.
	_, err = f.resolver.SetDifficulty(context.Background(), models.ModeEasy)
	require.NoError(t, err)
	assert.NoError(t, admit())

	// A new window starts the count over.
	_, err = f.resolver.SetDifficulty(context.Background(), models.ModeHard)
	require.NoError(t, err)
	assert.ErrorIs(t, admit(), apperr.ErrRateLimited)
	f.clock.Advance(service.RateWindow + time.Second)
	assert.NoError(t, admit())
}

func TestAdmit_Anonymous(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.SetDifficulty(context.Background(), models.ModeHard)
	require.NoError(t, err)

	for i := 0; i < 150; i++ {
		ctx, c := callerCtx("")
		require.NoError(t, f.resolver.Admit(ctx))
		assert.Nil(t, c.User)
	}
}

func TestAdmit_ResolvesCaller(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "noah", "pw")
	pair, err := f.tokens.Generate("noah")
	require.NoError(t, err)

	ctx, c := callerCtx(pair.AccessToken)
	require.NoError(t, f.resolver.Admit(ctx))
	require.NotNil(t, c.User)
	assert.Equal(t, u.ID, c.User.ID)

	p := createPaste(t, f, ctx, "mine", "c", true)
	require.NotNil(t, p.UserID)
	assert.Equal(t, u.ID, *p.UserID)
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := service.BootstrapOptions{
		AdminUsername: "admin",
		AdminPassword: "dvga_admin_password",
		InitialMode:   models.ModeHard,
		SeedTestData:  true,
	}

	require.NoError(t, f.resolver.Bootstrap(ctx, opts))
	require.NoError(t, f.resolver.Bootstrap(ctx, opts))

	admin, err := f.store.UserByUsername(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.True(t, admin.IsAdmin)
	assert.NotEqual(t, "dvga_admin_password", admin.PasswordHash)
	assert.True(t, service.CheckPassword(admin.PasswordHash, "dvga_admin_password"))

	res, err := authenticate(f, "admin", "dvga_admin_password")
	require.NoError(t, err)
	assert.NotNil(t, res.Session)

	mode, err := f.resolver.ServerMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ModeHard, mode.Mode)

	pastes, err := f.resolver.Pastes(ctx, service.PastesFilter{})
	require.NoError(t, err)
	assert.Len(t, pastes, 3, "test data is seeded once")

	users, err := f.resolver.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	err = f.resolver.Bootstrap(ctx, service.BootstrapOptions{AdminUsername: "admin", InitialMode: "medium"})
	assert.Error(t, err)
}

func TestBootstrap_KeepsStoredMode(t *testing.T) {
	f := newFixture(t)
	ctx, _ := callerCtx("")
	opts := service.BootstrapOptions{AdminUsername: "admin", AdminPassword: "pw"}

	require.NoError(t, f.resolver.Bootstrap(ctx, opts))
	mode, err := f.resolver.ServerMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ModeEasy, mode.Mode)

	_, err = f.resolver.SetDifficulty(ctx, models.ModeHard)
	require.NoError(t, err)

	// A restart with the default initial mode leaves the stored mode alone.
	require.NoError(t, f.resolver.Bootstrap(ctx, opts))
	mode, err = f.resolver.ServerMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ModeHard, mode.Mode)

	opts.InitialMode = models.ModeEasy
	require.NoError(t, f.resolver.Bootstrap(ctx, opts))
	mode, err = f.resolver.ServerMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ModeHard, mode.Mode)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.resolver.Health(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, f.resolver.Health(ctx))
}
