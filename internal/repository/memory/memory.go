// Package memory provides an in-process implementation of the persistence
// gateway. It backs the "memory://" DSN and the service tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/atinyakov/GraphPaste/internal/models"
	"github.com/atinyakov/GraphPaste/internal/repository"
	"github.com/atinyakov/GraphPaste/internal/service"
)

type data struct {
	users    map[int64]models.User
	sessions map[string]models.Session
	attempts []models.LoginAttempt
	pastes   map[int64]models.Paste
	versions []models.PasteVersion
	audits   []models.Audit
	mode     *models.ServerMode

	seq struct {
		user, session, attempt, paste, version, audit int64
	}
}

func newData() *data {
	return &data{
		users:    make(map[int64]models.User),
		sessions: make(map[string]models.Session),
		pastes:   make(map[int64]models.Paste),
	}
}

func (d *data) clone() *data {
	c := &data{
		users:    maps.Clone(d.users),
		sessions: maps.Clone(d.sessions),
		attempts: append([]models.LoginAttempt(nil), d.attempts...),
		pastes:   maps.Clone(d.pastes),
		versions: append([]models.PasteVersion(nil), d.versions...),
		audits:   append([]models.Audit(nil), d.audits...),
		seq:      d.seq,
	}
	if d.mode != nil {
		m := *d.mode
		c.mode = &m
	}
	return c
}

// Store is a mutex-guarded in-memory Store. Rows are stored by value and
// copied on the way in and out.
type Store struct {
	mu sync.Mutex
	d  *data
}

var (
	_ service.Store   = (*Store)(nil)
	_ service.Cleaner = (*Store)(nil)
	_ service.Queries = (*queries)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{d: newData()}
}

func (s *Store) q() *queries { return &queries{d: s.d} }

// Atomic runs fn with exclusive access to the store. When fn fails every
// change it made is discarded.
func (s *Store) Atomic(ctx context.Context, fn func(q service.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(s.q()); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

// Ping always succeeds unless ctx is done.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) UserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().UserByID(ctx, id)
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().UserByUsername(ctx, username)
}

func (s *Store) UserByCredentials(ctx context.Context, username, password string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().UserByCredentials(ctx, username, password)
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().ListUsers(ctx)
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().CreateUser(ctx, u)
}

func (s *Store) EnsureUser(ctx context.Context, username string, at time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().EnsureUser(ctx, username, at)
}

func (s *Store) RecordLoginFailure(ctx context.Context, userID int64, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().RecordLoginFailure(ctx, userID, threshold, lockUntil)
}

func (s *Store) RecordLoginSuccess(ctx context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().RecordLoginSuccess(ctx, userID, at)
}

func (s *Store) TouchRequest(ctx context.Context, userID int64, at, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().TouchRequest(ctx, userID, at, windowStart)
}

func (s *Store) CreateLoginAttempt(ctx context.Context, a *models.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().CreateLoginAttempt(ctx, a)
}

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().CreateSession(ctx, sess)
}

func (s *Store) SessionByToken(ctx context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().SessionByToken(ctx, token)
}

func (s *Store) RevokeSession(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().RevokeSession(ctx, token)
}

func (s *Store) CreatePaste(ctx context.Context, p *models.Paste) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().CreatePaste(ctx, p)
}

func (s *Store) UpdatePaste(ctx context.Context, p *models.Paste) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().UpdatePaste(ctx, p)
}

func (s *Store) DeletePaste(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().DeletePaste(ctx, id)
}

func (s *Store) PasteByID(ctx context.Context, id int64) (*models.Paste, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().PasteByID(ctx, id)
}

func (s *Store) PasteByIDForUpdate(ctx context.Context, id int64) (*models.Paste, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().PasteByIDForUpdate(ctx, id)
}

func (s *Store) PasteByTitle(ctx context.Context, title string) (*models.Paste, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().PasteByTitle(ctx, title)
}

func (s *Store) ListPastes(ctx context.Context, f models.PasteFilter) ([]models.Paste, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().ListPastes(ctx, f)
}

func (s *Store) CreatePasteVersion(ctx context.Context, v *models.PasteVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().CreatePasteVersion(ctx, v)
}

func (s *Store) PasteVersions(ctx context.Context, pasteID int64) ([]models.PasteVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().PasteVersions(ctx, pasteID)
}

func (s *Store) CreateAudit(ctx context.Context, a *models.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().CreateAudit(ctx, a)
}

func (s *Store) ListAudits(ctx context.Context, limit int) ([]models.Audit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().ListAudits(ctx, limit)
}

func (s *Store) ServerMode(ctx context.Context) (*models.ServerMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().ServerMode(ctx)
}

func (s *Store) UpsertServerMode(ctx context.Context, mode string, at time.Time) (*models.ServerMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q().UpsertServerMode(ctx, mode, at)
}

// LoginAttempts returns every recorded login attempt in insertion order.
func (s *Store) LoginAttempts() []models.LoginAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LoginAttempt(nil), s.d.attempts...)
}

// Cleanup mirrors the PostgreSQL retention pass.
func (s *Store) Cleanup(_ context.Context, c service.Cleanup) (service.CleanupReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report service.CleanupReport
	for token, sess := range s.d.sessions {
		if sess.ExpiresAt.Before(c.Now) {
			delete(s.d.sessions, token)
			report.Sessions++
		}
	}
	for id, p := range s.d.pastes {
		if p.ExpiresAt != nil && p.ExpiresAt.Before(c.Now) {
			s.q().deletePaste(id)
			report.Pastes++
		}
	}

	cutoff := c.Now.Add(-c.Retention)
	audits := s.d.audits[:0]
	for _, a := range s.d.audits {
		if a.Timestamp.Before(cutoff) {
			report.Audits++
			continue
		}
		audits = append(audits, a)
	}
	s.d.audits = audits

	attempts := s.d.attempts[:0]
	for _, a := range s.d.attempts {
		if a.Timestamp.Before(cutoff) {
			report.LoginAttempts++
			continue
		}
		attempts = append(attempts, a)
	}
	s.d.attempts = attempts

	windowStart := c.Now.Add(-c.RateWindow)
	for id, u := range s.d.users {
		if u.RequestCount > 0 && u.LastRequest != nil && u.LastRequest.Before(windowStart) {
			u.RequestCount = 0
			s.d.users[id] = u
			report.RateCounters++
		}
	}
	return report, nil
}

// queries operates on the data without locking. Callers hold Store.mu.
type queries struct {
	d *data
}

func (q *queries) UserByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := q.d.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (q *queries) UserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range q.d.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (q *queries) UserByCredentials(_ context.Context, username, password string) (*models.User, error) {
	for _, u := range q.d.users {
		if u.Username == username && u.PasswordHash == password {
			return &u, nil
		}
	}
	return nil, nil
}

func (q *queries) ListUsers(_ context.Context) ([]models.User, error) {
	users := make([]models.User, 0, len(q.d.users))
	for _, u := range q.d.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (q *queries) CreateUser(ctx context.Context, u *models.User) error {
	if existing, _ := q.UserByUsername(ctx, u.Username); existing != nil {
		return fmt.Errorf("CreateUser: %w: users_username_key", repository.ErrConflict)
	}
	q.d.seq.user++
	u.ID = q.d.seq.user
	q.d.users[u.ID] = *u
	return nil
}

func (q *queries) EnsureUser(ctx context.Context, username string, at time.Time) (*models.User, error) {
	if u, _ := q.UserByUsername(ctx, username); u != nil {
		return u, nil
	}
	u := &models.User{Username: username, CreatedAt: at}
	if err := q.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (q *queries) RecordLoginFailure(_ context.Context, userID int64, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	u, ok := q.d.users[userID]
	if !ok {
		return 0, nil, fmt.Errorf("RecordLoginFailure: user %d not found", userID)
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		until := lockUntil
		u.LockedUntil = &until
	}
	q.d.users[userID] = u
	return u.FailedLoginAttempts, u.LockedUntil, nil
}

func (q *queries) RecordLoginSuccess(_ context.Context, userID int64, at time.Time) error {
	u, ok := q.d.users[userID]
	if !ok {
		return nil
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLogin = &at
	q.d.users[userID] = u
	return nil
}

func (q *queries) TouchRequest(_ context.Context, userID int64, at, windowStart time.Time) (int, error) {
	u, ok := q.d.users[userID]
	if !ok {
		return 0, nil
	}
	if u.LastRequest == nil || u.LastRequest.Before(windowStart) {
		u.RequestCount = 1
	} else {
		u.RequestCount++
	}
	u.LastRequest = &at
	q.d.users[userID] = u
	return u.RequestCount, nil
}

func (q *queries) CreateLoginAttempt(_ context.Context, a *models.LoginAttempt) error {
	q.d.seq.attempt++
	a.ID = q.d.seq.attempt
	q.d.attempts = append(q.d.attempts, *a)
	return nil
}

func (q *queries) CreateSession(_ context.Context, s *models.Session) error {
	if _, ok := q.d.sessions[s.Token]; ok {
		return fmt.Errorf("CreateSession: %w: user_sessions_token_key", repository.ErrConflict)
	}
	q.d.seq.session++
	s.ID = q.d.seq.session
	q.d.sessions[s.Token] = *s
	return nil
}

func (q *queries) SessionByToken(_ context.Context, token string) (*models.Session, error) {
	s, ok := q.d.sessions[token]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (q *queries) RevokeSession(_ context.Context, token string) (bool, error) {
	s, ok := q.d.sessions[token]
	if !ok || s.Revoked {
		return false, nil
	}
	s.Revoked = true
	q.d.sessions[token] = s
	return true, nil
}

func copyPaste(p models.Paste) *models.Paste {
	p.Metadata = maps.Clone(p.Metadata)
	return &p
}

func (q *queries) CreatePaste(_ context.Context, p *models.Paste) error {
	q.d.seq.paste++
	p.ID = q.d.seq.paste
	q.d.pastes[p.ID] = *copyPaste(*p)
	return nil
}

func (q *queries) UpdatePaste(_ context.Context, p *models.Paste) error {
	old, ok := q.d.pastes[p.ID]
	if !ok {
		return fmt.Errorf("UpdatePaste: paste %d not found", p.ID)
	}
	updated := *copyPaste(*p)
	updated.CreatedAt = old.CreatedAt
	updated.OwnerID, updated.UserID = old.OwnerID, old.UserID
	updated.IPAddress, updated.UserAgent = old.IPAddress, old.UserAgent
	q.d.pastes[p.ID] = updated
	return nil
}

func (q *queries) DeletePaste(_ context.Context, id int64) (bool, error) {
	if _, ok := q.d.pastes[id]; !ok {
		return false, nil
	}
	q.deletePaste(id)
	return true, nil
}

// deletePaste removes a paste with the same side effects as the foreign
// keys of the SQL schema.
func (q *queries) deletePaste(id int64) {
	delete(q.d.pastes, id)
	versions := q.d.versions[:0]
	for _, v := range q.d.versions {
		if v.PasteID != id {
			versions = append(versions, v)
		}
	}
	q.d.versions = versions
	for i := range q.d.audits {
		if q.d.audits[i].PasteID != nil && *q.d.audits[i].PasteID == id {
			q.d.audits[i].PasteID = nil
		}
	}
}

func (q *queries) PasteByID(_ context.Context, id int64) (*models.Paste, error) {
	p, ok := q.d.pastes[id]
	if !ok {
		return nil, nil
	}
	return copyPaste(p), nil
}

// PasteByIDForUpdate needs no extra locking: Atomic already holds the store.
func (q *queries) PasteByIDForUpdate(ctx context.Context, id int64) (*models.Paste, error) {
	return q.PasteByID(ctx, id)
}

func (q *queries) PasteByTitle(_ context.Context, title string) (*models.Paste, error) {
	var found *models.Paste
	for _, p := range q.d.pastes {
		if p.Title == title && (found == nil || p.ID < found.ID) {
			found = copyPaste(p)
		}
	}
	return found, nil
}

func (q *queries) ListPastes(_ context.Context, f models.PasteFilter) ([]models.Paste, error) {
	pastes := make([]models.Paste, 0, len(q.d.pastes))
	for _, p := range q.d.pastes {
		if f.Public != nil && p.Public != *f.Public {
			continue
		}
		pastes = append(pastes, *copyPaste(p))
	}
	sort.Slice(pastes, func(i, j int) bool {
		if !pastes[i].CreatedAt.Equal(pastes[j].CreatedAt) {
			return pastes[i].CreatedAt.After(pastes[j].CreatedAt)
		}
		return pastes[i].ID > pastes[j].ID
	})
	if f.Limit > 0 && len(pastes) > f.Limit {
		pastes = pastes[:f.Limit]
	}
	return pastes, nil
}

func (q *queries) CreatePasteVersion(_ context.Context, v *models.PasteVersion) error {
	if _, ok := q.d.pastes[v.PasteID]; !ok {
		return fmt.Errorf("CreatePasteVersion: paste %d not found", v.PasteID)
	}
	for _, existing := range q.d.versions {
		if existing.PasteID == v.PasteID && existing.Version == v.Version {
			return fmt.Errorf("CreatePasteVersion: %w: paste_versions_paste_id_version_key", repository.ErrConflict)
		}
	}
	q.d.seq.version++
	v.ID = q.d.seq.version
	q.d.versions = append(q.d.versions, *v)
	return nil
}

func (q *queries) PasteVersions(_ context.Context, pasteID int64) ([]models.PasteVersion, error) {
	var versions []models.PasteVersion
	for _, v := range q.d.versions {
		if v.PasteID == pasteID {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	return versions, nil
}

func (q *queries) CreateAudit(_ context.Context, a *models.Audit) error {
	q.d.seq.audit++
	a.ID = q.d.seq.audit
	stored := *a
	stored.RequestHeaders = maps.Clone(a.RequestHeaders)
	q.d.audits = append(q.d.audits, stored)
	return nil
}

func (q *queries) ListAudits(_ context.Context, limit int) ([]models.Audit, error) {
	audits := make([]models.Audit, 0, len(q.d.audits))
	for i := len(q.d.audits) - 1; i >= 0; i-- {
		if limit > 0 && len(audits) == limit {
			break
		}
		a := q.d.audits[i]
		a.RequestHeaders = maps.Clone(a.RequestHeaders)
		audits = append(audits, a)
	}
	return audits, nil
}

func (q *queries) ServerMode(_ context.Context) (*models.ServerMode, error) {
	if q.d.mode == nil {
		return nil, nil
	}
	m := *q.d.mode
	return &m, nil
}

func (q *queries) UpsertServerMode(_ context.Context, mode string, at time.Time) (*models.ServerMode, error) {
	if q.d.mode == nil {
		def := models.DefaultServerMode()
		q.d.mode = &def
	}
	q.d.mode.Mode = mode
	q.d.mode.UpdatedAt = at
	m := *q.d.mode
	return &m, nil
}
