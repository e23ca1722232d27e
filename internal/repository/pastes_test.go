package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atinyakov/GraphPaste/internal/models"
	"github.com/atinyakov/GraphPaste/internal/service"
)

var pasteRowColumns = []string{
	"id", "title", "content", "public", "burn", "created_at", "expires_at", "language", "size",
	"version", "metadata", "owner_id", "user_id", "ip_addr", "user_agent",
}

func TestCreatePaste(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	owner := int64(2)
	p := &models.Paste{
		Title: "t", Public: true, CreatedAt: time.Now(), Version: 1,
		Metadata: map[string]any{"k": "v"}, OwnerID: &owner, UserID: &owner,
		IPAddress: "10.0.0.1", UserAgent: "curl",
	}
	p.SetContent("hello")

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO pastes (title, content, public, burn, created_at, expires_at, language, size,`)).
		WithArgs("t", "hello", true, false, p.CreatedAt, nil, "", 5,
			1, []byte(`{"k":"v"}`), owner, owner, "10.0.0.1", "curl").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	if err := store.CreatePaste(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != 11 {
		t.Errorf("expected id 11, got %d", p.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPasteByID_DecodesMetadata(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM pastes WHERE id = $1`)).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(pasteRowColumns).
			AddRow(int64(11), "t", "hello", true, false, now, nil, "go", int64(5),
				int64(2), []byte(`{"k":"v"}`), int64(2), nil, "10.0.0.1", "curl"))

	p, err := store.PasteByID(context.Background(), 11)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Version != 2 || p.Size != 5 || p.Metadata["k"] != "v" {
		t.Errorf("unexpected paste: %+v", p)
	}
	if p.UserID != nil || p.OwnerID == nil || *p.OwnerID != 2 {
		t.Errorf("unexpected owner fields: %v %v", p.OwnerID, p.UserID)
	}
}

func TestPasteByIDForUpdate_LocksRowInTransaction(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM pastes WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(pasteRowColumns).
			AddRow(int64(11), "t", "hello", true, false, now, nil, "go", int64(5),
				int64(3), nil, int64(2), nil, "10.0.0.1", "curl"))
	mock.ExpectCommit()

	var p *models.Paste
	err := store.Atomic(context.Background(), func(q service.Queries) error {
		var err error
		p, err = q.PasteByIDForUpdate(context.Background(), 11)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil || p.Version != 3 {
		t.Errorf("unexpected paste: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPasteByTitle_Missing(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM pastes WHERE title = $1`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(pasteRowColumns))

	p, err := store.PasteByTitle(context.Background(), "nope")
	if err != nil || p != nil {
		t.Fatalf("expected nil, got %+v, %v", p, err)
	}
}

func TestListPastes_FilterAndLimit(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	public := true
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM pastes WHERE public = $1 ORDER BY created_at DESC, id DESC LIMIT $2`)).
		WithArgs(true, 1).
		WillReturnRows(sqlmock.NewRows(pasteRowColumns).
			AddRow(int64(3), "t", "c", true, false, now, nil, "", int64(1), int64(1), nil, nil, nil, "", ""))

	pastes, err := store.ListPastes(context.Background(), models.PasteFilter{Public: &public, Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pastes) != 1 || pastes[0].ID != 3 {
		t.Errorf("unexpected pastes: %+v", pastes)
	}
}

func TestListPastes_LimitOnly(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM pastes ORDER BY created_at DESC, id DESC LIMIT $1`)).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows(pasteRowColumns))

	if _, err := store.ListPastes(context.Background(), models.PasteFilter{Limit: 10}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdatePaste_Missing(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE pastes`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdatePaste(context.Background(), &models.Paste{ID: 5}); err == nil {
		t.Fatal("expected error for missing paste")
	}
}

func TestDeletePaste(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM pastes WHERE id = $1`)).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.DeletePaste(context.Background(), 4)
	if err != nil || !ok {
		t.Fatalf("expected delete, got %v, %v", ok, err)
	}
}

func TestPasteVersions(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM paste_versions WHERE paste_id = $1 ORDER BY version`)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "paste_id", "content", "version", "created_at"}).
			AddRow(int64(1), int64(1), "a", int64(1), now).
			AddRow(int64(2), int64(1), "b", int64(2), now))

	versions, err := store.PasteVersions(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(versions) != 2 || versions[1].Version != 2 || versions[1].Content != "b" {
		t.Errorf("unexpected versions: %+v", versions)
	}
}

func TestCreateAudit_AndList(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	now := time.Now()
	a := &models.Audit{
		Action: models.ActionCreate, Timestamp: now, RequestHeaders: map[string]string{"X": "1"},
		OperationType: models.OperationMutation, SecurityLevel: models.SeverityInfo,
	}
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO audits`)).
		WithArgs(nil, nil, "create", now, "", "", []byte(`{"X":"1"}`), "", "mutation", "info").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM audits ORDER BY timestamp DESC, id DESC LIMIT $1`)).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "paste_id", "user_id", "action", "timestamp", "ip_address",
			"user_agent", "request_headers", "graphql_operation", "operation_type", "security_level"}).
			AddRow(int64(9), int64(1), nil, "create", now, "", "", []byte(`{"X":"1"}`), "", "mutation", "info"))

	if err := store.CreateAudit(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID != 9 {
		t.Errorf("expected id 9, got %d", a.ID)
	}

	audits, err := store.ListAudits(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audits) != 1 || audits[0].RequestHeaders["X"] != "1" || *audits[0].PasteID != 1 {
		t.Errorf("unexpected audits: %+v", audits)
	}
}

func TestUpsertServerMode(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (id) DO UPDATE SET mode = EXCLUDED.mode`)).
		WithArgs(1, "hard", now, 100, 1<<20, 5<<20, "txt,pdf,png,jpg", "INFO").
		WillReturnRows(sqlmock.NewRows([]string{"id", "mode", "updated_at", "rate_limit", "max_paste_size",
			"max_file_size", "allowed_file_types", "log_level", "security_config"}).
			AddRow(int64(1), "hard", now, int64(100), int64(1<<20), int64(5<<20), "txt,pdf,png,jpg", "INFO", nil))

	m, err := store.UpsertServerMode(context.Background(), models.ModeHard, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Mode != models.ModeHard || m.RateLimit != 100 {
		t.Errorf("unexpected mode row: %+v", m)
	}
}

func TestServerMode_Absent(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM server_mode WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	m, err := store.ServerMode(context.Background())
	if err != nil || m != nil {
		t.Fatalf("expected nil, got %+v, %v", m, err)
	}
}

func TestCleanup(t *testing.T) {
	store, mock, cleanup := setupMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM user_sessions WHERE expires_at < $1`)).
		WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM pastes WHERE expires_at IS NOT NULL`)).
		WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM audits WHERE timestamp < $1`)).
		WithArgs(now.Add(-time.Hour)).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM login_attempts WHERE timestamp < $1`)).
		WithArgs(now.Add(-time.Hour)).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET request_count = 0`)).
		WithArgs(now.Add(-time.Minute)).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	report, err := store.Cleanup(context.Background(), service.Cleanup{Now: now, Retention: time.Hour, RateWindow: time.Minute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := service.CleanupReport{Sessions: 2, Pastes: 1, Audits: 3, LoginAttempts: 4, RateCounters: 5}
	if report != want {
		t.Errorf("expected %+v, got %+v", want, report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
