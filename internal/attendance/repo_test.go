package attendance

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockLedger(t *testing.T) (*PostgresLedger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresLedger(db), mock
}

var outcomeColumns = []string{"id", "identity", "class_id", "status", "reason", "decided_at"}

func TestPostgresLedger_Put(t *testing.T) {
	l, mock := newMockLedger(t)
	o := newOutcome("CS001", "CS101", Present, ReasonBiometricVerified, time.Unix(100, 0))
	insert := regexp.QuoteMeta("INSERT INTO attendance_outcomes")

	mock.ExpectExec(insert).
		WithArgs(o.ID, "CS001", "CS101", "present", ReasonBiometricVerified, o.DecidedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := l.Put(context.Background(), o); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 0))
	if err := l.Put(context.Background(), o); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresLedger_Get(t *testing.T) {
	l, mock := newMockLedger(t)
	query := regexp.QuoteMeta("FROM attendance_outcomes")
	decided := time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(query).WithArgs("CS001", "CS101").
		WillReturnRows(sqlmock.NewRows(outcomeColumns))
	got, err := l.Get(context.Background(), "CS001", "CS101")
	if err != nil || got != nil {
		t.Fatalf("expected nil outcome, got %+v %v", got, err)
	}

	mock.ExpectQuery(query).WithArgs("CS001", "CS101").
		WillReturnRows(sqlmock.NewRows(outcomeColumns).
			AddRow("6f1c", "CS001", "CS101", "absent", ReasonClassExpired, decided))
	got, err = l.Get(context.Background(), "CS001", "CS101")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != Absent || got.Reason != ReasonClassExpired || !got.DecidedAt.Equal(decided) {
		t.Errorf("unexpected outcome %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresLedger_ListAll(t *testing.T) {
	l, mock := newMockLedger(t)
	decided := time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE class_id = $1 ORDER BY decided_at DESC LIMIT $2 OFFSET $3")).
		WithArgs("CS101", 50, 0).
		WillReturnRows(sqlmock.NewRows(outcomeColumns).
			AddRow("a", "CS001", "CS101", "present", ReasonBiometricVerified, decided).
			AddRow("b", "CS002", "CS101", "absent", "Wrong location - 120m away from Lab", decided))

	list, err := l.ListAll(context.Background(), "CS101", 0, -1)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(list) != 2 || list[1].Identity != "CS002" {
		t.Errorf("unexpected list %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresLedger_EnsureSchema(t *testing.T) {
	l, mock := newMockLedger(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS attendance_outcomes")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := l.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
}
