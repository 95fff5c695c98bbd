package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/vessellink/veddy/internal/core/domain"
)

func newMessageStoreWithMock(t *testing.T) (*MessageStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &MessageStore{db: db}, mock, func() { _ = db.Close() }
}

func TestSaveMessage(t *testing.T) {
	store, mock, done := newMessageStoreWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO messages").
		WithArgs("m1", "u1", "질문", "답변", false, true, []byte(`["IMO DCS","EU MRV"]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveMessage(context.Background(), &domain.Message{
		ID:             "m1",
		UserID:         "u1",
		Query:          "질문",
		Answer:         "답변",
		ComparisonMode: true,
		Topics:         []string{"IMO DCS", "EU MRV"},
	})
	if err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecentReversesToChronological(t *testing.T) {
	store, mock, done := newMessageStoreWithMock(t)
	defer done()

	now := time.Now().UTC()
	columns := []string{"id", "user_id", "query", "answer", "table_mode", "comparison_mode", "topics", "created_at"}
	mock.ExpectQuery("FROM messages").
		WithArgs("u1", 15).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("m2", "u1", "둘째 질문", "둘째 답변", false, false, []byte(`[]`), now).
			AddRow("m1", "u1", "첫 질문", "첫 답변", false, false, []byte(`[]`), now.Add(-time.Minute)))

	messages, err := store.ListRecent(context.Background(), "u1", 15)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].ID != "m1" || messages[1].ID != "m2" {
		t.Fatalf("messages not chronological: %s, %s", messages[0].ID, messages[1].ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecentZeroLimit(t *testing.T) {
	store, _, done := newMessageStoreWithMock(t)
	defer done()

	messages, err := store.ListRecent(context.Background(), "u1", 0)
	if err != nil || messages != nil {
		t.Fatalf("expected nil, nil; got %v, %v", messages, err)
	}
}
