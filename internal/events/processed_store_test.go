package events

import (
	"context"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestProcessedStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("twilio", "evt").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	processed, err := store.AlreadyProcessed(context.Background(), "twilio", "evt")
	if err != nil || !processed {
		t.Fatalf("expected existing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("twilio", "evt-miss").WillReturnError(pgx.ErrNoRows)
	processed, err = store.AlreadyProcessed(context.Background(), "twilio", "evt-miss")
	if err != nil || processed {
		t.Fatalf("expected missing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("twilio", "evt-new").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.MarkProcessed(context.Background(), "twilio", "evt-new")
	if err != nil || !ok {
		t.Fatalf("expected mark processed success, got %v %v", ok, err)
	}

	mock.ExpectExec("DELETE FROM processed_events").WithArgs("twilio", "evt-new").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := store.Release(context.Background(), "twilio", "evt-new"); err != nil {
		t.Fatalf("expected release success, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMemoryProcessedStore(t *testing.T) {
	store := NewMemoryProcessedStore()
	ctx := context.Background()

	processed, _ := store.AlreadyProcessed(ctx, "twilio", "SM1")
	if processed {
		t.Fatal("expected unseen event")
	}
	first, _ := store.MarkProcessed(ctx, "twilio", "SM1")
	second, _ := store.MarkProcessed(ctx, "twilio", "SM1")
	if !first || second {
		t.Fatalf("expected first mark to win, got first=%v second=%v", first, second)
	}
	other, _ := store.MarkProcessed(ctx, "webhook", "SM1")
	if !other {
		t.Fatal("expected provider to scope event ids")
	}
	if err := store.Release(ctx, "twilio", "SM1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, _ := store.MarkProcessed(ctx, "twilio", "SM1")
	if !again {
		t.Fatal("expected released event to be claimable again")
	}
}
