package postgres

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store"
	"github.com/SWE5001-Team-Public/queuetopia-queue/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestCreateReservationConcurrency(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	scope := models.Scope{StoreID: uuid.NewString()}
	now := time.Now().UTC()
	const n = 20

	var wg sync.WaitGroup
	results := make(chan createResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := st.CreateReservation(ctx, newInput(scope, now))
			results <- createResult{queueNo: r.QueueNo, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var numbers []int
	for result := range results {
		if result.err != nil {
			t.Fatalf("create reservation: %v", result.err)
		}
		numbers = append(numbers, result.queueNo)
	}
	sort.Ints(numbers)
	for i, got := range numbers {
		if got != i+1 {
			t.Fatalf("queue numbers=%v, want 1..%d", numbers, n)
		}
	}
}

func TestCreateReservationRejectsTakenNumber(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	scope := models.Scope{StoreID: uuid.NewString(), QueueID: uuid.NewString()}
	first, err := st.CreateReservation(ctx, newInput(scope, time.Now().UTC()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	input := newInput(scope, time.Now().UTC())
	input.QueueNo = first.QueueNo
	if _, err := st.CreateReservation(ctx, input); !errors.Is(err, store.ErrQueueNumberTaken) {
		t.Fatalf("expected ErrQueueNumberTaken, got %v", err)
	}

	highest, err := st.MaxQueueNumber(ctx, scope.ID(), input.Day)
	if err != nil {
		t.Fatalf("max queue number: %v", err)
	}
	if highest != first.QueueNo {
		t.Fatalf("max=%d, want %d", highest, first.QueueNo)
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	scope := models.Scope{StoreID: uuid.NewString()}
	created := time.Now().UTC().Truncate(time.Microsecond)
	r, err := st.CreateReservation(ctx, newInput(scope, created))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	calledAt := created.Add(2 * time.Minute)
	called, tr, err := st.UpdateStatus(ctx, store.UpdateStatusInput{ID: r.ID, Status: models.StatusCalled, OccurredAt: calledAt})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !tr.EnteredCalled || called.CalledAt == nil || !called.CalledAt.Equal(calledAt) {
		t.Fatalf("unexpected call result: %+v %+v", called, tr)
	}

	again, tr, err := st.UpdateStatus(ctx, store.UpdateStatusInput{ID: r.ID, Status: models.StatusCalled, OccurredAt: calledAt.Add(time.Minute)})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if tr.EnteredCalled || !again.CalledAt.Equal(calledAt) {
		t.Fatalf("calledAt overwritten on repeat call: %+v", again)
	}

	if _, _, err := st.UpdateStatus(ctx, store.UpdateStatusInput{ID: uuid.NewString(), Status: models.StatusCalled}); !errors.Is(err, store.ErrReservationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	events, err := st.ListReservationEvents(ctx, r.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if err := store.VerifyChain(events); err != nil {
		t.Fatalf("verify chain: %v", err)
	}
}

func TestListQueriesOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	scope := models.Scope{StoreID: uuid.NewString()}
	day := store.DayOf(time.Now().UTC(), time.UTC)
	base := day.Start.Add(time.Hour)

	var ids []string
	for i := 0; i < 3; i++ {
		input := newInput(scope, base.Add(time.Duration(i)*time.Minute))
		r, err := st.CreateReservation(ctx, input)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, r.ID)
	}
	if _, _, err := st.UpdateStatus(ctx, store.UpdateStatusInput{ID: ids[1], Status: models.StatusCalled, OccurredAt: base.Add(5 * time.Minute)}); err != nil {
		t.Fatalf("call: %v", err)
	}

	waiting, err := st.ListByStatus(ctx, scope.ID(), []string{models.StatusWaiting}, day)
	if err != nil {
		t.Fatalf("list waiting: %v", err)
	}
	if len(waiting) != 2 || waiting[0].QueueNo != 1 || waiting[1].QueueNo != 3 {
		t.Fatalf("unexpected waiting list: %+v", waiting)
	}

	completed, err := st.ListRecentCompleted(ctx, scope.ID(), day, 5)
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(completed) != 1 || completed[0].ID != ids[1] {
		t.Fatalf("unexpected completed list: %+v", completed)
	}
}

func TestSeedStatusesAndNotifications(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	if err := st.SeedStatuses(ctx, []models.StatusEntry{{Key: "Seated", Value: "Seated", Type: models.StatusCategory}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	entries, err := st.ListStatuses(ctx)
	if err != nil {
		t.Fatalf("list statuses: %v", err)
	}
	found := false
	for _, entry := range entries {
		if entry.Key == "Seated" {
			found = true
		}
	}
	if !found {
		t.Fatalf("seeded status missing from %+v", entries)
	}

	err = st.RecordNotification(ctx, store.NotificationRecord{
		Kind:      "called",
		Channel:   "sms",
		Recipient: "91234567",
		Status:    store.NotificationFailed,
		Attempts:  6,
		LastError: "gateway down",
	})
	if err != nil {
		t.Fatalf("record notification: %v", err)
	}
}

type createResult struct {
	queueNo int
	err     error
}

func newInput(scope models.Scope, createdAt time.Time) store.CreateReservationInput {
	return store.CreateReservationInput{
		Scope:     scope,
		Name:      "Guest",
		MobileNo:  "91234567",
		Pax:       2,
		Day:       store.DayOf(createdAt, time.UTC),
		CreatedAt: createdAt,
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execOnce(ctx, dsn, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if _, err := migrations.Up(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	st := NewStore(pool)
	if err := st.SeedStatuses(ctx, []models.StatusEntry{
		{Key: models.StatusWaiting, Value: "Waiting", Type: models.StatusCategory},
		{Key: models.StatusCalled, Value: "Called", Type: models.StatusCategory},
		{Key: models.StatusServed, Value: "Served", Type: models.StatusCategory},
		{Key: models.StatusCancelled, Value: "Cancelled", Type: models.StatusCategory},
	}); err != nil {
		pool.Close()
		t.Fatalf("seed statuses: %v", err)
	}

	cleanup := func() {
		pool.Close()
		_ = execOnce(context.Background(), dsn, "DROP SCHEMA "+schema+" CASCADE")
	}
	return st, cleanup
}

func execOnce(ctx context.Context, dsn, sql string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, sql)
	return err
}
