package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/models"
	"github.com/SWE5001-Team-Public/queuetopia-queue/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation           = "23505"
	queueNumberConstraint     = "reservations_scope_day_queue_no_key"
	reservationColumns        = "id, queue_no, name, mobile_no, pax, status, queue_id, store_id, created_at, updated_at, called_at"
	defaultRecentCompletedCap = 50
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateReservation(ctx context.Context, input store.CreateReservationInput) (models.Reservation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Reservation{}, unavailable(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	scopeID := input.Scope.ID()
	queueNo := input.QueueNo
	if queueNo <= 0 {
		queueNo, err = nextQueueNumber(ctx, tx, scopeID, input.Day)
		if err != nil {
			return models.Reservation{}, unavailable(err)
		}
	}

	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO reservations (
			id, queue_no, name, mobile_no, pax, status, queue_id, store_id,
			scope_id, business_day, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
		RETURNING `+reservationColumns,
		id, queueNo, input.Name, input.MobileNo, input.Pax, models.StatusWaiting, input.Scope.QueueID, input.Scope.StoreID,
		scopeID, input.Day.Start, createdAt)

	var r models.Reservation
	if r, err = scanReservation(row); err != nil {
		if isQueueNumberConflict(err) {
			return models.Reservation{}, store.ErrQueueNumberTaken
		}
		return models.Reservation{}, unavailable(err)
	}

	var payload []byte
	if payload, err = store.CreatedPayload(r); err != nil {
		return models.Reservation{}, err
	}
	if err = insertReservationEvent(ctx, tx, r.ID, store.EventReservationCreated, payload); err != nil {
		return models.Reservation{}, unavailable(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Reservation{}, unavailable(err)
	}
	return r, nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (models.Reservation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Reservation{}, store.ErrReservationNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	r, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Reservation{}, store.ErrReservationNotFound
		}
		return models.Reservation{}, unavailable(err)
	}
	return r, nil
}

// UpdateStatus locks the row, applies the transition and appends a status event
// in a single transaction.
func (s *Store) UpdateStatus(ctx context.Context, input store.UpdateStatusInput) (models.Reservation, store.Transition, error) {
	if _, err := uuid.Parse(input.ID); err != nil {
		return models.Reservation{}, store.Transition{}, store.ErrReservationNotFound
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Reservation{}, store.Transition{}, unavailable(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current models.Reservation
	row := tx.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1 FOR UPDATE`, input.ID)
	if current, err = scanReservation(row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Reservation{}, store.Transition{}, store.ErrReservationNotFound
		}
		return models.Reservation{}, store.Transition{}, unavailable(err)
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	updated, tr := store.ApplyStatus(current, input.Status, occurredAt)

	if _, err = tx.Exec(ctx, `
		UPDATE reservations
		SET status = $1, updated_at = $2, called_at = $3
		WHERE id = $4
	`, updated.Status, updated.UpdatedAt, updated.CalledAt, updated.ID); err != nil {
		return models.Reservation{}, store.Transition{}, unavailable(err)
	}

	var payload []byte
	if payload, err = store.StatusChangedPayload(updated, tr); err != nil {
		return models.Reservation{}, store.Transition{}, err
	}
	if err = insertReservationEvent(ctx, tx, updated.ID, store.EventStatusChanged, payload); err != nil {
		return models.Reservation{}, store.Transition{}, unavailable(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Reservation{}, store.Transition{}, unavailable(err)
	}
	return updated, tr, nil
}

func (s *Store) ListByStatus(ctx context.Context, scopeID string, statuses []string, day store.Day) ([]models.Reservation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE scope_id = $1 AND status = ANY($2) AND created_at >= $3 AND created_at < $4
		ORDER BY created_at ASC, queue_no ASC
	`, scopeID, statuses, day.Start, day.End)
	if err != nil {
		return nil, unavailable(err)
	}
	return collectReservations(rows)
}

func (s *Store) ListRecentCompleted(ctx context.Context, scopeID string, day store.Day, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = defaultRecentCompletedCap
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE scope_id = $1 AND status <> ALL($2) AND created_at >= $3 AND created_at < $4
		ORDER BY created_at DESC, queue_no DESC
		LIMIT $5
	`, scopeID, store.NotCompletedStatuses(), day.Start, day.End, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	return collectReservations(rows)
}

func (s *Store) MaxQueueNumber(ctx context.Context, scopeID string, day store.Day) (int, error) {
	var highest int
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(queue_no), 0)
		FROM reservations
		WHERE scope_id = $1 AND business_day = $2
	`, scopeID, day.Start)
	if err := row.Scan(&highest); err != nil {
		return 0, unavailable(err)
	}
	return highest, nil
}

func (s *Store) ListReservationEvents(ctx context.Context, id string) ([]store.ReservationEvent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrReservationNotFound
	}
	rows, err := s.pool.Query(ctx, `
		SELECT reservation_id, seq, type, payload, created_at, prev_hash, hash
		FROM reservation_events
		WHERE reservation_id = $1
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	events := []store.ReservationEvent{}
	for rows.Next() {
		var event store.ReservationEvent
		if err := rows.Scan(&event.ReservationID, &event.Seq, &event.Type, &event.Payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, unavailable(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	if len(events) == 0 {
		return nil, store.ErrReservationNotFound
	}
	return events, nil
}

func (s *Store) ListStatuses(ctx context.Context) ([]models.StatusEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value, type FROM static WHERE type = $1 ORDER BY key`, models.StatusCategory)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	entries := []models.StatusEntry{}
	for rows.Next() {
		var entry models.StatusEntry
		if err := rows.Scan(&entry.Key, &entry.Value, &entry.Type); err != nil {
			return nil, unavailable(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return entries, nil
}

// SeedStatuses upserts vocabulary rows in one batch.
func (s *Store) SeedStatuses(ctx context.Context, entries []models.StatusEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(`
			INSERT INTO static (key, value, type) VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, type = EXCLUDED.type
		`, entry.Key, entry.Value, entry.Type)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) RecordNotification(ctx context.Context, record store.NotificationRecord) error {
	if record.NotificationID == "" {
		record.NotificationID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (
			notification_id, reservation_id, kind, channel, recipient, status, attempts, last_error, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, record.NotificationID, nullIfEmpty(record.ReservationID), record.Kind, record.Channel, record.Recipient,
		record.Status, record.Attempts, nullIfEmpty(record.LastError), record.CreatedAt)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// nextQueueNumber increments the per-scope, per-day counter. The first call of a
// day seeds it from the numbers already stored. The row lock is held until the
// surrounding transaction ends, serializing concurrent joins in one scope.
func nextQueueNumber(ctx context.Context, tx pgx.Tx, scopeID string, day store.Day) (int, error) {
	var next int
	row := tx.QueryRow(ctx, `
		INSERT INTO reservation_sequences (scope_id, business_day, next_number)
		VALUES ($1, $2, COALESCE((
			SELECT MAX(queue_no) FROM reservations WHERE scope_id = $1 AND business_day = $2
		), 0) + 1)
		ON CONFLICT (scope_id, business_day)
		DO UPDATE SET next_number = reservation_sequences.next_number + 1
		RETURNING next_number
	`, scopeID, day.Start)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func insertReservationEvent(ctx context.Context, tx pgx.Tx, reservationID, eventType string, payload []byte) error {
	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT seq, hash
		FROM reservation_events
		WHERE reservation_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`, reservationID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	nextSeq := lastSeq + 1
	prev := ""
	if prevHash.Valid {
		prev = prevHash.String
	}
	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	hash := store.ComputeEventHash(prev, reservationID, eventType, payload, createdAt, nextSeq)

	_, err := tx.Exec(ctx, `
		INSERT INTO reservation_events (reservation_id, seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, reservationID, nextSeq, eventType, payload, createdAt, prev, hash)
	return err
}

func scanReservation(row pgx.Row) (models.Reservation, error) {
	var r models.Reservation
	var calledAtNull sql.NullTime
	if err := row.Scan(&r.ID, &r.QueueNo, &r.Name, &r.MobileNo, &r.Pax, &r.Status, &r.QueueID, &r.StoreID, &r.CreatedAt, &r.UpdatedAt, &calledAtNull); err != nil {
		return models.Reservation{}, err
	}
	r.CalledAt = nullTimePtr(calledAtNull)
	return r, nil
}

func collectReservations(rows pgx.Rows) ([]models.Reservation, error) {
	defer rows.Close()

	reservations := []models.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		reservations = append(reservations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return reservations, nil
}

func isQueueNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == queueNumberConstraint
}

// unavailable marks infrastructure failures. Context errors pass through unchanged.
func unavailable(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", store.ErrStorageUnavailable, err)
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}
