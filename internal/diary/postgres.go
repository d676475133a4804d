package diary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/recordiary/backend/internal/tracing"
)

// diaryColumns is the select list shared by all read queries.
const diaryColumns = "id, user_id, created_at, local_date, audio_link, transcription, summary, emotion, is_private"

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// Begin opens a database transaction for the capture path.
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresTx{tx: tx, logger: s.logger}, nil
}

// Update applies a partial update as a single UPDATE statement, which is
// its own atomic scope. An empty patch succeeds without touching the
// database.
func (s *PostgresStore) Update(ctx context.Context, id int64, patch Patch) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "diary", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()
	return execUpdate(ctx, s.db, id, patch)
}

// Get returns one record owned by ownerID.
func (s *PostgresStore) Get(ctx context.Context, ownerID uuid.UUID, id int64) (record *Diary, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "diary", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := "SELECT " + diaryColumns + " FROM diary WHERE user_id = $1 AND id = $2"
	record, err = scanDiary(s.db.QueryRowContext(ctx, query, ownerID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDiaryNotFound
		}
		return nil, fmt.Errorf("failed to get diary %d: %w", id, err)
	}
	return record, nil
}

// GetMany returns the owner's records matching ids.
func (s *PostgresStore) GetMany(ctx context.Context, ownerID uuid.UUID, ids []int64) (result []*Diary, err error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "diary", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := "SELECT " + diaryColumns + " FROM diary WHERE user_id = $1 AND id = ANY($2)"
	rows, err := s.db.QueryContext(ctx, query, ownerID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query diaries: %w", err)
	}
	return collectDiaries(rows)
}

// GetByMonth returns the owner's records created in the given year/month.
// The filter is on the record's own creation timestamp.
func (s *PostgresStore) GetByMonth(ctx context.Context, ownerID uuid.UUID, year, month int) (result []*Diary, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "diary", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := "SELECT " + diaryColumns + ` FROM diary
		WHERE user_id = $1
		AND EXTRACT(YEAR FROM created_at) = $2
		AND EXTRACT(MONTH FROM created_at) = $3`
	rows, err := s.db.QueryContext(ctx, query, ownerID, year, month)
	if err != nil {
		return nil, fmt.Errorf("failed to query diaries for %d-%02d: %w", year, month, err)
	}
	return collectDiaries(rows)
}

// postgresTx wraps sql.Tx as a diary.Tx.
type postgresTx struct {
	tx     *sql.Tx
	logger *slog.Logger
	done   bool
}

// Create inserts a new record and returns the assigned id.
func (t *postgresTx) Create(ctx context.Context, params CreateParams) (_ int64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "diary", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	var id int64
	err = t.tx.QueryRowContext(ctx,
		"INSERT INTO diary (user_id, is_private) VALUES ($1, $2) RETURNING id",
		params.OwnerID, params.IsPrivate,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert diary: %w", err)
	}
	return id, nil
}

// Update applies a partial update inside the transaction.
func (t *postgresTx) Update(ctx context.Context, id int64, patch Patch) error {
	return execUpdate(ctx, t.tx, id, patch)
}

// Commit commits the transaction.
func (t *postgresTx) Commit() error {
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. No-op after Commit.
func (t *postgresTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execUpdate builds and runs a single UPDATE touching only the fields
// present in the patch. The statement is one atomic write, so concurrent
// patches to different fields of the same row cannot lose each other.
func execUpdate(ctx context.Context, db execer, id int64, patch Patch) error {
	if patch.IsEmpty() {
		return nil
	}

	var sets []string
	var args []any
	bind := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if patch.AudioLink != nil {
		bind("audio_link", *patch.AudioLink)
	}
	if patch.Transcription != nil {
		bind("transcription", *patch.Transcription)
	}
	if patch.Summary != nil {
		bind("summary", *patch.Summary)
	}
	if patch.Emotion != nil {
		bind("emotion", *patch.Emotion)
	}
	if patch.IsPrivate != nil {
		bind("is_private", *patch.IsPrivate)
	}

	args = append(args, id)
	query := "UPDATE diary SET " + strings.Join(sets, ", ") + " WHERE id = $" + strconv.Itoa(len(args))

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update diary %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrDiaryNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDiary(row rowScanner) (*Diary, error) {
	var d Diary
	err := row.Scan(
		&d.ID,
		&d.OwnerID,
		&d.CreatedAt,
		&d.LocalDate,
		&d.AudioLink,
		&d.Transcription,
		&d.Summary,
		&d.Emotion,
		&d.IsPrivate,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func collectDiaries(rows *sql.Rows) ([]*Diary, error) {
	defer func() {
		_ = rows.Close()
	}()

	var result []*Diary
	for rows.Next() {
		record, err := scanDiary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan diary row: %w", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate diary rows: %w", err)
	}
	return result, nil
}
