package deco

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/recordiary/backend/internal/tracing"
)

// decoColumns is the select list shared by all catalog reads.
const decoColumns = "id, created_at, updated_at, name, display_name, category, asset_link, is_valid"

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

// CreateDeco inserts a catalog entry and returns its id. Empty
// display_name and category are stored as NULL.
func (s *PostgresStore) CreateDeco(ctx context.Context, params CreateDecoParams) (_ int64, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "deco", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO deco (name, display_name, category, asset_link, is_valid)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		params.Name, nullableString(params.DisplayName), nullableString(params.Category),
		params.AssetLink, params.IsValid,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert deco: %w", err)
	}
	return id, nil
}

// GetDeco returns one catalog entry.
func (s *PostgresStore) GetDeco(ctx context.Context, id int64) (_ *Deco, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "deco", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := "SELECT " + decoColumns + " FROM deco WHERE id = $1"
	d, err := scanDeco(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDecoNotFound
		}
		return nil, fmt.Errorf("failed to get deco %d: %w", id, err)
	}
	return d, nil
}

// AvailableDecos returns all valid catalog entries.
func (s *PostgresStore) AvailableDecos(ctx context.Context) (_ []*Deco, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "deco", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := "SELECT " + decoColumns + " FROM deco WHERE is_valid = TRUE ORDER BY id"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query available decos: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*Deco, 0)
	for rows.Next() {
		d, err := scanDeco(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deco row: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deco rows: %w", err)
	}
	return result, nil
}

// Grant ties a decoration to a diary entry, unplaced. Only valid
// catalog entries can be granted.
func (s *PostgresStore) Grant(ctx context.Context, ownerID uuid.UUID, diaryID, decoID int64) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_deco", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO user_deco (user_id, diary_id, deco_id, is_placed)
		SELECT $1, $2, d.id, FALSE FROM deco d WHERE d.id = $3 AND d.is_valid = TRUE`,
		ownerID, diaryID, decoID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return ErrDuplicatePlacement
			case "foreign_key_violation":
				return ErrDiaryNotFound
			}
		}
		return fmt.Errorf("failed to grant deco %d for diary %d: %w", decoID, diaryID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read grant result: %w", err)
	}
	if affected == 0 {
		return ErrDecoNotFound
	}
	return nil
}

// UpdatePlacement applies a partial update to a placement. Only the
// fields present in the patch are touched.
func (s *PostgresStore) UpdatePlacement(ctx context.Context, ownerID uuid.UUID, diaryID, decoID int64, patch PlacementPatch) (err error) {
	if patch.IsEmpty() {
		return nil
	}
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_deco", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	var sets []string
	var args []any
	bind := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if patch.IsPlaced != nil {
		bind("is_placed", *patch.IsPlaced)
	}
	if patch.Coordinates != nil {
		encoded, err := json.Marshal(patch.Coordinates)
		if err != nil {
			return fmt.Errorf("failed to encode coordinates: %w", err)
		}
		bind("coordinates", encoded)
	}

	args = append(args, ownerID, diaryID, decoID)
	n := len(args)
	query := "UPDATE user_deco SET " + strings.Join(sets, ", ") +
		" WHERE user_id = $" + strconv.Itoa(n-2) +
		" AND diary_id = $" + strconv.Itoa(n-1) +
		" AND deco_id = $" + strconv.Itoa(n)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update placement: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read placement update result: %w", err)
	}
	if affected == 0 {
		return ErrPlacementNotFound
	}
	return nil
}

// RoomByMonth returns the owner's placements joined with their
// decorations, for diaries whose local date falls in year/month.
func (s *PostgresStore) RoomByMonth(ctx context.Context, ownerID uuid.UUID, year, month int) (_ []*RoomItem, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "user_deco", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT ud.diary_id, ud.is_placed, ud.coordinates,
			d.id, d.created_at, d.updated_at, d.name, d.display_name, d.category, d.asset_link, d.is_valid
		FROM user_deco ud
		JOIN deco d ON d.id = ud.deco_id
		JOIN diary di ON di.id = ud.diary_id
		WHERE ud.user_id = $1
		AND EXTRACT(YEAR FROM di.local_date) = $2
		AND EXTRACT(MONTH FROM di.local_date) = $3
		ORDER BY ud.diary_id, d.id`
	rows, err := s.db.QueryContext(ctx, query, ownerID, year, month)
	if err != nil {
		return nil, fmt.Errorf("failed to query room for %d-%02d: %w", year, month, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*RoomItem, 0)
	for rows.Next() {
		var item RoomItem
		var coords []byte
		var displayName, category sql.NullString
		err := rows.Scan(
			&item.DiaryID,
			&item.IsPlaced,
			&coords,
			&item.Deco.ID,
			&item.Deco.CreatedAt,
			&item.Deco.UpdatedAt,
			&item.Deco.Name,
			&displayName,
			&category,
			&item.Deco.AssetLink,
			&item.Deco.IsValid,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room row: %w", err)
		}
		item.Deco.DisplayName = displayName.String
		item.Deco.Category = category.String
		if len(coords) > 0 {
			var c Coordinates
			if err := json.Unmarshal(coords, &c); err != nil {
				return nil, fmt.Errorf("failed to decode coordinates for diary %d: %w", item.DiaryID, err)
			}
			item.Coordinates = &c
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate room rows: %w", err)
	}
	return result, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDeco reads one catalog row. display_name and category are
// nullable; NULL comes back as the empty string.
func scanDeco(row rowScanner) (*Deco, error) {
	var d Deco
	var displayName, category sql.NullString
	err := row.Scan(
		&d.ID,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.Name,
		&displayName,
		&category,
		&d.AssetLink,
		&d.IsValid,
	)
	if err != nil {
		return nil, err
	}
	d.DisplayName = displayName.String
	d.Category = category.String
	return &d, nil
}

// nullableString maps the empty string to NULL.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
