//go:build integration

// Integration tests for the Postgres deco store. These start a throwaway
// PostgreSQL container via testcontainers and apply the repository
// migrations as init scripts.
//
// Run with: go test -tags=integration ./internal/deco/...
package deco

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/recordiary/backend/internal/diary"
)

func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("recordiary"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.WithInitScripts(
			filepath.Join("..", "..", "migrations", "000001_create_diary.up.sql"),
			filepath.Join("..", "..", "migrations", "000002_create_deco.up.sql"),
			filepath.Join("..", "..", "migrations", "000003_create_user_deco.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("could not start postgres container (docker unavailable?): %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}
	return db
}

func captureDiaryRow(t *testing.T, db *sql.DB, owner uuid.UUID) int64 {
	t.Helper()
	ctx := context.Background()

	diaries := diary.NewPostgresStore(db, nil)
	tx, err := diaries.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	id, err := tx.Create(ctx, diary.CreateParams{OwnerID: owner})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	return id
}

func createDecoRow(t *testing.T, store *PostgresStore, name string, valid bool) int64 {
	t.Helper()
	id, err := store.CreateDeco(context.Background(), CreateDecoParams{
		Name:        name,
		DisplayName: "Display " + name,
		Category:    "furniture",
		AssetLink:   "https://storage.example/" + name + ".glb",
		IsValid:     valid,
	})
	if err != nil {
		t.Fatalf("CreateDeco failed: %v", err)
	}
	return id
}

func TestPostgresStore_CatalogRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t)
	store := NewPostgresStore(db, nil)

	id := createDecoRow(t, store, "lamp", true)
	createDecoRow(t, store, "broken", false)

	got, err := store.GetDeco(ctx, id)
	if err != nil {
		t.Fatalf("GetDeco failed: %v", err)
	}
	if got.Name != "lamp" || got.CreatedAt.IsZero() {
		t.Errorf("GetDeco = %+v", got)
	}

	available, err := store.AvailableDecos(ctx)
	if err != nil {
		t.Fatalf("AvailableDecos failed: %v", err)
	}
	if len(available) != 1 || available[0].ID != id {
		t.Errorf("available = %+v, want only the valid entry", available)
	}

	if _, err := store.GetDeco(ctx, 999999); !errors.Is(err, ErrDecoNotFound) {
		t.Errorf("GetDeco missing = %v, want ErrDecoNotFound", err)
	}
}

func TestPostgresStore_GrantAndRoom(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t)
	store := NewPostgresStore(db, nil)
	owner := uuid.New()

	diaryID := captureDiaryRow(t, db, owner)
	decoID := createDecoRow(t, store, "lamp", true)
	invalidID := createDecoRow(t, store, "broken", false)

	if err := store.Grant(ctx, owner, diaryID, decoID); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if err := store.Grant(ctx, owner, diaryID, decoID); !errors.Is(err, ErrDuplicatePlacement) {
		t.Errorf("duplicate Grant = %v, want ErrDuplicatePlacement", err)
	}
	if err := store.Grant(ctx, owner, diaryID, invalidID); !errors.Is(err, ErrDecoNotFound) {
		t.Errorf("Grant of invalid deco = %v, want ErrDecoNotFound", err)
	}

	placed := true
	coords := Coordinates{X: 1, Y: 2, Z: 0, Orientation: 3}
	err := store.UpdatePlacement(ctx, owner, diaryID, decoID, PlacementPatch{
		IsPlaced:    &placed,
		Coordinates: &coords,
	})
	if err != nil {
		t.Fatalf("UpdatePlacement failed: %v", err)
	}

	now := time.Now().UTC()
	room, err := store.RoomByMonth(ctx, owner, now.Year(), int(now.Month()))
	if err != nil {
		t.Fatalf("RoomByMonth failed: %v", err)
	}
	if len(room) != 1 {
		t.Fatalf("room = %d items, want 1", len(room))
	}
	item := room[0]
	if item.DiaryID != diaryID || item.Deco.ID != decoID {
		t.Errorf("room item = %+v", item)
	}
	if !item.IsPlaced || item.Coordinates == nil || *item.Coordinates != coords {
		t.Errorf("placement state = placed %v coords %+v", item.IsPlaced, item.Coordinates)
	}

	empty, err := store.RoomByMonth(ctx, owner, now.Year()-1, int(now.Month()))
	if err != nil {
		t.Fatalf("RoomByMonth previous year failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("room for previous year = %d items, want 0", len(empty))
	}
}

func TestPostgresStore_NullableColumnsRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t)
	store := NewPostgresStore(db, nil)
	owner := uuid.New()

	// No display name or category: stored as NULL, read back empty.
	id, err := store.CreateDeco(ctx, CreateDecoParams{
		Name:      "plain-cube",
		AssetLink: "https://storage.example/plain-cube.glb",
		IsValid:   true,
	})
	if err != nil {
		t.Fatalf("CreateDeco failed: %v", err)
	}

	got, err := store.GetDeco(ctx, id)
	if err != nil {
		t.Fatalf("GetDeco failed: %v", err)
	}
	if got.DisplayName != "" || got.Category != "" {
		t.Errorf("NULL columns = (%q, %q), want empty strings", got.DisplayName, got.Category)
	}

	if _, err := store.AvailableDecos(ctx); err != nil {
		t.Errorf("AvailableDecos failed: %v", err)
	}

	diaryID := captureDiaryRow(t, db, owner)
	if err := store.Grant(ctx, owner, diaryID, id); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	now := time.Now().UTC()
	room, err := store.RoomByMonth(ctx, owner, now.Year(), int(now.Month()))
	if err != nil {
		t.Fatalf("RoomByMonth failed: %v", err)
	}
	if len(room) != 1 || room[0].Deco.DisplayName != "" {
		t.Errorf("room = %+v, want one item with empty display name", room)
	}
}

func TestPostgresStore_GrantUnknownDiary(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t)
	store := NewPostgresStore(db, nil)

	decoID := createDecoRow(t, store, "lamp", true)

	if err := store.Grant(ctx, uuid.New(), 999999, decoID); !errors.Is(err, ErrDiaryNotFound) {
		t.Errorf("Grant for missing diary = %v, want ErrDiaryNotFound", err)
	}
}

func TestPostgresStore_UpdatePlacementEdgeCases(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t)
	store := NewPostgresStore(db, nil)
	owner := uuid.New()

	if err := store.UpdatePlacement(ctx, owner, 1, 1, PlacementPatch{}); err != nil {
		t.Errorf("empty patch should be a fast no-op, got: %v", err)
	}
	placed := true
	if err := store.UpdatePlacement(ctx, owner, 1, 1, PlacementPatch{IsPlaced: &placed}); !errors.Is(err, ErrPlacementNotFound) {
		t.Errorf("update of missing placement = %v, want ErrPlacementNotFound", err)
	}
}
