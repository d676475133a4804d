package deco

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
	"time"
)

// nullCatalogConnector serves a single catalog row whose display_name
// and category columns are NULL, the state of seed rows inserted
// without the optional fields.
type nullCatalogConnector struct{}

func (nullCatalogConnector) Connect(context.Context) (driver.Conn, error) {
	return nullCatalogConn{}, nil
}

func (nullCatalogConnector) Driver() driver.Driver { return nullCatalogDriver{} }

type nullCatalogDriver struct{}

func (nullCatalogDriver) Open(string) (driver.Conn, error) { return nullCatalogConn{}, nil }

type nullCatalogConn struct{}

func (nullCatalogConn) Prepare(string) (driver.Stmt, error) { return nullCatalogStmt{}, nil }
func (nullCatalogConn) Close() error                        { return nil }
func (nullCatalogConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }

type nullCatalogStmt struct{}

func (nullCatalogStmt) Close() error  { return nil }
func (nullCatalogStmt) NumInput() int { return -1 }

func (nullCatalogStmt) Exec([]driver.Value) (driver.Result, error) {
	return nil, errors.New("not implemented")
}

func (nullCatalogStmt) Query([]driver.Value) (driver.Rows, error) {
	return &nullCatalogRows{}, nil
}

type nullCatalogRows struct{ served bool }

func (r *nullCatalogRows) Columns() []string {
	return []string{"id", "created_at", "updated_at", "name", "display_name", "category", "asset_link", "is_valid"}
}

func (r *nullCatalogRows) Close() error { return nil }

func (r *nullCatalogRows) Next(dest []driver.Value) error {
	if r.served {
		return io.EOF
	}
	r.served = true
	now := time.Now().UTC()
	dest[0] = int64(1)
	dest[1] = now
	dest[2] = now
	dest[3] = "lamp"
	dest[4] = nil
	dest[5] = nil
	dest[6] = "https://storage.invalid/lamp.glb"
	dest[7] = true
	return nil
}

// Rows with NULL display_name or category must read back as empty
// strings, not fail the whole query.
func TestPostgresStore_NullableCatalogColumns(t *testing.T) {
	ctx := context.Background()
	db := sql.OpenDB(nullCatalogConnector{})
	t.Cleanup(func() { _ = db.Close() })
	store := NewPostgresStore(db, nil)

	d, err := store.GetDeco(ctx, 1)
	if err != nil {
		t.Fatalf("GetDeco with NULL columns failed: %v", err)
	}
	if d.DisplayName != "" || d.Category != "" {
		t.Errorf("NULL columns = (%q, %q), want empty strings", d.DisplayName, d.Category)
	}
	if d.Name != "lamp" || !d.IsValid {
		t.Errorf("GetDeco = %+v", d)
	}

	available, err := store.AvailableDecos(ctx)
	if err != nil {
		t.Fatalf("AvailableDecos with NULL columns failed: %v", err)
	}
	if len(available) != 1 {
		t.Fatalf("available = %d entries, want 1", len(available))
	}
	if available[0].DisplayName != "" || available[0].Category != "" {
		t.Errorf("available NULL columns = (%q, %q), want empty strings",
			available[0].DisplayName, available[0].Category)
	}
}

func TestNullableString(t *testing.T) {
	if v := nullableString(""); v.Valid {
		t.Error("empty string should map to NULL")
	}
	if v := nullableString("furniture"); !v.Valid || v.String != "furniture" {
		t.Errorf("nullableString = %+v", v)
	}
}
