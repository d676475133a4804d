package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/recordiary/backend/internal/capture"
	"github.com/recordiary/backend/internal/deco"
	"github.com/recordiary/backend/internal/diary"
	"github.com/recordiary/backend/internal/storage"
)

func newTestRouter(enrich *EnrichHandlers) *http.ServeMux {
	diaries := diary.NewInMemoryStore()
	decos := deco.NewInMemoryStore(diaries)
	blobs := storage.NewInMemoryStore()
	captureService := capture.NewService(diaries, blobs, nil, nil)
	catalog := deco.NewService(decos, blobs, nil)

	return NewRouter(RouterConfig{
		Diary:   NewDiaryHandlers(captureService, diaries, 0),
		Deco:    NewDecoHandlers(catalog, decos, 0),
		Room:    NewRoomHandlers(decos),
		Enrich:  enrich,
		Health:  NewHealthHandlers(HealthHandlersConfig{}),
		Version: "test",
	})
}

func TestRouter_Root(t *testing.T) {
	mux := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["service"] != "recordiary-api" {
		t.Errorf("expected service recordiary-api, got %q", resp["service"])
	}
	if resp["version"] != "test" {
		t.Errorf("expected version test, got %q", resp["version"])
	}
}

func TestRouter_UnknownPath(t *testing.T) {
	mux := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if code := decodeErrorCode(t, w.Body); code != ErrCodeNotFound {
		t.Errorf("expected error code %q, got %q", ErrCodeNotFound, code)
	}
}

func TestRouter_EnrichDisabled(t *testing.T) {
	mux := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/internal/enrich/retry", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

func TestRouter_HealthRoutes(t *testing.T) {
	mux := newTestRouter(nil)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, w.Code)
		}
	}
}
