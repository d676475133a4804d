package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recordiary/backend/internal/capture"
	"github.com/recordiary/backend/internal/diary"
	"github.com/recordiary/backend/internal/middleware"
	"github.com/recordiary/backend/internal/storage"
	"github.com/recordiary/backend/internal/validate"
)

// DefaultMaxUploadBytes limits multipart bodies. Matches the mobile
// client's recording cap.
const DefaultMaxUploadBytes = 20 << 20 // 20MB

// CreateDiaryResponse is the body for a successful capture.
type CreateDiaryResponse struct {
	DiaryID int64 `json:"diary_id"`
}

// CalendarEntry pairs a record with its creation timestamp for the
// calendar view.
type CalendarEntry struct {
	CreatedAt time.Time    `json:"created_at"`
	Diary     *diary.Diary `json:"diary"`
}

// DiaryHandlers holds dependencies for diary HTTP handlers.
type DiaryHandlers struct {
	capture        *capture.Service
	diaries        diary.Store
	maxUploadBytes int64
}

// NewDiaryHandlers creates a new DiaryHandlers instance.
// maxUploadBytes <= 0 uses DefaultMaxUploadBytes.
func NewDiaryHandlers(captureService *capture.Service, diaries diary.Store, maxUploadBytes int64) *DiaryHandlers {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &DiaryHandlers{
		capture:        captureService,
		diaries:        diaries,
		maxUploadBytes: maxUploadBytes,
	}
}

// Diary handles /diary: POST captures a new recording, GET reads
// records back.
func (h *DiaryHandlers) Diary(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createDiary(w, r)
	case http.MethodGet:
		h.getDiary(w, r)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	}
}

// createDiary handles POST /diary?user_id=&is_private= with the audio
// as a multipart file field. The first file field wins; anything else
// in the form is ignored.
func (h *DiaryHandlers) createDiary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	isPrivate := false
	if v := r.URL.Query().Get("is_private"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "is_private must be a boolean")
			return
		}
		isPrivate = parsed
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	audio, contentType, err := firstFilePart(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodePayloadTooLarge)
			WriteError(w, ctx, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "Upload exceeds the size limit")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Multipart body with one audio file is required")
		return
	}

	if contentType == "" {
		contentType = validate.MIMEOctetStream
	}
	contentType, err = validate.AudioFile(contentType, int64(len(audio)))
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Upload must be an audio recording")
		return
	}

	id, err := h.capture.Capture(r.Context(), capture.Request{
		OwnerID:     ownerID,
		IsPrivate:   isPrivate,
		Audio:       audio,
		ContentType: contentType,
	})
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrNoAudio):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Audio file is empty")
		case errors.Is(err, storage.ErrStorage):
			slog.ErrorContext(r.Context(), "capture storage failure", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeStorage)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeStorage, "Failed to store the recording")
		default:
			slog.ErrorContext(r.Context(), "capture failed", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodePersistence)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodePersistence, "Failed to save the diary")
		}
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, CreateDiaryResponse{DiaryID: id})
}

// getDiary handles GET /diary?user_id=&diary_id=. A single id returns
// one record; a comma-separated list returns an array.
func (h *DiaryHandlers) getDiary(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("diary_id")
	if raw == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "diary_id is required")
		return
	}

	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "diary_id must be an integer or a comma-separated list of integers")
			return
		}
		ids = append(ids, id)
	}

	if len(ids) == 1 {
		record, err := h.diaries.Get(r.Context(), ownerID, ids[0])
		if err != nil {
			if errors.Is(err, diary.ErrDiaryNotFound) {
				ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
				WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Diary not found")
				return
			}
			slog.ErrorContext(r.Context(), "failed to get diary", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodePersistence)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodePersistence, "Failed to read the diary")
			return
		}
		writeJSON(w, r.Context(), http.StatusOK, record)
		return
	}

	records, err := h.diaries.GetMany(r.Context(), ownerID, ids)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to get diaries", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePersistence)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodePersistence, "Failed to read the diaries")
		return
	}
	if records == nil {
		records = []*diary.Diary{}
	}
	writeJSON(w, r.Context(), http.StatusOK, records)
}

// DiaryMonth handles GET /diary/month?user_id=&year=&month=.
func (h *DiaryHandlers) DiaryMonth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ownerID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	year, month, ok := parseYearMonth(w, r)
	if !ok {
		return
	}

	records, err := h.diaries.GetByMonth(r.Context(), ownerID, year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to get diaries by month", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePersistence)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodePersistence, "Failed to read the diaries")
		return
	}
	if records == nil {
		records = []*diary.Diary{}
	}
	writeJSON(w, r.Context(), http.StatusOK, records)
}

// Calendar handles GET /calendar?user_id=&year=&month=. Same data as
// the month view, shaped for the calendar client.
func (h *DiaryHandlers) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ownerID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	year, month, ok := parseYearMonth(w, r)
	if !ok {
		return
	}

	records, err := h.diaries.GetByMonth(r.Context(), ownerID, year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to get calendar", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePersistence)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodePersistence, "Failed to read the calendar")
		return
	}

	entries := make([]CalendarEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, CalendarEntry{
			CreatedAt: record.CreatedAt,
			Diary:     record,
		})
	}
	writeJSON(w, r.Context(), http.StatusOK, entries)
}

// parseUserID extracts and validates the user_id query parameter,
// writing a validation error when it is missing or malformed.
func parseUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "user_id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "user_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseYearMonth extracts and validates year and month query
// parameters.
func parseYearMonth(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year < 1 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "year must be a positive integer")
		return 0, 0, false
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "month must be between 1 and 12")
		return 0, 0, false
	}
	return year, month, true
}

// firstFilePart reads the first file field of a multipart body.
func firstFilePart(r *http.Request) ([]byte, string, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, "", err
	}

	for {
		part, err := reader.NextPart()
		if err != nil {
			return nil, "", err // io.EOF when no file field exists
		}
		if part.FileName() == "" {
			_ = part.Close()
			continue
		}

		data, err := io.ReadAll(part)
		closeErr := part.Close()
		if err != nil {
			return nil, "", err
		}
		if closeErr != nil {
			return nil, "", closeErr
		}
		return data, part.Header.Get("Content-Type"), nil
	}
}
