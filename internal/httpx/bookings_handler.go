package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-booking-saga.git/internal/booking"
	"github.com/ariefcatur/go-booking-saga.git/internal/redisx"
	"github.com/ariefcatur/go-booking-saga.git/internal/saga"
)

// SagaService is the orchestrator surface the HTTP layer uses.
type SagaService interface {
	StartSaga(ctx context.Context, req saga.CreateBookingRequest) (bookingID, sagaID string, err error)
	GetSagaState(ctx context.Context, sagaID string) (*booking.SagaInstance, error)
	Cancel(ctx context.Context, bookingID string) error
}

// BookingReader is the read-side store surface.
type BookingReader interface {
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	ListUserBookings(ctx context.Context, userID string, status booking.Status, page, limit int) ([]*booking.Booking, int, error)
}

type BookingsHandler struct {
	Sagas    SagaService
	Bookings BookingReader
	Redis    *redis.Client
}

type CreateBookingResp struct {
	BookingID string `json:"booking_id"`
	SagaID    string `json:"saga_id"`
	Status    string `json:"status"`
}

func (h *BookingsHandler) Register(r *chi.Mux) {
	r.Post("/api/bookings", h.createBooking)
	r.Get("/api/bookings/{id}", h.getBooking)
	r.Get("/api/bookings/{id}/status", h.getBookingStatus)
	r.Get("/api/users/{userID}/bookings", h.listUserBookings)
	r.Post("/api/bookings/{id}/cancel", h.cancelBooking)
	r.Get("/api/sagas/{id}", h.getSaga)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *BookingsHandler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req saga.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// Idempotency fast-path via Redis: request id yang sama balas response
	// yang sama, tanpa saga baru.
	var idemKey string
	if reqID := r.Header.Get("X-Request-Id"); reqID != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemBookingCreate, reqID)
		if cached, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && cached != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(cached))
			return
		}
	}

	bookingID, sagaID, err := h.Sagas.StartSaga(ctx, req)
	if err != nil {
		if errors.Is(err, booking.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	// Cache status awal supaya GET langsung murah.
	h.cacheStatus(ctx, bookingID, booking.StatusPending)

	resp := CreateBookingResp{
		BookingID: bookingID,
		SagaID:    sagaID,
		Status:    string(booking.StatusPending),
	}
	if idemKey != "" {
		body, _ := json.Marshal(resp)
		_ = h.Redis.Set(ctx, idemKey, body, redisx.TTLIdempotency).Err()
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *BookingsHandler) getBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	b, err := h.Bookings.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "booking not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	h.cacheStatus(ctx, b.ID, b.Status)
	writeJSON(w, http.StatusOK, b)
}

// getBookingStatus serves the cached status when Redis has it, falls back to
// the store otherwise.
func (h *BookingsHandler) getBookingStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyBookingStatus, id)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	b, err := h.Bookings.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "booking not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	h.cacheStatus(ctx, b.ID, b.Status)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(b.Status)})
}

func (h *BookingsHandler) listUserBookings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user id"})
		return
	}
	page := atoiDefault(r.URL.Query().Get("page"), 1)
	limit := atoiDefault(r.URL.Query().Get("limit"), 10)
	status := booking.Status(r.URL.Query().Get("status"))

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	bookings, total, err := h.Bookings.ListUserBookings(ctx, userID, status, page, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	totalPages := (total + limit - 1) / limit
	writeJSON(w, http.StatusOK, map[string]any{
		"bookings":     bookings,
		"total":        total,
		"current_page": page,
		"total_pages":  totalPages,
	})
}

func (h *BookingsHandler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Sagas.Cancel(ctx, id); err != nil {
		switch {
		case errors.Is(err, booking.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "booking not found"})
		case errors.Is(err, booking.ErrNotCancellable):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	h.cacheStatus(ctx, id, booking.StatusCancelled)
	writeJSON(w, http.StatusOK, map[string]string{"message": "booking cancelled"})
}

func (h *BookingsHandler) getSaga(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	s, err := h.Sagas.GetSagaState(ctx, id)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "saga not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *BookingsHandler) cacheStatus(ctx context.Context, bookingID string, status booking.Status) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyBookingStatus, bookingID)
	_ = h.Redis.Set(ctx, key, fmt.Sprintf(`{"status":%q}`, status), redisx.TTLStatusCache).Err()
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return def
	}
	return n
}
