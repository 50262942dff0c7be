package bookings

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/wellness-booking/internal/credits"
	"github.com/wolfman30/wellness-booking/internal/identity"
)

func newTestRouter(t *testing.T, s testStack) http.Handler {
	t.Helper()
	h := NewHandler(s.service, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if id := req.Header.Get("X-Test-User"); id != "" {
				req = req.WithContext(identity.WithActor(req.Context(), identity.Actor{ID: id, Role: identity.Role(req.Header.Get("X-Test-Role"))}))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/appointments", h.Book)
	r.Get("/appointments", h.List)
	r.Get("/appointments/{appointmentID}", h.Get)
	r.Post("/appointments/{appointmentID}/cancel", h.Cancel)
	r.Post("/appointments/{appointmentID}/reschedule", h.Reschedule)
	return r
}

func do(router http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-Test-User", user)
		req.Header.Set("X-Test-Role", string(identity.RolePatient))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_BookingLifecycle(t *testing.T) {
	s := newTestStack(t, time.Date(2025, 9, 14, 9, 0, 0, 0, time.UTC))
	router := newTestRouter(t, s)

	body := `{"service_name":"Yoga","price":"100000","date":"2025-09-15","start":"09:00","duration_minutes":60,"resource_ids":["instructor-7"]}`
	rec := do(router, http.MethodPost, "/appointments", "u-1", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var appt Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))
	assert.Equal(t, "u-1", appt.UserID)

	conflicting := `{"service_name":"Yoga","price":"100000","date":"2025-09-15","start":"09:30","end":"10:30","resource_ids":["instructor-7"]}`
	rec = do(router, http.MethodPost, "/appointments", "u-2", conflicting)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "instructor-7 booked 09:00-10:00")

	rec = do(router, http.MethodGet, "/appointments/"+appt.ID.String(), "u-2", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(router, http.MethodGet, "/appointments", "u-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(router, http.MethodPost, "/appointments/"+appt.ID.String()+"/reschedule", "u-1", `{"date":"2025-09-15","start":"11:00"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(router, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", "u-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res CancelResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(100), res.RefundPercentage)
	assert.NotNil(t, res.CreditID)

	rec = do(router, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", "u-1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_Errors(t *testing.T) {
	s := newTestStack(t, time.Date(2025, 9, 14, 9, 0, 0, 0, time.UTC))
	router := newTestRouter(t, s)

	rec := do(router, http.MethodGet, "/appointments/not-a-uuid", "u-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/appointments/6f1c7c1e-8a4e-4d43-9a0e-2d7d8a2f6b11", "u-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodPost, "/appointments", "u-1", `{"service_name":"Yoga","price":"10","date":"2025-09-15","start":"09:00","resource_ids":["r"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/appointments", "u-1", `{"service_name":"Yoga","price":"100","date":"2025-09-15","start":"09:00","duration_minutes":30,"resource_ids":["r"],"credits_to_apply":"50"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":"0.00"`)

	rec = do(router, http.MethodGet, "/appointments", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_WriteErrorMapsDuplicateCancellationCredit(t *testing.T) {
	h := NewHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.writeError(rec, fmt.Errorf("bookings: cancel: %w", credits.ErrDuplicateCancellationCredit))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
