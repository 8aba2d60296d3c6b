package bookings

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func newTestMux(f *fixture) http.Handler {
	h := NewHandler(f.svc, f.checker, logging.NewWithWriter(io.Discard, "error"))
	r := chi.NewRouter()
	r.Post("/appointments", h.CreateAppointment)
	r.Get("/appointments", h.ListAppointments)
	r.Delete("/appointments/{appointmentID}", h.CancelAppointment)
	r.Get("/availability", h.Availability)
	return r
}

const createBody = `{
	"patient_name": "Maria Souza",
	"birth_date": "20/05/1990",
	"insurance_plan": "Unimed",
	"mobile_phone": "11987654321",
	"doctor_id": "d-ana",
	"service_id": "s-consulta",
	"date": "05/03/2026",
	"time": "14:30"
}`

func do(t *testing.T, mux http.Handler, method, target, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	var resp Response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHandlerCreateAppointment(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)

	w, resp := do(t, mux, http.MethodPost, "/appointments", createBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Message, "05/03/2026 às 14:30")

	w, resp = do(t, mux, http.MethodPost, "/appointments", createBody)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CategoryConflict, resp.Error)
	assert.Equal(t, ReasonSlotTaken, resp.Reason)
}

func TestHandlerCreateAppointmentValidation(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)

	w, resp := do(t, mux, http.MethodPost, "/appointments", strings.Replace(createBody, "20/05/1990", "10/01/2016", 1))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, ReasonAgeIneligible, resp.Reason)

	w, resp = do(t, mux, http.MethodPost, "/appointments", strings.Replace(createBody, "05/03/2026", "31/02/2026", 1))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, ReasonInvalidDate, resp.Reason)

	w, resp = do(t, mux, http.MethodPost, "/appointments", `{"patient_name":"Maria Souza"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, ReasonMissingField, resp.Reason)

	w, _ = do(t, mux, http.MethodPost, "/appointments", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerListAndCancel(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)

	w, created := do(t, mux, http.MethodPost, "/appointments", createBody)
	require.Equal(t, http.StatusCreated, w.Code)
	data := created.Data.(map[string]any)
	id := data["appointment_id"].(string)

	w, resp := do(t, mux, http.MethodGet, "/appointments?patient_name=maria%20souza", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, resp = do(t, mux, http.MethodDelete, "/appointments/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	w, resp = do(t, mux, http.MethodDelete, "/appointments/"+id, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, ReasonNotActive, resp.Reason)

	w, resp = do(t, mux, http.MethodDelete, "/appointments/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CategoryNotFound, resp.Error)

	w, resp = do(t, mux, http.MethodGet, "/appointments?patient_name=maria%20souza", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp.Data)
}

func TestHandlerAvailability(t *testing.T) {
	f := newFixture(t)
	mux := newTestMux(f)

	check := func(target string) AdvisoryCheckResult {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var res AdvisoryCheckResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		return res
	}

	assert.True(t, check("/availability?doctor_id=d-ana&date=05/03/2026&time=14:30").Available)
	blocked := check("/availability?doctor_id=d-ana&date=11/03/2026&time=09:00")
	assert.False(t, blocked.Available)
	assert.Equal(t, ReasonBlocked, blocked.Reason)

	req := httptest.NewRequest(http.MethodGet, "/availability?doctor_id=d-ana&date=2026-03-05&time=14:30", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
