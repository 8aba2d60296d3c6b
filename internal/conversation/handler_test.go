package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/clinic-scheduler/internal/bookings"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

type stubRouter struct {
	last InboundMessage
	out  Outcome
	err  error
}

func (s *stubRouter) Route(ctx context.Context, msg InboundMessage) (Outcome, error) {
	s.last = msg
	return s.out, s.err
}

func TestHandler_Message_RoutesToEngine(t *testing.T) {
	f := newConvFixture(t)
	handler := NewHandler(f.router, logging.Default())

	body, _ := json.Marshal(MessageRequest{Sender: "5511977770000", Message: "agendar"})
	req := httptest.NewRequest(http.MethodPost, "/conversations/message", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handler.Message(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, w.Code)
	}
	var resp Outcome
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.State != StateAwaitingName || resp.Intent != IntentSchedule {
		t.Fatalf("unexpected outcome %#v", resp)
	}
}

func TestHandler_Message_RejectsBadInput(t *testing.T) {
	handler := NewHandler(&stubRouter{}, nil)

	for _, body := range []string{"not-json", `{"message":"oi"}`} {
		req := httptest.NewRequest(http.MethodPost, "/conversations/message", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.Message(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected %d, got %d", body, http.StatusBadRequest, w.Code)
		}
	}
}

func TestHandler_Message_InternalErrorStillReturnsApology(t *testing.T) {
	router := &stubRouter{
		out: Outcome{Message: "Desculpe", Error: bookings.CategoryInternal},
		err: errors.New("store down"),
	}
	handler := NewHandler(router, nil)

	req := httptest.NewRequest(http.MethodPost, "/conversations/message", strings.NewReader(`{"sender":"5511","message":"sim","display_name":"Maria"}`))
	w := httptest.NewRecorder()
	handler.Message(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d, got %d", http.StatusInternalServerError, w.Code)
	}
	if router.last.DisplayName != "Maria" || router.last.Body != "sim" {
		t.Fatalf("unexpected routed message %#v", router.last)
	}
	var resp Outcome
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != bookings.CategoryInternal {
		t.Fatalf("expected internal category, got %q", resp.Error)
	}
}
