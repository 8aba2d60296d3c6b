package messaging

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/wolfman30/clinic-scheduler/internal/conversation"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func TestTwilioSenderPostsForm(t *testing.T) {
	var gotPath, gotTo, gotBody, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		_ = r.ParseForm()
		gotTo = r.PostForm.Get("To")
		gotBody = r.PostForm.Get("Body")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM999","status":"queued"}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC1", "token", "+551133334444", logging.NewWithWriter(io.Discard, "error"))
	sender.baseURL = srv.URL

	meta := map[string]string{}
	err := sender.SendReply(context.Background(), conversation.OutboundReply{To: "+5511987654321", Body: "Olá", Metadata: meta})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC1/Messages.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotUser != "AC1" || gotTo != "+5511987654321" || gotBody != "Olá" {
		t.Fatalf("unexpected request user=%q to=%q body=%q", gotUser, gotTo, gotBody)
	}
	if meta["provider_message_id"] != "SM999" || meta["provider_status"] != "queued" {
		t.Fatalf("unexpected metadata %#v", meta)
	}
}

func TestTwilioSenderDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC1", "token", "+551133334444", logging.NewWithWriter(io.Discard, "error"))
	sender.baseURL = srv.URL

	err := sender.SendReply(context.Background(), conversation.OutboundReply{To: "+55", Body: "Olá"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
	if want := "twilio send failed: status 400 code 21211: Invalid 'To' Phone Number"; err.Error() != want {
		t.Fatalf("unexpected error %q", err)
	}
}

func TestTwilioSenderValidatesInput(t *testing.T) {
	cases := []struct {
		name   string
		sender *TwilioSender
		reply  conversation.OutboundReply
	}{
		{"credentials", NewTwilioSender("", "", "+55", nil), conversation.OutboundReply{To: "+55", Body: "x"}},
		{"to", NewTwilioSender("AC", "t", "+55", nil), conversation.OutboundReply{Body: "x"}},
		{"from", NewTwilioSender("AC", "t", "", nil), conversation.OutboundReply{To: "+55", Body: "x"}},
		{"body", NewTwilioSender("AC", "t", "+55", nil), conversation.OutboundReply{To: "+55", Body: "  "}},
	}
	for _, tc := range cases {
		if err := tc.sender.SendReply(context.Background(), tc.reply); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestBuildReplyMessenger(t *testing.T) {
	if _, provider := BuildReplyMessenger("AC", "token", "+55", nil); provider != "twilio" {
		t.Fatalf("expected twilio, got %q", provider)
	}
	m, provider := BuildReplyMessenger("", "", "", nil)
	if provider != "log" {
		t.Fatalf("expected log, got %q", provider)
	}
	if err := m.SendReply(context.Background(), conversation.OutboundReply{To: "x", Body: "y"}); err != nil {
		t.Fatalf("log messenger failed: %v", err)
	}
}
