package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/advdigital/go-lead-intake/internal/services"
)

func TestFlush_ProcessesWithValidSecret(t *testing.T) {
	flush := &fakeFlush{n: 3}
	r := newTestRouter(New(&fakeIntake{}, flush, &fakeLeads{}, "s3cret"))

	w := postJSON(t, r, "/flush", `{"conversation_id": "c1"}`,
		map[string]string{HeaderFlushSecret: "s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", w.Code, w.Body.String())
	}

	var resp FlushResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Processed != 3 {
		t.Fatalf("processed = %d; want 3", resp.Processed)
	}
	if len(flush.got) != 1 || flush.got[0] != "c1" {
		t.Fatalf("flush calls = %v", flush.got)
	}
}

func TestFlush_RejectsWrongSecret(t *testing.T) {
	flush := &fakeFlush{}
	r := newTestRouter(New(&fakeIntake{}, flush, &fakeLeads{}, "s3cret"))

	w := postJSON(t, r, "/flush", `{"conversation_id": "c1"}`,
		map[string]string{HeaderFlushSecret: "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d; want 401", w.Code)
	}
	if len(flush.got) != 0 {
		t.Fatal("unauthorized requests must not reach the flush service")
	}
}

func TestFlush_DisabledWithoutConfiguredSecret(t *testing.T) {
	r := newTestRouter(New(&fakeIntake{}, &fakeFlush{}, &fakeLeads{}, ""))

	w := postJSON(t, r, "/flush", `{"conversation_id": "c1"}`,
		map[string]string{HeaderFlushSecret: ""})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d; empty configured secret must disable the endpoint", w.Code)
	}
}

func TestFlush_MissingConversationID(t *testing.T) {
	r := newTestRouter(New(&fakeIntake{}, &fakeFlush{}, &fakeLeads{}, "s3cret"))
	w := postJSON(t, r, "/flush", `{}`, map[string]string{HeaderFlushSecret: "s3cret"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", w.Code)
	}
}

func TestFlush_ModelNotConfigured(t *testing.T) {
	flush := &fakeFlush{err: services.ErrModelNotConfigured}
	r := newTestRouter(New(&fakeIntake{}, flush, &fakeLeads{}, "s3cret"))

	w := postJSON(t, r, "/flush", `{"conversation_id": "c1"}`,
		map[string]string{HeaderFlushSecret: "s3cret"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d; want 503", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != ErrCodeNotConfigured {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestFlush_ProcessingFailure(t *testing.T) {
	flush := &fakeFlush{err: errors.New("redis down")}
	r := newTestRouter(New(&fakeIntake{}, flush, &fakeLeads{}, "s3cret"))

	w := postJSON(t, r, "/flush", `{"conversation_id": "c1"}`,
		map[string]string{HeaderFlushSecret: "s3cret"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
}
