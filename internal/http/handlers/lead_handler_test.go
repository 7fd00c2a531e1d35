package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/advdigital/go-lead-intake/internal/domain"
	"github.com/advdigital/go-lead-intake/internal/services"
)

func TestListLeads_ReturnsPageWithMetadata(t *testing.T) {
	leads := &fakeLeads{
		leads: []domain.Lead{
			{ConversationID: "c1", Status: domain.LeadStatusComplete, LawyerName: "Ana"},
			{ConversationID: "c2", Status: domain.LeadStatusOpen},
		},
		total: 42,
	}
	r := newTestRouter(New(&fakeIntake{}, &fakeFlush{}, leads, ""))

	req := httptest.NewRequest(http.MethodGet, "/leads?page=1&page_size=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp ListLeadsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Leads) != 2 || resp.Leads[0].ConversationID != "c1" {
		t.Fatalf("leads = %+v", resp.Leads)
	}
	if resp.Pagination.Total != 42 || resp.Pagination.TotalPages != 21 || !resp.Pagination.HasNext {
		t.Fatalf("pagination = %+v", resp.Pagination)
	}
}

func TestListLeads_ClampsPageSize(t *testing.T) {
	leads := &fakeLeads{total: 1}
	r := newTestRouter(New(&fakeIntake{}, &fakeFlush{}, leads, ""))

	req := httptest.NewRequest(http.MethodGet, "/leads?page=-3&page_size=5000", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp ListLeadsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Pagination.Page != 1 || resp.Pagination.PageSize != 100 {
		t.Fatalf("pagination = %+v; want page=1 page_size=100", resp.Pagination)
	}
}

func TestListLeads_StoreFailure(t *testing.T) {
	leads := &fakeLeads{listErr: errors.New("db down")}
	r := newTestRouter(New(&fakeIntake{}, &fakeFlush{}, leads, ""))

	req := httptest.NewRequest(http.MethodGet, "/leads", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
}

func TestResumeLead_ClearsPause(t *testing.T) {
	leads := &fakeLeads{}
	r := newTestRouter(New(&fakeIntake{}, &fakeFlush{}, leads, ""))

	w := postJSON(t, r, "/leads/5511@s.whatsapp.net/resume", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", w.Code, w.Body.String())
	}
	if len(leads.resumed) != 1 || leads.resumed[0] != "5511@s.whatsapp.net" {
		t.Fatalf("resumed = %v", leads.resumed)
	}

	var resp ResumeResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Resumed || resp.ConversationID != "5511@s.whatsapp.net" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestResumeLead_UnknownConversation(t *testing.T) {
	leads := &fakeLeads{resumeErr: services.ErrLeadNotFound}
	r := newTestRouter(New(&fakeIntake{}, &fakeFlush{}, leads, ""))

	w := postJSON(t, r, "/leads/nobody/resume", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", w.Code)
	}
}
