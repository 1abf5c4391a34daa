package app

import (
	"net/http"
	"testing"

	"boardroom/api/internal/store"
)

func TestSearchWithoutBackendReturnsEmpty(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeArchive{})
	server := NewHTTPServer(svc, "*")
	token := tokenFor(t, svc, fs, store.Member{ID: "mem_plain", DisplayName: "Pat", Role: "member"})

	rec, payload := doJSON(t, server, http.MethodGet, "/api/search?q=budget", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	results, _ := payload["results"].([]any)
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %v", payload["results"])
	}
	if payload["query"] != "budget" {
		t.Fatalf("expected query echoed, got %v", payload["query"])
	}
}

func TestSearchValidatesPagination(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeArchive{})
	server := NewHTTPServer(svc, "*")
	token := tokenFor(t, svc, fs, store.Member{ID: "mem_plain", DisplayName: "Pat", Role: "member"})

	rec, payload := doJSON(t, server, http.MethodGet, "/api/search?q=budget&limit=many", token, "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %v", payload["code"])
	}
}

func TestAttachmentsUnavailableWithoutObjectStore(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeArchive{})
	server := NewHTTPServer(svc, "*")
	token := tokenFor(t, svc, fs, store.Member{ID: "mem_plain", DisplayName: "Pat", Role: "member"})
	seedMeeting(fs, "mtg_1", "preparation", "", "")

	rec, payload := doJSON(t, server, http.MethodGet, "/api/meetings/mtg_1/attachments/att_1", token, "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if payload["code"] != "ATTACHMENTS_UNAVAILABLE" {
		t.Fatalf("expected ATTACHMENTS_UNAVAILABLE, got %v", payload["code"])
	}
}

func TestExportConfidentialSupplementGated(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeArchive{})
	server := NewHTTPServer(svc, "*")
	memberToken := tokenFor(t, svc, fs, store.Member{ID: "mem_plain", DisplayName: "Pat", Role: "member"})
	boardToken := tokenFor(t, svc, fs, store.Member{ID: "mem_board", DisplayName: "Blair", Role: "board"})
	seedMeeting(fs, "mtg_1", "ended", "mem_chair", "mem_sec")
	seedItem(fs, store.AgendaItem{ID: "top_1", MeetingID: "mtg_1", TopNumber: 1, Title: "Budget 2027", Category: "report"})

	rec, payload := doJSON(t, server, http.MethodGet, "/api/meetings/mtg_1/protocol/export?confidential=true", memberToken, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for uncleared member, got %d", rec.Code)
	}
	if payload["code"] != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %v", payload["code"])
	}

	// No confidential items, so there is no supplement to export.
	rec, payload = doJSON(t, server, http.MethodGet, "/api/meetings/mtg_1/protocol/export?confidential=true", boardToken, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a supplement, got %d", rec.Code)
	}
	if payload["code"] != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", payload["code"])
	}
}
