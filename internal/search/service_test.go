package search

import (
	"testing"

	"boardroom/api/internal/agenda"
)

func TestSanitizeResultsDropsConfidentialForUncleared(t *testing.T) {
	results := []Result{
		{Type: ResultAgendaItem, ID: "top_1", Title: "Budget", TopNumber: 1},
		{Type: ResultAgendaItem, ID: "top_101", Title: "Personnel", TopNumber: 101, Confidential: true},
	}

	filtered := sanitizeResults(results, false)
	if len(filtered) != 1 || filtered[0].ID != "top_1" {
		t.Fatalf("uncleared caller results = %+v", filtered)
	}

	filtered = sanitizeResults(results, true)
	if len(filtered) != 2 {
		t.Fatalf("cleared caller results = %+v", filtered)
	}
}

func TestSanitizeResultsNeverYieldsControlSentinel(t *testing.T) {
	results := []Result{
		{Type: ResultAgendaItem, ID: "top_1", Title: "Budget", TopNumber: 1},
		{Type: ResultAgendaItem, ID: "top_999", Title: "Control", TopNumber: agenda.NumberControl},
		{Type: ResultMeeting, ID: "mtg_1", Title: "Q1 Board", MeetingID: "mtg_1"},
	}

	// the sentinel is structural bookkeeping and stays out of every listing,
	// clearance notwithstanding
	for _, cleared := range []bool{false, true} {
		filtered := sanitizeResults(results, cleared)
		if len(filtered) != 2 {
			t.Fatalf("cleared=%v results = %+v", cleared, filtered)
		}
		for _, r := range filtered {
			if r.TopNumber == agenda.NumberControl {
				t.Fatalf("sentinel leaked: %+v", r)
			}
		}
	}
}
