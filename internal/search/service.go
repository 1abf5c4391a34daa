package search

import (
	"context"
	"log"

	"boardroom/api/internal/agenda"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: sanitizeResults(nonNil(results), q.SeeConfidential), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: sanitizeResults(nonNil(results), q.SeeConfidential), Total: total, Query: q.Text}
}

// IndexMeeting indexes a meeting (fire-and-forget to Meilisearch).
func (s *Service) IndexMeeting(rec MeetingRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexMeeting(rec); err != nil {
			log.Printf("search: index meeting %s: %v", rec.ID, err)
		}
	}()
}

// IndexAgendaItem indexes an agenda item (fire-and-forget to Meilisearch).
func (s *Service) IndexAgendaItem(rec AgendaItemRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexAgendaItem(rec); err != nil {
			log.Printf("search: index agenda item %s: %v", rec.ID, err)
		}
	}()
}

// DeleteAgendaItem removes an agenda item from the search index (fire-and-forget).
func (s *Service) DeleteAgendaItem(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteAgendaItem(id); err != nil {
			log.Printf("search: delete agenda item %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes the given records to Meilisearch.
func (s *Service) ReindexAll(meetings []MeetingRecord, items []AgendaItemRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if len(meetings) > 0 {
		if err := s.meili.IndexMeetings(meetings); err != nil {
			log.Printf("search: reindex meetings: %v", err)
		}
	}
	if len(items) > 0 {
		if err := s.meili.IndexAgendaItems(items); err != nil {
			log.Printf("search: reindex agenda items: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	meetings, items, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(meetings, items)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

// sanitizeResults is the belt half of the visibility filters: even if the
// index returned a confidential row or the control sentinel, the caller
// never sees what the backend filters should have dropped.
func sanitizeResults(results []Result, seeConfidential bool) []Result {
	filtered := make([]Result, 0, len(results))
	for _, result := range results {
		if result.Type == ResultAgendaItem && result.TopNumber == agenda.NumberControl {
			continue
		}
		if result.Confidential && !seeConfidential {
			continue
		}
		filtered = append(filtered, result)
	}
	return filtered
}
