package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"boardroom/api/internal/agenda"
)

const (
	idxMeetings    = "boardroom_meetings"
	idxAgendaItems = "boardroom_agenda_items"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// Returns a client even when the initial connection fails; the health loop
// reconfigures the indexes once the server comes back.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxMeetings,
			primaryKey: "id",
			filterable: []string{"state"},
			searchable: []string{"title"},
		},
		{
			uid:        idxAgendaItems,
			primaryKey: "id",
			filterable: []string{"meetingId", "confidential", "category", "topNumber"},
			searchable: []string{"title", "protocolNotes"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries both indexes (or a filtered subset) and merges results.
// Confidential agenda items are excluded at the filter level unless the
// caller is cleared for them.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxMeetings, ResultMeeting},
		{idxAgendaItems, ResultAgendaItem},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}

		var filters []string
		if ti.rtyp == ResultAgendaItem {
			// The control sentinel never appears in any listing, search included.
			filters = append(filters, fmt.Sprintf("topNumber != %d", agenda.NumberControl))
			if q.FilterMeetingID != "" {
				filters = append(filters, fmt.Sprintf("meetingId = %q", q.FilterMeetingID))
			}
			if !q.SeeConfidential {
				filters = append(filters, "confidential = false")
			}
		}
		if len(filters) > 0 {
			sr.Filter = filters
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxMeetings:
		return ResultMeeting
	case idxAgendaItems:
		return ResultAgendaItem
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")

	switch rtyp {
	case ResultMeeting:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.MeetingID = r.ID
	case ResultAgendaItem:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "protocolNotes"), decodeString(hit, "protocolNotes"))
		r.MeetingID = decodeString(hit, "meetingId")
		r.TopNumber = decodeInt(hit, "topNumber")
		r.Confidential = decodeBool(hit, "confidential")
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeInt(hit meili.Hit, key string) int {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	return 0
}

func decodeBool(hit meili.Hit, key string) bool {
	raw, ok := hit[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	return false
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexMeeting adds or updates a meeting in the search index.
func (m *Meili) IndexMeeting(rec MeetingRecord) error {
	_, err := m.client.Index(idxMeetings).AddDocuments([]MeetingRecord{rec}, nil)
	return err
}

// IndexAgendaItem adds or updates an agenda item in the search index.
func (m *Meili) IndexAgendaItem(rec AgendaItemRecord) error {
	_, err := m.client.Index(idxAgendaItems).AddDocuments([]AgendaItemRecord{rec}, nil)
	return err
}

// DeleteAgendaItem removes an agenda item from the search index.
func (m *Meili) DeleteAgendaItem(id string) error {
	_, err := m.client.Index(idxAgendaItems).DeleteDocument(id, nil)
	return err
}

// IndexMeetings bulk-indexes meetings.
func (m *Meili) IndexMeetings(meetings []MeetingRecord) error {
	if len(meetings) == 0 {
		return nil
	}
	_, err := m.client.Index(idxMeetings).AddDocuments(meetings, nil)
	return err
}

// IndexAgendaItems bulk-indexes agenda items.
func (m *Meili) IndexAgendaItems(items []AgendaItemRecord) error {
	if len(items) == 0 {
		return nil
	}
	_, err := m.client.Index(idxAgendaItems).AddDocuments(items, nil)
	return err
}
