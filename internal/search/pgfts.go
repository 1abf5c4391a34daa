package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"boardroom/api/internal/agenda"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query over meetings and agenda items using
// plainto_tsquery and ts_rank, with ts_headline for snippets. Confidential
// agenda items are filtered in SQL for callers without clearance.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultMeeting {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'meeting'::text AS type, m.id, m.title,
				''::text AS snippet,
				m.id AS meeting_id, 0 AS top_number, FALSE AS confidential,
				ts_rank(m.fts, %s) AS rank
			FROM meetings m
			WHERE m.fts @@ %s`, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultAgendaItem {
		// The control sentinel never appears in any listing, search included.
		itemWhere := fmt.Sprintf("i.fts @@ %s AND i.top_number <> %d", tsQuery, agenda.NumberControl)
		if q.FilterMeetingID != "" {
			itemWhere += fmt.Sprintf(" AND i.meeting_id = $%d", argN)
			args = append(args, q.FilterMeetingID)
			argN++
		}
		if !q.SeeConfidential {
			itemWhere += " AND NOT i.confidential"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'agenda_item'::text AS type, i.id, i.title,
				ts_headline('english', coalesce(i.protocol_notes, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				i.meeting_id, i.top_number, i.confidential,
				ts_rank(i.fts, %s) AS rank
			FROM agenda_items i
			WHERE %s`, tsQuery, tsQuery, itemWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, meeting_id, top_number, confidential
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.MeetingID, &r.TopNumber, &r.Confidential); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]MeetingRecord, []AgendaItemRecord, error) {
	meetingRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, state
		FROM meetings
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load meetings: %w", err)
	}
	defer meetingRows.Close()

	meetings := make([]MeetingRecord, 0)
	for meetingRows.Next() {
		var m MeetingRecord
		if err := meetingRows.Scan(&m.ID, &m.Title, &m.State); err != nil {
			return nil, nil, fmt.Errorf("scan meeting: %w", err)
		}
		meetings = append(meetings, m)
	}
	if err := meetingRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate meetings: %w", err)
	}

	itemRows, err := p.db.QueryContext(ctx, `
		SELECT id, meeting_id, top_number, title, coalesce(protocol_notes, ''), category, confidential
		FROM agenda_items
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load agenda items: %w", err)
	}
	defer itemRows.Close()

	items := make([]AgendaItemRecord, 0)
	for itemRows.Next() {
		var i AgendaItemRecord
		if err := itemRows.Scan(&i.ID, &i.MeetingID, &i.TopNumber, &i.Title, &i.ProtocolNotes, &i.Category, &i.Confidential); err != nil {
			return nil, nil, fmt.Errorf("scan agenda item: %w", err)
		}
		items = append(items, i)
	}
	if err := itemRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate agenda items: %w", err)
	}

	return meetings, items, nil
}
