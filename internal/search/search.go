package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultMeeting    ResultType = "meeting"
	ResultAgendaItem ResultType = "agenda_item"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type         ResultType `json:"type"`
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Snippet      string     `json:"snippet"`
	MeetingID    string     `json:"meetingId"`
	TopNumber    int        `json:"topNumber,omitempty"`
	Confidential bool       `json:"confidential,omitempty"`
}

// Query describes a search request. SeeConfidential reflects the caller's
// clearance; without it confidential agenda items are never returned.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterMeetingID string
	Limit           int
	Offset          int
	SeeConfidential bool
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexMeeting(m MeetingRecord) error
	IndexAgendaItem(i AgendaItemRecord) error
	DeleteAgendaItem(id string) error
}

// MeetingRecord is the data we index for a meeting.
type MeetingRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	State string `json:"state"`
}

// AgendaItemRecord is the data we index for an agenda item.
type AgendaItemRecord struct {
	ID            string `json:"id"`
	MeetingID     string `json:"meetingId"`
	TopNumber     int    `json:"topNumber"`
	Title         string `json:"title"`
	ProtocolNotes string `json:"protocolNotes"`
	Category      string `json:"category"`
	Confidential  bool   `json:"confidential"`
}
