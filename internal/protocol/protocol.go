// Package protocol compiles a finished meeting into its written record.
// Compilation is a pure transformation of already-persisted data: the
// same meeting always compiles to the same documents.
package protocol

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"boardroom/api/internal/agenda"
	"boardroom/api/internal/store"
	"boardroom/api/internal/workflow"
)

// ErrMeetingStillRunning is returned when compilation is attempted before
// the meeting has ended. Until then the notes are a moving target.
var ErrMeetingStillRunning = errors.New("protocol: meeting has not ended")

// Section is one agenda item as it appears in the protocol.
type Section struct {
	TopNumber  int
	Title      string
	Category   string
	Notes      string
	VoteResult string
}

// Document is one compiled protocol. A meeting with confidential items
// compiles into two documents; the public one never mentions that the
// confidential one exists.
type Document struct {
	MeetingID     string
	MeetingTitle  string
	Confidential  bool
	ChairName     string
	SecretaryName string
	StartedAt     time.Time
	EndedAt       time.Time
	Absentees     []string
	Sections      []Section
}

// Compile builds the public protocol and, when confidential items exist,
// the confidential supplement. The control sentinel never appears in
// either document.
func Compile(m store.Meeting, items []store.AgendaItem, chairName, secretaryName string, absences []store.Absence) (public Document, confidential *Document, err error) {
	switch workflow.State(m.State) {
	case workflow.StateEnded, workflow.StateProtocolReady, workflow.StateArchived:
	default:
		return Document{}, nil, ErrMeetingStillRunning
	}

	absentees := make([]string, 0, len(absences))
	for _, a := range absences {
		absentees = append(absentees, a.MemberName)
	}

	base := Document{
		MeetingID:     m.ID,
		MeetingTitle:  m.Title,
		ChairName:     chairName,
		SecretaryName: secretaryName,
		Absentees:     absentees,
	}
	if m.StartedAt != nil {
		base.StartedAt = *m.StartedAt
	}
	if m.EndedAt != nil {
		base.EndedAt = *m.EndedAt
	}

	var publicItems, confItems []store.AgendaItem
	for _, item := range items {
		if item.TopNumber == agenda.NumberControl {
			continue
		}
		if item.Confidential {
			confItems = append(confItems, item)
		} else {
			publicItems = append(publicItems, item)
		}
	}
	sortForProtocol(publicItems)
	sortForProtocol(confItems)

	public = base
	public.Sections = toSections(publicItems)

	if len(confItems) > 0 {
		supplement := base
		supplement.Confidential = true
		supplement.Sections = toSections(confItems)
		confidential = &supplement
	}

	return public, confidential, nil
}

// sortForProtocol orders items the way they are read out: opening first,
// then the numbered items, miscellaneous last within the public part.
func sortForProtocol(items []store.AgendaItem) {
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].TopNumber < items[b].TopNumber
	})
}

func toSections(items []store.AgendaItem) []Section {
	sections := make([]Section, 0, len(items))
	for _, item := range items {
		s := Section{
			TopNumber: item.TopNumber,
			Title:     item.Title,
			Category:  item.Category,
			Notes:     item.ProtocolNotes,
		}
		if workflow.Category(item.Category) == workflow.CategoryResolution {
			s.VoteResult = item.VoteResult
		}
		sections = append(sections, s)
	}
	return sections
}

// RenderMarkdown produces the archival text form of a compiled protocol.
// This is the file that gets committed to the meeting's archive repo.
func RenderMarkdown(doc Document) string {
	var b strings.Builder

	title := doc.MeetingTitle
	if doc.Confidential {
		title += " — Confidential Supplement"
	}
	fmt.Fprintf(&b, "# Protocol: %s\n\n", title)

	if !doc.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- Opened: %s\n", doc.StartedAt.Format("2006-01-02 15:04"))
	}
	if !doc.EndedAt.IsZero() {
		fmt.Fprintf(&b, "- Closed: %s\n", doc.EndedAt.Format("2006-01-02 15:04"))
	}
	if doc.ChairName != "" {
		fmt.Fprintf(&b, "- Chair: %s\n", doc.ChairName)
	}
	if doc.SecretaryName != "" {
		fmt.Fprintf(&b, "- Secretary: %s\n", doc.SecretaryName)
	}
	if len(doc.Absentees) > 0 {
		fmt.Fprintf(&b, "- Absent: %s\n", strings.Join(doc.Absentees, ", "))
	}
	b.WriteString("\n")

	for _, s := range doc.Sections {
		fmt.Fprintf(&b, "## TOP %d: %s\n\n", s.TopNumber, s.Title)
		if s.Notes != "" {
			b.WriteString(s.Notes)
			b.WriteString("\n\n")
		}
		if s.VoteResult != "" {
			fmt.Fprintf(&b, "**Resolution:** %s\n\n", s.VoteResult)
		}
	}

	return b.String()
}
