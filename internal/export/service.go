package export

import (
	"fmt"

	"boardroom/api/internal/protocol"
)

// Service renders compiled protocols into downloadable files
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// Export generates an export of a compiled protocol in the requested format
func (s *Service) Export(doc protocol.Document, format Format) (*Result, error) {
	html, err := RenderHTML(doc)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	title := doc.MeetingTitle
	if doc.Confidential {
		title += " Confidential"
	}

	switch format {
	case FormatPDF:
		return exportPDF(html, title)
	case FormatDOCX:
		return exportDOCX(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// RenderHTML converts a compiled protocol to standalone HTML
func RenderHTML(doc protocol.Document) (string, error) {
	title := "Protocol: " + doc.MeetingTitle
	if doc.Confidential {
		title += " — Confidential Supplement"
	}

	data := TemplateData{
		Title:         title,
		Confidential:  doc.Confidential,
		ChairName:     doc.ChairName,
		SecretaryName: doc.SecretaryName,
		StartedAt:     doc.StartedAt,
		EndedAt:       doc.EndedAt,
		Absentees:     doc.Absentees,
	}
	for _, section := range doc.Sections {
		data.Sections = append(data.Sections, TemplateSection{
			TopNumber:  section.TopNumber,
			Title:      section.Title,
			Category:   section.Category,
			NotesHTML:  NotesToHTML(section.Notes),
			VoteResult: section.VoteResult,
		})
	}

	return RenderProtocolHTML(data)
}
