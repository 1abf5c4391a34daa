package app

import (
	"context"
	"net/http"
	"strings"

	"boardroom/api/internal/paralock"
	"boardroom/api/internal/store"
	"boardroom/api/internal/util"
	"boardroom/api/internal/workflow"
)

func (s *Service) CreateMeetingDocument(ctx context.Context, session Session, meetingID, title string, confidential bool) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	snapshot := snapshotOf(meeting)
	if !workflow.Mutable(snapshot) {
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Archived meetings accept no new documents", nil)
	}
	if confidential && !workflow.CanSeeConfidential(actorFromSession(session), snapshot) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Confidential documents require clearance", nil)
	}
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	doc := store.Document{
		ID:           util.NewID("doc"),
		MeetingID:    meetingID,
		Title:        title,
		Confidential: confidential,
		CreatedBy:    session.MemberID,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	return documentPayload(doc), nil
}

func (s *Service) ListMeetingDocuments(ctx context.Context, session Session, meetingID string) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	see := workflow.CanSeeConfidential(actorFromSession(session), snapshotOf(meeting))
	docs, err := s.store.ListDocuments(ctx, meetingID, see)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		payloads = append(payloads, documentPayload(doc))
	}
	return map[string]any{"meetingId": meetingID, "documents": payloads}, nil
}

// document loads a document together with its meeting and applies the
// confidentiality gate. Confidential documents look like 404 to uncleared
// viewers.
func (s *Service) document(ctx context.Context, session Session, documentID string) (store.Document, store.Meeting, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, store.Meeting{}, err
	}
	meeting, err := s.store.GetMeeting(ctx, doc.MeetingID)
	if err != nil {
		return store.Document{}, store.Meeting{}, err
	}
	if doc.Confidential && !workflow.CanSeeConfidential(actorFromSession(session), snapshotOf(meeting)) {
		return store.Document{}, store.Meeting{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return doc, meeting, nil
}

// mutableDocument is the gate every paragraph mutation goes through.
func (s *Service) mutableDocument(ctx context.Context, session Session, documentID string) (store.Document, error) {
	doc, meeting, err := s.document(ctx, session, documentID)
	if err != nil {
		return store.Document{}, err
	}
	if !workflow.Mutable(snapshotOf(meeting)) {
		return store.Document{}, domainError(http.StatusConflict, "INVALID_STATE", "Archived meetings reject every mutation", nil)
	}
	return doc, nil
}

func (s *Service) GetMeetingDocument(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, _, err := s.document(ctx, session, documentID)
	if err != nil {
		return nil, err
	}
	paragraphs, err := s.store.ListParagraphs(ctx, documentID)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(paragraphs))
	for _, paragraph := range paragraphs {
		payloads = append(payloads, paragraphPayload(paragraph))
	}

	payload := documentPayload(doc)
	payload["paragraphs"] = payloads
	return payload, nil
}

func (s *Service) InsertParagraph(ctx context.Context, session Session, documentID, afterID, content string) (map[string]any, error) {
	if _, err := s.mutableDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	paragraph := store.Paragraph{
		ID:           util.NewID("par"),
		DocumentID:   documentID,
		Content:      content,
		LastEditedBy: session.MemberID,
	}
	inserted, err := s.store.InsertParagraphAfter(ctx, documentID, afterID, paragraph)
	if err != nil {
		return nil, err
	}
	return paragraphPayload(inserted), nil
}

func (s *Service) DeleteParagraph(ctx context.Context, session Session, documentID, paragraphID string) error {
	if _, err := s.mutableDocument(ctx, session, documentID); err != nil {
		return err
	}
	deleted, err := s.store.DeleteParagraph(ctx, documentID, paragraphID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return nil
}

// paragraphIn rejects paragraph IDs addressed through the wrong document,
// which would otherwise sidestep the document's confidentiality gate.
func (s *Service) paragraphIn(ctx context.Context, documentID, paragraphID string) error {
	paragraph, err := s.store.GetParagraph(ctx, paragraphID)
	if err != nil {
		return err
	}
	if paragraph.DocumentID != documentID {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return nil
}

func (s *Service) AcquireParagraphLock(ctx context.Context, session Session, documentID, paragraphID string) (map[string]any, error) {
	if _, err := s.mutableDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	if err := s.paragraphIn(ctx, documentID, paragraphID); err != nil {
		return nil, err
	}
	result, err := s.locks.Acquire(ctx, paragraphID, session.MemberID)
	if err == paralock.ErrParagraphNotFound {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if err != nil {
		return nil, err
	}
	if !result.Granted {
		return nil, domainError(http.StatusLocked, "PARAGRAPH_LOCKED", "Paragraph is being edited by someone else", map[string]any{
			"heldBy":    result.HeldBy,
			"heldById":  result.HeldByID,
			"expiresAt": result.ExpiresAt,
		})
	}
	return map[string]any{
		"paragraphId": paragraphID,
		"granted":     true,
		"expiresAt":   result.ExpiresAt,
		"ttlSeconds":  int(s.locks.TTL().Seconds()),
	}, nil
}

func (s *Service) ReleaseParagraphLock(ctx context.Context, session Session, documentID, paragraphID string) error {
	if _, err := s.mutableDocument(ctx, session, documentID); err != nil {
		return err
	}
	if err := s.paragraphIn(ctx, documentID, paragraphID); err != nil {
		return err
	}
	_, err := s.locks.Release(ctx, paragraphID, session.MemberID)
	return err
}

func (s *Service) SaveParagraph(ctx context.Context, session Session, documentID, paragraphID, content string) (map[string]any, error) {
	if _, err := s.mutableDocument(ctx, session, documentID); err != nil {
		return nil, err
	}
	if err := s.paragraphIn(ctx, documentID, paragraphID); err != nil {
		return nil, err
	}
	result, err := s.locks.Save(ctx, paragraphID, session.MemberID, strings.TrimSpace(content))
	if err == paralock.ErrParagraphNotFound {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if err != nil {
		return nil, err
	}
	if !result.Saved {
		return nil, domainError(http.StatusConflict, "LOCK_LOST", "The paragraph lease lapsed before the save", map[string]any{
			"heldBy":   result.HeldBy,
			"heldById": result.HeldByID,
		})
	}
	return paragraphPayload(result.Paragraph), nil
}

func documentPayload(doc store.Document) map[string]any {
	return map[string]any{
		"id":           doc.ID,
		"meetingId":    doc.MeetingID,
		"title":        doc.Title,
		"confidential": doc.Confidential,
		"createdBy":    doc.CreatedBy,
	}
}

func paragraphPayload(paragraph store.Paragraph) map[string]any {
	return map[string]any{
		"id":           paragraph.ID,
		"documentId":   paragraph.DocumentID,
		"ord":          paragraph.Ord,
		"content":      paragraph.Content,
		"lastEditedBy": paragraph.LastEditedBy,
		"lastEditedAt": paragraph.LastEditedAt,
	}
}
