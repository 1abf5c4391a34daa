package app

import (
	"context"
	"io"
	"net/http"
	"time"

	"boardroom/api/internal/agenda"
	"boardroom/api/internal/attach"
	"boardroom/api/internal/search"
	"boardroom/api/internal/store"
	"boardroom/api/internal/util"
	"boardroom/api/internal/workflow"
)

// visibleAgenda lists the agenda the way the session is allowed to see it:
// confidential items filtered out in SQL for uncleared viewers, the control
// sentinel dropped, and the rest in render order.
func (s *Service) visibleAgenda(ctx context.Context, session Session, meeting store.Meeting) ([]map[string]any, error) {
	see := workflow.CanSeeConfidential(actorFromSession(session), snapshotOf(meeting))
	items, err := s.store.ListAgendaItems(ctx, meeting.ID, see)
	if err != nil {
		return nil, err
	}

	entries := make([]agenda.Entry, len(items))
	for i, item := range items {
		entries[i] = agenda.Entry{
			TopNumber:    item.TopNumber,
			Confidential: item.Confidential,
			Priority:     item.Priority,
		}
	}
	ordered := agenda.VisibleOrdering(entries, see)

	payloads := make([]map[string]any, 0, len(ordered))
	for position, ranked := range ordered {
		item := items[ranked.Index]
		payloads = append(payloads, agendaItemPayload(item, position))
	}
	return payloads, nil
}

func (s *Service) ListAgenda(ctx context.Context, session Session, meetingID string) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	items, err := s.visibleAgenda(ctx, session, meeting)
	if err != nil {
		return nil, err
	}
	return map[string]any{"meetingId": meetingID, "items": items}, nil
}

func (s *Service) AddAgendaItem(ctx context.Context, session Session, meetingID, title, category string, confidential bool) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	actor := actorFromSession(session)
	snapshot := snapshotOf(meeting)
	if workflow.State(meeting.State) != workflow.StatePreparation {
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Agenda items can only be added during preparation", map[string]any{"state": meeting.State})
	}
	if !workflow.CanAddItem(actor, snapshot, time.Now()) {
		return nil, domainError(http.StatusForbidden, "DEADLINE_PASSED", "Submission deadline has passed", map[string]any{"deadline": meeting.SubmissionDeadline})
	}
	if confidential && !workflow.CanSeeConfidential(actor, snapshot) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Confidential items require clearance", nil)
	}
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if !workflow.ValidCategory(workflow.Category(category)) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "category must be one of report, discussion, resolution, miscellaneous", nil)
	}

	topNumber, err := s.agenda.NextNumber(ctx, meetingID, confidential)
	if err == agenda.ErrBandExhausted {
		return nil, domainError(http.StatusConflict, "BAND_EXHAUSTED", "The public agenda has no free numbers left", nil)
	}
	if err != nil {
		return nil, err
	}

	// the allocated number's band is authoritative for visibility
	item := store.AgendaItem{
		ID:           util.NewID("top"),
		MeetingID:    meetingID,
		TopNumber:    topNumber,
		Confidential: agenda.NumberConfidential(topNumber),
		Category:     category,
		Title:        title,
		CreatorID:    session.MemberID,
	}
	if err := s.store.InsertAgendaItem(ctx, item); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexAgendaItem(itemRecord(item))
	}
	return agendaItemPayload(item, -1), nil
}

// item loads an agenda item and hides confidential items from uncleared
// viewers as if they did not exist.
func (s *Service) item(ctx context.Context, session Session, meeting store.Meeting, topNumber int) (store.AgendaItem, error) {
	item, err := s.store.GetAgendaItem(ctx, meeting.ID, topNumber)
	if err != nil {
		return store.AgendaItem{}, err
	}
	if item.Confidential && !workflow.CanSeeConfidential(actorFromSession(session), snapshotOf(meeting)) {
		return store.AgendaItem{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return item, nil
}

func (s *Service) UpdateNotes(ctx context.Context, session Session, meetingID string, topNumber int, notes string) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanEditNotes(actorFromSession(session), snapshotOf(meeting)) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the secretary edits protocol notes", nil)
	}
	item, err := s.item(ctx, session, meeting, topNumber)
	if err != nil {
		return nil, err
	}
	changed, err := s.store.UpdateProtocolNotes(ctx, meetingID, topNumber, notes)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "STATE_CHANGED", "Item changed concurrently", nil)
	}
	item.ProtocolNotes = notes
	if s.search != nil {
		s.search.IndexAgendaItem(itemRecord(item))
	}
	return agendaItemPayload(item, -1), nil
}

func (s *Service) RecordVote(ctx context.Context, session Session, meetingID string, topNumber int, voteResult string) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanRecordVote(actorFromSession(session), snapshotOf(meeting)) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the secretary records vote outcomes, and only until the protocol is released", nil)
	}
	item, err := s.item(ctx, session, meeting, topNumber)
	if err != nil {
		return nil, err
	}
	if workflow.Category(item.Category) != workflow.CategoryResolution {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Only resolution items carry a vote result", map[string]any{"category": item.Category})
	}
	changed, err := s.store.UpdateVoteResult(ctx, meetingID, topNumber, voteResult)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "STATE_CHANGED", "Item changed concurrently", nil)
	}
	item.VoteResult = voteResult
	return agendaItemPayload(item, -1), nil
}

func (s *Service) RateItem(ctx context.Context, session Session, meetingID string, topNumber, priority, durationMinutes int) error {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if workflow.State(meeting.State) != workflow.StatePreparation {
		return domainError(http.StatusConflict, "INVALID_STATE", "Ratings are only collected during preparation", map[string]any{"state": meeting.State})
	}
	if priority < 1 || priority > 10 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "priority must be between 1 and 10", nil)
	}
	if durationMinutes < 1 || durationMinutes > 600 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "durationMinutes must be between 1 and 600", nil)
	}
	item, err := s.item(ctx, session, meeting, topNumber)
	if err != nil {
		return err
	}
	return s.store.UpsertRating(ctx, item.ID, session.MemberID, priority, durationMinutes)
}

func (s *Service) DeleteItem(ctx context.Context, session Session, meetingID string, topNumber int) error {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if workflow.State(meeting.State) != workflow.StatePreparation {
		return domainError(http.StatusConflict, "INVALID_STATE", "Agenda items can only be removed during preparation", map[string]any{"state": meeting.State})
	}
	if agenda.Reserved(topNumber) {
		return domainError(http.StatusUnprocessableEntity, "RESERVED_ITEM", "Fixed agenda items cannot be removed", map[string]any{"topNumber": topNumber})
	}
	item, err := s.item(ctx, session, meeting, topNumber)
	if err != nil {
		return err
	}
	actor := actorFromSession(session)
	if !actor.Admin && actor.Role != workflow.RoleAssistant && item.CreatorID != session.MemberID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the submitter, an admin, or an assistant removes an item", nil)
	}
	changed, err := s.store.DeleteAgendaItem(ctx, meetingID, topNumber)
	if err != nil {
		return err
	}
	if !changed {
		return domainError(http.StatusConflict, "STATE_CHANGED", "Item changed concurrently", nil)
	}
	if s.search != nil {
		s.search.DeleteAgendaItem(item.ID)
	}
	return nil
}

func (s *Service) AddComment(ctx context.Context, session Session, meetingID string, topNumber int, kind, body string) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	commentKind := workflow.CommentKind(kind)
	if commentKind != workflow.CommentLive && commentKind != workflow.CommentPostHoc {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "kind must be live or posthoc", nil)
	}
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body is required", nil)
	}
	if !workflow.CanComment(actorFromSession(session), snapshotOf(meeting), commentKind) {
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Commenting is closed in this meeting state", map[string]any{"state": meeting.State, "kind": kind})
	}
	item, err := s.item(ctx, session, meeting, topNumber)
	if err != nil {
		return nil, err
	}
	if commentKind == workflow.CommentLive && meeting.ActiveItemID != item.ID {
		return nil, domainError(http.StatusConflict, "NOT_ACTIVE_ITEM", "Live comments only attach to the item under discussion", nil)
	}

	comment := store.ItemComment{
		ID:        util.NewID("cmt"),
		MeetingID: meetingID,
		ItemID:    item.ID,
		AuthorID:  session.MemberID,
		Kind:      kind,
		Body:      body,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":         comment.ID,
		"itemId":     item.ID,
		"authorId":   session.MemberID,
		"authorName": session.MemberName,
		"kind":       kind,
		"body":       body,
	}, nil
}

func (s *Service) ListItemComments(ctx context.Context, session Session, meetingID string, topNumber int) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	item, err := s.item(ctx, session, meeting, topNumber)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, meetingID, item.ID)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		payloads = append(payloads, map[string]any{
			"id":         comment.ID,
			"authorId":   comment.AuthorID,
			"authorName": comment.AuthorName,
			"kind":       comment.Kind,
			"body":       comment.Body,
			"createdAt":  comment.CreatedAt,
		})
	}
	return map[string]any{"itemId": item.ID, "comments": payloads}, nil
}

func (s *Service) ReportAbsence(ctx context.Context, session Session, meetingID, reason string) error {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}
	if workflow.State(meeting.State) != workflow.StatePreparation {
		return domainError(http.StatusConflict, "INVALID_STATE", "Absences are reported before the meeting starts", map[string]any{"state": meeting.State})
	}
	return s.store.InsertAbsence(ctx, store.Absence{
		ID:        util.NewID("abs"),
		MeetingID: meetingID,
		MemberID:  session.MemberID,
		Reason:    reason,
	})
}

func (s *Service) Search(ctx context.Context, session Session, text, filterType, meetingID string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	// Global clearance only: chair/secretary privileges are per meeting and
	// do not widen a global search.
	see := workflow.CanSeeConfidential(actorFromSession(session), workflow.Meeting{})
	return s.search.Search(search.Query{
		Text:            text,
		FilterType:      search.ResultType(filterType),
		FilterMeetingID: meetingID,
		Limit:           limit,
		Offset:          offset,
		SeeConfidential: see,
	}), nil
}

func (s *Service) UploadAttachment(ctx context.Context, session Session, meetingID, fileName, contentType string, body io.Reader, size int64) (map[string]any, error) {
	if s.files == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage is not configured", nil)
	}
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !workflow.Mutable(snapshotOf(meeting)) {
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Archived meetings accept no uploads", nil)
	}
	if fileName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file name is required", nil)
	}

	attachmentID := util.NewID("att")
	objectKey := attach.ObjectKey(meetingID, attachmentID, fileName)
	if err := s.files.Upload(ctx, objectKey, contentType, body, size); err != nil {
		return nil, err
	}
	record := store.Attachment{
		ID:          attachmentID,
		MeetingID:   meetingID,
		FileName:    fileName,
		ObjectKey:   objectKey,
		ContentType: contentType,
		Size:        size,
		UploadedBy:  session.MemberID,
	}
	if err := s.store.InsertAttachment(ctx, record); err != nil {
		return nil, err
	}
	return attachmentPayload(record), nil
}

func (s *Service) ListMeetingAttachments(ctx context.Context, meetingID string) (map[string]any, error) {
	if _, err := s.store.GetMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(attachments))
	for _, record := range attachments {
		payloads = append(payloads, attachmentPayload(record))
	}
	return map[string]any{"meetingId": meetingID, "attachments": payloads}, nil
}

func (s *Service) OpenAttachment(ctx context.Context, meetingID, attachmentID string) (store.Attachment, io.ReadCloser, error) {
	if s.files == nil {
		return store.Attachment{}, nil, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage is not configured", nil)
	}
	record, err := s.store.GetAttachment(ctx, meetingID, attachmentID)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	reader, err := s.files.Download(ctx, record.ObjectKey)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	return record, reader, nil
}

func agendaItemPayload(item store.AgendaItem, position int) map[string]any {
	payload := map[string]any{
		"id":           item.ID,
		"meetingId":    item.MeetingID,
		"topNumber":    item.TopNumber,
		"confidential": item.Confidential,
		"category":     item.Category,
		"title":        item.Title,
		"notes":        item.ProtocolNotes,
		"priority":     item.Priority,
		"duration":     item.EstimatedDuration,
		"creatorId":    item.CreatorID,
	}
	if item.VoteResult != "" {
		payload["voteResult"] = item.VoteResult
	}
	if position >= 0 {
		payload["position"] = position
	}
	return payload
}

func itemRecord(item store.AgendaItem) search.AgendaItemRecord {
	return search.AgendaItemRecord{
		ID:            item.ID,
		MeetingID:     item.MeetingID,
		TopNumber:     item.TopNumber,
		Title:         item.Title,
		ProtocolNotes: item.ProtocolNotes,
		Category:      item.Category,
		Confidential:  item.Confidential,
	}
}

func attachmentPayload(record store.Attachment) map[string]any {
	return map[string]any{
		"id":          record.ID,
		"meetingId":   record.MeetingID,
		"fileName":    record.FileName,
		"contentType": record.ContentType,
		"size":        record.Size,
		"uploadedBy":  record.UploadedBy,
	}
}
