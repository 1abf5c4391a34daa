package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"boardroom/api/internal/agenda"
	"boardroom/api/internal/export"
	"boardroom/api/internal/protocol"
	"boardroom/api/internal/search"
	"boardroom/api/internal/store"
	"boardroom/api/internal/util"
	"boardroom/api/internal/workflow"
)

func (s *Service) CreateMeeting(ctx context.Context, session Session, title string, scheduledAt, submissionDeadline time.Time) (map[string]any, error) {
	meetingTitle := strings.TrimSpace(title)
	if meetingTitle == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if scheduledAt.IsZero() {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "scheduledAt is required", nil)
	}
	if submissionDeadline.IsZero() {
		submissionDeadline = scheduledAt
	}
	if submissionDeadline.After(scheduledAt) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "submissionDeadline must not be after scheduledAt", nil)
	}

	meeting := store.Meeting{
		ID:                 util.NewID("mtg"),
		Title:              meetingTitle,
		State:              string(workflow.StatePreparation),
		ScheduledAt:        scheduledAt,
		SubmissionDeadline: submissionDeadline,
		CreatedBy:          session.MemberID,
	}
	if err := s.store.InsertMeeting(ctx, meeting); err != nil {
		return nil, err
	}
	if err := s.seedStructuralItems(ctx, meeting.ID, session.MemberID); err != nil {
		return nil, err
	}
	if err := s.archive.EnsureMeetingRepo(meeting.ID, session.MemberName); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexMeeting(search.MeetingRecord{ID: meeting.ID, Title: meeting.Title, State: meeting.State})
	}
	s.notifyInvitations(ctx, meeting)

	return s.GetMeeting(ctx, session, meeting.ID)
}

// seedStructuralItems inserts the two fixed agenda items plus the control
// sentinel. Their numbers are assigned directly, never through the
// allocator, and they cannot be deleted.
func (s *Service) seedStructuralItems(ctx context.Context, meetingID, creatorID string) error {
	fixed := []store.AgendaItem{
		{TopNumber: agenda.NumberOpening, Title: "Opening and election of chair and secretary", Category: string(workflow.CategoryResolution)},
		{TopNumber: agenda.NumberMiscellaneous, Title: "Miscellaneous", Category: string(workflow.CategoryMiscellaneous)},
		{TopNumber: agenda.NumberControl, Title: "Control", Category: string(workflow.CategoryMiscellaneous)},
	}
	for _, item := range fixed {
		item.ID = util.NewID("top")
		item.MeetingID = meetingID
		item.CreatorID = creatorID
		if err := s.store.InsertAgendaItem(ctx, item); err != nil {
			return fmt.Errorf("seed agenda item %d: %w", item.TopNumber, err)
		}
	}
	return nil
}

func (s *Service) ListMeetings(ctx context.Context) ([]map[string]any, error) {
	meetings, err := s.store.ListMeetings(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(meetings))
	for _, meeting := range meetings {
		items = append(items, meetingPayload(meeting))
	}
	return items, nil
}

func (s *Service) GetMeeting(ctx context.Context, session Session, meetingID string) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	agendaItems, err := s.visibleAgenda(ctx, session, meeting)
	if err != nil {
		return nil, err
	}
	absences, err := s.store.ListAbsences(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	absencePayloads := make([]map[string]any, 0, len(absences))
	for _, absence := range absences {
		absencePayloads = append(absencePayloads, map[string]any{
			"memberId":   absence.MemberID,
			"memberName": absence.MemberName,
			"reason":     absence.Reason,
		})
	}

	payload := meetingPayload(meeting)
	payload["agenda"] = agendaItems
	payload["absences"] = absencePayloads
	return payload, nil
}

func (s *Service) ProposeOfficers(ctx context.Context, session Session, meetingID, chairID, secretaryID string) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if workflow.State(meeting.State) != workflow.StatePreparation {
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Officers can only be proposed during preparation", map[string]any{"state": meeting.State})
	}
	for _, memberID := range []string{chairID, secretaryID} {
		if memberID == "" {
			continue
		}
		if _, err := s.store.GetMemberByID(ctx, memberID); err != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "UNKNOWN_MEMBER", "Proposed officer is not a known member", map[string]any{"memberId": memberID})
		}
	}
	changed, err := s.store.ProposeOfficers(ctx, meetingID, chairID, secretaryID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "STATE_CHANGED", "Meeting state changed concurrently", nil)
	}
	return s.GetMeeting(ctx, session, meetingID)
}

// Advance moves a meeting one step along its lifecycle. The transition
// table and the per-target role rules decide admissibility; the store call
// is conditional on the expected current state, so a concurrent advance
// loses cleanly.
func (s *Service) Advance(ctx context.Context, session Session, meetingID, target, chairID, secretaryID string) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	targetState := workflow.State(target)
	if !workflow.ValidState(targetState) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "target must be one of active, ended, protocol_ready, archived", nil)
	}
	actor := actorFromSession(session)
	snapshot := snapshotOf(meeting)
	if !workflow.ValidTransition(snapshot.State, targetState) {
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Transition is not allowed", map[string]any{
			"from": meeting.State,
			"to":   target,
		})
	}
	if !workflow.CanAdvance(actor, snapshot, targetState) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Not allowed to advance this meeting", nil)
	}

	var changed bool
	switch targetState {
	case workflow.StateActive:
		chair := firstNonBlank(chairID, meeting.ChairID)
		secretary := firstNonBlank(secretaryID, meeting.SecretaryID)
		if chair == "" || secretary == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "OFFICERS_REQUIRED", "A chair and a secretary must be elected before the meeting starts", nil)
		}
		changed, err = s.store.StartMeeting(ctx, meetingID, chair, secretary)
		if err == nil && changed {
			outcome := fmt.Sprintf("Elected %s as chair and %s as secretary", s.memberName(ctx, chair), s.memberName(ctx, secretary))
			if _, voteErr := s.store.UpdateVoteResult(ctx, meetingID, agenda.NumberOpening, outcome); voteErr != nil {
				log.Printf("record election outcome for %s: %v", meetingID, voteErr)
			}
		}
	case workflow.StateEnded:
		changed, err = s.store.EndMeeting(ctx, meetingID)
	case workflow.StateProtocolReady:
		if err := s.releaseProtocol(ctx, session, meeting); err != nil {
			return nil, err
		}
		changed, err = s.store.ReleaseProtocol(ctx, meetingID)
	case workflow.StateArchived:
		changed, err = s.store.ApproveMeeting(ctx, meetingID)
		if err == nil && changed {
			if tagErr := s.archive.TagApproval(meetingID, "HEAD", "approved"); tagErr != nil {
				log.Printf("tag approval for %s: %v", meetingID, tagErr)
			}
			if _, eraseErr := s.store.DeleteMeetingComments(ctx, meetingID); eraseErr != nil {
				log.Printf("erase comments for %s: %v", meetingID, eraseErr)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "STATE_CHANGED", "Meeting state changed concurrently", nil)
	}

	if s.search != nil {
		s.search.IndexMeeting(search.MeetingRecord{ID: meeting.ID, Title: meeting.Title, State: target})
	}
	return s.GetMeeting(ctx, session, meetingID)
}

func (s *Service) SetActiveItem(ctx context.Context, session Session, meetingID, itemID string) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if !workflow.CanSetActiveItem(actorFromSession(session), snapshotOf(meeting)) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only the secretary steers the active item", nil)
	}
	if itemID != "" {
		item, err := s.store.GetAgendaItemByID(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if item.MeetingID != meetingID {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		if item.TopNumber == agenda.NumberControl {
			return nil, domainError(http.StatusUnprocessableEntity, "RESERVED_ITEM", "The control item is never discussed", map[string]any{"topNumber": item.TopNumber})
		}
	}
	changed, err := s.store.SetActiveItem(ctx, meetingID, itemID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domainError(http.StatusConflict, "INVALID_STATE", "Item is not part of a running meeting", nil)
	}
	return s.GetMeeting(ctx, session, meetingID)
}

// releaseProtocol compiles both protocol documents and commits them to the
// meeting's archive repository.
func (s *Service) releaseProtocol(ctx context.Context, session Session, meeting store.Meeting) error {
	public, confidential, err := s.compileProtocol(ctx, meeting)
	if err != nil {
		return err
	}
	publicMD := protocol.RenderMarkdown(public)
	confidentialMD := ""
	if confidential != nil {
		confidentialMD = protocol.RenderMarkdown(*confidential)
	}
	if _, err := s.archive.CommitProtocol(meeting.ID, publicMD, confidentialMD, session.MemberName, "Release protocol"); err != nil {
		return fmt.Errorf("commit protocol: %w", err)
	}
	s.notifyProtocolReady(ctx, meeting)
	return nil
}

func (s *Service) compileProtocol(ctx context.Context, meeting store.Meeting) (protocol.Document, *protocol.Document, error) {
	items, err := s.store.ListAgendaItems(ctx, meeting.ID, true)
	if err != nil {
		return protocol.Document{}, nil, err
	}
	absences, err := s.store.ListAbsences(ctx, meeting.ID)
	if err != nil {
		return protocol.Document{}, nil, err
	}
	chairName := s.memberName(ctx, meeting.ChairID)
	secretaryName := s.memberName(ctx, meeting.SecretaryID)
	public, confidential, err := protocol.Compile(meeting, items, chairName, secretaryName, absences)
	if err != nil {
		return protocol.Document{}, nil, err
	}
	return public, confidential, nil
}

func (s *Service) GetProtocol(ctx context.Context, session Session, meetingID string) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	public, confidential, err := s.compileProtocol(ctx, meeting)
	if err == protocol.ErrMeetingStillRunning {
		return nil, domainError(http.StatusConflict, "PROTOCOL_NOT_READY", "The meeting has not ended yet", map[string]any{"state": meeting.State})
	}
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"meetingId": meetingID,
		"public": map[string]any{
			"markdown": protocol.RenderMarkdown(public),
			"sections": sectionPayloads(public.Sections),
		},
	}
	if confidential != nil && workflow.CanSeeConfidential(actorFromSession(session), snapshotOf(meeting)) {
		payload["confidential"] = map[string]any{
			"markdown": protocol.RenderMarkdown(*confidential),
			"sections": sectionPayloads(confidential.Sections),
		}
	}
	return payload, nil
}

func (s *Service) ExportProtocol(ctx context.Context, session Session, meetingID string, format export.Format, confidentialPart bool) (*export.Result, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	public, confidential, err := s.compileProtocol(ctx, meeting)
	if err == protocol.ErrMeetingStillRunning {
		return nil, domainError(http.StatusConflict, "PROTOCOL_NOT_READY", "The meeting has not ended yet", nil)
	}
	if err != nil {
		return nil, err
	}

	doc := public
	if confidentialPart {
		if !workflow.CanSeeConfidential(actorFromSession(session), snapshotOf(meeting)) {
			return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Confidential supplement requires clearance", nil)
		}
		if confidential == nil {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "This meeting has no confidential supplement", nil)
		}
		doc = *confidential
	}
	return s.exporter.Export(doc, format)
}

func (s *Service) ProtocolHistory(ctx context.Context, meetingID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetMeeting(ctx, meetingID); err != nil {
		return nil, err
	}
	commits, err := s.archive.History(meetingID, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		entries = append(entries, map[string]any{
			"hash":      commit.Hash,
			"message":   commit.Message,
			"author":    commit.Author,
			"createdAt": commit.CreatedAt,
		})
	}
	return map[string]any{"meetingId": meetingID, "revisions": entries}, nil
}

func (s *Service) ProtocolAt(ctx context.Context, session Session, meetingID, hash string) (map[string]any, error) {
	meeting, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	publicMD, confidentialMD, err := s.archive.GetProtocolAt(meetingID, hash)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"meetingId": meetingID,
		"hash":      hash,
		"public":    publicMD,
	}
	if confidentialMD != "" && workflow.CanSeeConfidential(actorFromSession(session), snapshotOf(meeting)) {
		payload["confidential"] = confidentialMD
	}
	return payload, nil
}

func (s *Service) notifyInvitations(ctx context.Context, meeting store.Meeting) {
	if !s.SMTPConfigured() {
		return
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		log.Printf("list members for invitations: %v", err)
		return
	}
	go func() {
		for _, member := range members {
			if member.Email == "" {
				continue
			}
			if err := s.mail.SendMeetingInvitation(member.Email, member.DisplayName, meeting.Title,
				meeting.ScheduledAt.Format(time.RFC1123), meeting.SubmissionDeadline.Format(time.RFC1123),
				s.cfg.AppBaseURL+"/meetings/"+meeting.ID); err != nil {
				log.Printf("send invitation to %s: %v", member.Email, err)
			}
		}
	}()
}

func (s *Service) notifyProtocolReady(ctx context.Context, meeting store.Meeting) {
	if !s.SMTPConfigured() {
		return
	}
	members, err := s.store.ListMembers(ctx)
	if err != nil {
		log.Printf("list members for protocol notification: %v", err)
		return
	}
	go func() {
		for _, member := range members {
			if member.Email == "" {
				continue
			}
			if err := s.mail.SendProtocolReady(member.Email, member.DisplayName, meeting.Title,
				s.cfg.AppBaseURL+"/meetings/"+meeting.ID+"/protocol"); err != nil {
				log.Printf("send protocol notification to %s: %v", member.Email, err)
			}
		}
	}()
}

func meetingPayload(meeting store.Meeting) map[string]any {
	payload := map[string]any{
		"id":                 meeting.ID,
		"title":              meeting.Title,
		"state":              meeting.State,
		"chairId":            meeting.ChairID,
		"secretaryId":        meeting.SecretaryID,
		"activeItemId":       meeting.ActiveItemID,
		"scheduledAt":        meeting.ScheduledAt,
		"submissionDeadline": meeting.SubmissionDeadline,
		"createdBy":          meeting.CreatedBy,
	}
	if meeting.StartedAt != nil {
		payload["startedAt"] = *meeting.StartedAt
	}
	if meeting.EndedAt != nil {
		payload["endedAt"] = *meeting.EndedAt
	}
	if meeting.ApprovedAt != nil {
		payload["approvedAt"] = *meeting.ApprovedAt
	}
	return payload
}

func sectionPayloads(sections []protocol.Section) []map[string]any {
	payloads := make([]map[string]any, 0, len(sections))
	for _, section := range sections {
		payload := map[string]any{
			"topNumber": section.TopNumber,
			"title":     section.Title,
			"category":  section.Category,
			"notes":     section.Notes,
		}
		if section.VoteResult != "" {
			payload["voteResult"] = section.VoteResult
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
