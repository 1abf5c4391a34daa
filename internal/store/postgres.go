package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) EnsureMemberByName(ctx context.Context, name string) (Member, error) {
	const findMember = `
		SELECT id, display_name, email, role, is_admin, is_cleared
		FROM members WHERE display_name = $1
	`
	var member Member
	err := s.db.QueryRowContext(ctx, findMember, name).Scan(
		&member.ID, &member.DisplayName, &member.Email, &member.Role, &member.Admin, &member.Cleared)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Member{}, fmt.Errorf("lookup member: %w", err)
	}

	insertMember := `
		INSERT INTO members (display_name, email, role)
		VALUES ($1, CONCAT(LOWER(REPLACE($1, ' ', '.')), '@local.boardroom.dev'), 'member')
		RETURNING id, display_name, email, role, is_admin, is_cleared
	`
	if err := s.db.QueryRowContext(ctx, insertMember, name).Scan(
		&member.ID, &member.DisplayName, &member.Email, &member.Role, &member.Admin, &member.Cleared); err != nil {
		return Member{}, fmt.Errorf("insert member: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) GetMemberByID(ctx context.Context, memberID string) (Member, error) {
	var member Member
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, COALESCE(password_hash, ''), role, is_admin, is_cleared, is_email_verified
		FROM members WHERE id=$1
	`, memberID).Scan(
		&member.ID, &member.DisplayName, &member.Email, &member.PasswordHash,
		&member.Role, &member.Admin, &member.Cleared, &member.IsEmailVerified)
	if err != nil {
		return Member{}, err
	}
	return member, nil
}

func (s *PostgresStore) GetMemberByEmail(ctx context.Context, email string) (Member, error) {
	var member Member
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, COALESCE(password_hash, ''), role, is_admin, is_cleared, is_email_verified
		FROM members WHERE LOWER(email)=LOWER($1)
	`, email).Scan(
		&member.ID, &member.DisplayName, &member.Email, &member.PasswordHash,
		&member.Role, &member.Admin, &member.Cleared, &member.IsEmailVerified)
	if err != nil {
		return Member{}, err
	}
	return member, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, email, role, is_admin, is_cleared
		FROM members
		ORDER BY display_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]Member, 0)
	for rows.Next() {
		var item Member
		if err := rows.Scan(&item.ID, &item.DisplayName, &item.Email, &item.Role, &item.Admin, &item.Cleared); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateMember(ctx context.Context, member Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, display_name, email, password_hash, role, is_admin, is_cleared, is_email_verified, verification_token)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, NULLIF($9, ''))
	`, member.ID, member.DisplayName, member.Email, member.PasswordHash, member.Role,
		member.Admin, member.Cleared, member.IsEmailVerified, member.VerificationToken)
	if err != nil {
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateMemberVerificationToken(ctx context.Context, memberID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE members SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, memberID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyMemberEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE members
		SET is_email_verified=TRUE, verification_token=NULL, verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify member email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify member email rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateMemberPassword(ctx context.Context, memberID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE members SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, memberID, passwordHash)
	if err != nil {
		return fmt.Errorf("update member password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, memberID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, member_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, memberID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var memberID string
	err := s.db.QueryRowContext(ctx, `
		SELECT member_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&memberID)
	if err != nil {
		return "", err
	}
	return memberID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, memberID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, member_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET member_id=EXCLUDED.member_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, memberID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Member, error) {
	const query = `
		SELECT m.id, m.display_name, m.role, m.is_admin, m.is_cleared
		FROM refresh_sessions rs
		JOIN members m ON m.id = rs.member_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var member Member
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&member.ID, &member.DisplayName, &member.Role, &member.Admin, &member.Cleared)
	if err != nil {
		return Member{}, err
	}
	return member, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) InsertMeeting(ctx context.Context, meeting Meeting) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meetings (id, title, state, scheduled_at, submission_deadline, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, meeting.ID, meeting.Title, meeting.State, meeting.ScheduledAt, meeting.SubmissionDeadline, meeting.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert meeting: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMeeting(ctx context.Context, meetingID string) (Meeting, error) {
	var item Meeting
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, state, COALESCE(chair_id, ''), COALESCE(secretary_id, ''), COALESCE(active_item_id, ''),
			scheduled_at, submission_deadline, started_at, ended_at, approved_at, created_by, created_at, updated_at
		FROM meetings
		WHERE id=$1
	`, meetingID).Scan(
		&item.ID, &item.Title, &item.State, &item.ChairID, &item.SecretaryID, &item.ActiveItemID,
		&item.ScheduledAt, &item.SubmissionDeadline, &item.StartedAt, &item.EndedAt, &item.ApprovedAt,
		&item.CreatedBy, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Meeting{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListMeetings(ctx context.Context) ([]Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, state, COALESCE(chair_id, ''), COALESCE(secretary_id, ''), COALESCE(active_item_id, ''),
			scheduled_at, submission_deadline, started_at, ended_at, approved_at, created_by, created_at, updated_at
		FROM meetings
		ORDER BY scheduled_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	items := make([]Meeting, 0)
	for rows.Next() {
		var item Meeting
		if err := rows.Scan(
			&item.ID, &item.Title, &item.State, &item.ChairID, &item.SecretaryID, &item.ActiveItemID,
			&item.ScheduledAt, &item.SubmissionDeadline, &item.StartedAt, &item.EndedAt, &item.ApprovedAt,
			&item.CreatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meetings: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ProposeOfficers(ctx context.Context, meetingID, chairID, secretaryID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE meetings
		SET chair_id=NULLIF($2, ''), secretary_id=NULLIF($3, ''), updated_at=NOW()
		WHERE id=$1 AND state='preparation'
	`, meetingID, chairID, secretaryID)
	if err != nil {
		return false, fmt.Errorf("propose officers: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("propose officers rows: %w", err)
	}
	return affected > 0, nil
}

// StartMeeting finalizes chair and secretary and stamps the start time in
// the same conditional update that flips the state, so a concurrent second
// start resolves to exactly one winner.
func (s *PostgresStore) StartMeeting(ctx context.Context, meetingID, chairID, secretaryID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE meetings
		SET state='active', chair_id=$2, secretary_id=$3, started_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND state='preparation'
	`, meetingID, chairID, secretaryID)
	if err != nil {
		return false, fmt.Errorf("start meeting: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("start meeting rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) EndMeeting(ctx context.Context, meetingID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE meetings
		SET state='ended', ended_at=NOW(), active_item_id=NULL, updated_at=NOW()
		WHERE id=$1 AND state='active'
	`, meetingID)
	if err != nil {
		return false, fmt.Errorf("end meeting: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("end meeting rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ReleaseProtocol(ctx context.Context, meetingID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE meetings SET state='protocol_ready', updated_at=NOW()
		WHERE id=$1 AND state='ended'
	`, meetingID)
	if err != nil {
		return false, fmt.Errorf("release protocol: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release protocol rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ApproveMeeting(ctx context.Context, meetingID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE meetings SET state='archived', approved_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND state='protocol_ready'
	`, meetingID)
	if err != nil {
		return false, fmt.Errorf("approve meeting: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approve meeting rows: %w", err)
	}
	return affected > 0, nil
}

// SetActiveItem is a single atomic update keyed by meeting id; an empty
// itemID clears the pointer. The subquery enforces that the pointer only
// ever references an item of this meeting.
func (s *PostgresStore) SetActiveItem(ctx context.Context, meetingID, itemID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE meetings
		SET active_item_id=NULLIF($2, ''), updated_at=NOW()
		WHERE id=$1 AND state='active'
			AND ($2='' OR EXISTS(SELECT 1 FROM agenda_items WHERE meeting_id=$1 AND id=$2))
	`, meetingID, itemID)
	if err != nil {
		return false, fmt.Errorf("set active item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set active item rows: %w", err)
	}
	return affected > 0, nil
}

// AllocateTopNumber is the atomic per-band counter behind the addressing
// engine. The first allocation in a band seeds the counter at floor; every
// later call increments it, so deleted items never free their number.
func (s *PostgresStore) AllocateTopNumber(ctx context.Context, meetingID string, confidential bool, floor int) (int, error) {
	var number int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO agenda_counters (meeting_id, confidential, next_number)
		VALUES ($1, $2, $3 + 1)
		ON CONFLICT (meeting_id, confidential)
		DO UPDATE SET next_number = agenda_counters.next_number + 1
		RETURNING next_number - 1
	`, meetingID, confidential, floor).Scan(&number)
	if err != nil {
		return 0, fmt.Errorf("allocate top number: %w", err)
	}
	return number, nil
}

func (s *PostgresStore) InsertAgendaItem(ctx context.Context, item AgendaItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agenda_items (id, meeting_id, top_number, confidential, category, title, creator_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.MeetingID, item.TopNumber, item.Confidential, item.Category, item.Title, item.CreatorID)
	if err != nil {
		return fmt.Errorf("insert agenda item: %w", err)
	}
	return nil
}

const agendaItemColumns = `
	i.id, i.meeting_id, i.top_number, i.confidential, i.category, i.title,
	COALESCE(i.protocol_notes, ''), COALESCE(i.vote_result, ''),
	COALESCE(r.priority_avg, 0), COALESCE(r.duration_avg, 0),
	i.creator_id, i.created_at, i.updated_at
`

const agendaRatingJoin = `
	LEFT JOIN (
		SELECT item_id, AVG(priority) AS priority_avg, AVG(duration_minutes) AS duration_avg
		FROM agenda_ratings
		GROUP BY item_id
	) r ON r.item_id = i.id
`

func scanAgendaItem(row interface{ Scan(...any) error }) (AgendaItem, error) {
	var item AgendaItem
	err := row.Scan(
		&item.ID, &item.MeetingID, &item.TopNumber, &item.Confidential, &item.Category, &item.Title,
		&item.ProtocolNotes, &item.VoteResult, &item.Priority, &item.EstimatedDuration,
		&item.CreatorID, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// ListAgendaItems applies the confidentiality filter in SQL so uncleared
// callers never receive confidential rows at all.
func (s *PostgresStore) ListAgendaItems(ctx context.Context, meetingID string, includeConfidential bool) ([]AgendaItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+agendaItemColumns+`
		FROM agenda_items i
		`+agendaRatingJoin+`
		WHERE i.meeting_id=$1
		  AND ($2::boolean OR NOT i.confidential)
		ORDER BY i.top_number ASC
	`, meetingID, includeConfidential)
	if err != nil {
		return nil, fmt.Errorf("list agenda items: %w", err)
	}
	defer rows.Close()

	items := make([]AgendaItem, 0)
	for rows.Next() {
		item, err := scanAgendaItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agenda item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agenda items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetAgendaItem(ctx context.Context, meetingID string, topNumber int) (AgendaItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+agendaItemColumns+`
		FROM agenda_items i
		`+agendaRatingJoin+`
		WHERE i.meeting_id=$1 AND i.top_number=$2
	`, meetingID, topNumber)
	item, err := scanAgendaItem(row)
	if err != nil {
		return AgendaItem{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetAgendaItemByID(ctx context.Context, itemID string) (AgendaItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+agendaItemColumns+`
		FROM agenda_items i
		`+agendaRatingJoin+`
		WHERE i.id=$1
	`, itemID)
	item, err := scanAgendaItem(row)
	if err != nil {
		return AgendaItem{}, err
	}
	return item, nil
}

func (s *PostgresStore) UpdateProtocolNotes(ctx context.Context, meetingID string, topNumber int, notes string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agenda_items SET protocol_notes=$3, updated_at=NOW()
		WHERE meeting_id=$1 AND top_number=$2
	`, meetingID, topNumber, notes)
	if err != nil {
		return false, fmt.Errorf("update protocol notes: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update protocol notes rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) UpdateVoteResult(ctx context.Context, meetingID string, topNumber int, voteResult string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agenda_items SET vote_result=$3, updated_at=NOW()
		WHERE meeting_id=$1 AND top_number=$2
	`, meetingID, topNumber, voteResult)
	if err != nil {
		return false, fmt.Errorf("update vote result: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update vote result rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteAgendaItem(ctx context.Context, meetingID string, topNumber int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM agenda_items WHERE meeting_id=$1 AND top_number=$2
	`, meetingID, topNumber)
	if err != nil {
		return false, fmt.Errorf("delete agenda item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete agenda item rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) UpsertRating(ctx context.Context, itemID, memberID string, priority int, durationMinutes int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agenda_ratings (item_id, member_id, priority, duration_minutes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id, member_id)
		DO UPDATE SET priority=EXCLUDED.priority, duration_minutes=EXCLUDED.duration_minutes, updated_at=NOW()
	`, itemID, memberID, priority, durationMinutes)
	if err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment ItemComment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_comments (id, meeting_id, item_id, author_id, author_name, kind, body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, comment.ID, comment.MeetingID, comment.ItemID, comment.AuthorID, comment.AuthorName, comment.Kind, comment.Body)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, meetingID, itemID string) ([]ItemComment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meeting_id, item_id, author_id, author_name, kind, body, created_at
		FROM item_comments
		WHERE meeting_id=$1 AND ($2='' OR item_id=$2)
		ORDER BY created_at ASC
	`, meetingID, itemID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]ItemComment, 0)
	for rows.Next() {
		var item ItemComment
		if err := rows.Scan(&item.ID, &item.MeetingID, &item.ItemID, &item.AuthorID, &item.AuthorName, &item.Kind, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// DeleteMeetingComments erases all live and post-hoc commentary for a
// meeting. Called once, when the chair approves the protocol: the compiled
// protocol is the durable record, the working commentary is not.
func (s *PostgresStore) DeleteMeetingComments(ctx context.Context, meetingID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM item_comments WHERE meeting_id=$1`, meetingID)
	if err != nil {
		return 0, fmt.Errorf("delete meeting comments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete meeting comments rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) InsertAbsence(ctx context.Context, absence Absence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO absences (id, meeting_id, member_id, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (meeting_id, member_id) DO UPDATE SET reason=EXCLUDED.reason
	`, absence.ID, absence.MeetingID, absence.MemberID, absence.Reason)
	if err != nil {
		return fmt.Errorf("insert absence: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAbsences(ctx context.Context, meetingID string) ([]Absence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.meeting_id, a.member_id, m.display_name, a.reason, a.created_at
		FROM absences a
		JOIN members m ON m.id = a.member_id
		WHERE a.meeting_id=$1
		ORDER BY m.display_name ASC
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list absences: %w", err)
	}
	defer rows.Close()

	items := make([]Absence, 0)
	for rows.Next() {
		var item Absence
		if err := rows.Scan(&item.ID, &item.MeetingID, &item.MemberID, &item.MemberName, &item.Reason, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan absence: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate absences: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertAttachment(ctx context.Context, attachment Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, meeting_id, file_name, object_key, content_type, size_bytes, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, attachment.ID, attachment.MeetingID, attachment.FileName, attachment.ObjectKey,
		attachment.ContentType, attachment.Size, attachment.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, meetingID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meeting_id, file_name, object_key, content_type, size_bytes, uploaded_by, created_at
		FROM attachments
		WHERE meeting_id=$1
		ORDER BY created_at ASC
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.MeetingID, &item.FileName, &item.ObjectKey, &item.ContentType, &item.Size, &item.UploadedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, meetingID, attachmentID string) (Attachment, error) {
	var item Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, meeting_id, file_name, object_key, content_type, size_bytes, uploaded_by, created_at
		FROM attachments
		WHERE meeting_id=$1 AND id=$2
	`, meetingID, attachmentID).Scan(
		&item.ID, &item.MeetingID, &item.FileName, &item.ObjectKey, &item.ContentType, &item.Size, &item.UploadedBy, &item.CreatedAt)
	if err != nil {
		return Attachment{}, err
	}
	return item, nil
}

func (s *PostgresStore) SummaryCounts(ctx context.Context) (upcoming int, running int, archived int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meetings WHERE state='preparation'`).Scan(&upcoming); err != nil {
		err = fmt.Errorf("count upcoming meetings: %w", err)
		return
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meetings WHERE state IN ('active', 'ended', 'protocol_ready')`).Scan(&running); err != nil {
		err = fmt.Errorf("count running meetings: %w", err)
		return
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM meetings WHERE state='archived'`).Scan(&archived); err != nil {
		err = fmt.Errorf("count archived meetings: %w", err)
		return
	}
	return
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
