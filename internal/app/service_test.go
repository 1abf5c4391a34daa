package app

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"boardroom/api/internal/agenda"
	"boardroom/api/internal/archive"
	"boardroom/api/internal/auth"
	"boardroom/api/internal/authpw"
	"boardroom/api/internal/config"
	"boardroom/api/internal/export"
	"boardroom/api/internal/paralock"
	"boardroom/api/internal/store"
)

// fakeStore is an in-memory stand-in for the Postgres store. State lives in
// maps and slices; individual methods can be overridden per test through
// the fn fields.
type fakeStore struct {
	mu sync.Mutex

	members     map[string]store.Member
	meetings    map[string]store.Meeting
	items       []store.AgendaItem
	comments    []store.ItemComment
	absences    []store.Absence
	documents   map[string]store.Document
	paragraphs  map[string]store.Paragraph
	lockHolders map[string]string
	refresh     map[string]string
	revokedJTIs map[string]bool
	counters    map[string]int
	resets      map[string]string

	ensureMemberByNameFn  func(context.Context, string) (store.Member, error)
	insertMeetingFn       func(context.Context, store.Meeting) error
	insertAgendaItemFn    func(context.Context, store.AgendaItem) error
	allocateTopNumberFn   func(context.Context, string, bool, int) (int, error)
	deleteMeetingCommsFn  func(context.Context, string) (int64, error)
	summaryCountsFn       func(context.Context) (int, int, int, error)
	pingFn                func(context.Context) error
	upsertRatingFn        func(context.Context, string, string, int, int) error
	updateVoteResultFn    func(context.Context, string, int, string) (bool, error)
	releaseProtocolFn     func(context.Context, string) (bool, error)
	saveRefreshSessionFn  func(context.Context, string, string, time.Time) error
	revokeRefreshFn       func(context.Context, string) error
	insertAttachmentFn    func(context.Context, store.Attachment) error
	getAttachmentFn       func(context.Context, string, string) (store.Attachment, error)
	listAttachmentsFn     func(context.Context, string) ([]store.Attachment, error)
	createMemberFn        func(context.Context, store.Member) error
	verifyMemberEmailFn   func(context.Context, string) error
	updateMemberPwFn      func(context.Context, string, string) error
	markPasswordResetFn   func(context.Context, string) error
	createPasswordResetFn func(context.Context, string, string, time.Time) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members:     make(map[string]store.Member),
		meetings:    make(map[string]store.Meeting),
		documents:   make(map[string]store.Document),
		paragraphs:  make(map[string]store.Paragraph),
		lockHolders: make(map[string]string),
		refresh:     make(map[string]string),
		revokedJTIs: make(map[string]bool),
		counters:    make(map[string]int),
		resets:      make(map[string]string),
	}
}

func (f *fakeStore) EnsureMemberByName(ctx context.Context, name string) (store.Member, error) {
	if f.ensureMemberByNameFn != nil {
		return f.ensureMemberByNameFn(ctx, name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, member := range f.members {
		if member.DisplayName == name {
			return member, nil
		}
	}
	member := store.Member{ID: "mem_" + name, DisplayName: name, Role: "member"}
	f.members[member.ID] = member
	return member, nil
}

func (f *fakeStore) GetMemberByID(ctx context.Context, memberID string) (store.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[memberID]
	if !ok {
		return store.Member{}, sql.ErrNoRows
	}
	return member, nil
}

func (f *fakeStore) ListMembers(context.Context) ([]store.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := make([]store.Member, 0, len(f.members))
	for _, member := range f.members {
		members = append(members, member)
	}
	return members, nil
}

func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash, memberID string, expiresAt time.Time) error {
	if f.saveRefreshSessionFn != nil {
		return f.saveRefreshSessionFn(ctx, tokenHash, memberID, expiresAt)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = memberID
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.Member, error) {
	f.mu.Lock()
	memberID, ok := f.refresh[tokenHash]
	f.mu.Unlock()
	if !ok {
		return store.Member{}, sql.ErrNoRows
	}
	return f.GetMemberByID(ctx, memberID)
}

func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if f.revokeRefreshFn != nil {
		return f.revokeRefreshFn(ctx, tokenHash)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedJTIs[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokedJTIs[jti], nil
}

func (f *fakeStore) InsertMeeting(ctx context.Context, meeting store.Meeting) error {
	if f.insertMeetingFn != nil {
		return f.insertMeetingFn(ctx, meeting)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meetings[meeting.ID] = meeting
	return nil
}

func (f *fakeStore) GetMeeting(ctx context.Context, meetingID string) (store.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meeting, ok := f.meetings[meetingID]
	if !ok {
		return store.Meeting{}, sql.ErrNoRows
	}
	return meeting, nil
}

func (f *fakeStore) ListMeetings(context.Context) ([]store.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meetings := make([]store.Meeting, 0, len(f.meetings))
	for _, meeting := range f.meetings {
		meetings = append(meetings, meeting)
	}
	return meetings, nil
}

func (f *fakeStore) ProposeOfficers(ctx context.Context, meetingID, chairID, secretaryID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meeting, ok := f.meetings[meetingID]
	if !ok || meeting.State != "preparation" {
		return false, nil
	}
	meeting.ChairID = chairID
	meeting.SecretaryID = secretaryID
	f.meetings[meetingID] = meeting
	return true, nil
}

func (f *fakeStore) StartMeeting(ctx context.Context, meetingID, chairID, secretaryID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meeting, ok := f.meetings[meetingID]
	if !ok || meeting.State != "preparation" {
		return false, nil
	}
	now := time.Now()
	meeting.State = "active"
	meeting.ChairID = chairID
	meeting.SecretaryID = secretaryID
	meeting.StartedAt = &now
	f.meetings[meetingID] = meeting
	return true, nil
}

func (f *fakeStore) EndMeeting(ctx context.Context, meetingID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meeting, ok := f.meetings[meetingID]
	if !ok || meeting.State != "active" {
		return false, nil
	}
	now := time.Now()
	meeting.State = "ended"
	meeting.ActiveItemID = ""
	meeting.EndedAt = &now
	f.meetings[meetingID] = meeting
	return true, nil
}

func (f *fakeStore) ReleaseProtocol(ctx context.Context, meetingID string) (bool, error) {
	if f.releaseProtocolFn != nil {
		return f.releaseProtocolFn(ctx, meetingID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	meeting, ok := f.meetings[meetingID]
	if !ok || meeting.State != "ended" {
		return false, nil
	}
	meeting.State = "protocol_ready"
	f.meetings[meetingID] = meeting
	return true, nil
}

func (f *fakeStore) ApproveMeeting(ctx context.Context, meetingID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meeting, ok := f.meetings[meetingID]
	if !ok || meeting.State != "protocol_ready" {
		return false, nil
	}
	now := time.Now()
	meeting.State = "archived"
	meeting.ApprovedAt = &now
	f.meetings[meetingID] = meeting
	return true, nil
}

func (f *fakeStore) SetActiveItem(ctx context.Context, meetingID, itemID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meeting, ok := f.meetings[meetingID]
	if !ok || meeting.State != "active" {
		return false, nil
	}
	if itemID != "" {
		found := false
		for _, item := range f.items {
			if item.MeetingID == meetingID && item.ID == itemID {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	meeting.ActiveItemID = itemID
	f.meetings[meetingID] = meeting
	return true, nil
}

func (f *fakeStore) AllocateTopNumber(ctx context.Context, meetingID string, confidential bool, floor int) (int, error) {
	if f.allocateTopNumberFn != nil {
		return f.allocateTopNumberFn(ctx, meetingID, confidential, floor)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := meetingID
	if confidential {
		key += ":confidential"
	}
	next, ok := f.counters[key]
	if !ok {
		next = floor
	}
	f.counters[key] = next + 1
	return next, nil
}

func (f *fakeStore) InsertAgendaItem(ctx context.Context, item store.AgendaItem) error {
	if f.insertAgendaItemFn != nil {
		return f.insertAgendaItemFn(ctx, item)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	return nil
}

func (f *fakeStore) ListAgendaItems(ctx context.Context, meetingID string, includeConfidential bool) ([]store.AgendaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.AgendaItem, 0, len(f.items))
	for _, item := range f.items {
		if item.MeetingID != meetingID {
			continue
		}
		if item.Confidential && !includeConfidential {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (f *fakeStore) GetAgendaItem(ctx context.Context, meetingID string, topNumber int) (store.AgendaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.MeetingID == meetingID && item.TopNumber == topNumber {
			return item, nil
		}
	}
	return store.AgendaItem{}, sql.ErrNoRows
}

func (f *fakeStore) GetAgendaItemByID(ctx context.Context, itemID string) (store.AgendaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return store.AgendaItem{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateProtocolNotes(ctx context.Context, meetingID string, topNumber int, notes string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, item := range f.items {
		if item.MeetingID == meetingID && item.TopNumber == topNumber {
			f.items[i].ProtocolNotes = notes
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UpdateVoteResult(ctx context.Context, meetingID string, topNumber int, voteResult string) (bool, error) {
	if f.updateVoteResultFn != nil {
		return f.updateVoteResultFn(ctx, meetingID, topNumber, voteResult)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, item := range f.items {
		if item.MeetingID == meetingID && item.TopNumber == topNumber {
			f.items[i].VoteResult = voteResult
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) DeleteAgendaItem(ctx context.Context, meetingID string, topNumber int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, item := range f.items {
		if item.MeetingID == meetingID && item.TopNumber == topNumber {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UpsertRating(ctx context.Context, itemID, memberID string, priority, durationMinutes int) error {
	if f.upsertRatingFn != nil {
		return f.upsertRatingFn(ctx, itemID, memberID, priority, durationMinutes)
	}
	return nil
}

func (f *fakeStore) InsertComment(ctx context.Context, comment store.ItemComment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, comment)
	return nil
}

func (f *fakeStore) ListComments(ctx context.Context, meetingID, itemID string) ([]store.ItemComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	comments := make([]store.ItemComment, 0)
	for _, comment := range f.comments {
		if comment.MeetingID == meetingID && comment.ItemID == itemID {
			comments = append(comments, comment)
		}
	}
	return comments, nil
}

func (f *fakeStore) DeleteMeetingComments(ctx context.Context, meetingID string) (int64, error) {
	if f.deleteMeetingCommsFn != nil {
		return f.deleteMeetingCommsFn(ctx, meetingID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.comments[:0]
	var erased int64
	for _, comment := range f.comments {
		if comment.MeetingID == meetingID {
			erased++
			continue
		}
		kept = append(kept, comment)
	}
	f.comments = kept
	return erased, nil
}

func (f *fakeStore) InsertAbsence(ctx context.Context, absence store.Absence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.absences = append(f.absences, absence)
	return nil
}

func (f *fakeStore) ListAbsences(ctx context.Context, meetingID string) ([]store.Absence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	absences := make([]store.Absence, 0)
	for _, absence := range f.absences {
		if absence.MeetingID == meetingID {
			absences = append(absences, absence)
		}
	}
	return absences, nil
}

func (f *fakeStore) InsertDocument(ctx context.Context, doc store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[doc.ID] = doc
	return nil
}

func (f *fakeStore) GetDocument(ctx context.Context, documentID string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.documents[documentID]
	if !ok {
		return store.Document{}, sql.ErrNoRows
	}
	return doc, nil
}

func (f *fakeStore) ListDocuments(ctx context.Context, meetingID string, includeConfidential bool) ([]store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := make([]store.Document, 0)
	for _, doc := range f.documents {
		if doc.MeetingID != meetingID {
			continue
		}
		if doc.Confidential && !includeConfidential {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (f *fakeStore) ListParagraphs(ctx context.Context, documentID string) ([]store.Paragraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	paragraphs := make([]store.Paragraph, 0)
	for _, paragraph := range f.paragraphs {
		if paragraph.DocumentID == documentID {
			paragraphs = append(paragraphs, paragraph)
		}
	}
	return paragraphs, nil
}

func (f *fakeStore) GetParagraph(ctx context.Context, paragraphID string) (store.Paragraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	paragraph, ok := f.paragraphs[paragraphID]
	if !ok {
		return store.Paragraph{}, sql.ErrNoRows
	}
	return paragraph, nil
}

func (f *fakeStore) InsertParagraphAfter(ctx context.Context, documentID, afterID string, p store.Paragraph) (store.Paragraph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ord := 0
	if afterID != "" {
		anchor, ok := f.paragraphs[afterID]
		if !ok {
			return store.Paragraph{}, sql.ErrNoRows
		}
		ord = anchor.Ord + 1
	}
	for id, other := range f.paragraphs {
		if other.DocumentID == documentID && other.Ord >= ord {
			other.Ord++
			f.paragraphs[id] = other
		}
	}
	p.Ord = ord
	p.LastEditedAt = time.Now()
	f.paragraphs[p.ID] = p
	return p, nil
}

func (f *fakeStore) DeleteParagraph(ctx context.Context, documentID, paragraphID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	paragraph, ok := f.paragraphs[paragraphID]
	if !ok || paragraph.DocumentID != documentID {
		return false, nil
	}
	delete(f.paragraphs, paragraphID)
	for id, other := range f.paragraphs {
		if other.DocumentID == documentID && other.Ord > paragraph.Ord {
			other.Ord--
			f.paragraphs[id] = other
		}
	}
	return true, nil
}

func (f *fakeStore) AcquireParagraphLock(ctx context.Context, paragraphID, holderID string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	holder, held := f.lockHolders[paragraphID]
	if held && holder != holderID {
		return false, nil
	}
	f.lockHolders[paragraphID] = holderID
	return true, nil
}

func (f *fakeStore) GetParagraphLock(ctx context.Context, paragraphID string, ttl time.Duration) (store.ParagraphLock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	holder, held := f.lockHolders[paragraphID]
	if !held {
		return store.ParagraphLock{}, sql.ErrNoRows
	}
	name := holder
	if member, ok := f.members[holder]; ok {
		name = member.DisplayName
	}
	return store.ParagraphLock{ParagraphID: paragraphID, HolderID: holder, HolderName: name, LastActivityAt: time.Now()}, nil
}

func (f *fakeStore) ReleaseParagraphLock(ctx context.Context, paragraphID, holderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockHolders[paragraphID] != holderID {
		return false, nil
	}
	delete(f.lockHolders, paragraphID)
	return true, nil
}

func (f *fakeStore) SaveParagraphWithLock(ctx context.Context, paragraphID, holderID, content string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockHolders[paragraphID] != holderID {
		return false, nil
	}
	delete(f.lockHolders, paragraphID)
	paragraph := f.paragraphs[paragraphID]
	paragraph.Content = content
	paragraph.LastEditedBy = holderID
	paragraph.LastEditedAt = time.Now()
	f.paragraphs[paragraphID] = paragraph
	return true, nil
}

func (f *fakeStore) InsertAttachment(ctx context.Context, attachment store.Attachment) error {
	if f.insertAttachmentFn != nil {
		return f.insertAttachmentFn(ctx, attachment)
	}
	return nil
}

func (f *fakeStore) ListAttachments(ctx context.Context, meetingID string) ([]store.Attachment, error) {
	if f.listAttachmentsFn != nil {
		return f.listAttachmentsFn(ctx, meetingID)
	}
	return nil, nil
}

func (f *fakeStore) GetAttachment(ctx context.Context, meetingID, attachmentID string) (store.Attachment, error) {
	if f.getAttachmentFn != nil {
		return f.getAttachmentFn(ctx, meetingID, attachmentID)
	}
	return store.Attachment{}, sql.ErrNoRows
}

func (f *fakeStore) SummaryCounts(ctx context.Context) (int, int, int, error) {
	if f.summaryCountsFn != nil {
		return f.summaryCountsFn(ctx)
	}
	return 0, 0, 0, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

// authpw.MemberStore

func (f *fakeStore) GetMemberByEmail(ctx context.Context, email string) (store.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, member := range f.members {
		if member.Email == email {
			return member, nil
		}
	}
	return store.Member{}, sql.ErrNoRows
}

func (f *fakeStore) CreateMember(ctx context.Context, member store.Member) error {
	if f.createMemberFn != nil {
		return f.createMemberFn(ctx, member)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[member.ID] = member
	return nil
}

func (f *fakeStore) UpdateMemberVerificationToken(ctx context.Context, memberID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	member := f.members[memberID]
	member.VerificationToken = token
	member.VerificationExpiresAt = &expiresAt
	f.members[memberID] = member
	return nil
}

func (f *fakeStore) VerifyMemberEmail(ctx context.Context, token string) error {
	if f.verifyMemberEmailFn != nil {
		return f.verifyMemberEmailFn(ctx, token)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, member := range f.members {
		if member.VerificationToken == token {
			member.IsEmailVerified = true
			f.members[id] = member
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpdateMemberPassword(ctx context.Context, memberID, passwordHash string) error {
	if f.updateMemberPwFn != nil {
		return f.updateMemberPwFn(ctx, memberID, passwordHash)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	member := f.members[memberID]
	member.PasswordHash = passwordHash
	f.members[memberID] = member
	return nil
}

func (f *fakeStore) CreatePasswordReset(ctx context.Context, memberID, token string, expiresAt time.Time) error {
	if f.createPasswordResetFn != nil {
		return f.createPasswordResetFn(ctx, memberID, token, expiresAt)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = memberID
	return nil
}

func (f *fakeStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	memberID, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return memberID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if f.markPasswordResetFn != nil {
		return f.markPasswordResetFn(ctx, token)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resets, token)
	return nil
}

// fakeArchive records protocol commits instead of touching a git repo.
type fakeArchive struct {
	mu         sync.Mutex
	ensured    []string
	commits    []fakeCommit
	tags       []string
	historyFn  func(string, int) ([]archive.CommitInfo, error)
	protocolFn func(string, string) (string, string, error)
}

type fakeCommit struct {
	meetingID      string
	publicMD       string
	confidentialMD string
	author         string
	message        string
}

func (f *fakeArchive) EnsureMeetingRepo(meetingID, author string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, meetingID)
	return nil
}

func (f *fakeArchive) CommitProtocol(meetingID, publicMD, confidentialMD, author, message string) (archive.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, fakeCommit{meetingID, publicMD, confidentialMD, author, message})
	return archive.CommitInfo{Hash: "abc1234", Message: message, Author: author}, nil
}

func (f *fakeArchive) TagApproval(meetingID, hash, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, meetingID+":"+name)
	return nil
}

func (f *fakeArchive) GetProtocolAt(meetingID, hash string) (string, string, error) {
	if f.protocolFn != nil {
		return f.protocolFn(meetingID, hash)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commits) == 0 {
		return "", "", sql.ErrNoRows
	}
	last := f.commits[len(f.commits)-1]
	return last.publicMD, last.confidentialMD, nil
}

func (f *fakeArchive) History(meetingID string, limit int) ([]archive.CommitInfo, error) {
	if f.historyFn != nil {
		return f.historyFn(meetingID, limit)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	commits := make([]archive.CommitInfo, 0, len(f.commits))
	for _, commit := range f.commits {
		if commit.meetingID == meetingID {
			commits = append(commits, archive.CommitInfo{Hash: "abc1234", Message: commit.message, Author: commit.author})
		}
	}
	return commits, nil
}

func newTestService(fs *fakeStore, fa *fakeArchive) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: time.Hour,
			LockTTL:    5 * time.Minute,
		},
		store:    fs,
		archive:  fa,
		locks:    paralock.NewManager(fs, 5*time.Minute),
		agenda:   agenda.NewEngine(fs),
		exporter: export.NewService(),
		authpw:   authpw.NewService(fs),
	}
}

// tokenFor registers the member in the fake store and issues a bearer token
// for it.
func tokenFor(t *testing.T, svc *Service, fs *fakeStore, member store.Member) string {
	t.Helper()
	fs.mu.Lock()
	fs.members[member.ID] = member
	fs.mu.Unlock()

	token, err := auth.IssueToken([]byte(svc.cfg.JWTSecret), auth.Claims{
		Sub:     member.ID,
		Name:    member.DisplayName,
		Role:    member.Role,
		Admin:   member.Admin,
		Cleared: member.Cleared,
		JTI:     "jti-" + member.ID,
		Exp:     time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestSessionFromTokenRejectsRevokedJTI(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeArchive{})
	token := tokenFor(t, svc, fs, store.Member{ID: "mem_a", DisplayName: "Avery", Role: "member"})

	fs.revokedJTIs["jti-mem_a"] = true

	if _, err := svc.SessionFromToken(context.Background(), token); err != auth.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for revoked jti, got %v", err)
	}
}

func TestRefreshRotatesRefreshToken(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, &fakeArchive{})
	fs.members["mem_a"] = store.Member{ID: "mem_a", DisplayName: "Avery", Role: "member"}

	first, err := svc.CreateSession(context.Background(), "mem_a")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatalf("expected a rotated refresh token")
	}

	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatalf("expected reuse of a rotated refresh token to fail")
	}
}

func TestSummaryCounts(t *testing.T) {
	fs := newFakeStore()
	fs.summaryCountsFn = func(context.Context) (int, int, int, error) { return 3, 1, 7, nil }
	svc := newTestService(fs, &fakeArchive{})

	payload, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if payload["upcomingMeetings"] != 3 || payload["runningMeetings"] != 1 || payload["archivedMeetings"] != 7 {
		t.Fatalf("unexpected summary payload: %v", payload)
	}
}
