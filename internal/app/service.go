package app

import (
	"context"
	"log"
	"strings"
	"time"

	"boardroom/api/internal/agenda"
	"boardroom/api/internal/archive"
	"boardroom/api/internal/attach"
	"boardroom/api/internal/auth"
	"boardroom/api/internal/authpw"
	"boardroom/api/internal/config"
	"boardroom/api/internal/email"
	"boardroom/api/internal/export"
	"boardroom/api/internal/paralock"
	"boardroom/api/internal/search"
	"boardroom/api/internal/session"
	"boardroom/api/internal/store"
	"boardroom/api/internal/util"
	"boardroom/api/internal/workflow"
)

type Session struct {
	Token        string
	RefreshToken string
	MemberID     string
	MemberName   string
	Role         string
	Admin        bool
	Cleared      bool
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	EnsureMemberByName(context.Context, string) (store.Member, error)
	GetMemberByID(context.Context, string) (store.Member, error)
	ListMembers(context.Context) ([]store.Member, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.Member, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	InsertMeeting(context.Context, store.Meeting) error
	GetMeeting(context.Context, string) (store.Meeting, error)
	ListMeetings(context.Context) ([]store.Meeting, error)
	ProposeOfficers(context.Context, string, string, string) (bool, error)
	StartMeeting(context.Context, string, string, string) (bool, error)
	EndMeeting(context.Context, string) (bool, error)
	ReleaseProtocol(context.Context, string) (bool, error)
	ApproveMeeting(context.Context, string) (bool, error)
	SetActiveItem(context.Context, string, string) (bool, error)

	InsertAgendaItem(context.Context, store.AgendaItem) error
	ListAgendaItems(context.Context, string, bool) ([]store.AgendaItem, error)
	GetAgendaItem(context.Context, string, int) (store.AgendaItem, error)
	GetAgendaItemByID(context.Context, string) (store.AgendaItem, error)
	UpdateProtocolNotes(context.Context, string, int, string) (bool, error)
	UpdateVoteResult(context.Context, string, int, string) (bool, error)
	DeleteAgendaItem(context.Context, string, int) (bool, error)
	UpsertRating(context.Context, string, string, int, int) error

	InsertComment(context.Context, store.ItemComment) error
	ListComments(context.Context, string, string) ([]store.ItemComment, error)
	DeleteMeetingComments(context.Context, string) (int64, error)
	InsertAbsence(context.Context, store.Absence) error
	ListAbsences(context.Context, string) ([]store.Absence, error)

	InsertDocument(context.Context, store.Document) error
	GetDocument(context.Context, string) (store.Document, error)
	ListDocuments(context.Context, string, bool) ([]store.Document, error)
	ListParagraphs(context.Context, string) ([]store.Paragraph, error)
	GetParagraph(context.Context, string) (store.Paragraph, error)
	InsertParagraphAfter(context.Context, string, string, store.Paragraph) (store.Paragraph, error)
	DeleteParagraph(context.Context, string, string) (bool, error)

	InsertAttachment(context.Context, store.Attachment) error
	ListAttachments(context.Context, string) ([]store.Attachment, error)
	GetAttachment(context.Context, string, string) (store.Attachment, error)

	SummaryCounts(context.Context) (int, int, int, error)
	Ping(ctx context.Context) error
}

type archiveService interface {
	EnsureMeetingRepo(meetingID, author string) error
	CommitProtocol(meetingID, publicMD, confidentialMD, author, message string) (archive.CommitInfo, error)
	TagApproval(meetingID, hash, name string) error
	GetProtocolAt(meetingID, hash string) (string, string, error)
	History(meetingID string, limit int) ([]archive.CommitInfo, error)
}

// refreshSessions is the Redis-backed refresh token store. When nil the
// service falls back to the refresh_sessions table.
type refreshSessions interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, member store.Member, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.Member, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	archive  archiveService
	search   *search.Service
	locks    *paralock.Manager
	agenda   *agenda.Engine
	exporter *export.Service
	authpw   *authpw.Service
	mail     *email.Service
	files    *attach.Service
	sessions refreshSessions
}

func New(cfg config.Config, dataStore *store.PostgresStore, archiveService *archive.Service, searchService *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		archive:  archiveService,
		search:   searchService,
		locks:    paralock.NewManager(dataStore, cfg.LockTTL),
		agenda:   agenda.NewEngine(dataStore),
		exporter: export.NewService(),
		authpw:   authpw.NewService(dataStore),
		mail: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
	}
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, archiveService *archive.Service, searchService *search.Service) *Service {
	service := New(cfg, dataStore, archiveService, searchService)
	service.sessions = sessions
	return service
}

// SetAttachments wires the object storage backend. Without it the
// attachment endpoints answer 503.
func (s *Service) SetAttachments(files *attach.Service) {
	s.files = files
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// NotifyVerification sends the email verification link. Fire and forget;
// when SMTP is not configured the HTTP layer falls back to returning the
// token directly.
func (s *Service) NotifyVerification(address, name, token string) {
	if !s.SMTPConfigured() {
		return
	}
	go func() {
		if err := s.mail.SendVerificationEmail(address, name, s.cfg.AppBaseURL+"/verify-email?token="+token); err != nil {
			log.Printf("send verification email to %s: %v", address, err)
		}
	}()
}

func (s *Service) NotifyPasswordReset(address, name, token string) {
	if !s.SMTPConfigured() {
		return
	}
	go func() {
		if err := s.mail.SendPasswordResetEmail(address, name, s.cfg.AppBaseURL+"/reset-password?token="+token); err != nil {
			log.Printf("send password reset email to %s: %v", address, err)
		}
	}()
}

// Bootstrap seeds a first meeting so a fresh deployment has something to
// click on. No-op once any meeting exists.
func (s *Service) Bootstrap(ctx context.Context) error {
	meetings, err := s.store.ListMeetings(ctx)
	if err != nil {
		return err
	}
	if len(meetings) > 0 {
		return nil
	}

	owner, err := s.store.EnsureMemberByName(ctx, "Avery")
	if err != nil {
		return err
	}

	meetingID := util.NewID("mtg")
	meeting := store.Meeting{
		ID:                 meetingID,
		Title:              "Constituent board meeting",
		State:              string(workflow.StatePreparation),
		ScheduledAt:        time.Now().Add(14 * 24 * time.Hour),
		SubmissionDeadline: time.Now().Add(7 * 24 * time.Hour),
		CreatedBy:          owner.ID,
	}
	if err := s.store.InsertMeeting(ctx, meeting); err != nil {
		return err
	}
	if err := s.seedStructuralItems(ctx, meetingID, owner.ID); err != nil {
		return err
	}
	if err := s.archive.EnsureMeetingRepo(meetingID, owner.DisplayName); err != nil {
		return err
	}
	if s.search != nil {
		s.search.IndexMeeting(search.MeetingRecord{ID: meetingID, Title: meeting.Title, State: meeting.State})
	}
	return nil
}

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	memberName := strings.TrimSpace(name)
	if memberName == "" {
		memberName = "Member"
	}

	member, err := s.store.EnsureMemberByName(ctx, memberName)
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, member)
}

// CreateSession issues tokens for an already authenticated member.
func (s *Service) CreateSession(ctx context.Context, memberID string) (Session, error) {
	member, err := s.store.GetMemberByID(ctx, memberID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, member)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)

	var member store.Member
	var err error
	if s.sessions != nil {
		member, err = s.sessions.LookupRefreshSession(ctx, tokenHash)
		if err == nil {
			if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
				return Session{}, err
			}
			return s.issueSession(ctx, member)
		}
	}

	member, err = s.store.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, member)
}

func (s *Service) issueSession(ctx context.Context, member store.Member) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:     member.ID,
		Name:    member.DisplayName,
		Role:    member.Role,
		Admin:   member.Admin,
		Cleared: member.Cleared,
		JTI:     jti,
		Exp:     expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	refreshHash := auth.HashToken(refresh)
	if s.sessions != nil {
		err = s.sessions.SaveRefreshSession(ctx, refreshHash, member, refreshExpires)
	} else {
		err = s.store.SaveRefreshSession(ctx, refreshHash, member.ID, refreshExpires)
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		MemberID:     member.ID,
		MemberName:   member.DisplayName,
		Role:         member.Role,
		Admin:        member.Admin,
		Cleared:      member.Cleared,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	member, err := s.store.GetMemberByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:      token,
		MemberID:   member.ID,
		MemberName: member.DisplayName,
		Role:       member.Role,
		Admin:      member.Admin,
		Cleared:    member.Cleared,
		JTI:        claims.JTI,
		ExpiresAt:  time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		tokenHash := auth.HashToken(refreshToken)
		if s.sessions != nil {
			_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)
		}
		_ = s.store.RevokeRefreshSession(ctx, tokenHash)
	}
	return nil
}

func (s *Service) Summary(ctx context.Context) (map[string]any, error) {
	upcoming, running, archived, err := s.store.SummaryCounts(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"upcomingMeetings": upcoming,
		"runningMeetings":  running,
		"archivedMeetings": archived,
	}, nil
}

func actorFromSession(session Session) workflow.Actor {
	return workflow.Actor{
		ID:      session.MemberID,
		Role:    workflow.NormalizeRole(session.Role),
		Admin:   session.Admin,
		Cleared: session.Cleared,
	}
}

func snapshotOf(m store.Meeting) workflow.Meeting {
	return workflow.Meeting{
		State:              workflow.State(m.State),
		ChairID:            m.ChairID,
		SecretaryID:        m.SecretaryID,
		SubmissionDeadline: m.SubmissionDeadline,
	}
}

func (s *Service) memberName(ctx context.Context, memberID string) string {
	if memberID == "" {
		return ""
	}
	member, err := s.store.GetMemberByID(ctx, memberID)
	if err != nil {
		return memberID
	}
	return member.DisplayName
}
