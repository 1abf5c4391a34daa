package store

import "time"

type Member struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	Admin                 bool
	Cleared               bool
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Meeting struct {
	ID                 string
	Title              string
	State              string
	ChairID            string
	SecretaryID        string
	ActiveItemID       string
	ScheduledAt        time.Time
	SubmissionDeadline time.Time
	StartedAt          *time.Time
	EndedAt            *time.Time
	ApprovedAt         *time.Time
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type AgendaItem struct {
	ID            string
	MeetingID     string
	TopNumber     int
	Confidential  bool
	Category      string
	Title         string
	ProtocolNotes string
	VoteResult    string
	// Participant averages, aggregated from agenda_ratings at read time.
	Priority          float64
	EstimatedDuration float64
	CreatorID         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ItemComment struct {
	ID         string
	MeetingID  string
	ItemID     string
	AuthorID   string
	AuthorName string
	Kind       string
	Body       string
	CreatedAt  time.Time
}

type Absence struct {
	ID         string
	MeetingID  string
	MemberID   string
	MemberName string
	Reason     string
	CreatedAt  time.Time
}

type Document struct {
	ID           string
	MeetingID    string
	Title        string
	Confidential bool
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Paragraph struct {
	ID           string
	DocumentID   string
	Ord          int
	Content      string
	LastEditedBy string
	LastEditedAt time.Time
}

type ParagraphLock struct {
	ParagraphID    string
	HolderID       string
	HolderName     string
	AcquiredAt     time.Time
	LastActivityAt time.Time
}

type Attachment struct {
	ID          string
	MeetingID   string
	FileName    string
	ObjectKey   string
	ContentType string
	Size        int64
	UploadedBy  string
	CreatedAt   time.Time
}
