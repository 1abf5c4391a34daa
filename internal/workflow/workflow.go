// Package workflow models the meeting lifecycle and the capabilities
// attached to each state. It is a pure package: callers pass a snapshot of
// the meeting and the acting member, and every check is answered from the
// transition table and the capability predicates below. No other component
// may decide on its own whether a mutation is allowed.
package workflow

import "time"

type State string

const (
	StatePreparation   State = "preparation"
	StateActive        State = "active"
	StateEnded         State = "ended"
	StateProtocolReady State = "protocol_ready"
	StateArchived      State = "archived"
)

type Role string

const (
	RoleMember    Role = "member"
	RoleBoard     Role = "board"
	RoleExecutive Role = "executive"
	RoleAssistant Role = "assistant"
)

// Actor is the authenticated principal as seen by the workflow.
type Actor struct {
	ID      string
	Role    Role
	Admin   bool
	Cleared bool
}

// Meeting is the snapshot the predicates operate on.
type Meeting struct {
	State              State
	ChairID            string
	SecretaryID        string
	SubmissionDeadline time.Time
}

// transitions holds the only legal state changes. Anything not listed is
// invalid, including every transition out of archived.
var transitions = map[State]State{
	StatePreparation:   StateActive,
	StateActive:        StateEnded,
	StateEnded:         StateProtocolReady,
	StateProtocolReady: StateArchived,
}

func ValidState(state State) bool {
	switch state {
	case StatePreparation, StateActive, StateEnded, StateProtocolReady, StateArchived:
		return true
	default:
		return false
	}
}

// ValidTransition reports whether from -> to appears in the transition table.
func ValidTransition(from, to State) bool {
	next, ok := transitions[from]
	return ok && next == to
}

// CanAdvance combines the transition table with the per-target role rules:
// starting a meeting is open to an admin or to the incoming chair or
// secretary, ending it to chair or secretary, releasing the protocol to the
// secretary alone, and approval to the chair alone. Nobody, admin included,
// can move an archived meeting.
func CanAdvance(actor Actor, m Meeting, target State) bool {
	if !ValidTransition(m.State, target) {
		return false
	}
	switch target {
	case StateActive:
		return actor.Admin || actor.ID == m.ChairID || actor.ID == m.SecretaryID
	case StateEnded:
		return actor.ID == m.ChairID || actor.ID == m.SecretaryID
	case StateProtocolReady:
		return actor.ID == m.SecretaryID
	case StateArchived:
		return actor.ID == m.ChairID
	default:
		return false
	}
}

// CanAddItem allows any participant during preparation until the submission
// deadline; afterwards only admins and assistants may still add items.
func CanAddItem(actor Actor, m Meeting, now time.Time) bool {
	if m.State != StatePreparation {
		return false
	}
	if m.SubmissionDeadline.IsZero() || now.Before(m.SubmissionDeadline) {
		return true
	}
	return actor.Admin || actor.Role == RoleAssistant
}

func CanEditNotes(actor Actor, m Meeting) bool {
	if actor.ID == "" || actor.ID != m.SecretaryID {
		return false
	}
	return m.State == StateActive || m.State == StateEnded || m.State == StateProtocolReady
}

// CanRecordVote covers the secretary recording a vote outcome on an item.
// Unlike notes, voting fields freeze once the protocol is released.
func CanRecordVote(actor Actor, m Meeting) bool {
	if actor.ID == "" || actor.ID != m.SecretaryID {
		return false
	}
	return m.State == StateActive || m.State == StateEnded
}

func CanSetActiveItem(actor Actor, m Meeting) bool {
	return actor.ID != "" && actor.ID == m.SecretaryID && m.State == StateActive
}

// CanSeeConfidential gates every read and write path that touches
// confidential agenda items.
func CanSeeConfidential(actor Actor, m Meeting) bool {
	if actor.Admin || actor.Cleared {
		return true
	}
	if actor.Role == RoleBoard || actor.Role == RoleExecutive {
		return true
	}
	return actor.ID != "" && (actor.ID == m.ChairID || actor.ID == m.SecretaryID)
}

// Category classifies an agenda item. Only resolutions carry a vote
// result.
type Category string

const (
	CategoryReport        Category = "report"
	CategoryDiscussion    Category = "discussion"
	CategoryResolution    Category = "resolution"
	CategoryMiscellaneous Category = "miscellaneous"
)

func ValidCategory(category Category) bool {
	switch category {
	case CategoryReport, CategoryDiscussion, CategoryResolution, CategoryMiscellaneous:
		return true
	default:
		return false
	}
}

type CommentKind string

const (
	CommentLive    CommentKind = "live"
	CommentPostHoc CommentKind = "posthoc"
)

// CanComment: live comments during the active state by any participant,
// post-hoc commentary after the meeting ended by everyone but the
// secretary, whose channel is the protocol notes.
func CanComment(actor Actor, m Meeting, kind CommentKind) bool {
	switch kind {
	case CommentLive:
		return m.State == StateActive
	case CommentPostHoc:
		return m.State == StateEnded && actor.ID != m.SecretaryID
	default:
		return false
	}
}

// Mutable reports whether the meeting accepts any agenda or note mutation
// at all. Archived meetings reject everything regardless of caller.
func Mutable(m Meeting) bool {
	return m.State != StateArchived
}

func NormalizeRole(role string) Role {
	switch Role(role) {
	case RoleMember, RoleBoard, RoleExecutive, RoleAssistant:
		return Role(role)
	default:
		return RoleMember
	}
}
