package authpw

import (
	"context"
	"errors"
	"testing"
	"time"

	"boardroom/api/internal/store"
)

// mockMemberStore is a mock implementation of MemberStore for testing
type mockMemberStore struct {
	members    map[string]store.Member
	emailIndex map[string]string // email -> memberID
	resets     map[string]struct {
		memberID  string
		expiresAt time.Time
		used      bool
	}
}

func newMockMemberStore() *mockMemberStore {
	return &mockMemberStore{
		members:    make(map[string]store.Member),
		emailIndex: make(map[string]string),
		resets: make(map[string]struct {
			memberID  string
			expiresAt time.Time
			used      bool
		}),
	}
}

func (m *mockMemberStore) GetMemberByEmail(ctx context.Context, email string) (store.Member, error) {
	if memberID, ok := m.emailIndex[email]; ok {
		return m.members[memberID], nil
	}
	return store.Member{}, errors.New("member not found")
}

func (m *mockMemberStore) GetMemberByID(ctx context.Context, id string) (store.Member, error) {
	if member, ok := m.members[id]; ok {
		return member, nil
	}
	return store.Member{}, errors.New("member not found")
}

func (m *mockMemberStore) CreateMember(ctx context.Context, member store.Member) error {
	m.members[member.ID] = member
	m.emailIndex[member.Email] = member.ID
	return nil
}

func (m *mockMemberStore) UpdateMemberVerificationToken(ctx context.Context, memberID, token string, expiresAt time.Time) error {
	if member, ok := m.members[memberID]; ok {
		member.VerificationToken = token
		member.VerificationExpiresAt = &expiresAt
		m.members[memberID] = member
	}
	return nil
}

func (m *mockMemberStore) VerifyMemberEmail(ctx context.Context, token string) error {
	for id, member := range m.members {
		if member.VerificationToken == token {
			if member.VerificationExpiresAt != nil && time.Now().After(*member.VerificationExpiresAt) {
				return errors.New("token expired")
			}
			member.IsEmailVerified = true
			member.VerificationToken = ""
			m.members[id] = member
			return nil
		}
	}
	return errors.New("token not found")
}

func (m *mockMemberStore) UpdateMemberPassword(ctx context.Context, memberID, passwordHash string) error {
	if member, ok := m.members[memberID]; ok {
		member.PasswordHash = passwordHash
		m.members[memberID] = member
		return nil
	}
	return errors.New("member not found")
}

func (m *mockMemberStore) CreatePasswordReset(ctx context.Context, memberID, token string, expiresAt time.Time) error {
	m.resets[token] = struct {
		memberID  string
		expiresAt time.Time
		used      bool
	}{memberID, expiresAt, false}
	return nil
}

func (m *mockMemberStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	reset, ok := m.resets[token]
	if !ok || reset.used || time.Now().After(reset.expiresAt) {
		return "", errors.New("invalid reset token")
	}
	return reset.memberID, nil
}

func (m *mockMemberStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	if reset, ok := m.resets[token]; ok {
		reset.used = true
		m.resets[token] = reset
	}
	return nil
}

func TestSignUpAndSignIn(t *testing.T) {
	ms := newMockMemberStore()
	svc := NewService(ms)
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "carol@example.org",
		Password:    "longenough",
		DisplayName: "Carol",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if !resp.RequiresEmailVerify {
		t.Error("new account should require verification")
	}

	// Sign-in before verification flags it
	signIn, err := svc.SignIn(ctx, SignInRequest{Email: "carol@example.org", Password: "longenough"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if !signIn.RequiresVerify {
		t.Error("unverified member should be flagged")
	}

	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	signIn, err = svc.SignIn(ctx, SignInRequest{Email: "carol@example.org", Password: "longenough"})
	if err != nil {
		t.Fatalf("SignIn after verify failed: %v", err)
	}
	if signIn.RequiresVerify {
		t.Error("verified member should sign in cleanly")
	}
	if signIn.Member.DisplayName != "Carol" {
		t.Errorf("display name = %q", signIn.Member.DisplayName)
	}
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	svc := NewService(newMockMemberStore())
	_, err := svc.SignUp(context.Background(), SignUpRequest{
		Email:       "x@example.org",
		Password:    "short",
		DisplayName: "X",
	})
	if err == nil {
		t.Fatal("short password should be rejected")
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	ms := newMockMemberStore()
	svc := NewService(ms)
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "dup@example.org", Password: "longenough", DisplayName: "A"}); err != nil {
		t.Fatalf("first sign-up failed: %v", err)
	}
	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "dup@example.org", Password: "longenough", DisplayName: "B"}); err == nil {
		t.Fatal("duplicate email should be rejected")
	}
}

func TestSignInWrongPassword(t *testing.T) {
	ms := newMockMemberStore()
	svc := NewService(ms)
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{Email: "w@example.org", Password: "longenough", DisplayName: "W"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "w@example.org", Password: "wrongpass"}); err == nil {
		t.Fatal("wrong password should be rejected")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	ms := newMockMemberStore()
	svc := NewService(ms)
	ctx := context.Background()

	resp, err := svc.SignUp(ctx, SignUpRequest{Email: "r@example.org", Password: "oldpassword", DisplayName: "R"})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if err := svc.VerifyEmail(ctx, resp.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	token, err := svc.RequestPasswordReset(ctx, "r@example.org")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token for a known email")
	}

	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "newpassword"}); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	if _, err := svc.SignIn(ctx, SignInRequest{Email: "r@example.org", Password: "newpassword"}); err != nil {
		t.Fatalf("SignIn with new password failed: %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "r@example.org", Password: "oldpassword"}); err == nil {
		t.Fatal("old password should no longer work")
	}

	// Token is single-use
	if err := svc.ResetPassword(ctx, ResetPasswordRequest{Token: token, NewPassword: "anotherpass"}); err == nil {
		t.Fatal("used reset token should be rejected")
	}
}

func TestPasswordResetUnknownEmailRevealsNothing(t *testing.T) {
	svc := NewService(newMockMemberStore())
	token, err := svc.RequestPasswordReset(context.Background(), "nobody@example.org")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if token != "" {
		t.Fatal("unknown email must not produce a token")
	}
}
