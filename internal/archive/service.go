// Package archive keeps the durable record of released protocols. Every
// meeting gets its own git repository: each protocol release is a commit,
// the chair's approval is a tag, and history stays inspectable long after
// the meeting data itself is frozen.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	publicFile       = "protocol.md"
	confidentialFile = "protocol_confidential.md"
)

// CommitInfo describes one archived protocol revision.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureMeetingRepo initializes the archive repository for a meeting. It
// is safe to call repeatedly; an existing repo is left untouched.
func (s *Service) EnsureMeetingRepo(meetingID, author string) error {
	lock := s.meetingLock(meetingID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(meetingID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, publicFile), []byte("# Protocol pending\n"), 0o644); err != nil {
		return fmt.Errorf("write placeholder: %w", err)
	}
	if _, err := worktree.Add(publicFile); err != nil {
		return fmt.Errorf("git add placeholder: %w", err)
	}
	hash, err := worktree.Commit("Open meeting archive", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit placeholder: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CommitProtocol records a protocol release. The confidential supplement
// is written only when present; an empty supplement removes a previously
// committed one rather than leaving a stale file behind.
func (s *Service) CommitProtocol(meetingID, publicMD, confidentialMD, author, message string) (CommitInfo, error) {
	lock := s.meetingLock(meetingID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(meetingID))
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}
	repoRoot := worktree.Filesystem.Root()

	if err := os.WriteFile(filepath.Join(repoRoot, publicFile), []byte(publicMD), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write protocol: %w", err)
	}
	if _, err := worktree.Add(publicFile); err != nil {
		return CommitInfo{}, fmt.Errorf("git add protocol: %w", err)
	}

	confPath := filepath.Join(repoRoot, confidentialFile)
	if confidentialMD != "" {
		if err := os.WriteFile(confPath, []byte(confidentialMD), 0o644); err != nil {
			return CommitInfo{}, fmt.Errorf("write supplement: %w", err)
		}
		if _, err := worktree.Add(confidentialFile); err != nil {
			return CommitInfo{}, fmt.Errorf("git add supplement: %w", err)
		}
	} else if _, err := os.Stat(confPath); err == nil {
		if _, err := worktree.Remove(confidentialFile); err != nil {
			return CommitInfo{}, fmt.Errorf("git rm supplement: %w", err)
		}
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            signature(author),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit protocol: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// TagApproval marks a revision as the chair-approved final protocol.
func (s *Service) TagApproval(meetingID, hash, name string) error {
	lock := s.meetingLock(meetingID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(meetingID))
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return err
	}

	_, err = repo.CreateTag(name, resolvedHash, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  "Boardroom",
			Email: "boardroom@localhost",
			When:  time.Now(),
		},
		Message: name,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// GetProtocolAt reads the protocol files from a given revision. "HEAD"
// and short hashes are accepted.
func (s *Service) GetProtocolAt(meetingID, hash string) (publicMD, confidentialMD string, err error) {
	lock := s.meetingLock(meetingID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(meetingID))
	if err != nil {
		return "", "", fmt.Errorf("open repo: %w", err)
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return "", "", err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return "", "", fmt.Errorf("read commit %s: %w", hash, err)
	}

	publicMD, err = readFileFromCommit(commitObj, publicFile)
	if err != nil {
		return "", "", err
	}
	// The supplement may legitimately be absent.
	confidentialMD, _ = readFileFromCommit(commitObj, confidentialFile)
	return publicMD, confidentialMD, nil
}

// History lists archived revisions, newest first.
func (s *Service) History(meetingID string, limit int) ([]CommitInfo, error) {
	lock := s.meetingLock(meetingID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(meetingID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	if limit < 0 {
		limit = 0
	}
	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Service) repoPath(meetingID string) string {
	return filepath.Join(s.baseDir, meetingID)
}

func (s *Service) meetingLock(meetingID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[meetingID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[meetingID] = lock
	return lock
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.boardroom.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func readFileFromCommit(commitObj *object.Commit, name string) (string, error) {
	file, err := commitObj.File(name)
	if err != nil {
		return "", fmt.Errorf("load %s from commit: %w", name, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return "", fmt.Errorf("open %s reader: %w", name, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read %s bytes: %w", name, err)
	}
	return string(data), nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	bytes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			bytes = append(bytes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			bytes = append(bytes, '.')
		}
	}
	if len(bytes) == 0 {
		return "member"
	}
	return string(bytes)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
