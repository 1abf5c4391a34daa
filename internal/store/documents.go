package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, meeting_id, title, confidential, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, doc.ID, doc.MeetingID, doc.Title, doc.Confidential, doc.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, meeting_id, title, confidential, created_by, created_at, updated_at
		FROM documents WHERE id=$1
	`, documentID).Scan(&doc.ID, &doc.MeetingID, &doc.Title, &doc.Confidential, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, meetingID string, includeConfidential bool) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meeting_id, title, confidential, created_by, created_at, updated_at
		FROM documents
		WHERE meeting_id=$1
		  AND ($2::boolean OR NOT confidential)
		ORDER BY created_at ASC
	`, meetingID, includeConfidential)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.MeetingID, &doc.Title, &doc.Confidential, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *PostgresStore) ListParagraphs(ctx context.Context, documentID string) ([]Paragraph, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, ord, content, COALESCE(last_edited_by, ''), last_edited_at
		FROM paragraphs
		WHERE document_id=$1
		ORDER BY ord ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list paragraphs: %w", err)
	}
	defer rows.Close()

	paras := make([]Paragraph, 0)
	for rows.Next() {
		var p Paragraph
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Ord, &p.Content, &p.LastEditedBy, &p.LastEditedAt); err != nil {
			return nil, fmt.Errorf("scan paragraph: %w", err)
		}
		paras = append(paras, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate paragraphs: %w", err)
	}
	return paras, nil
}

func (s *PostgresStore) GetParagraph(ctx context.Context, paragraphID string) (Paragraph, error) {
	var p Paragraph
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, ord, content, COALESCE(last_edited_by, ''), last_edited_at
		FROM paragraphs WHERE id=$1
	`, paragraphID).Scan(&p.ID, &p.DocumentID, &p.Ord, &p.Content, &p.LastEditedBy, &p.LastEditedAt)
	if err != nil {
		return Paragraph{}, err
	}
	return p, nil
}

// InsertParagraphAfter places a new paragraph directly behind afterID,
// shifting every later paragraph up by one. An empty afterID prepends at
// ord 0. The (document_id, ord) unique constraint is deferred, so the
// shift and the insert settle together at commit.
func (s *PostgresStore) InsertParagraphAfter(ctx context.Context, documentID, afterID string, p Paragraph) (Paragraph, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Paragraph{}, fmt.Errorf("begin insert paragraph: %w", err)
	}
	defer tx.Rollback()

	ord := 0
	if afterID != "" {
		var afterOrd int
		err := tx.QueryRowContext(ctx, `
			SELECT ord FROM paragraphs WHERE id=$1 AND document_id=$2
		`, afterID, documentID).Scan(&afterOrd)
		if errors.Is(err, sql.ErrNoRows) {
			return Paragraph{}, sql.ErrNoRows
		}
		if err != nil {
			return Paragraph{}, fmt.Errorf("lookup anchor paragraph: %w", err)
		}
		ord = afterOrd + 1
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE paragraphs SET ord = ord + 1
		WHERE document_id=$1 AND ord >= $2
	`, documentID, ord); err != nil {
		return Paragraph{}, fmt.Errorf("shift paragraphs: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO paragraphs (id, document_id, ord, content, last_edited_by)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING last_edited_at
	`, p.ID, documentID, ord, p.Content, p.LastEditedBy).Scan(&p.LastEditedAt); err != nil {
		return Paragraph{}, fmt.Errorf("insert paragraph: %w", err)
	}
	p.DocumentID = documentID
	p.Ord = ord

	if err := tx.Commit(); err != nil {
		return Paragraph{}, fmt.Errorf("commit insert paragraph: %w", err)
	}
	return p, nil
}

// DeleteParagraph removes a paragraph and closes the ord gap it leaves,
// so paragraph positions stay dense.
func (s *PostgresStore) DeleteParagraph(ctx context.Context, documentID, paragraphID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete paragraph: %w", err)
	}
	defer tx.Rollback()

	var ord int
	err = tx.QueryRowContext(ctx, `
		DELETE FROM paragraphs WHERE id=$1 AND document_id=$2 RETURNING ord
	`, paragraphID, documentID).Scan(&ord)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete paragraph: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE paragraphs SET ord = ord - 1
		WHERE document_id=$1 AND ord > $2
	`, documentID, ord); err != nil {
		return false, fmt.Errorf("close paragraph gap: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete paragraph: %w", err)
	}
	return true, nil
}

// AcquireParagraphLock is a single check-then-insert statement: the insert
// wins when no live lock row exists, and the conflict branch only fires
// for the current holder, where it refreshes the activity stamp. For any
// other caller the statement touches zero rows. Expired rows are purged
// first so a dead lease never blocks a new holder.
func (s *PostgresStore) AcquireParagraphLock(ctx context.Context, paragraphID, holderID string, ttl time.Duration) (bool, error) {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM paragraph_locks
		WHERE paragraph_id=$1 AND last_activity_at < NOW() - $2 * INTERVAL '1 second'
	`, paragraphID, int(ttl.Seconds())); err != nil {
		return false, fmt.Errorf("purge expired lock: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO paragraph_locks (paragraph_id, holder_id, acquired_at, last_activity_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (paragraph_id)
		DO UPDATE SET last_activity_at=NOW()
		WHERE paragraph_locks.holder_id=$2
	`, paragraphID, holderID)
	if err != nil {
		return false, fmt.Errorf("acquire paragraph lock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire paragraph lock rows: %w", err)
	}
	return affected > 0, nil
}

// GetParagraphLock returns the live lock on a paragraph, or sql.ErrNoRows
// when the paragraph is free or the lease has lapsed.
func (s *PostgresStore) GetParagraphLock(ctx context.Context, paragraphID string, ttl time.Duration) (ParagraphLock, error) {
	var lock ParagraphLock
	err := s.db.QueryRowContext(ctx, `
		SELECT l.paragraph_id, l.holder_id, m.display_name, l.acquired_at, l.last_activity_at
		FROM paragraph_locks l
		JOIN members m ON m.id = l.holder_id
		WHERE l.paragraph_id=$1 AND l.last_activity_at >= NOW() - $2 * INTERVAL '1 second'
	`, paragraphID, int(ttl.Seconds())).Scan(
		&lock.ParagraphID, &lock.HolderID, &lock.HolderName, &lock.AcquiredAt, &lock.LastActivityAt)
	if err != nil {
		return ParagraphLock{}, err
	}
	return lock, nil
}

// ReleaseParagraphLock drops the holder's lock. Releasing a lock someone
// else now holds, or one that has already expired away, is a no-op.
func (s *PostgresStore) ReleaseParagraphLock(ctx context.Context, paragraphID, holderID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM paragraph_locks WHERE paragraph_id=$1 AND holder_id=$2
	`, paragraphID, holderID)
	if err != nil {
		return false, fmt.Errorf("release paragraph lock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release paragraph lock rows: %w", err)
	}
	return affected > 0, nil
}

// SaveParagraphWithLock writes new content only when the caller still
// holds a live lock, and consumes the lock in the same transaction. A
// zero-row lock delete means the lease was lost; nothing is written.
func (s *PostgresStore) SaveParagraphWithLock(ctx context.Context, paragraphID, holderID, content string, ttl time.Duration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin save paragraph: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM paragraph_locks
		WHERE paragraph_id=$1 AND holder_id=$2
			AND last_activity_at >= NOW() - $3 * INTERVAL '1 second'
	`, paragraphID, holderID, int(ttl.Seconds()))
	if err != nil {
		return false, fmt.Errorf("consume paragraph lock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume paragraph lock rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE paragraphs SET content=$2, last_edited_by=$3, last_edited_at=NOW()
		WHERE id=$1
	`, paragraphID, content, holderID); err != nil {
		return false, fmt.Errorf("save paragraph: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit save paragraph: %w", err)
	}
	return true, nil
}
