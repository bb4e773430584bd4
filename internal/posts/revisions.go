package posts

import (
	"context"

	"gorm.io/gorm"
)

// appendRevision numbers and writes one revision row. Callers must invoke it
// inside the same transaction as the post update: the edit lock serializes
// commits per post, and the enclosing transaction closes the window between
// the max-number read and the insert, so the sequence stays contiguous even
// if both defenses are exercised at once.
func appendRevision(tx *gorm.DB, revision Revision) (int64, error) {
	var latest int64
	err := tx.Model(&Revision{}).
		Where("post_id = ?", revision.PostID).
		Select("COALESCE(MAX(revision_number), 0)").
		Scan(&latest).Error
	if err != nil {
		return 0, err
	}

	revision.RevisionNumber = latest + 1
	if err := tx.Create(&revision).Error; err != nil {
		return 0, err
	}
	return revision.RevisionNumber, nil
}

// ListRevisions returns the full revision history of a post, newest first.
func (s *Service) ListRevisions(ctx context.Context, postID int64) ([]Revision, error) {
	if postID <= 0 {
		return nil, newServiceError(opListRevisions, "invalid_post_id", errInvalidPostID)
	}

	var revisions []Revision
	if err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("revision_number DESC").
		Find(&revisions).Error; err != nil {
		s.logError(opListRevisions, "query_failed", err)
		return nil, newServiceError(opListRevisions, "query_failed", err)
	}

	return revisions, nil
}
