package posts

import (
	"context"
	"time"

	"github.com/archivelab/folio/internal/textdiff"
)

// RevisionView is the display projection of one revision: titles diffed
// character by character, bodies line by line. Diffs are derived fresh on
// every read, never persisted.
type RevisionView struct {
	RevisionNumber int64
	EditedAt       time.Time
	EditorName     string
	TitleDiff      []textdiff.Segment
	ContentDiff    []textdiff.Segment
}

// ListHistory returns the post's edit history newest first, with diffs
// attached. It reads only the revision store and is independent of locking.
func (s *Service) ListHistory(ctx context.Context, postID int64) ([]RevisionView, error) {
	revisions, err := s.ListRevisions(ctx, postID)
	if err != nil {
		return nil, newServiceError(opListHistory, "revision_read_failed", err)
	}

	views := make([]RevisionView, 0, len(revisions))
	for _, revision := range revisions {
		views = append(views, RevisionView{
			RevisionNumber: revision.RevisionNumber,
			EditedAt:       time.Unix(revision.EditedAtSeconds, 0).UTC(),
			EditorName:     revision.EditorName,
			TitleDiff:      textdiff.Compare(revision.TitleBefore, revision.TitleAfter, textdiff.Character),
			ContentDiff:    textdiff.Compare(revision.ContentBefore, revision.ContentAfter, textdiff.Line),
		})
	}
	return views, nil
}
