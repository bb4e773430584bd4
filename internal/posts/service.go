package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/archivelab/folio/internal/editlock"
	"github.com/archivelab/folio/internal/identity"
	"github.com/archivelab/folio/internal/markup"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingRenderer = errors.New("markup renderer is required")
	errInvalidPostID   = errors.New("post identifier must be positive")
	errMissingEditor   = errors.New("editor identity is required")
	errEmptyTitle      = errors.New("post title is required")
	noOpLogger         = zap.NewNop()

	// ErrLockNotHeld indicates the committer does not currently hold the edit
	// lock for the post. Expected under contention; the commit is not applied.
	ErrLockNotHeld = errors.New("posts: edit lock not held by editor")
	// ErrPostNotFound indicates the post does not exist.
	ErrPostNotFound = errors.New("posts: post not found")
	// ErrUnknownTag indicates a submitted tag name resolves to no existing
	// tag. The whole commit is rolled back.
	ErrUnknownTag = errors.New("posts: unknown tag name")
)

// ServiceError carries a stable machine-readable code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "posts.service.new"
	opCommitEdit    = "posts.commit_edit"
	opListRevisions = "posts.list_revisions"
	opListHistory   = "posts.list_history"
)

const defaultCommitTimeout = 20 * time.Second

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Reindexer receives the stored content of a freshly committed post so an
// external search or embedding index can refresh. Invoked after the commit
// transaction; failures are logged and never undo the commit.
type Reindexer interface {
	Reindex(ctx context.Context, postID int64, storedContent string) error
}

// ServiceConfig wires the dependencies for a Service.
type ServiceConfig struct {
	Database      *gorm.DB
	Renderer      markup.Renderer
	Clock         func() time.Time
	CommitTimeout time.Duration
	Reindexer     Reindexer
	Logger        *zap.Logger
}

// Service is the save coordinator: it owns the atomic commit of an edit and
// the read side of the revision history.
type Service struct {
	db            *gorm.DB
	renderer      markup.Renderer
	clock         func() time.Time
	commitTimeout time.Duration
	reindexer     Reindexer
	logger        *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Renderer == nil {
		return nil, newServiceError(opServiceNew, "missing_renderer", errMissingRenderer)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	commitTimeout := cfg.CommitTimeout
	if commitTimeout <= 0 {
		commitTimeout = defaultCommitTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:            cfg.Database,
		renderer:      cfg.Renderer,
		clock:         clock,
		commitTimeout: commitTimeout,
		reindexer:     cfg.Reindexer,
		logger:        logger,
	}, nil
}

// CommitResult identifies the updated post and its new revision.
type CommitResult struct {
	PostID         int64
	RevisionNumber int64
}

// CommitEdit atomically applies one accepted edit: it re-validates the edit
// lock, replaces the post's title and stored content, rebuilds the tag
// associations from the submitted set, appends a revision and releases the
// lock. Any failure rolls the whole transaction back. The transaction runs
// under the configured commit timeout; on expiry it aborts rather than
// retries, since a blind re-run would double-append the revision.
func (s *Service) CommitEdit(ctx context.Context, postID int64, editor identity.Name, newTitle, newMarkdown string, tagNames []string) (CommitResult, error) {
	if postID <= 0 {
		return CommitResult{}, newServiceError(opCommitEdit, "invalid_post_id", errInvalidPostID)
	}
	if editor.String() == "" {
		return CommitResult{}, newServiceError(opCommitEdit, "missing_editor", errMissingEditor)
	}
	if strings.TrimSpace(newTitle) == "" {
		return CommitResult{}, newServiceError(opCommitEdit, "empty_title", errEmptyTitle)
	}

	commitCtx, cancel := context.WithTimeout(ctx, s.commitTimeout)
	defer cancel()

	var result CommitResult
	var storedContent string
	txErr := s.db.WithContext(commitCtx).Transaction(func(tx *gorm.DB) error {
		// A session granted minutes ago proves nothing now: the holder check
		// and the writes below are one atomic unit.
		var lock editlock.EditLock
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("post_id = ?", postID).
			Take(&lock).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLockNotHeld
		}
		if err != nil {
			return fmt.Errorf("lock select: %w", err)
		}
		if lock.HolderName != editor.String() {
			return ErrLockNotHeld
		}

		var post Post
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("post_id = ?", postID).
			Take(&post).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPostNotFound
		}
		if err != nil {
			return fmt.Errorf("post select: %w", err)
		}
		titleBefore := post.Title
		contentBefore := post.Content

		rendered, err := s.renderer.Render(newMarkdown)
		if err != nil {
			return fmt.Errorf("render stored form: %w", err)
		}
		storedContent = rendered

		post.Title = newTitle
		post.Content = rendered
		if err := tx.Save(&post).Error; err != nil {
			return fmt.Errorf("post update: %w", err)
		}

		if err := rebuildTags(tx, postID, tagNames); err != nil {
			return err
		}

		number, err := appendRevision(tx, Revision{
			PostID:          postID,
			EditedAtSeconds: s.clock().UTC().Unix(),
			EditorName:      editor.String(),
			TitleBefore:     titleBefore,
			TitleAfter:      newTitle,
			ContentBefore:   contentBefore,
			ContentAfter:    rendered,
		})
		if err != nil {
			return fmt.Errorf("revision append: %w", err)
		}

		if err := tx.Where("post_id = ?", postID).Delete(&editlock.EditLock{}).Error; err != nil {
			return fmt.Errorf("lock release: %w", err)
		}

		result = CommitResult{PostID: postID, RevisionNumber: number}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, ErrLockNotHeld) || errors.Is(txErr, ErrPostNotFound) || errors.Is(txErr, ErrUnknownTag) {
			return CommitResult{}, txErr
		}
		s.logError(opCommitEdit, "transaction_failed", txErr, zap.Int64("post_id", postID))
		return CommitResult{}, newServiceError(opCommitEdit, "transaction_failed", txErr)
	}

	if s.reindexer != nil {
		if err := s.reindexer.Reindex(ctx, result.PostID, storedContent); err != nil {
			s.logger.Warn("post reindex failed",
				zap.Int64("post_id", result.PostID),
				zap.Error(err))
		}
	}

	return result, nil
}

// rebuildTags replaces the post's tag associations with the submitted set.
// Names are trimmed and de-duplicated; a name with no matching tag aborts the
// transaction. Resolution prefers the newest tag id when duplicates exist.
func rebuildTags(tx *gorm.DB, postID int64, tagNames []string) error {
	if err := tx.Where("post_id = ?", postID).Delete(&PostTag{}).Error; err != nil {
		return fmt.Errorf("tag clear: %w", err)
	}

	seen := make(map[string]bool, len(tagNames))
	for _, raw := range tagNames {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		var tag Tag
		err := tx.Where("tag_name = ?", name).
			Order("tag_id DESC").
			Take(&tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownTag, name)
		}
		if err != nil {
			return fmt.Errorf("tag select: %w", err)
		}

		if err := tx.Create(&PostTag{PostID: postID, TagID: tag.TagID}).Error; err != nil {
			return fmt.Errorf("tag insert: %w", err)
		}
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("posts service error", attrs...)
}
