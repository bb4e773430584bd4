package editlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/archivelab/folio/internal/identity"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase  = errors.New("database handle is required")
	errInvalidPostID    = errors.New("post identifier must be positive")
	errMissingRequester = errors.New("requester identity is required")
	noOpLogger          = zap.NewNop()

	// ErrLockLost indicates that a heartbeat found the lock gone or held by a
	// different editor. Callers must stop treating the session as writable.
	ErrLockLost = errors.New("editlock: lock no longer held")
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
	opCoordinatorNew = "editlock.coordinator.new"
	opRequestSession = "editlock.request_session"
	opHeartbeat      = "editlock.heartbeat"
	opRelease        = "editlock.release"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// CoordinatorConfig wires the dependencies for a Coordinator.
type CoordinatorConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	TTL      time.Duration
	Logger   *zap.Logger
}

// Coordinator arbitrates exclusive edit access to posts. The lock store is
// the synchronization point: every decision runs as a single-row transaction
// or a conditional write, so concurrent requesters cannot both win.
type Coordinator struct {
	db     *gorm.DB
	clock  func() time.Time
	ttl    time.Duration
	logger *zap.Logger
}

// NewCoordinator validates the configuration and returns a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opCoordinatorNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Coordinator{
		db:     cfg.Database,
		clock:  clock,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// RequestSession decides whether requester may begin editing the post.
//
// An absent lock is granted outright. A lock already naming the requester is
// treated as the same editor reconnecting and granted without touching the
// heartbeat; only an explicit Heartbeat renews it. A lock held by someone
// else is granted only once it has gone stale, in which case the holder is
// displaced. All other cases are refused with the current holder's name.
func (c *Coordinator) RequestSession(ctx context.Context, postID int64, requester identity.Name) (SessionOutcome, error) {
	if postID <= 0 {
		return SessionOutcome{}, newServiceError(opRequestSession, "invalid_post_id", errInvalidPostID)
	}
	if requester.String() == "" {
		return SessionOutcome{}, newServiceError(opRequestSession, "missing_requester", errMissingRequester)
	}

	var outcome SessionOutcome
	txErr := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current EditLock
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("post_id = ?", postID).
			Take(&current).Error
		now := c.clock().UTC()

		if errors.Is(err, gorm.ErrRecordNotFound) {
			granted := EditLock{
				PostID:               postID,
				HolderName:           requester.String(),
				LastHeartbeatSeconds: now.Unix(),
			}
			if err := tx.Create(&granted).Error; err != nil {
				c.logError(opRequestSession, "lock_create_failed", err, zap.Int64("post_id", postID))
				return newServiceError(opRequestSession, "lock_create_failed", err)
			}
			outcome = SessionOutcome{Granted: true}
			return nil
		}
		if err != nil {
			c.logError(opRequestSession, "lock_select_failed", err, zap.Int64("post_id", postID))
			return newServiceError(opRequestSession, "lock_select_failed", err)
		}

		if current.HolderName == requester.String() {
			outcome = SessionOutcome{Granted: true}
			return nil
		}

		if !IsStale(time.Unix(current.LastHeartbeatSeconds, 0).UTC(), now, c.ttl) {
			outcome = SessionOutcome{Granted: false, HolderName: current.HolderName}
			return nil
		}

		// Evict keyed on the observed holder and heartbeat so a write that
		// landed between the read and this update makes the eviction miss
		// instead of clobbering a live lock.
		eviction := tx.Model(&EditLock{}).
			Where("post_id = ? AND holder_name = ? AND last_heartbeat_s = ?",
				postID, current.HolderName, current.LastHeartbeatSeconds).
			Updates(map[string]any{
				"holder_name":      requester.String(),
				"last_heartbeat_s": now.Unix(),
			})
		if eviction.Error != nil {
			c.logError(opRequestSession, "lock_evict_failed", eviction.Error, zap.Int64("post_id", postID))
			return newServiceError(opRequestSession, "lock_evict_failed", eviction.Error)
		}
		if eviction.RowsAffected == 0 {
			outcome = SessionOutcome{Granted: false, HolderName: current.HolderName}
			return nil
		}

		outcome = SessionOutcome{Granted: true}
		return nil
	})
	if txErr != nil {
		return SessionOutcome{}, txErr
	}

	return outcome, nil
}

// Heartbeat renews the holder's lease on the post. Returns ErrLockLost when
// the lock has been released or displaced; the caller must block further
// submission from this session.
func (c *Coordinator) Heartbeat(ctx context.Context, postID int64, holder identity.Name) error {
	if postID <= 0 {
		return newServiceError(opHeartbeat, "invalid_post_id", errInvalidPostID)
	}

	now := c.clock().UTC()
	result := c.db.WithContext(ctx).Model(&EditLock{}).
		Where("post_id = ? AND holder_name = ?", postID, holder.String()).
		Update("last_heartbeat_s", now.Unix())
	if result.Error != nil {
		c.logError(opHeartbeat, "heartbeat_update_failed", result.Error, zap.Int64("post_id", postID))
		return newServiceError(opHeartbeat, "heartbeat_update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrLockLost
	}

	return nil
}

// Release drops the lock if it is still held by holder. A lock that is
// absent or already displaced leaves nothing to do; Release never reports
// that as a failure.
func (c *Coordinator) Release(ctx context.Context, postID int64, holder identity.Name) error {
	if postID <= 0 {
		return newServiceError(opRelease, "invalid_post_id", errInvalidPostID)
	}

	result := c.db.WithContext(ctx).
		Where("post_id = ? AND holder_name = ?", postID, holder.String()).
		Delete(&EditLock{})
	if result.Error != nil {
		c.logError(opRelease, "lock_delete_failed", result.Error, zap.Int64("post_id", postID))
		return newServiceError(opRelease, "lock_delete_failed", result.Error)
	}

	return nil
}

func (c *Coordinator) loggerOrDefault() *zap.Logger {
	if c == nil || c.logger == nil {
		return noOpLogger
	}
	return c.logger
}

func (c *Coordinator) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.loggerOrDefault().Error("edit lock coordinator error", attrs...)
}
