package database

import (
	"errors"
	"time"

	"github.com/archivelab/folio/internal/editlock"
	"github.com/archivelab/folio/internal/posts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationClearOrphanEditLocks = "2026-08-12_clear_orphan_edit_locks"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationClearOrphanEditLocks, apply: clearOrphanEditLocks},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Lock rows written before commit-time cleanup existed can outlive their
// post. They are harmless to eviction but pollute holder lookups.
func clearOrphanEditLocks(db *gorm.DB) error {
	return db.
		Where("post_id NOT IN (?)", db.Model(&posts.Post{}).Select("post_id")).
		Delete(&editlock.EditLock{}).Error
}
