package posts

import "time"

// Post is a stored article. Content holds the rendered stored form, not the
// markdown source; editing round-trips through the markup renderer.
type Post struct {
	PostID    int64     `gorm:"column:post_id;primaryKey;autoIncrement"`
	Title     string    `gorm:"column:title;size:255;not null"`
	Content   string    `gorm:"column:content;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "posts"
}

// Tag is a pre-existing label a post may be associated with. The edit engine
// only resolves tags; creating them belongs to tag management.
type Tag struct {
	TagID   int64  `gorm:"column:tag_id;primaryKey;autoIncrement"`
	TagName string `gorm:"column:tag_name;size:190;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (Tag) TableName() string {
	return "tags"
}

// PostTag associates a post with a tag. The association set is rebuilt
// wholesale on every commit, never reconciled incrementally.
type PostTag struct {
	PostID int64 `gorm:"column:post_id;primaryKey;not null"`
	TagID  int64 `gorm:"column:tag_id;primaryKey;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PostTag) TableName() string {
	return "post_tags"
}

// Revision is one accepted edit: full before/after snapshots of the title
// and stored content. Rows are append-only and numbered contiguously from 1
// per post; they are never updated or deleted.
type Revision struct {
	PostID          int64  `gorm:"column:post_id;primaryKey;not null"`
	RevisionNumber  int64  `gorm:"column:revision_number;primaryKey;not null"`
	EditedAtSeconds int64  `gorm:"column:edited_at_s;not null"`
	EditorName      string `gorm:"column:editor_name;size:190;not null"`
	TitleBefore     string `gorm:"column:title_before;size:255;not null"`
	TitleAfter      string `gorm:"column:title_after;size:255;not null"`
	ContentBefore   string `gorm:"column:content_before;type:text;not null"`
	ContentAfter    string `gorm:"column:content_after;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Revision) TableName() string {
	return "post_revisions"
}
