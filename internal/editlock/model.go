package editlock

// EditLock records which editor currently holds exclusive write access to a
// post. At most one row exists per post. Liveness is decided by IsStale, not
// by row presence: an expired row may linger until the next requester evicts
// it.
type EditLock struct {
	PostID               int64  `gorm:"column:post_id;primaryKey;not null"`
	HolderName           string `gorm:"column:holder_name;size:190;not null"`
	LastHeartbeatSeconds int64  `gorm:"column:last_heartbeat_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (EditLock) TableName() string {
	return "edit_locks"
}

// SessionOutcome captures the coordinator's decision on an edit session
// request. When the session is refused, HolderName names the editor the
// caller is waiting on.
type SessionOutcome struct {
	Granted    bool
	HolderName string
}
