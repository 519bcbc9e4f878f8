package gorm

import "time"

// RosterState holds the current serialized roster for one namespace.
type RosterState struct {
	UpdatedAt time.Time `gorm:"not null"`
	Key       string    `gorm:"primaryKey;type:varchar(191)"`
	Payload   []byte    `gorm:"not null"`
	Revision  int64     `gorm:"not null;default:0"`
}

func (RosterState) TableName() string { return "roster_states" }

// RosterRevision is an append-only copy of a written payload, kept so an
// operator can roll the roster back after a bad write.
type RosterRevision struct {
	CreatedAt time.Time `gorm:"not null"`
	Key       string    `gorm:"type:varchar(191);index:idx_roster_revisions_key_rev,priority:1;not null"`
	Payload   []byte    `gorm:"not null"`
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Revision  int64     `gorm:"index:idx_roster_revisions_key_rev,priority:2,sort:desc;not null"`
}

func (RosterRevision) TableName() string { return "roster_revisions" }
