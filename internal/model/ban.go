package model

import "time"

const RoleAdmin = "admin"

// Ban 每个用户最多一条；ExpiresAt 为空表示永久
type Ban struct {
	ID        uint64     `gorm:"primaryKey" json:"id"`
	UserID    uint64     `gorm:"not null;uniqueIndex" json:"user_id"`
	BannedBy  uint64     `gorm:"not null;default:0" json:"banned_by"`
	Reason    string     `gorm:"size:512" json:"reason"`
	BannedAt  time.Time  `gorm:"not null" json:"banned_at"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at"`
	CreatedAt time.Time  `json:"-"`
}

// ActiveAt 过期的 ban 行可以继续存在，但逻辑上失效
func (b *Ban) ActiveAt(now time.Time) bool {
	if b == nil {
		return false
	}
	return b.ExpiresAt == nil || now.Before(*b.ExpiresAt)
}

func (b *Ban) Permanent() bool {
	return b != nil && b.ExpiresAt == nil
}

type Role struct {
	ID          uint64 `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;size:32;not null"`
	Description string `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type UserRole struct {
	ID         uint64 `gorm:"primaryKey"`
	UserID     uint64 `gorm:"not null;index;uniqueIndex:uk_user_role"`
	RoleID     uint64 `gorm:"not null;uniqueIndex:uk_user_role"`
	AssignedBy uint64 `gorm:"not null;default:0"`
	CreatedAt  time.Time
}

func (UserRole) TableName() string {
	return "user_roles"
}
