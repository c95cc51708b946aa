package model

import (
	"time"

	"gorm.io/datatypes"
)

/*

User is the stored profile of a family member

Id: primary key, same as the identity provider's subject
StreakCount: live consecutive-day posting counter
LastPostDate: calendar date of the last post, null before the first one

*/
type User struct {
	Id           string `gorm:"primaryKey"`
	CreatedAt    time.Time
	Name         string
	AvatarUrl    string
	StreakCount  int
	LastPostDate *datatypes.Date
}

// UserIdentity is the already authenticated acting user.
type UserIdentity struct {
	Id string
}

// UserProfile is what post creation needs to know about the author.
type UserProfile struct {
	Name         string
	AvatarUrl    string
	StreakCount  int
	LastPostDate *Date
}
