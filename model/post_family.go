package model

import (
	"time"

	"gorm.io/gorm"
)

/*

PostFamilyLink is a "many-to-many" relation of a post shared to a family

PostID: post id
FamilyID: family id
CreatedAt: time when relation is created

*/

type PostFamilyLink struct {
	PostID    string `gorm:"primaryKey"`
	FamilyID  string `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (PostFamilyLink) BeforeCreate(db *gorm.DB) error {
	return nil
}
