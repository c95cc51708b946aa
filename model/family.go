package model

import (
	"time"
)

/*

Family is a named group sharing one feed of posts

Id: primary key, use to identify a family
CreatedAt: time when entity is created
Name: family's display name
Posts: all posts shared to this family, "many-to-many" relation
Settings: per family configuration, "has-one" relation

*/
type Family struct {
	Id        string `gorm:"primaryKey"`
	CreatedAt time.Time
	Name      string
	Posts     []*Post         `json:"posts" gorm:"many2many:post_family_links;constraint:OnDelete:CASCADE;"`
	Settings  *FamilySettings `gorm:"foreignKey:FamilyID;constraint:OnDelete:CASCADE;"`
}

/*

FamilySettings holds the retention limit of a family

FamilyID: primary key, same as the family id
SlideshowPhotoLimit: maximum number of visible posts. Favorites can push a
	feed above it, non-favorited posts are evicted oldest first to honor it.

*/
type FamilySettings struct {
	FamilyID            string `gorm:"primaryKey"`
	UpdatedAt           time.Time
	SlideshowPhotoLimit int
}
