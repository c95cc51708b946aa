package model

import (
	"time"
)

/*

Post is one shared media item in one or more family feeds

Id: primary key, use to identify a post
CreatedAt: time when entity is created
Timestamp: creation instant of the post, feeds are always ordered by it
	descending. Usually equal to CreatedAt, differs for imported media.

Author: display fields of the user who posted, copied from the profile at
	creation time.
MediaUrl: where the media lives
MediaType: image or video
Caption: free text shown under the media
IsFavorite: sticky flag, a favorited post is never evicted by retention
StreakCount: author's streak at the time of posting. Historical snapshot,
	never updated after insert.

Families: families this post is shared with, "many-to-many" relation
Reactions: likes, comments and slideshow views, "has-many" relation, removed
	together with the post
*/

type Post struct {
	Id          string `gorm:"primaryKey"`
	CreatedAt   time.Time
	Timestamp   time.Time `gorm:"index"`
	Author      Author    `gorm:"embedded;embeddedPrefix:author_"`
	MediaUrl    string
	MediaType   MediaType
	Caption     string
	IsFavorite  bool
	StreakCount int
	Families    []*Family   `json:"families" gorm:"many2many:post_family_links;constraint:OnDelete:CASCADE;"`
	Reactions   []*Reaction `json:"reactions" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// Author is embedded in Post with column prefix "author_".
type Author struct {
	UserId    string `gorm:"index"`
	Name      string
	AvatarUrl string
}

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

var AllMediaType = []MediaType{
	MediaTypeImage,
	MediaTypeVideo,
}

func (e MediaType) IsValid() bool {
	switch e {
	case MediaTypeImage, MediaTypeVideo:
		return true
	}
	return false
}

func (e MediaType) String() string {
	return string(e)
}
