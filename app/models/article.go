package models

import "time"

// Article access markers. Metered articles count against the free-tier
// monthly allowance; insider articles additionally require the insider tier.
const (
	ArticleAccessPublic  = "public"
	ArticleAccessMetered = "metered"
	ArticleAccessInsider = "insider"
)

// Article is the gated content unit. Authoring workflows live outside this
// system; the entitlement gate only reads the access marker.
type Article struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UUID        string     `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	Title       string     `gorm:"type:varchar(255);not null" json:"title" validate:"required,max=255"`
	Slug        string     `gorm:"type:varchar(255);uniqueIndex" json:"slug" validate:"required,max=255"`
	Access      string     `gorm:"type:varchar(20);not null;default:'public';index" json:"access" validate:"oneof=public metered insider"`
	PublishedAt *time.Time `gorm:"type:timestamp;default:null;index" json:"published_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsGated reports whether viewing the article requires an entitlement check
// beyond "it exists".
func (a *Article) IsGated() bool {
	return a.Access != ArticleAccessPublic
}
