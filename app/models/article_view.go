package models

import (
	"strconv"
	"time"
)

// ArticleView is an append-only view fact used only in aggregate: distinct
// article ids per viewer per calendar month drive the free-tier quota. The
// unique index makes re-recording the same (viewer, article, day) a no-op so
// repeat views never consume extra quota.
type ArticleView struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ViewerKey string    `gorm:"type:varchar(100);not null;index:ux_article_views_viewer_article_day,unique,priority:1;index" json:"viewer_key"`
	ArticleID uint      `gorm:"not null;index:ux_article_views_viewer_article_day,unique,priority:2" json:"article_id"`
	ViewDate  string    `gorm:"type:varchar(10);not null;index:ux_article_views_viewer_article_day,unique,priority:3" json:"view_date"`
	ViewedAt  time.Time `gorm:"autoCreateTime;index" json:"viewed_at"`
}

// ViewerKeyForAccount builds the viewer key for a logged-in account.
func ViewerKeyForAccount(accountID uint) string {
	return "account:" + strconv.FormatUint(uint64(accountID), 10)
}

// ViewerKeyForSession builds the viewer key for an anonymous session.
func ViewerKeyForSession(sessionID string) string {
	return "anon:" + sessionID
}
