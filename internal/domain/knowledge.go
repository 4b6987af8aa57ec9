package domain

import (
	"errors"
	"time"
)

// KnowledgePost is a knowledge article imported from the WordPress blog.
type KnowledgePost struct {
	ID          uint      `gorm:"primaryKey" json:"id,omitempty"`
	WPID        int       `gorm:"column:wp_id;not null;uniqueIndex:idx_knowledge_posts_wp_id" json:"wpId"`
	Slug        string    `gorm:"type:text;not null;index:idx_knowledge_posts_slug" json:"slug"`
	Title       string    `gorm:"type:text;not null" json:"title"`
	Excerpt     string    `gorm:"type:text" json:"excerpt,omitempty"`
	Content     string    `gorm:"type:text" json:"content,omitempty"`
	Category    string    `gorm:"type:text;index:idx_knowledge_posts_category" json:"category,omitempty"`
	Link        string    `gorm:"type:text" json:"link,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// TableName returns the database table name for KnowledgePost.
func (KnowledgePost) TableName() string {
	return "knowledge_posts"
}

// Validate checks the fields every stored post must carry.
func (p *KnowledgePost) Validate() error {
	if p.WPID <= 0 {
		return errors.New("knowledge post: wordpress id is required")
	}
	if p.Slug == "" || p.Title == "" {
		return errors.New("knowledge post: slug and title are required")
	}
	return nil
}

// KnowledgePostSummary is a search hit without the article body.
type KnowledgePostSummary struct {
	WPID        int       `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Link        string    `json:"link,omitempty"`
	PublishedAt time.Time `json:"date"`
}
