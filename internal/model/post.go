package model

import "time"

// DeletedAuthor replaces the author on posts left behind by a deleted
// account.
const DeletedAuthor = "[Deleted-User]"

type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:100;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Author    string    `gorm:"size:100;not null;index" json:"author"`
	CreatedAt time.Time `json:"created_at"`
}
