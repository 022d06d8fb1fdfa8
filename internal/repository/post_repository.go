package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"bytebits/internal/model"
)

type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) Create(ctx context.Context, post *model.Post) error {
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return fmt.Errorf("create post failed: %w", err)
	}
	return nil
}

// List returns posts in natural store order.
func (r *PostRepository) List(ctx context.Context) ([]model.Post, error) {
	var posts []model.Post
	if err := r.db.WithContext(ctx).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list posts failed: %w", err)
	}
	return posts, nil
}

func (r *PostRepository) GetByID(ctx context.Context, id uint) (*model.Post, error) {
	var post model.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query post by id failed: %w", err)
	}
	return &post, nil
}

func (r *PostRepository) Update(ctx context.Context, post *model.Post) error {
	if err := r.db.WithContext(ctx).Save(post).Error; err != nil {
		return fmt.Errorf("update post failed: %w", err)
	}
	return nil
}

func (r *PostRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Post{}, id).Error; err != nil {
		return fmt.Errorf("delete post failed: %w", err)
	}
	return nil
}

// ReassignAuthor rewrites every post whose author equals oldAuthor. Used when
// an account is renamed or deleted; callers run it inside the same
// transaction as the account mutation.
func (r *PostRepository) ReassignAuthor(ctx context.Context, oldAuthor, newAuthor string) error {
	err := r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("author = ?", oldAuthor).
		Update("author", newAuthor).Error
	if err != nil {
		return fmt.Errorf("reassign post author failed: %w", err)
	}
	return nil
}

// ContentLengths returns the content length of every post, in store order.
func (r *PostRepository) ContentLengths(ctx context.Context) ([]int, error) {
	var lengths []int
	err := r.db.WithContext(ctx).
		Model(&model.Post{}).
		Pluck("CHAR_LENGTH(content)", &lengths).Error
	if err != nil {
		return nil, fmt.Errorf("query post content lengths failed: %w", err)
	}
	return lengths, nil
}
