package app

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"bytebits/internal/model"
)

var (
	ErrPostNotFound  = errors.New("Post not found")
	ErrNotPostAuthor = errors.New("You can only modify your own posts.")
)

// BlogStore is the post persistence surface for the content handlers.
type BlogStore interface {
	Create(ctx context.Context, post *model.Post) error
	List(ctx context.Context) ([]model.Post, error)
	GetByID(ctx context.Context, id uint) (*model.Post, error)
	Update(ctx context.Context, post *model.Post) error
	Delete(ctx context.Context, id uint) error
	ContentLengths(ctx context.Context) ([]int, error)
}

type PostService struct {
	posts BlogStore
}

func NewPostService(posts BlogStore) *PostService {
	return &PostService{posts: posts}
}

type CreatePostInput struct {
	Title   string
	Content string
	// Author is the creating account's username, copied into the post at
	// creation time. It is a snapshot, not a reference.
	Author string
}

func (s *PostService) Create(ctx context.Context, input CreatePostInput) (*model.Post, error) {
	if input.Title == "" || input.Content == "" || input.Author == "" {
		return nil, ErrInvalidInput
	}

	post := &model.Post{
		Title:   input.Title,
		Content: input.Content,
		Author:  input.Author,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) List(ctx context.Context) ([]model.Post, error) {
	return s.posts.List(ctx)
}

func (s *PostService) Get(ctx context.Context, id uint) (*model.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	return post, nil
}

// Update mutates title and content only, and only for the post's author.
func (s *PostService) Update(ctx context.Context, username string, id uint, title, content string) (*model.Post, error) {
	if title == "" || content == "" {
		return nil, ErrInvalidInput
	}

	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	if !strings.EqualFold(post.Author, username) {
		return nil, ErrNotPostAuthor
	}

	post.Title = title
	post.Content = content
	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Delete enforces the same ownership rule as Update.
func (s *PostService) Delete(ctx context.Context, username string, id uint) error {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if post == nil {
		return ErrPostNotFound
	}
	if !strings.EqualFold(post.Author, username) {
		return ErrNotPostAuthor
	}
	return s.posts.Delete(ctx, id)
}

type Stats struct {
	AverageLength int `json:"average_length"`
	MedianLength  int `json:"median_length"`
	MaxLength     int `json:"max_length"`
	MinLength     int `json:"min_length"`
	TotalLength   int `json:"total_length"`
}

// Stats aggregates content lengths over all posts. Every figure is zero when
// there are no posts.
func (s *PostService) Stats(ctx context.Context) (*Stats, error) {
	lengths, err := s.posts.ContentLengths(ctx)
	if err != nil {
		return nil, err
	}
	return computeStats(lengths), nil
}

func computeStats(lengths []int) *Stats {
	if len(lengths) == 0 {
		return &Stats{}
	}

	sorted := make([]int, len(lengths))
	copy(sorted, lengths)
	sort.Ints(sorted)

	var median float64
	n := len(sorted)
	if n%2 == 0 {
		median = float64(sorted[n/2-1]+sorted[n/2]) / 2
	} else {
		median = float64(sorted[n/2])
	}

	total := 0
	for _, l := range lengths {
		total += l
	}

	return &Stats{
		AverageLength: int(math.Round(float64(total) / float64(n))),
		MedianLength:  int(math.Round(median)),
		MaxLength:     sorted[n-1],
		MinLength:     sorted[0],
		TotalLength:   total,
	}
}
