package repository

import (
	"context"

	"gorm.io/gorm"

	"bytebits/internal/app"
)

// TxRunner gives the services one transaction spanning the user and post
// tables, so an account mutation and its post-author rewrite commit or roll
// back together.
type TxRunner struct {
	db *gorm.DB
}

func NewTxRunner(db *gorm.DB) *TxRunner {
	return &TxRunner{db: db}
}

func (r *TxRunner) RunInTx(ctx context.Context, fn func(users app.UserStore, posts app.PostStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewUserRepository(tx), NewPostRepository(tx))
	})
}
