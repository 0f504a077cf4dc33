package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repos groups the repositories over one connection, or over one transaction
// inside Transaction.
type Repos struct {
	db     *gorm.DB
	Users  *UserRepository
	Tasks  *TaskRepository
	Blocks *TimeBlockRepository
}

func NewRepos(db *gorm.DB) Repos {
	return Repos{
		db:     db,
		Users:  NewUserRepository(db),
		Tasks:  NewTaskRepository(db),
		Blocks: NewTimeBlockRepository(db),
	}
}

// Transaction runs fn with repositories bound to a single transaction.
// An error from fn rolls back everything fn wrote.
func (r Repos) Transaction(ctx context.Context, fn func(tx Repos) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepos(tx))
	})
}
