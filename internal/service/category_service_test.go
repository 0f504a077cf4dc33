package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeblocker/internal/repository"
	"timeblocker/internal/testutil"
)

func TestCategoryService_List(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db)
	other := testutil.CreateUser(t, env.db)
	ctx := context.Background()

	for _, c := range []string{"work", "Health", "work"} {
		cat := c
		_, err := env.taskSvc.Create(ctx, user.ID, TaskInput{Title: "t", Category: &cat})
		require.NoError(t, err)
	}
	hidden := "Secret"
	_, err := env.taskSvc.Create(ctx, other.ID, TaskInput{Title: "t", Category: &hidden})
	require.NoError(t, err)

	block := testutil.CreateBlock(t, env.db, user.ID, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), nil)
	brk := "Break"
	block.Category = &brk
	require.NoError(t, env.db.Save(block).Error)

	names, err := NewCategoryService(repository.NewCategoryRepository(env.db)).List(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Break", "Health", "work"}, names)
}
