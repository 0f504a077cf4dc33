package client

import (
	"context"
	"sort"
	"strings"
	"time"

	"timeblocker/internal/model"
	"timeblocker/internal/service"
)

// TimeBlockStore mirrors one day of blocks with optimistic writes.
type TimeBlockStore struct {
	api *Client
	s   optimistic[model.TimeBlock]
	now func() time.Time
}

func NewTimeBlockStore(api *Client) *TimeBlockStore {
	return &TimeBlockStore{
		api: api,
		s:   optimistic[model.TimeBlock]{idOf: func(b *model.TimeBlock) string { return b.ID }},
		now: time.Now,
	}
}

// FetchDay replaces the local list with the day view of date (YYYY-MM-DD).
func (bs *TimeBlockStore) FetchDay(ctx context.Context, date string) error {
	blocks, err := bs.api.DayView(ctx, date)
	if err != nil {
		bs.s.fail(err)
		return err
	}
	bs.s.load(blocks)
	return nil
}

// Blocks returns the entries ordered by start.
func (bs *TimeBlockStore) Blocks() []Entry[model.TimeBlock] {
	entries := bs.s.list()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Value.Start.Before(entries[j].Value.Start)
	})
	return entries
}

func (bs *TimeBlockStore) Get(id string) (Entry[model.TimeBlock], bool) {
	return bs.s.get(id)
}

func (bs *TimeBlockStore) LastError() error {
	return bs.s.lastError()
}

func (bs *TimeBlockStore) Create(ctx context.Context, in service.TimeBlockInput) (*model.TimeBlock, error) {
	now := bs.now().UTC()
	local := model.TimeBlock{
		Title:        strings.TrimSpace(in.Title),
		TaskID:       in.TaskID,
		Category:     in.Category,
		Notes:        in.Notes,
		Notification: in.Notification,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.Start != nil {
		local.Start = in.Start.UTC()
	}
	if in.End != nil {
		local.End = in.End.UTC()
	}
	return bs.s.create(local,
		func(b *model.TimeBlock, id string) { b.ID = id },
		func() (*model.TimeBlock, error) { return bs.api.CreateTimeBlock(ctx, in) },
	)
}

func (bs *TimeBlockStore) Update(ctx context.Context, id string, patch service.TimeBlockPatch) (*model.TimeBlock, error) {
	return bs.s.update(id,
		func(b *model.TimeBlock) { applyBlockPatch(b, patch, bs.now()) },
		func() (*model.TimeBlock, error) { return bs.api.UpdateTimeBlock(ctx, id, patch) },
	)
}

func (bs *TimeBlockStore) Delete(ctx context.Context, id string) error {
	return bs.s.destroy(id, func() error { return bs.api.DeleteTimeBlock(ctx, id) })
}

func applyBlockPatch(b *model.TimeBlock, p service.TimeBlockPatch, now time.Time) {
	setValue(&b.Title, p.Title)
	setValue(&b.Start, p.Start)
	setValue(&b.End, p.End)
	setNullable(&b.ActualEnd, p.ActualEnd)
	setNullable(&b.Category, p.Category)
	setNullable(&b.Notes, p.Notes)
	setNullable(&b.Notification, p.Notification)
	if p.TaskID.Set {
		b.TaskID = p.TaskID.Value
		// The embedded summary belongs to the old task until the server answers.
		b.Task = nil
	}
	b.UpdatedAt = now.UTC()
}
