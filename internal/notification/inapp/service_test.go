package inapp

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

type pagingStore struct {
	limit, offset int
}

func (p *pagingStore) List(_ context.Context, _ uuid.UUID, limit, offset int) ([]Notification, int, error) {
	p.limit, p.offset = limit, offset
	return []Notification{}, 0, nil
}

func (p *pagingStore) CountUnread(context.Context, uuid.UUID) (int, error) { return 0, nil }

func (p *pagingStore) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (p *pagingStore) MarkAllRead(context.Context, uuid.UUID) (int, error) { return 0, nil }

func TestListClampsPaging(t *testing.T) {
	tests := []struct {
		name                  string
		page, size            int
		wantLimit, wantOffset int
	}{
		{name: "defaults", page: 0, size: 0, wantLimit: defaultPageSize, wantOffset: 0},
		{name: "third page", page: 3, size: 10, wantLimit: 10, wantOffset: 20},
		{name: "oversized page", page: 1, size: 500, wantLimit: maxPageSize, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &pagingStore{}
			page, err := NewService(store).List(context.Background(), uuid.New(), tt.page, tt.size)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if store.limit != tt.wantLimit || store.offset != tt.wantOffset {
				t.Errorf("limit/offset = %d/%d, want %d/%d", store.limit, store.offset, tt.wantLimit, tt.wantOffset)
			}
			if page.PageSize != tt.wantLimit {
				t.Errorf("page size = %d", page.PageSize)
			}
		})
	}
}
