package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UkralStul/community-content-service/internal/domain"
)

// Bounded wraps a Storage so that no call runs longer than timeout.
// A call cut short is reported as domain.ErrStoreUnavailable.
func Bounded(s Storage, timeout time.Duration) Storage {
	if timeout <= 0 {
		return s
	}
	return &bounded{next: s, timeout: timeout}
}

type bounded struct {
	next    Storage
	timeout time.Duration
}

func call[T any](b *bounded, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	v, err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return v, err
}

func (b *bounded) Insert(ctx context.Context, coll Collection, doc domain.Document) (domain.Document, error) {
	return call(b, ctx, func(ctx context.Context) (domain.Document, error) {
		return b.next.Insert(ctx, coll, doc)
	})
}

func (b *bounded) FindByID(ctx context.Context, coll Collection, id string) (domain.Document, error) {
	return call(b, ctx, func(ctx context.Context) (domain.Document, error) {
		return b.next.FindByID(ctx, coll, id)
	})
}

func (b *bounded) Update(ctx context.Context, coll Collection, id string, partial domain.Document) (domain.Document, error) {
	return call(b, ctx, func(ctx context.Context) (domain.Document, error) {
		return b.next.Update(ctx, coll, id, partial)
	})
}

func (b *bounded) Delete(ctx context.Context, coll Collection, id string) error {
	_, err := call(b, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.next.Delete(ctx, coll, id)
	})
	return err
}

func (b *bounded) List(ctx context.Context, coll Collection, limit, offset int) ([]domain.Document, error) {
	return call(b, ctx, func(ctx context.Context) ([]domain.Document, error) {
		return b.next.List(ctx, coll, limit, offset)
	})
}

func (b *bounded) FindByField(ctx context.Context, coll Collection, field, value string) ([]domain.Document, error) {
	return call(b, ctx, func(ctx context.Context) ([]domain.Document, error) {
		return b.next.FindByField(ctx, coll, field, value)
	})
}

func (b *bounded) ListByField(ctx context.Context, coll Collection, field, value string, limit, offset int) ([]domain.Document, error) {
	return call(b, ctx, func(ctx context.Context) ([]domain.Document, error) {
		return b.next.ListByField(ctx, coll, field, value, limit, offset)
	})
}

func (b *bounded) CountByField(ctx context.Context, coll Collection, field, value string) (int64, error) {
	return call(b, ctx, func(ctx context.Context) (int64, error) {
		return b.next.CountByField(ctx, coll, field, value)
	})
}

func (b *bounded) DeleteByField(ctx context.Context, coll Collection, field, value string) (int64, error) {
	return call(b, ctx, func(ctx context.Context) (int64, error) {
		return b.next.DeleteByField(ctx, coll, field, value)
	})
}

func (b *bounded) DistinctValues(ctx context.Context, coll Collection, field string) ([]string, error) {
	return call(b, ctx, func(ctx context.Context) ([]string, error) {
		return b.next.DistinctValues(ctx, coll, field)
	})
}

func (b *bounded) FindByFieldIn(ctx context.Context, coll Collection, field string, values []string) (map[string][]domain.Document, error) {
	return call(b, ctx, func(ctx context.Context) (map[string][]domain.Document, error) {
		return b.next.FindByFieldIn(ctx, coll, field, values)
	})
}

func (b *bounded) Close(ctx context.Context) error {
	return b.next.Close(ctx)
}
