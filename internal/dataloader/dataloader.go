package dataloader

import (
	"context"
	"net/http"
	"time"

	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/storage"
	"github.com/graph-gophers/dataloader"
)

type contextKey string

const key = contextKey("dataloaders")

// Loaders содержит все дата-лоадеры приложения.
type Loaders struct {
	CommentsByPostID *dataloader.Loader
}

// NewLoaders создает лоадеры поверх хранилища. Кэш лоадера живет, пока живут
// сами Loaders, поэтому их создают на один запрос.
func NewLoaders(store storage.Storage) *Loaders {
	// Батч-функция: один запрос к хранилищу на все ключи
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		postIDs := keys.Keys()

		commentsMap, err := store.FindByFieldIn(ctx, storage.Comments, domain.FieldPost, postIDs)
		if err != nil {
			// В случае ошибки, возвращаем ее для всех ключей
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Формируем результат в том же порядке, что и ключи
		results := make([]*dataloader.Result, len(keys))
		for i, postID := range postIDs {
			docs := commentsMap[postID]
			if docs == nil {
				docs = []domain.Document{}
			}
			results[i] = &dataloader.Result{Data: docs}
		}
		return results
	}

	return &Loaders{
		CommentsByPostID: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(time.Millisecond*1)),
	}
}

// Middleware для внедрения лоадеров в контекст запроса.
func Middleware(store storage.Storage, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithLoaders(r.Context(), NewLoaders(store))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithLoaders помещает лоадеры в контекст.
func WithLoaders(ctx context.Context, loaders *Loaders) context.Context {
	return context.WithValue(ctx, key, loaders)
}

// For извлекает лоадеры из контекста. Возвращает nil, если их там нет.
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(key).(*Loaders)
	return loaders
}

// LoadComments запускает загрузку комментариев поста; результат забирается
// вызовом возвращенной функции.
func (l *Loaders) LoadComments(ctx context.Context, postID string) func() ([]domain.Document, error) {
	thunk := l.CommentsByPostID.Load(ctx, dataloader.StringKey(postID))
	return func() ([]domain.Document, error) {
		data, err := thunk()
		if err != nil {
			return nil, err
		}
		docs, _ := data.([]domain.Document)
		return docs, nil
	}
}

// ForgetComments сбрасывает закэшированные комментарии поста.
func (l *Loaders) ForgetComments(ctx context.Context, postID string) {
	l.CommentsByPostID.Clear(ctx, dataloader.StringKey(postID))
}
