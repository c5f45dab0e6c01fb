package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/storage"
)

// record - строка таблицы коллекции: служебные поля в колонках, остальное в JSONB.
// Seq заполняется базой и упорядочивает записи с одинаковым created_at.
type record struct {
	ID        string            `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Seq       int64             `gorm:"type:bigserial;->"`
	CreatedAt time.Time         `gorm:"not null"`
	UpdatedAt time.Time         `gorm:"not null"`
	Body      datatypes.JSONMap `gorm:"type:jsonb;not null"`
}

func (r *record) document() domain.Document {
	doc := make(domain.Document, len(r.Body)+3)
	for k, v := range r.Body {
		doc[k] = v
	}
	doc[domain.FieldID] = r.ID
	doc[domain.FieldCreatedAt] = r.CreatedAt.UTC()
	doc[domain.FieldUpdatedAt] = r.UpdatedAt.UTC()
	return doc
}

// Store реализует интерфейс Storage с использованием PostgreSQL.
type Store struct {
	db *gorm.DB
}

// New создает новый экземпляр хранилища PostgreSQL.
func New(dsn string, level logger.LogLevel) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Выполняем миграцию схемы: по таблице на коллекцию
	for _, coll := range []storage.Collection{storage.Posts, storage.Comments} {
		if err := db.Table(string(coll)).AutoMigrate(&record{}); err != nil {
			return nil, fmt.Errorf("failed to migrate %s: %w", coll, err)
		}
		for _, field := range storage.IndexedFields[coll] {
			if err := db.Exec(indexStatement(coll, field)).Error; err != nil {
				return nil, fmt.Errorf("failed to index %s.%s: %w", coll, field, err)
			}
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) table(ctx context.Context, coll storage.Collection) *gorm.DB {
	return s.db.WithContext(ctx).Table(string(coll))
}

// Порядок выборок; seq разрешает совпадения created_at
const (
	oldestFirst = "created_at ASC, seq ASC"
	newestFirst = "created_at DESC, seq DESC"
)

// timestamp возвращает текущее время с точностью timestamptz (микросекунды),
// чтобы документ из Insert совпадал с последующим чтением.
func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// fieldExpr - выражение поля JSONB, по которому построены индексы.
// Запросы используют то же выражение, иначе индекс не применяется.
func fieldExpr(field string) string {
	return fmt.Sprintf("(body->>'%s')", strings.ReplaceAll(field, "'", "''"))
}

func indexStatement(coll storage.Collection, field string) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "idx_%s_%s" ON %q (%s, created_at)`, coll, field, coll, fieldExpr(field))
}

func (s *Store) Insert(ctx context.Context, coll storage.Collection, doc domain.Document) (domain.Document, error) {
	now := timestamp()
	rec := record{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Body:      body(doc),
	}
	if err := s.table(ctx, coll).Create(&rec).Error; err != nil {
		return nil, wrap(err)
	}
	return rec.document(), nil
}

func (s *Store) FindByID(ctx context.Context, coll storage.Collection, id string) (domain.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
	}

	var rec record
	if err := s.table(ctx, coll).First(&rec, "id = ?", id).Error; err != nil {
		// GORM возвращает gorm.ErrRecordNotFound, если запись не найдена
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
		}
		return nil, wrap(err)
	}
	return rec.document(), nil
}

func (s *Store) Update(ctx context.Context, coll storage.Collection, id string, partial domain.Document) (domain.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
	}

	var rec record
	// Используем транзакцию для атомарности операции чтения-записи
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(string(coll)).Clauses(clause.Locking{Strength: "UPDATE"}).First(&rec, "id = ?", id).Error; err != nil {
			return err
		}
		merged := datatypes.JSONMap{}
		for k, v := range rec.Body {
			merged[k] = v
		}
		for k, v := range body(partial) {
			merged[k] = v
		}
		for k, v := range partial {
			if v == nil {
				delete(merged, k)
			}
		}
		rec.Body = merged
		rec.UpdatedAt = timestamp()
		return tx.Table(string(coll)).Save(&rec).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
		}
		return nil, wrap(err)
	}
	return rec.document(), nil
}

func (s *Store) Delete(ctx context.Context, coll storage.Collection, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
	}

	res := s.table(ctx, coll).Where("id = ?", id).Delete(&record{})
	if res.Error != nil {
		return wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context, coll storage.Collection, limit, offset int) ([]domain.Document, error) {
	var recs []record
	err := s.table(ctx, coll).Order(newestFirst).Limit(limit).Offset(offset).Find(&recs).Error
	if err != nil {
		return nil, wrap(err)
	}
	return documents(recs), nil
}

// === Поиск по полям ===

func (s *Store) FindByField(ctx context.Context, coll storage.Collection, field, value string) ([]domain.Document, error) {
	var recs []record
	err := s.table(ctx, coll).
		Where(fieldExpr(field)+" = ?", value).
		Order(oldestFirst).
		Find(&recs).Error
	if err != nil {
		return nil, wrap(err)
	}
	return documents(recs), nil
}

func (s *Store) ListByField(ctx context.Context, coll storage.Collection, field, value string, limit, offset int) ([]domain.Document, error) {
	var recs []record
	err := s.table(ctx, coll).
		Where(fieldExpr(field)+" = ?", value).
		Order(newestFirst).
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	if err != nil {
		return nil, wrap(err)
	}
	return documents(recs), nil
}

func (s *Store) CountByField(ctx context.Context, coll storage.Collection, field, value string) (int64, error) {
	var count int64
	err := s.table(ctx, coll).
		Where(fieldExpr(field)+" = ?", value).
		Count(&count).Error
	if err != nil {
		return 0, wrap(err)
	}
	return count, nil
}

func (s *Store) DeleteByField(ctx context.Context, coll storage.Collection, field, value string) (int64, error) {
	res := s.table(ctx, coll).
		Where(fieldExpr(field)+" = ?", value).
		Delete(&record{})
	if res.Error != nil {
		return 0, wrap(res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) DistinctValues(ctx context.Context, coll storage.Collection, field string) ([]string, error) {
	var values []string
	expr := fieldExpr(field)
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM %q WHERE %s IS NOT NULL`, expr, coll, expr)
	err := s.db.WithContext(ctx).Raw(query).Scan(&values).Error
	if err != nil {
		return nil, wrap(err)
	}
	return values, nil
}

// === Метод для даталоадера ===

func (s *Store) FindByFieldIn(ctx context.Context, coll storage.Collection, field string, values []string) (map[string][]domain.Document, error) {
	result := make(map[string][]domain.Document, len(values))
	if len(values) == 0 {
		return result, nil
	}

	var recs []record
	// Загружаем все документы для всех значений одним запросом
	err := s.table(ctx, coll).
		Where(fieldExpr(field)+" IN ?", values).
		Order(oldestFirst).
		Find(&recs).Error
	if err != nil {
		return nil, wrap(err)
	}

	// Группируем результаты в карту map[value][]Document
	for i := range recs {
		if v, ok := recs[i].Body[field].(string); ok {
			result[v] = append(result[v], recs[i].document())
		}
	}
	return result, nil
}

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// body убирает поля, хранящиеся в колонках, и nil-значения.
func body(doc domain.Document) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(doc))
	for k, v := range doc {
		switch k {
		case domain.FieldID, domain.FieldCreatedAt, domain.FieldUpdatedAt:
			continue
		}
		if v != nil {
			out[k] = v
		}
	}
	return out
}

func documents(recs []record) []domain.Document {
	out := make([]domain.Document, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].document())
	}
	return out
}

func wrap(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", domain.ErrDuplicateKey, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
