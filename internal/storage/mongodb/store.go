// Package mongodb keeps collections as MongoDB documents. The store id is
// the document ObjectID, exposed as its hex form.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/UkralStul/community-content-service/internal/domain"
	"github.com/UkralStul/community-content-service/internal/storage"
)

// Store implements storage.Storage on top of MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to uri, checks the connection and creates the lookup
// indexes of every collection.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	for _, coll := range []storage.Collection{storage.Posts, storage.Comments} {
		models := []mongo.IndexModel{
			{Keys: bson.D{{Key: domain.FieldCreatedAt, Value: -1}}},
		}
		for _, field := range storage.IndexedFields[coll] {
			models = append(models, mongo.IndexModel{
				Keys: bson.D{{Key: field, Value: 1}, {Key: domain.FieldCreatedAt, Value: 1}},
			})
		}
		if _, err := s.collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to index %s: %w", coll, err)
		}
	}
	return nil
}

func (s *Store) collection(coll storage.Collection) *mongo.Collection {
	return s.db.Collection(string(coll))
}

func (s *Store) Insert(ctx context.Context, coll storage.Collection, doc domain.Document) (domain.Document, error) {
	// Mongo keeps millisecond precision; truncate so the returned document
	// matches what a later read yields.
	now := time.Now().UTC().Truncate(time.Millisecond)

	stored := bson.M{}
	for k, v := range doc {
		switch k {
		case domain.FieldID, domain.FieldCreatedAt, domain.FieldUpdatedAt:
			continue
		}
		if v != nil {
			stored[k] = v
		}
	}
	stored["_id"] = primitive.NewObjectID()
	stored[domain.FieldCreatedAt] = now
	stored[domain.FieldUpdatedAt] = now

	if _, err := s.collection(coll).InsertOne(ctx, stored); err != nil {
		return nil, wrap(err)
	}
	return toDocument(stored), nil
}

func (s *Store) FindByID(ctx context.Context, coll storage.Collection, id string) (domain.Document, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
	}

	var raw bson.M
	if err := s.collection(coll).FindOne(ctx, bson.M{"_id": oid}).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
		}
		return nil, wrap(err)
	}
	return toDocument(raw), nil
}

func (s *Store) Update(ctx context.Context, coll storage.Collection, id string, partial domain.Document) (domain.Document, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
	}

	set, unset := bson.M{}, bson.M{}
	for k, v := range partial {
		switch k {
		case domain.FieldID, domain.FieldCreatedAt, domain.FieldUpdatedAt:
			continue
		}
		if v == nil {
			unset[k] = ""
			continue
		}
		set[k] = v
	}
	set[domain.FieldUpdatedAt] = time.Now().UTC().Truncate(time.Millisecond)

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var raw bson.M
	err = s.collection(coll).
		FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
		}
		return nil, wrap(err)
	}
	return toDocument(raw), nil
}

func (s *Store) Delete(ctx context.Context, coll storage.Collection, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
	}

	res, err := s.collection(coll).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return wrap(err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s with id %s: %w", coll, id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) List(ctx context.Context, coll storage.Collection, limit, offset int) ([]domain.Document, error) {
	return s.find(ctx, coll, bson.M{}, newestFirst(limit, offset))
}

func (s *Store) FindByField(ctx context.Context, coll storage.Collection, field, value string) ([]domain.Document, error) {
	filter, ok := fieldFilter(field, value)
	if !ok {
		return []domain.Document{}, nil
	}
	return s.find(ctx, coll, filter, oldestFirst())
}

func (s *Store) ListByField(ctx context.Context, coll storage.Collection, field, value string, limit, offset int) ([]domain.Document, error) {
	filter, ok := fieldFilter(field, value)
	if !ok {
		return []domain.Document{}, nil
	}
	return s.find(ctx, coll, filter, newestFirst(limit, offset))
}

func (s *Store) CountByField(ctx context.Context, coll storage.Collection, field, value string) (int64, error) {
	filter, ok := fieldFilter(field, value)
	if !ok {
		return 0, nil
	}
	count, err := s.collection(coll).CountDocuments(ctx, filter)
	if err != nil {
		return 0, wrap(err)
	}
	return count, nil
}

func (s *Store) DeleteByField(ctx context.Context, coll storage.Collection, field, value string) (int64, error) {
	filter, ok := fieldFilter(field, value)
	if !ok {
		return 0, nil
	}
	res, err := s.collection(coll).DeleteMany(ctx, filter)
	if err != nil {
		return 0, wrap(err)
	}
	return res.DeletedCount, nil
}

func (s *Store) DistinctValues(ctx context.Context, coll storage.Collection, field string) ([]string, error) {
	raw, err := s.collection(coll).Distinct(ctx, field, bson.M{field: bson.M{"$exists": true}})
	if err != nil {
		return nil, wrap(err)
	}
	values := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			values = append(values, str)
		}
	}
	return values, nil
}

func (s *Store) FindByFieldIn(ctx context.Context, coll storage.Collection, field string, values []string) (map[string][]domain.Document, error) {
	result := make(map[string][]domain.Document, len(values))
	if len(values) == 0 {
		return result, nil
	}

	docs, err := s.find(ctx, coll, bson.M{field: bson.M{"$in": values}}, oldestFirst())
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if v, ok := doc[field].(string); ok {
			result[v] = append(result[v], doc)
		}
	}
	return result, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) find(ctx context.Context, coll storage.Collection, filter bson.M, opts *options.FindOptions) ([]domain.Document, error) {
	cursor, err := s.collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return nil, wrap(err)
	}
	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, wrap(err)
	}

	docs := make([]domain.Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, toDocument(raw))
	}
	return docs, nil
}

func newestFirst(limit, offset int) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: domain.FieldCreatedAt, Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
}

func oldestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: domain.FieldCreatedAt, Value: 1}, {Key: "_id", Value: 1}})
}

// fieldFilter matches value on field. The id field maps to _id; an id
// that is not an ObjectID cannot match anything.
func fieldFilter(field, value string) (bson.M, bool) {
	if field != domain.FieldID {
		return bson.M{field: value}, true
	}
	oid, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid}, true
}

func wrap(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", domain.ErrDuplicateKey, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
