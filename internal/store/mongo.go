package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/mfenderov/knowra/pkg/models"
)

const (
	titleIndex = "uniq_titleKey"
	slugIndex  = "uniq_slug"
)

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI        string // mongodb://localhost:27017
	Database   string
	Collection string
	Timeout    time.Duration // connect and per-operation timeout
}

// Mongo is a Store backed by a MongoDB collection.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
}

// NewMongo connects to MongoDB and ensures the unique indexes exist.
func NewMongo(ctx context.Context, config MongoConfig) (*Mongo, error) {
	if config.URI == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}
	if config.Database == "" {
		config.Database = "knowra"
	}
	if config.Collection == "" {
		config.Collection = "topics"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(50).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(config.Timeout)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m := &Mongo{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
		timeout:    config.Timeout,
	}

	if err := m.ensureIndexes(connectCtx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	slog.Debug("connected to MongoDB", "database", config.Database, "collection", config.Collection)
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "titleKey", Value: 1}},
			Options: options.Index().
				SetName(titleIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"titleKey": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().
				SetName(slugIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"slug": bson.M{"$gt": ""}}),
		},
		{Keys: bson.D{{Key: "title", Value: 1}}},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create topic indexes: %w", err)
	}
	return nil
}

func (m *Mongo) FindBySlug(ctx context.Context, slug string) (*models.Topic, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, ErrNotFound
	}
	return m.findOne(ctx, bson.M{"slug": slug})
}

func (m *Mongo) FindByTitle(ctx context.Context, title string) (*models.Topic, error) {
	key := models.NormalizeTitle(title)
	if key == "" {
		return nil, ErrNotFound
	}

	// Records written before titleKey existed only match the regex branch.
	filter := bson.M{"$or": bson.A{
		bson.M{"titleKey": key},
		bson.M{"title": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(strings.TrimSpace(title)) + "$", Options: "i"}},
	}}
	return m.findOne(ctx, filter)
}

func (m *Mongo) findOne(ctx context.Context, filter bson.M) (*models.Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var topic models.Topic
	err := m.collection.FindOne(ctx, filter).Decode(&topic)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find topic: %w", err)
	}
	return &topic, nil
}

func (m *Mongo) Insert(ctx context.Context, topic *models.Topic) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	topic.TitleKey = models.NormalizeTitle(topic.Title)
	if topic.ID.IsZero() {
		topic.ID = primitive.NewObjectID()
	}

	if _, err := m.collection.InsertOne(ctx, topic); err != nil {
		if dup := duplicateError(err, topic); dup != nil {
			topic.ID = primitive.NilObjectID
			return dup
		}
		return fmt.Errorf("failed to insert topic: %w", err)
	}
	return nil
}

func (m *Mongo) SetSlug(ctx context.Context, id primitive.ObjectID, slug string) error {
	err := m.update(ctx, id, bson.M{"slug": slug})
	if mongo.IsDuplicateKeyError(err) {
		return &DuplicateError{Field: FieldSlug, Value: slug}
	}
	return err
}

func (m *Mongo) SetRelated(ctx context.Context, id primitive.ObjectID, related []string) error {
	return m.update(ctx, id, bson.M{"relatedTopics": related})
}

func (m *Mongo) SetEnrichment(ctx context.Context, id primitive.ObjectID, category models.Category, set models.ItemSet) error {
	if set.Items == nil {
		set.Items = []models.Item{}
	}
	return m.update(ctx, id, bson.M{"enrichment." + string(category): set})
}

func (m *Mongo) update(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	fields["updatedAt"] = time.Now().UTC()
	res, err := m.collection.UpdateByID(ctx, id, bson.M{"$set": fields})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return err
		}
		return fmt.Errorf("failed to update topic: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) SlugTaken(ctx context.Context, slug string, except primitive.ObjectID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	filter := bson.M{"slug": slug}
	if !except.IsZero() {
		filter["_id"] = bson.M{"$ne": except}
	}
	n, err := m.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return n > 0, nil
}

func (m *Mongo) Suggest(ctx context.Context, query string, limit int) ([]models.Suggestion, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	filter := bson.M{"title": primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}}
	opts := options.Find().
		SetProjection(bson.M{"title": 1, "slug": 1}).
		SetSort(bson.D{{Key: "title", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search topics: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Suggestion
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode suggestions: %w", err)
	}
	return out, nil
}

func (m *Mongo) ListMissingSlugs(ctx context.Context) ([]*models.Topic, error) {
	return m.list(ctx, bson.M{"$or": bson.A{
		bson.M{"slug": bson.M{"$exists": false}},
		bson.M{"slug": ""},
		bson.M{"slug": nil},
	}})
}

func (m *Mongo) ListMissingRelated(ctx context.Context) ([]*models.Topic, error) {
	return m.list(ctx, bson.M{"$or": bson.A{
		bson.M{"relatedTopics": bson.M{"$exists": false}},
		bson.M{"relatedTopics": nil},
		bson.M{"relatedTopics": bson.M{"$size": 0}},
	}})
}

func (m *Mongo) list(ctx context.Context, filter bson.M) ([]*models.Topic, error) {
	cursor, err := m.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Topic
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode topics: %w", err)
	}
	return out, nil
}

// Drop removes the collection. Tests use it for cleanup.
func (m *Mongo) Drop(ctx context.Context) error {
	return m.collection.Drop(ctx)
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// duplicateError maps a duplicate-key write error onto the violated field.
func duplicateError(err error, topic *models.Topic) error {
	if !mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if strings.Contains(err.Error(), slugIndex) {
		return &DuplicateError{Field: FieldSlug, Value: topic.Slug}
	}
	return &DuplicateError{Field: FieldTitle, Value: topic.Title}
}
