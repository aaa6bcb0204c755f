package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/store"
)

const (
	itemsCollection        = "tracked_items"
	observationsCollection = "price_observations"
)

type itemDoc struct {
	ID                 string               `bson:"_id"`
	URL                string               `bson:"url"`
	SourceID           string               `bson:"source_id"`
	Name               string               `bson:"name"`
	CurrentPrice       primitive.Decimal128 `bson:"current_price"`
	OwnerID            string               `bson:"owner_id"`
	NotificationTarget string               `bson:"notification_target"`
	LastCheckedAt      time.Time            `bson:"last_checked_at,omitempty"`
	CreatedAt          time.Time            `bson:"created_at"`
}

type observationDoc struct {
	ItemID     string               `bson:"item_id"`
	Price      primitive.Decimal128 `bson:"price"`
	ObservedAt time.Time            `bson:"observed_at"`
}

// Store keeps tracked items in MongoDB. Prices are stored as Decimal128.
type Store struct {
	items        *mongo.Collection
	observations *mongo.Collection
}

var _ store.Store = (*Store)(nil)

func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

func New(ctx context.Context, db *mongo.Database) (*Store, error) {
	s := &Store{
		items:        db.Collection(itemsCollection),
		observations: db.Collection(observationsCollection),
	}

	_, err := s.items.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}, {Key: "owner_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create item indexes: %w", err)
	}

	_, err = s.observations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "item_id", Value: 1}, {Key: "observed_at", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create observation indexes: %w", err)
	}

	return s, nil
}

func (s *Store) FindItem(ctx context.Context, url, ownerID string) (*models.TrackedItem, error) {
	return s.findOne(ctx, bson.M{"url": url, "owner_id": ownerID})
}

func (s *Store) InsertItem(ctx context.Context, item *models.TrackedItem) (string, error) {
	doc, err := toItemDoc(item)
	if err != nil {
		return "", err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	if _, err := s.items.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", store.ErrDuplicate
		}
		return "", fmt.Errorf("failed to insert item: %w", err)
	}
	return doc.ID, nil
}

// UpdateItem applies all set fields with a single $set.
func (s *Store) UpdateItem(ctx context.Context, id string, update store.ItemUpdate) error {
	set := bson.M{}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Price != nil {
		price, err := toDecimal128(*update.Price)
		if err != nil {
			return err
		}
		set["current_price"] = price
	}
	if update.LastCheckedAt != nil {
		set["last_checked_at"] = *update.LastCheckedAt
	}

	if len(set) == 0 {
		_, err := s.GetItem(ctx, id)
		return err
	}

	res, err := s.items.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListItems(ctx context.Context, ownerID string) ([]models.TrackedItem, error) {
	filter := bson.M{}
	if ownerID != "" {
		filter["owner_id"] = ownerID
	}

	cursor, err := s.items.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []itemDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}

	items := make([]models.TrackedItem, 0, len(docs))
	for _, doc := range docs {
		item, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*models.TrackedItem, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.items.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}

	if _, err := s.observations.DeleteMany(ctx, bson.M{"item_id": id}); err != nil {
		return fmt.Errorf("failed to delete observations: %w", err)
	}
	return nil
}

func (s *Store) AppendObservation(ctx context.Context, itemID string, price decimal.Decimal, at time.Time) error {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return err
	}

	p, err := toDecimal128(price)
	if err != nil {
		return err
	}

	_, err = s.observations.InsertOne(ctx, observationDoc{ItemID: itemID, Price: p, ObservedAt: at})
	if err != nil {
		return fmt.Errorf("failed to append observation: %w", err)
	}
	return nil
}

func (s *Store) ListObservations(ctx context.Context, itemID string) ([]models.PriceObservation, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, err
	}

	cursor, err := s.observations.Find(ctx, bson.M{"item_id": itemID},
		options.Find().SetSort(bson.D{{Key: "observed_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []observationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode observations: %w", err)
	}

	out := make([]models.PriceObservation, 0, len(docs))
	for _, doc := range docs {
		price, err := fromDecimal128(doc.Price)
		if err != nil {
			return nil, err
		}
		out = append(out, models.PriceObservation{ItemID: doc.ItemID, Price: price, ObservedAt: doc.ObservedAt})
	}
	return out, nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*models.TrackedItem, error) {
	var doc itemDoc
	err := s.items.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item: %w", err)
	}
	return doc.toModel()
}

func toItemDoc(item *models.TrackedItem) (itemDoc, error) {
	price, err := toDecimal128(item.CurrentPrice)
	if err != nil {
		return itemDoc{}, err
	}
	return itemDoc{
		ID:                 item.ID,
		URL:                item.URL,
		SourceID:           item.SourceID,
		Name:               item.Name,
		CurrentPrice:       price,
		OwnerID:            item.OwnerID,
		NotificationTarget: item.NotificationTarget,
		LastCheckedAt:      item.LastCheckedAt,
		CreatedAt:          item.CreatedAt,
	}, nil
}

func (d itemDoc) toModel() (*models.TrackedItem, error) {
	price, err := fromDecimal128(d.CurrentPrice)
	if err != nil {
		return nil, err
	}
	return &models.TrackedItem{
		ID:                 d.ID,
		URL:                d.URL,
		SourceID:           d.SourceID,
		Name:               d.Name,
		CurrentPrice:       price,
		OwnerID:            d.OwnerID,
		NotificationTarget: d.NotificationTarget,
		LastCheckedAt:      d.LastCheckedAt,
		CreatedAt:          d.CreatedAt,
	}, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(models.NormalizePrice(d).StringFixed(2))
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to encode price: %w", err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price: %w", err)
	}
	return d, nil
}
