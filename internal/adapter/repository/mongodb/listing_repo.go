package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/listing/domain"
	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const listingCollectionName = "listings"

// ListingRepository stores listings in MongoDB. Each marketplace entry lives
// under status.<name>, so writes to different marketplaces touch different
// fields of the same document and never conflict.
type ListingRepository struct {
	collection *mongo.Collection
	logger     *logger.Logger
}

func NewListingRepository(db *mongo.Database, log *logger.Logger) *ListingRepository {
	collection := db.Collection(listingCollectionName)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$type": "string"}}),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Error("Failed to create indexes for listings collection", zap.Error(err))
	} else {
		log.Info("Successfully ensured indexes for listings collection")
	}

	return &ListingRepository{
		collection: collection,
		logger:     log.Named("ListingRepository"),
	}
}

func statusField(marketplace, field string) string {
	return "status." + marketplace + "." + field
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, domain.ErrListingNotFound
	}
	return oid, nil
}

func (r *ListingRepository) Create(ctx context.Context, listing *domain.Listing) (string, error) {
	if err := listing.Validate(); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	listing.ID = ""
	listing.Version = 1
	listing.CreatedAt = now
	listing.UpdatedAt = now
	listing.Status = make(map[string]domain.MarketplaceStatus)

	doc, err := toListingDocument(listing)
	if err != nil {
		return "", err
	}
	doc.ID = primitive.NewObjectID()

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) && listing.IdempotencyKey != "" {
			var existing listingDocument
			findErr := r.collection.FindOne(ctx, bson.M{
				"user_id":         listing.UserID,
				"idempotency_key": listing.IdempotencyKey,
			}).Decode(&existing)
			if findErr == nil {
				return "", &domain.DuplicateListingError{ExistingID: existing.ID.Hex()}
			}
			r.logger.Error("Duplicate key on create but existing listing not found", zap.Error(findErr))
		}
		r.logger.Error("Failed to insert listing into DB", zap.Error(err))
		return "", fmt.Errorf("db insert failed: %w", err)
	}

	listing.ID = doc.ID.Hex()
	r.logger.Debug("Listing created in DB", zap.String("listing_id", listing.ID))
	return listing.ID, nil
}

func (r *ListingRepository) FindByID(ctx context.Context, id string) (*domain.Listing, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var doc listingDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrListingNotFound
		}
		r.logger.Error("Failed to get listing by ID from DB", zap.String("listing_id", id), zap.Error(err))
		return nil, fmt.Errorf("db findone failed: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *ListingRepository) FindByOwner(ctx context.Context, userID string) ([]*domain.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		r.logger.Error("Failed to find listings by owner", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("db find failed: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []listingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("db cursor decode failed: %w", err)
	}
	out := make([]*domain.Listing, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

// MarkPending resets all named entries in one document update. The filter only
// matches when every entry is absent or failed, so the batch applies entirely
// or not at all.
func (r *ListingRepository) MarkPending(ctx context.Context, id string, marketplaces []string) (map[string]int64, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	for _, name := range marketplaces {
		if err := domain.ValidateMarketplaceName(name); err != nil {
			return nil, domain.ErrInvalidMarketplace
		}
	}

	now := time.Now().UTC()
	filter := bson.M{"_id": oid, "marketplaces": bson.M{"$all": marketplaces}}
	set := bson.M{}
	unset := bson.M{}
	inc := bson.M{}
	for _, name := range marketplaces {
		filter[statusField(name, "state")] = bson.M{"$nin": bson.A{string(domain.StatusPending), string(domain.StatusPosted)}}
		set[statusField(name, "state")] = string(domain.StatusPending)
		set[statusField(name, "updated_at")] = now
		unset[statusField(name, "reason")] = ""
		unset[statusField(name, "external_id")] = ""
		inc[statusField(name, "attempt")] = 1
	}

	var doc listingDocument
	err = r.collection.FindOneAndUpdate(ctx, filter,
		bson.M{"$set": set, "$unset": unset, "$inc": inc},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, r.diagnoseMarkPending(ctx, id, marketplaces)
		}
		r.logger.Error("Failed to mark marketplaces pending", zap.String("listing_id", id), zap.Error(err))
		return nil, fmt.Errorf("db findoneandupdate failed: %w", err)
	}

	attempts := make(map[string]int64, len(marketplaces))
	for _, name := range marketplaces {
		attempts[name] = doc.Status[name].Attempt
	}
	return attempts, nil
}

func (r *ListingRepository) diagnoseMarkPending(ctx context.Context, id string, marketplaces []string) error {
	l, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	for _, name := range marketplaces {
		if !l.HasMarketplace(name) {
			return domain.ErrInvalidMarketplace
		}
	}
	return domain.ErrConflict
}

// UpdateStatus records a terminal outcome. The write only matches the entry's
// current attempt, so an outcome from an older attempt can never overwrite a
// newer one. A deleted listing matches nothing and is never recreated.
func (r *ListingRepository) UpdateStatus(ctx context.Context, id, marketplace string, update domain.StatusUpdate) error {
	if !update.Status.IsTerminal() {
		return domain.ErrInvalidTransition
	}
	if err := domain.ValidateMarketplaceName(marketplace); err != nil {
		return domain.ErrInvalidMarketplace
	}
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	set := bson.M{
		statusField(marketplace, "state"):      string(update.Status),
		statusField(marketplace, "updated_at"): time.Now().UTC(),
	}
	unset := bson.M{}
	if update.Reason != "" {
		set[statusField(marketplace, "reason")] = update.Reason
	} else {
		unset[statusField(marketplace, "reason")] = ""
	}
	if update.ExternalID != "" {
		set[statusField(marketplace, "external_id")] = update.ExternalID
	} else {
		unset[statusField(marketplace, "external_id")] = ""
	}
	change := bson.M{"$set": set}
	if len(unset) > 0 {
		change["$unset"] = unset
	}

	filter := bson.M{"_id": oid, "marketplaces": marketplace}
	filter[statusField(marketplace, "attempt")] = update.Attempt

	res, err := r.collection.UpdateOne(ctx, filter, change)
	if err != nil {
		r.logger.Error("Failed to update marketplace status", zap.String("listing_id", id), zap.String("marketplace", marketplace), zap.Error(err))
		return fmt.Errorf("db updateone failed: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	return r.diagnoseStatusUpdate(ctx, id, marketplace, update)
}

func (r *ListingRepository) diagnoseStatusUpdate(ctx context.Context, id, marketplace string, update domain.StatusUpdate) error {
	l, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !l.HasMarketplace(marketplace) {
		return domain.ErrInvalidMarketplace
	}
	current, exists := l.Status[marketplace]
	if _, err := domain.ApplyStatusUpdate(current, exists, update); err != nil {
		return err
	}
	// the entry changed between the write and this read
	return domain.ErrStaleUpdate
}

// statusEntries turns the status subdocument into [{k, v}] pairs for
// aggregation expressions.
var statusEntries = bson.M{"$objectToArray": bson.M{"$ifNull": bson.A{"$status", bson.M{}}}}

// Update writes the editable fields if the stored version still matches and no
// deselected marketplace is pending. The surviving status entries are computed
// from the stored document in the same write. Photos are never written after
// create.
func (r *ListingRepository) Update(ctx context.Context, listing *domain.Listing) error {
	if err := listing.Validate(); err != nil {
		return err
	}
	oid, err := objectID(listing.ID)
	if err != nil {
		return domain.ErrConflict
	}

	selected := nonNil(listing.Marketplaces)
	removedPending := bson.M{"$filter": bson.M{
		"input": statusEntries,
		"cond": bson.M{"$and": bson.A{
			bson.M{"$not": bson.A{bson.M{"$in": bson.A{"$$this.k", selected}}}},
			bson.M{"$eq": bson.A{"$$this.v.state", string(domain.StatusPending)}},
		}},
	}}
	filter := bson.M{
		"_id":     oid,
		"version": listing.Version,
		"$expr":   bson.M{"$eq": bson.A{bson.M{"$size": removedPending}, 0}},
	}

	now := time.Now().UTC()
	// user text goes through $literal so a leading "$" is never read as a field path
	update := mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"title":        bson.M{"$literal": listing.Title},
		"description":  bson.M{"$literal": listing.Description},
		"category":     bson.M{"$literal": listing.Category},
		"brand":        bson.M{"$literal": listing.Brand},
		"tags":         bson.M{"$literal": nonNil(listing.Tags)},
		"price":        bson.M{"$literal": listing.Price},
		"marketplaces": bson.M{"$literal": selected},
		"updated_at":   now,
		"version":      bson.M{"$add": bson.A{"$version", 1}},
		"status": bson.M{"$arrayToObject": bson.M{"$filter": bson.M{
			"input": statusEntries,
			"cond":  bson.M{"$in": bson.A{"$$this.k", selected}},
		}}},
	}}}}

	var doc listingDocument
	err = r.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return r.diagnoseUpdate(ctx, listing)
		}
		r.logger.Error("Failed to update listing in DB", zap.String("listing_id", listing.ID), zap.Error(err))
		return fmt.Errorf("db findoneandupdate failed: %w", err)
	}

	stored := doc.toDomain()
	listing.Status = stored.Status
	listing.Version = stored.Version
	listing.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *ListingRepository) diagnoseUpdate(ctx context.Context, listing *domain.Listing) error {
	stored, err := r.FindByID(ctx, listing.ID)
	if err != nil || stored.Version != listing.Version {
		return domain.ErrConflict
	}
	for name, st := range stored.Status {
		if st.State == domain.StatusPending && !listing.HasMarketplace(name) {
			return fmt.Errorf("%w: posting to %s is still in progress", domain.ErrConflict, name)
		}
	}
	return domain.ErrConflict
}

func (r *ListingRepository) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		r.logger.Error("Failed to delete listing from DB", zap.String("listing_id", id), zap.Error(err))
		return fmt.Errorf("db deleteone failed: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

func (r *ListingRepository) Stats(ctx context.Context) (*domain.Stats, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("db count failed: %w", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"category": bson.M{"$nin": bson.A{"", nil}}}}},
		{{Key: "$group", Value: bson.M{"_id": "$category", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: 5}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("db aggregate failed: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Category string `bson:"_id"`
		Count    int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("db cursor decode failed: %w", err)
	}

	top := make([]domain.CategoryCount, 0, len(rows))
	for _, row := range rows {
		top = append(top, domain.CategoryCount{Category: row.Category, Count: row.Count})
	}
	return &domain.Stats{ListingCount: count, TopCategories: top}, nil
}
