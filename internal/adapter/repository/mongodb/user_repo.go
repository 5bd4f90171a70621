package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads the users collection owned by the user service.
type UserRepository struct {
	collection *mongo.Collection
	logger     *logger.Logger
}

func NewUserRepository(db *mongo.Database, log *logger.Logger) *UserRepository {
	return &UserRepository{
		collection: db.Collection("users"),
		logger:     log.Named("UserRepository"),
	}
}

// GetEmailByID returns the e-mail address of a user by hex id.
func (r *UserRepository) GetEmailByID(ctx context.Context, userID string) (string, error) {
	objID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		r.logger.Warn("GetEmailByID: invalid user id", zap.String("user_id", userID), zap.Error(err))
		return "", fmt.Errorf("invalid user ID format: %w", err)
	}

	var userDoc struct {
		Email string `bson:"email"`
	}
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&userDoc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrUserNotFound
		}
		r.logger.Error("GetEmailByID: failed to find user", zap.String("user_id", userID), zap.Error(err))
		return "", err
	}
	if userDoc.Email == "" {
		return "", ErrUserNotFound
	}
	return userDoc.Email, nil
}
