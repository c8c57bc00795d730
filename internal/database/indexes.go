package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// EnsureOrderIndexes creates the order indexes. externalOrderId_unique is what
// makes findByExternalOrderId return at most one order.
func EnsureOrderIndexes(db *mongo.Database, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(OrdersCollection).Indexes()

	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "externalOrderId", Value: 1}},
			Options: options.Index().
				SetName("externalOrderId_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"externalOrderId": bson.M{"$type": "string"},
				}),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("userId_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("status_index"),
		},
	}

	logger.Info("creating order indexes", zap.Int("count", len(models)))
	names, err := indexes.CreateMany(ctx, models)
	if err != nil {
		logger.Error("order index creation failed", zap.Error(err))
		return err
	}
	logger.Info("order indexes ready", zap.Strings("names", names))
	return nil
}

func EnsureCartIndexes(db *mongo.Database, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(CartCollection).Indexes()

	userIDIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetName("userId_index"),
	}

	logger.Info("creating cart userId_index index")
	if _, err := indexes.CreateOne(ctx, userIDIndex); err != nil {
		logger.Error("cart index creation failed", zap.Error(err))
		return err
	}
	logger.Info("cart userId_index index ready")
	return nil
}
