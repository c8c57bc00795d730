package cart

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"fashionadmin/internal/database"
)

type MongoCart struct {
	items *mongo.Collection
}

func NewMongoCart(db *mongo.Database) *MongoCart {
	return &MongoCart{items: db.Collection(database.CartCollection)}
}

// ClearCart removes every cart line the user owns. An empty cart is not an error.
func (c *MongoCart) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("clear cart: empty user id")
	}
	if _, err := c.items.DeleteMany(ctx, bson.M{"userId": userID}); err != nil {
		return fmt.Errorf("clear cart for %s: %w", userID, err)
	}
	return nil
}
