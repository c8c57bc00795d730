package catalog

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"fashionadmin/internal/database"
	"fashionadmin/internal/models"
)

var ErrProductNotFound = errors.New("product not found")

// Product is the checkout view of a catalog entry. Price is already the
// effective (sale-aware) unit price.
type Product struct {
	ID          string
	Name        string
	Price       float64
	Description string
	ImageURL    string
}

type MongoCatalog struct {
	products *mongo.Collection
}

func NewMongoCatalog(db *mongo.Database) *MongoCatalog {
	return &MongoCatalog{products: db.Collection(database.ProductsCollection)}
}

// GetProductByID reads the product straight from the collection so the price
// is never stale. Malformed ids are reported as not found.
func (c *MongoCatalog) GetProductByID(ctx context.Context, id string) (Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Product{}, ErrProductNotFound
	}

	var raw bson.M
	err = c.products.FindOne(ctx, bson.M{
		"_id":       oid,
		"isDeleted": bson.M{"$ne": true},
	}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("find product %s: %w", id, err)
	}

	doc, err := normalizeProductDocument(raw)
	if err != nil {
		return Product{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	if !doc.IsActive {
		return Product{}, ErrProductNotFound
	}

	return Product{
		ID:          doc.ID.Hex(),
		Name:        doc.Name,
		Price:       EffectivePrice(doc),
		Description: doc.Description,
		ImageURL:    doc.ImageURL,
	}, nil
}

// normalizeProductDocument tolerates legacy documents where category is a
// plain string, stock is stored as a float, or isActive was never written.
func normalizeProductDocument(raw bson.M) (models.Product, error) {
	if cat, ok := raw["category"].(string); ok {
		raw["category"] = []string{cat}
	}

	switch typed := raw["isActive"].(type) {
	case bool:
	case string:
		raw["isActive"] = typed != "false"
	default:
		raw["isActive"] = true
	}

	switch typed := raw["stock"].(type) {
	case int32:
		raw["stock"] = int(typed)
	case int64:
		raw["stock"] = int(typed)
	case float64:
		raw["stock"] = int(typed)
	case int:
	default:
		raw["stock"] = 0
	}

	// Images uploaded through the old admin were stored under imagePath.
	if _, ok := raw["imageUrl"]; !ok {
		if path, ok := raw["imagePath"].(string); ok {
			raw["imageUrl"] = path
		}
	}

	data, err := bson.Marshal(raw)
	if err != nil {
		return models.Product{}, err
	}

	var p models.Product
	if err := bson.Unmarshal(data, &p); err != nil {
		return models.Product{}, err
	}
	return p, nil
}
