package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fashionadmin/internal/database"
	"fashionadmin/internal/models"
)

type MongoOrderStore struct {
	orders *mongo.Collection
	now    func() time.Time
}

func NewMongoOrderStore(db *mongo.Database) *MongoOrderStore {
	return &MongoOrderStore{
		orders: db.Collection(database.OrdersCollection),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MongoOrderStore) CreatePendingOrder(ctx context.Context, draft models.Order) (models.Order, error) {
	now := s.now()
	order := draft
	order.ID = primitive.NewObjectID()
	order.ExternalOrderID = ""
	order.Status = models.StatusPendingPayment
	order.CreatedAt = now
	order.UpdatedAt = now

	if _, err := s.orders.InsertOne(ctx, order); err != nil {
		return models.Order{}, &PersistenceError{Op: "create pending order", Err: err}
	}
	return order, nil
}

func (s *MongoOrderStore) AttachExternalOrderID(ctx context.Context, orderID, externalOrderID string) error {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return ErrOrderNotFound
	}

	// Matching null also matches a missing field, so the first attach and
	// a repeat with the same value both succeed.
	filter := bson.M{
		"_id":             oid,
		"externalOrderId": bson.M{"$in": bson.A{nil, externalOrderID}},
	}
	update := bson.M{"$set": bson.M{
		"externalOrderId": externalOrderID,
		"updatedAt":       s.now(),
	}}

	res, err := s.orders.UpdateOne(ctx, filter, update)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateExternalOrderID
	}
	if err != nil {
		return &PersistenceError{Op: "attach external order id", Err: err}
	}
	if res.MatchedCount > 0 {
		return nil
	}

	if _, err := s.findOne(ctx, bson.M{"_id": oid}); err != nil {
		return err
	}
	return ErrAlreadyAttached
}

func (s *MongoOrderStore) FindByExternalOrderID(ctx context.Context, externalOrderID string) (models.Order, error) {
	if externalOrderID == "" {
		return models.Order{}, ErrOrderNotFound
	}
	return s.findOne(ctx, bson.M{"externalOrderId": externalOrderID})
}

func (s *MongoOrderStore) FindByID(ctx context.Context, orderID string) (models.Order, error) {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return models.Order{}, ErrOrderNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

// TransitionStatus is a single findOneAndUpdate, which MongoDB executes
// atomically per document. When the status filter does not match, the stored
// order is returned with Applied=false.
func (s *MongoOrderStore) TransitionStatus(ctx context.Context, orderID string, t Transition) (TransitionResult, error) {
	if err := t.validate(); err != nil {
		return TransitionResult{}, err
	}
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return TransitionResult{}, ErrOrderNotFound
	}
	if t.At.IsZero() {
		t.At = s.now()
	}

	filter := bson.M{"_id": oid}
	if t.From != "" {
		filter["status"] = t.From
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Order
	err = s.orders.FindOneAndUpdate(ctx, filter, bson.M{"$set": transitionSet(t)}, opts).Decode(&updated)
	if err == nil {
		return TransitionResult{Order: updated, Applied: true}, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return TransitionResult{}, &PersistenceError{Op: "transition status", Err: err}
	}

	current, err := s.findOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Order: current, Applied: false}, nil
}

func (s *MongoOrderStore) DeletePendingOrder(ctx context.Context, orderID string) error {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return ErrOrderNotFound
	}

	res, err := s.orders.DeleteOne(ctx, bson.M{"_id": oid, "status": models.StatusPendingPayment})
	if err != nil {
		return &PersistenceError{Op: "delete pending order", Err: err}
	}
	if res.DeletedCount > 0 {
		return nil
	}

	if _, err := s.findOne(ctx, bson.M{"_id": oid}); err != nil {
		return err
	}
	return ErrNotPending
}

func (s *MongoOrderStore) ListOrders(ctx context.Context, f ListFilter) ([]models.Order, int64, error) {
	filter := bson.M{}
	if f.UserID != "" {
		filter["userId"] = f.UserID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	total, err := s.orders.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, &PersistenceError{Op: "count orders", Err: err}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(f.skip()).
		SetLimit(f.limit())

	cursor, err := s.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, &PersistenceError{Op: "list orders", Err: err}
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, 0, &PersistenceError{Op: "decode orders", Err: err}
	}
	return orders, total, nil
}

func (s *MongoOrderStore) findOne(ctx context.Context, filter bson.M) (models.Order, error) {
	var order models.Order
	err := s.orders.FindOne(ctx, filter).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return models.Order{}, &PersistenceError{Op: "find order", Err: err}
	}
	return order, nil
}

func transitionSet(t Transition) bson.M {
	set := bson.M{
		"status":    t.To,
		"updatedAt": t.At,
	}
	if t.PaymentID != "" {
		set["paymentId"] = t.PaymentID
	}
	if t.PayerInfo != nil {
		set["payerInfo"] = t.PayerInfo
	}
	if t.CapturedAmount != "" {
		set["capturedAmount"] = t.CapturedAmount
	}
	if t.FailureReason != "" {
		set["failureReason"] = t.FailureReason
	}
	switch t.To {
	case models.StatusPaid:
		set["paidAt"] = t.At
	case models.StatusCancelled:
		set["cancelledAt"] = t.At
	case models.StatusPaymentFailed:
		set["failedAt"] = t.At
	}
	return set
}
