package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"fashionadmin/internal/models"
)

// MemoryOrderStore keeps orders in process. The mutex gives TransitionStatus
// the same single-document atomicity the Mongo store gets from findOneAndUpdate.
type MemoryOrderStore struct {
	mu         sync.Mutex
	orders     map[primitive.ObjectID]models.Order
	byExternal map[string]primitive.ObjectID
	now        func() time.Time
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders:     make(map[primitive.ObjectID]models.Order),
		byExternal: make(map[string]primitive.ObjectID),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryOrderStore) CreatePendingOrder(_ context.Context, draft models.Order) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	order := cloneOrder(draft)
	order.ID = primitive.NewObjectID()
	order.ExternalOrderID = ""
	order.Status = models.StatusPendingPayment
	order.CreatedAt = now
	order.UpdatedAt = now

	s.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (s *MemoryOrderStore) AttachExternalOrderID(_ context.Context, orderID, externalOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oid, order, ok := s.lookup(orderID)
	if !ok {
		return ErrOrderNotFound
	}
	if order.ExternalOrderID == externalOrderID {
		return nil
	}
	if order.ExternalOrderID != "" {
		return ErrAlreadyAttached
	}
	if _, taken := s.byExternal[externalOrderID]; taken {
		return ErrDuplicateExternalOrderID
	}

	order.ExternalOrderID = externalOrderID
	order.UpdatedAt = s.now()
	s.orders[oid] = order
	s.byExternal[externalOrderID] = oid
	return nil
}

func (s *MemoryOrderStore) FindByExternalOrderID(_ context.Context, externalOrderID string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oid, ok := s.byExternal[externalOrderID]
	if !ok {
		return models.Order{}, ErrOrderNotFound
	}
	return cloneOrder(s.orders[oid]), nil
}

func (s *MemoryOrderStore) FindByID(_ context.Context, orderID string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, order, ok := s.lookup(orderID)
	if !ok {
		return models.Order{}, ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (s *MemoryOrderStore) TransitionStatus(_ context.Context, orderID string, t Transition) (TransitionResult, error) {
	if err := t.validate(); err != nil {
		return TransitionResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oid, order, ok := s.lookup(orderID)
	if !ok {
		return TransitionResult{}, ErrOrderNotFound
	}
	if t.From != "" && order.Status != t.From {
		return TransitionResult{Order: cloneOrder(order), Applied: false}, nil
	}
	if t.At.IsZero() {
		t.At = s.now()
	}

	t.apply(&order)
	s.orders[oid] = order
	return TransitionResult{Order: cloneOrder(order), Applied: true}, nil
}

func (s *MemoryOrderStore) DeletePendingOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oid, order, ok := s.lookup(orderID)
	if !ok {
		return ErrOrderNotFound
	}
	if order.Status != models.StatusPendingPayment {
		return ErrNotPending
	}

	delete(s.orders, oid)
	if order.ExternalOrderID != "" {
		delete(s.byExternal, order.ExternalOrderID)
	}
	return nil
}

func (s *MemoryOrderStore) ListOrders(_ context.Context, f ListFilter) ([]models.Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		matched = append(matched, cloneOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.Hex() > matched[j].ID.Hex()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := f.skip()
	if start >= total {
		return []models.Order{}, total, nil
	}
	end := start + f.limit()
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryOrderStore) lookup(orderID string) (primitive.ObjectID, models.Order, bool) {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return primitive.NilObjectID, models.Order{}, false
	}
	order, ok := s.orders[oid]
	return oid, order, ok
}

func cloneOrder(o models.Order) models.Order {
	out := o
	out.Items = append([]models.OrderItem(nil), o.Items...)
	if o.PayerInfo != nil {
		payer := *o.PayerInfo
		out.PayerInfo = &payer
	}
	out.PaidAt = cloneTime(o.PaidAt)
	out.CancelledAt = cloneTime(o.CancelledAt)
	out.FailedAt = cloneTime(o.FailedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
