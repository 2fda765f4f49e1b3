package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xavierca1/lead-relay/internal/entity"
)

// MockLeadStore
type MockLeadStore struct {
	mock.Mock
}

func (m *MockLeadStore) CreateLeadWithDeliveries(ctx context.Context, lead *entity.Lead, channels []entity.Channel) ([]entity.Delivery, error) {
	args := m.Called(ctx, lead, channels)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Delivery), args.Error(1)
}

func (m *MockLeadStore) GetLead(ctx context.Context, id string) (*entity.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Lead), args.Error(1)
}

func (m *MockLeadStore) GetDelivery(ctx context.Context, id string) (*entity.Delivery, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Delivery), args.Error(1)
}

func (m *MockLeadStore) ListDeliveriesByStatus(ctx context.Context, status entity.DeliveryStatus) ([]entity.Delivery, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Delivery), args.Error(1)
}

func (m *MockLeadStore) ListDeliveriesByLead(ctx context.Context, leadID string) ([]entity.Delivery, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Delivery), args.Error(1)
}

func (m *MockLeadStore) UpdateDeliveryStatus(ctx context.Context, id string, status entity.DeliveryStatus, lastErr *string) error {
	args := m.Called(ctx, id, status, lastErr)
	return args.Error(0)
}

func (m *MockLeadStore) IncrementAttempts(ctx context.Context, id string, expectedAttempts int, lastErr string) (*entity.Delivery, error) {
	args := m.Called(ctx, id, expectedAttempts, lastErr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Delivery), args.Error(1)
}

func (m *MockLeadStore) CountByStatus(ctx context.Context) (map[entity.DeliveryStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[entity.DeliveryStatus]int), args.Error(1)
}

// memStore keeps the conditional-write rules of the SQL store in memory.
type memStore struct {
	mu          sync.Mutex
	leads       map[string]entity.Lead
	deliveries  map[string]entity.Delivery
	maxAttempts int
	now         func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		leads:       map[string]entity.Lead{},
		deliveries:  map[string]entity.Delivery{},
		maxAttempts: entity.DefaultMaxAttempts,
		now:         func() time.Time { return testNow },
	}
}

func (s *memStore) CreateLeadWithDeliveries(_ context.Context, lead *entity.Lead, channels []entity.Channel) ([]entity.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leads[lead.ID] = *lead
	out := make([]entity.Delivery, 0, len(channels))
	for _, ch := range channels {
		d := entity.NewDelivery(lead.ID, ch, s.now())
		s.deliveries[d.ID] = d
		out = append(out, d)
	}
	return out, nil
}

func (s *memStore) GetLead(_ context.Context, id string) (*entity.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leads[id]
	if !ok {
		return nil, entity.ErrLeadNotFound
	}
	return &l, nil
}

func (s *memStore) GetDelivery(_ context.Context, id string) (*entity.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[id]
	if !ok {
		return nil, entity.ErrDeliveryNotFound
	}
	return &d, nil
}

func (s *memStore) ListDeliveriesByStatus(_ context.Context, status entity.DeliveryStatus) ([]entity.Delivery, error) {
	return s.filter(func(d entity.Delivery) bool { return d.Status == status }), nil
}

func (s *memStore) ListDeliveriesByLead(_ context.Context, leadID string) ([]entity.Delivery, error) {
	return s.filter(func(d entity.Delivery) bool { return d.LeadID == leadID }), nil
}

func (s *memStore) filter(keep func(entity.Delivery) bool) []entity.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []entity.Delivery{}
	for _, d := range s.deliveries {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

func (s *memStore) UpdateDeliveryStatus(_ context.Context, id string, status entity.DeliveryStatus, lastErr *string) error {
	if !status.Valid() || status == entity.StatusPending {
		return entity.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[id]
	if !ok {
		return entity.ErrDeliveryNotFound
	}
	if d.Status.IsTerminal() {
		return entity.ErrTerminalState
	}
	d.Status = status
	d.LastError = lastErr
	d.UpdatedAt = s.now()
	s.deliveries[id] = d
	return nil
}

func (s *memStore) IncrementAttempts(_ context.Context, id string, expectedAttempts int, lastErr string) (*entity.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[id]
	if !ok {
		return nil, entity.ErrDeliveryNotFound
	}
	if d.Status.IsTerminal() {
		return nil, entity.ErrTerminalState
	}
	if d.Attempts != expectedAttempts {
		return nil, entity.ErrConcurrentUpdate
	}
	d.Attempts++
	d.Status = entity.NextStatusAfterFailure(d.Attempts, s.maxAttempts)
	d.LastError = &lastErr
	d.UpdatedAt = s.now()
	s.deliveries[id] = d
	return &d, nil
}

func (s *memStore) CountByStatus(_ context.Context) (map[entity.DeliveryStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[entity.DeliveryStatus]int{}
	for _, st := range entity.AllStatuses() {
		counts[st] = 0
	}
	for _, d := range s.deliveries {
		counts[d.Status]++
	}
	return counts, nil
}

func (s *memStore) deliveryFor(leadID string, ch entity.Channel) entity.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.deliveries {
		if d.LeadID == leadID && d.Channel == ch {
			return d
		}
	}
	panic("no delivery for " + leadID + "/" + string(ch))
}
