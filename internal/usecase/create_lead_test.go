package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/lead-relay/internal/entity"
)

func TestCreateLeadStoresAndDispatches(t *testing.T) {
	store := newMemStore()
	uc := NewCreateLeadUseCase(store, NewDispatchLeadUseCase(store, allSucceed(), time.Second))
	uc.Now = func() time.Time { return testNow }

	out, err := uc.Execute(context.Background(), CreateLeadInput{
		FullName:       "  Maria Clara ",
		Phone:          "+63 917 555 0101",
		Email:          "maria@example.com",
		PreferredClass: "Muay Thai",
	})
	require.NoError(t, err)
	require.Len(t, out.Deliveries, 3)

	lead, err := store.GetLead(context.Background(), out.LeadID)
	require.NoError(t, err)
	assert.Equal(t, "Maria Clara", lead.FullName)
	assert.True(t, lead.CreatedAt.Equal(testNow))

	deliveries, _ := store.ListDeliveriesByLead(context.Background(), out.LeadID)
	require.Len(t, deliveries, 3)
	for _, d := range deliveries {
		assert.Equal(t, entity.StatusSuccess, d.Status)
		assert.Equal(t, 0, d.Attempts)
	}
}

func TestCreateLeadValidationError(t *testing.T) {
	store := new(MockLeadStore)
	uc := NewCreateLeadUseCase(store, NewDispatchLeadUseCase(store, allSucceed(), time.Second))

	_, err := uc.Execute(context.Background(), CreateLeadInput{FullName: "X"})

	var de *DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "VALIDATION_ERROR", de.Code)
	assert.Len(t, de.Fields, 4)
	store.AssertNotCalled(t, "CreateLeadWithDeliveries", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateLeadStorageError(t *testing.T) {
	store := new(MockLeadStore)
	storageErr := errors.Join(entity.ErrStorage, errors.New("disk full"))
	store.On("CreateLeadWithDeliveries", mock.Anything, mock.Anything, entity.AllChannels()).Return(nil, storageErr)

	uc := NewCreateLeadUseCase(store, NewDispatchLeadUseCase(store, allSucceed(), time.Second))
	_, err := uc.Execute(context.Background(), validInput())

	assert.True(t, IsTechnicalError(err))
	assert.ErrorIs(t, err, entity.ErrStorage)
	store.AssertNotCalled(t, "GetLead", mock.Anything, mock.Anything)
}
