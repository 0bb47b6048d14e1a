package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceRepairSumsCurrentPrices(t *testing.T) {
	db := newTestDB(t)
	chain := createRepairService(t, db, "Chain replacement", 200)
	brake := createRepairService(t, db, "Brake tuning", 300)
	pricing := NewPricing(100, 50, 1)

	q, err := pricing.PriceRepair(context.Background(), db, []uuid.UUID{chain.ID, brake.ID, chain.ID})
	require.NoError(t, err)
	assert.Len(t, q.Services, 2)
	assert.True(t, q.Total.Equal(dec(600)), "got %s", q.Total)
	assert.Equal(t, []string{TagRepairServices, TagMechanicCharge}, q.Items)
}

func TestPriceRepairRejectsInactiveService(t *testing.T) {
	db := newTestDB(t)
	chain := createRepairService(t, db, "Chain replacement", 200)
	retired := createRepairService(t, db, "Retired", 10)
	require.NoError(t, db.Model(&retired).Update("is_active", false).Error)

	_, err := NewPricing(0, 0, 1).PriceRepair(context.Background(), db, []uuid.UUID{chain.ID, retired.ID})
	assert.True(t, IsKind(err, KindValidation), "got %v", err)

	_, err = NewPricing(0, 0, 1).PriceRepair(context.Background(), db, nil)
	assert.True(t, IsKind(err, KindValidation), "got %v", err)
}

func TestPriceRental(t *testing.T) {
	db := newTestDB(t)
	bike := createBicycle(t, db)
	pricing := NewPricing(0, 50, 1)

	tests := []struct {
		unit     string
		duration int
		want     float64
	}{
		{DurationHourly, 3, 200},
		{DurationDaily, 2, 650},
		{DurationWeekly, 1, 1550},
	}
	for _, tt := range tests {
		q, err := pricing.PriceRental(context.Background(), db, bike.ID, tt.unit, tt.duration)
		require.NoError(t, err, tt.unit)
		assert.True(t, q.Total.Equal(dec(tt.want)), "%s: got %s", tt.unit, q.Total)
	}

	_, err := pricing.PriceRental(context.Background(), db, bike.ID, DurationHourly, 0)
	assert.True(t, IsKind(err, KindValidation))

	_, err = pricing.PriceRental(context.Background(), db, uuid.New(), DurationHourly, 1)
	assert.True(t, IsKind(err, KindValidation))

	require.NoError(t, db.Model(&bike).Update("is_available", false).Error)
	_, err = pricing.PriceRental(context.Background(), db, bike.ID, DurationHourly, 1)
	assert.True(t, IsKind(err, KindValidation))
}

func TestCheckClientTotal(t *testing.T) {
	p := NewPricing(0, 0, 1)
	server := dec(600)

	assert.NoError(t, p.CheckClientTotal(nil, server))
	assert.NoError(t, p.CheckClientTotal(ptr(600.0), server))
	assert.NoError(t, p.CheckClientTotal(ptr(599.0), server))
	assert.NoError(t, p.CheckClientTotal(ptr(601.0), server))

	err := p.CheckClientTotal(ptr(650.0), server)
	require.Error(t, err)
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, e.Kind)
	require.Len(t, e.Fields, 1)
	assert.Equal(t, "total_amount", e.Fields[0].Field)
	assert.Equal(t, "expected 600.00", e.Fields[0].Message)
}

func TestSpreadDiscount(t *testing.T) {
	prices := []decimal.Decimal{dec(200), dec(300)}
	shares := SpreadDiscount(prices, dec(600), dec(200))
	require.Len(t, shares, 2)

	sum := shares[0].Add(shares[1])
	assert.True(t, shares[0].Equal(dec(66.67)), "got %s", shares[0])
	assert.True(t, sum.Equal(dec(166.67)), "got %s", sum)

	for _, s := range SpreadDiscount(prices, dec(600), decimal.Zero) {
		assert.True(t, s.IsZero())
	}
	assert.Empty(t, SpreadDiscount(nil, dec(100), dec(10)))
}

func TestPricingItemTagsFollowConfiguredCharges(t *testing.T) {
	none := NewPricing(0, 0, 1)
	assert.Equal(t, []string{TagRepairServices}, none.ItemTags(RequestRepair))
	assert.Equal(t, []string{TagRentalServices}, none.ItemTags(RequestRental))

	charged := NewPricing(100, 50, 1)
	assert.Equal(t, []string{TagRepairServices, TagMechanicCharge}, charged.ItemTags(RequestRepair))
	assert.Equal(t, []string{TagRentalServices, TagDeliveryCharge}, charged.ItemTags(RequestRental))

	assert.Equal(t, []string{TagRepairServices}, none.PricedItems(RequestRepair, nil))
	assert.Equal(t, []string{TagRepairServices}, none.PricedItems(RequestRepair, []string{TagMechanicCharge, TagRepairServices}))
	assert.Empty(t, none.PricedItems(RequestRepair, []string{TagMechanicCharge}))
	assert.Equal(t, []string{TagMechanicCharge}, charged.PricedItems(RequestRepair, []string{TagMechanicCharge}))
}
