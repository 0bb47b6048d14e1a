package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagSetColumn(t *testing.T) {
	v, err := TagSet{"repair_services", "delivery_charge"}.Value()
	require.NoError(t, err)
	assert.Equal(t, "repair_services,delivery_charge", v)

	var tags TagSet
	require.NoError(t, tags.Scan([]byte(" repair_services, ,delivery_charge ")))
	assert.Equal(t, TagSet{"repair_services", "delivery_charge"}, tags)

	require.NoError(t, tags.Scan(nil))
	assert.Nil(t, tags)

	assert.Error(t, tags.Scan(42))
}

func TestTagSetIntersects(t *testing.T) {
	tags := TagSet{"repair_services"}
	assert.True(t, tags.Intersects([]string{"delivery_charge", "repair_services"}))
	assert.False(t, tags.Intersects([]string{"rental_services"}))
	assert.False(t, TagSet(nil).Intersects([]string{"rental_services"}))
}

func TestPromotionalCardVisible(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	before, after := now.Add(-time.Hour), now.Add(time.Hour)

	assert.True(t, PromotionalCard{IsActive: true}.Visible(now))
	assert.False(t, PromotionalCard{IsActive: false}.Visible(now))
	assert.True(t, PromotionalCard{IsActive: true, StartsAt: &before, EndsAt: &after}.Visible(now))
	assert.False(t, PromotionalCard{IsActive: true, StartsAt: &after}.Visible(now))
	assert.False(t, PromotionalCard{IsActive: true, EndsAt: &before}.Visible(now))
}
