package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "₹200", FormatPrice(200))
	assert.Equal(t, "₹1,234.50", FormatPrice(1234.5))
	assert.Equal(t, "₹1,234,567", FormatPrice(1234567))
	assert.Equal(t, "₹0", FormatPrice(0))
}

func TestRoutingKey(t *testing.T) {
	ev := RequestEvent{Type: EventRequestCreated, RequestType: RequestRental, RequestID: uuid.New()}
	assert.Equal(t, "request.rental.created", ev.RoutingKey())
}
