package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/utils"
)

// Rental duration units.
const (
	DurationHourly = "hourly"
	DurationDaily  = "daily"
	DurationWeekly = "weekly"
)

// Pricing computes authoritative totals from catalogue prices.
type Pricing struct {
	mechanicCharge decimal.Decimal
	deliveryCharge decimal.Decimal
	tolerance      decimal.Decimal
}

// NewPricing constructs a Pricing with the configured surcharges and client tolerance.
func NewPricing(mechanicCharge, deliveryCharge, tolerance float64) *Pricing {
	return &Pricing{
		mechanicCharge: decimal.NewFromFloat(mechanicCharge),
		deliveryCharge: decimal.NewFromFloat(deliveryCharge),
		tolerance:      decimal.NewFromFloat(tolerance),
	}
}

// ItemTags returns the item tags a request of type rt is priced with. A surcharge tag is
// included only when that surcharge is configured.
func (p *Pricing) ItemTags(rt RequestType) []string {
	switch rt {
	case RequestRepair:
		return ItemTags(rt, p.mechanicCharge.Sign() > 0)
	case RequestRental:
		return ItemTags(rt, p.deliveryCharge.Sign() > 0)
	}
	return nil
}

// PricedItems keeps the requested tags that a request of type rt is actually priced with.
// An empty request means all of them.
func (p *Pricing) PricedItems(rt RequestType, requested []string) []string {
	priced := p.ItemTags(rt)
	if len(requested) == 0 {
		return priced
	}
	out := make([]string, 0, len(requested))
	for _, tag := range requested {
		for _, t := range priced {
			if tag == t {
				out = append(out, tag)
				break
			}
		}
	}
	return out
}

// RepairQuote is the priced breakdown of a repair request.
type RepairQuote struct {
	Services       []models.RepairService
	MechanicCharge decimal.Decimal
	Total          decimal.Decimal
	Items          []string
}

// RentalQuote is the priced breakdown of a rental request.
type RentalQuote struct {
	Bicycle        models.Bicycle
	Rate           decimal.Decimal
	DeliveryCharge decimal.Decimal
	Total          decimal.Decimal
	Items          []string
}

// PriceRepair loads the selected services and sums their current prices.
func (p *Pricing) PriceRepair(ctx context.Context, db *gorm.DB, serviceIDs []uuid.UUID) (*RepairQuote, error) {
	ids := dedupe(serviceIDs)
	if len(ids) == 0 {
		return nil, ValidationError("at least one service is required", utils.FieldError{Field: "service_ids", Message: "service_ids must not be empty"})
	}

	var services []models.RepairService
	if err := db.WithContext(ctx).Where("id IN ? AND is_active = ?", ids, true).Find(&services).Error; err != nil {
		return nil, wrapStore(err, "load repair services")
	}
	if len(services) != len(ids) {
		return nil, ValidationError("unknown or inactive service selected", utils.FieldError{Field: "service_ids", Message: "one or more services are unavailable"})
	}

	byID := make(map[uuid.UUID]models.RepairService, len(services))
	for _, s := range services {
		byID[s.ID] = s
	}

	q := &RepairQuote{MechanicCharge: p.mechanicCharge, Total: decimal.Zero}
	for _, id := range ids {
		svc := byID[id]
		q.Services = append(q.Services, svc)
		q.Total = q.Total.Add(decimal.NewFromFloat(svc.Price))
	}
	q.Total = q.Total.Add(p.mechanicCharge).Round(2)
	q.Items = p.ItemTags(RequestRepair)
	return q, nil
}

// PriceRental multiplies the bicycle's rate for durationType by duration and adds delivery.
func (p *Pricing) PriceRental(ctx context.Context, db *gorm.DB, bicycleID uuid.UUID, durationType string, duration int) (*RentalQuote, error) {
	if duration < 1 {
		return nil, ValidationError("duration must be at least 1", utils.FieldError{Field: "duration", Message: "duration must be at least 1"})
	}

	var bike models.Bicycle
	if err := db.WithContext(ctx).First(&bike, "id = ?", bicycleID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ValidationError("bicycle not found", utils.FieldError{Field: "bicycle_id", Message: "bicycle does not exist"})
		}
		return nil, wrapStore(err, "load bicycle")
	}
	if !bike.IsAvailable {
		return nil, ValidationError("bicycle is not available", utils.FieldError{Field: "bicycle_id", Message: "bicycle is not available"})
	}

	var rate float64
	switch durationType {
	case DurationHourly:
		rate = bike.HourlyRate
	case DurationDaily:
		rate = bike.DailyRate
	case DurationWeekly:
		rate = bike.WeeklyRate
	default:
		return nil, ValidationError("invalid duration type", utils.FieldError{Field: "duration_type", Message: "duration_type must be one of [hourly daily weekly]"})
	}
	if rate <= 0 {
		return nil, ValidationError("bicycle is not offered for this duration", utils.FieldError{Field: "duration_type", Message: fmt.Sprintf("no %s rate for this bicycle", durationType)})
	}

	r := decimal.NewFromFloat(rate)
	total := r.Mul(decimal.NewFromInt(int64(duration))).Add(p.deliveryCharge).Round(2)
	return &RentalQuote{
		Bicycle:        bike,
		Rate:           r,
		DeliveryCharge: p.deliveryCharge,
		Total:          total,
		Items:          p.ItemTags(RequestRental),
	}, nil
}

// CheckClientTotal rejects a client-computed total that differs from the server total
// by more than the tolerance. A nil client total is accepted.
func (p *Pricing) CheckClientTotal(client *float64, server decimal.Decimal) error {
	if client == nil {
		return nil
	}
	diff := decimal.NewFromFloat(*client).Sub(server).Abs()
	if diff.GreaterThan(p.tolerance) {
		return ValidationError("total amount does not match current prices", utils.FieldError{
			Field:   "total_amount",
			Message: fmt.Sprintf("expected %s", server.StringFixed(2)),
		})
	}
	return nil
}

// SpreadDiscount attributes discount to each line proportionally to its share of total.
// The last line absorbs rounding so the shares sum to the lines' portion of the discount.
func SpreadDiscount(prices []decimal.Decimal, total, discount decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(prices))
	if len(prices) == 0 || total.Sign() <= 0 || discount.Sign() <= 0 {
		for i := range shares {
			shares[i] = decimal.Zero
		}
		return shares
	}

	linesTotal := decimal.Zero
	for _, p := range prices {
		linesTotal = linesTotal.Add(p)
	}
	linesShare := discount.Mul(linesTotal).Div(total).Round(2)

	allocated := decimal.Zero
	for i, p := range prices {
		if i == len(prices)-1 {
			shares[i] = linesShare.Sub(allocated)
			break
		}
		shares[i] = discount.Mul(p).Div(total).Round(2)
		allocated = allocated.Add(shares[i])
	}
	return shares
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
