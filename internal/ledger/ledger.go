// Package ledger derives per-product availability from the stored facts:
// initial stock, sale lines, returns and pending remote orders.
package ledger

import (
	"fmt"

	"bingopos/backend/internal/domain"
)

// UnreadableOrderError is returned when a pending order's details could not
// be decoded, so its reservation cannot be counted.
type UnreadableOrderError struct {
	OrderID string
	Code    string
}

func (e *UnreadableOrderError) Error() string {
	return fmt.Sprintf("pending remote order %s (code %s) has unreadable details", e.OrderID, e.Code)
}

// Compute returns one ProductStock per product, in input order.
// available = initial - sold + returned - reserved.
func Compute(products []domain.Product, lines []domain.SaleLine, returns []domain.Return, pending []domain.RemoteOrder) ([]domain.ProductStock, error) {
	sold := make(map[string]int)
	for _, line := range lines {
		sold[line.ProductID] += line.Quantity
	}
	returned := make(map[string]int)
	for _, ret := range returns {
		returned[ret.ProductID] += ret.Quantity
	}
	reserved, err := Reservations(pending)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProductStock, 0, len(products))
	for _, product := range products {
		s := sold[product.ID]
		r := returned[product.ID]
		res := reserved[product.ID]
		out = append(out, domain.ProductStock{
			Product:   product,
			Sold:      s,
			Returned:  r,
			Reserved:  res,
			Available: product.InitialStock - s + r - res,
		})
	}
	return out, nil
}

// Reservations sums the quantities held by pending orders. Orders in any
// other status are skipped.
func Reservations(orders []domain.RemoteOrder) (map[string]int, error) {
	reserved := make(map[string]int)
	for _, order := range orders {
		if order.Status != domain.OrderStatusPending {
			continue
		}
		if order.DetailsUnreadable {
			return nil, &UnreadableOrderError{OrderID: order.ID, Code: order.Code}
		}
		for productID, qty := range order.Details.Units() {
			reserved[productID] += qty
		}
	}
	return reserved, nil
}
