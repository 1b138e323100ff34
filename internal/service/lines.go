package service

import (
	"context"
	"errors"
	"strings"

	"bingopos/backend/internal/domain"
	"bingopos/backend/internal/store"
)

// normalizeLines checks the arithmetic of every line against the catalogue
// and returns the summed total. Product names are filled from the catalogue;
// unknown or inactive products and stale prices are rejected.
func (s *Service) normalizeLines(ctx context.Context, category error, items []domain.LineItem) ([]domain.LineItem, int64, error) {
	if len(items) == 0 {
		return nil, 0, invalid(category, "at least one item is required")
	}

	out := make([]domain.LineItem, 0, len(items))
	total := int64(0)
	for i, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" {
			return nil, 0, invalid(category, "item %d has no product", i+1)
		}
		if item.Quantity < 1 {
			return nil, 0, invalid(category, "item %d quantity must be at least 1", i+1)
		}
		if item.UnitPrice < 0 {
			return nil, 0, invalid(category, "item %d unit price cannot be negative", i+1)
		}
		if item.Subtotal != int64(item.Quantity)*item.UnitPrice {
			return nil, 0, invalid(category, "item %d subtotal %d does not match %d x %d", i+1, item.Subtotal, item.Quantity, item.UnitPrice)
		}

		product, err := s.repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, 0, invalid(category, "product %s does not exist", item.ProductID)
			}
			return nil, 0, storageFailure("get product", err)
		}
		if !product.Active {
			return nil, 0, invalid(category, "product %s is not available", product.Name)
		}
		if item.UnitPrice != product.Price {
			return nil, 0, invalid(category, "item %d unit price %d does not match the catalogue price %d", i+1, item.UnitPrice, product.Price)
		}
		item.ProductName = product.Name

		total += item.Subtotal
		out = append(out, item)
	}
	return out, total, nil
}

func toSaleLines(items []domain.LineItem) []domain.SaleLine {
	lines := make([]domain.SaleLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, domain.SaleLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	return lines
}

func customerInfo(c domain.CustomerInfo) domain.CustomerInfo {
	return domain.CustomerInfo{
		Document: strings.TrimSpace(c.Document),
		Phone:    strings.TrimSpace(c.Phone),
	}
}
