package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// OrderDetails is the line list of a remote order. Older rows hold the list
// encoded twice (a JSON string whose content is the JSON array), so decoding
// accepts both forms.
type OrderDetails []LineItem

func (d *OrderDetails) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeOrderDetails(data)
	if err != nil {
		return err
	}
	*d = decoded
	return nil
}

// DecodeOrderDetails parses a serialized details payload. Empty input and
// JSON null decode to an empty list.
func DecodeOrderDetails(data []byte) (OrderDetails, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return OrderDetails{}, nil
	}
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, fmt.Errorf("decode order details: %w", err)
		}
		trimmed = bytes.TrimSpace([]byte(inner))
		if len(trimmed) == 0 {
			return OrderDetails{}, nil
		}
	}
	if trimmed[0] != '[' {
		return nil, errors.New("decode order details: payload is not a list")
	}
	var items []LineItem
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decode order details: %w", err)
	}
	if items == nil {
		items = []LineItem{}
	}
	return OrderDetails(items), nil
}

// Value stores details as a single JSON array.
func (d OrderDetails) Value() (driver.Value, error) {
	if d == nil {
		d = OrderDetails{}
	}
	raw, err := json.Marshal([]LineItem(d))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (d *OrderDetails) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = OrderDetails{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("decode order details: unsupported column type %T", src)
	}
	decoded, err := DecodeOrderDetails(raw)
	if err != nil {
		return err
	}
	*d = decoded
	return nil
}

// Units sums quantities per product.
func (d OrderDetails) Units() map[string]int {
	out := make(map[string]int, len(d))
	for _, item := range d {
		out[item.ProductID] += item.Quantity
	}
	return out
}
