package domain

import (
	"encoding/json"
	"testing"
)

func TestDecodeOrderDetailsAcceptsBothEncodings(t *testing.T) {
	plain := `[{"product_id":"p-1","quantity":2,"unit_price":1500,"subtotal":3000}]`
	wrapped, _ := json.Marshal(plain)

	for name, payload := range map[string][]byte{"plain": []byte(plain), "wrapped": wrapped} {
		details, err := DecodeOrderDetails(payload)
		if err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if len(details) != 1 || details[0].ProductID != "p-1" || details[0].Quantity != 2 {
			t.Fatalf("%s: unexpected details %+v", name, details)
		}
	}
}

func TestDecodeOrderDetailsRejectsGarbage(t *testing.T) {
	if _, err := DecodeOrderDetails([]byte(`{"product_id":"p-1"}`)); err == nil {
		t.Fatalf("expected object payload to fail")
	}
	if _, err := DecodeOrderDetails([]byte(`"not json"`)); err == nil {
		t.Fatalf("expected wrapped garbage to fail")
	}
}

func TestOrderDetailsScanAndValue(t *testing.T) {
	in := OrderDetails{{ProductID: "p-2", Quantity: 1, UnitPrice: 2000, Subtotal: 2000}}
	raw, err := in.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var out OrderDetails
	if err := out.Scan(raw); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(out) != 1 || out[0].Subtotal != 2000 {
		t.Fatalf("unexpected scan result %+v", out)
	}
	if err := out.Scan(nil); err != nil || len(out) != 0 {
		t.Fatalf("expected nil column to scan as empty, got %+v %v", out, err)
	}
}
