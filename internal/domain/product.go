package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ProductID identifies a catalog product. Stored carts written by older
// storefront builds carry numeric ids, so both JSON numbers and strings are
// accepted on decode; it always encodes as a string.
type ProductID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ProductID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ProductID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	*id = ProductID(n.String())
	return nil
}

func (id ProductID) String() string { return string(id) }

// ProductRef is the product snapshot captured when a line is added to the
// cart or refreshed from the catalog. Prices are integer minor units.
type ProductRef struct {
	ID          ProductID `json:"id"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	ImageURL    string    `json:"imageUrl"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
}

// Valid reports whether the snapshot can back a cart line.
func (p ProductRef) Valid() bool {
	return p.ID != "" && p.Price >= 0 && p.Stock >= 0
}

// ClampQuantity bounds qty to [1, stock]. A product without stock clamps to 0.
func ClampQuantity(qty, stock int) int {
	if stock <= 0 {
		return 0
	}
	if qty < 1 {
		return 1
	}
	if qty > stock {
		return stock
	}
	return qty
}
