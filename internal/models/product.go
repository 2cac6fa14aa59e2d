package models

// Product is the remote-authoritative inventory record. The agent never
// stores products locally; the struct exists to decode API responses.
// Version increments on every successful server-side mutation and is the
// basis for optimistic concurrency on updates.
type Product struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	SKU       string  `json:"sku,omitempty"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Version   int64   `json:"version"`
	UpdatedAt int64   `json:"updated_at,omitempty"`
}
