// Package order defines the order record produced by completed calls and the
// narrow append-log store interface it is persisted through.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an order. Only "created" is assigned by
// this service; later states are set by an external actor through
// [Store.UpdateStatus].
type Status string

const (
	StatusCreated   Status = "created"
	StatusConfirmed Status = "confirmed"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusConfirmed, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Item is one line item of an order.
type Item struct {
	Product  string `json:"product"`
	Flavor   string `json:"flavor,omitempty"`
	Weight   string `json:"weight,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

// Order is a completed order captured from a call.
type Order struct {
	// ID is generated at creation time; timestamp-derived, unique enough
	// to avoid collisions between concurrent sessions.
	ID string `json:"id"`

	CustomerName string `json:"customer_name"`
	PhoneNumber  string `json:"phone_number"`
	Address      string `json:"address"`

	// DeliveryAt is the requested delivery date/time, as spoken by the
	// caller and normalised by the model. Stored verbatim.
	DeliveryAt string `json:"delivery_datetime"`

	Items []Item `json:"items"`

	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`
}

// Validate checks that all required fields are present. Schema enforcement
// happens at the model layer, but a record with missing required fields must
// never reach the store.
func (o *Order) Validate() error {
	var errs []error
	if o.CustomerName == "" {
		errs = append(errs, errors.New("customer_name is required"))
	}
	if o.PhoneNumber == "" {
		errs = append(errs, errors.New("phone_number is required"))
	}
	if o.Address == "" {
		errs = append(errs, errors.New("address is required"))
	}
	if o.DeliveryAt == "" {
		errs = append(errs, errors.New("delivery_datetime is required"))
	}
	if len(o.Items) == 0 {
		errs = append(errs, errors.New("items must not be empty"))
	}
	return errors.Join(errs...)
}

// NewID derives an order identifier from the given time. Millisecond
// resolution keeps concurrent sessions from colliding in practice.
func NewID(now time.Time) string {
	return fmt.Sprintf("ORD-%d", now.UnixMilli())
}

// Store is the narrow persistence interface for orders: an append-mostly
// log. Each Append is a single atomic write; concurrent appends from
// different sessions must not interleave partial records.
type Store interface {
	// Append persists a new order record.
	Append(ctx context.Context, o Order) error

	// List returns all orders with their current status, oldest first.
	List(ctx context.Context) ([]Order, error)

	// UpdateStatus sets the status of an existing order. Returns false when
	// no order with the given id exists. Applying the same status twice
	// yields the same stored state and no duplicate records.
	UpdateStatus(ctx context.Context, id string, status Status) (bool, error)
}
