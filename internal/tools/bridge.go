// Package tools maps model-issued tool calls to their handlers and shields
// the session from handler failures: every dispatch produces a structured
// result for the model, never an error that could tear the call down.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Nitesh0626/callingAgent-backend/internal/order"
	"github.com/Nitesh0626/callingAgent-backend/pkg/realtime"
)

// Tool names the model may invoke.
const (
	ToolCreateOrder     = "create_order"
	ToolTransferToAgent = "transfer_to_agent"
)

// ErrUnknownTool reports a tool call whose name has no registered handler.
var ErrUnknownTool = errors.New("tools: unknown tool")

// ValidationError reports a create_order call with missing required fields.
// The model layer enforces the schema, but the bridge refuses to persist an
// incomplete record regardless.
type ValidationError struct {
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tools: invalid order: %v", e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// Result is the structured outcome returned to the model for a dispatched
// tool call.
type Result struct {
	Status  string `json:"status"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSON renders the result for delivery over the session.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"status":"failed","error":"internal"}`
	}
	return string(data)
}

// Option is a functional option for configuring a Bridge.
type Option func(*Bridge)

// WithClock overrides the time source used for order ids and creation
// stamps. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// Bridge dispatches model tool calls to their handlers.
type Bridge struct {
	store order.Store
	now   func() time.Time
}

// New creates a Bridge persisting orders through the given store.
func New(store order.Store, opts ...Option) *Bridge {
	b := &Bridge{store: store, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Dispatch executes the named tool and returns the result to send back to
// the model. The error return classifies the failure for logging and
// metrics; it is never nil when Result.Status is "failed", and callers
// deliver the Result either way so one bad tool call never ends the call.
func (b *Bridge) Dispatch(ctx context.Context, call realtime.ToolCall) (Result, error) {
	switch call.Name {
	case ToolCreateOrder:
		return b.createOrder(ctx, call)
	case ToolTransferToAgent:
		return b.transferToAgent(call)
	default:
		err := fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
		return Result{Status: "failed", Error: "unknown tool " + call.Name}, err
	}
}

// createOrderArgs mirrors the declared create_order schema.
type createOrderArgs struct {
	CustomerName string `json:"customer_name"`
	PhoneNumber  string `json:"phone_number"`
	Address      string `json:"address"`
	DeliveryAt   string `json:"delivery_datetime"`
	Items        []struct {
		Product  string `json:"product"`
		Flavor   string `json:"flavor"`
		Weight   string `json:"weight"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
}

func (b *Bridge) createOrder(ctx context.Context, call realtime.ToolCall) (Result, error) {
	var args createOrderArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		verr := &ValidationError{Cause: fmt.Errorf("arguments are not valid JSON: %w", err)}
		return Result{Status: "failed", Error: "order details could not be parsed"}, verr
	}

	now := b.now().UTC()
	o := order.Order{
		ID:           order.NewID(now),
		CustomerName: strings.TrimSpace(args.CustomerName),
		PhoneNumber:  strings.TrimSpace(args.PhoneNumber),
		Address:      strings.TrimSpace(args.Address),
		DeliveryAt:   strings.TrimSpace(args.DeliveryAt),
		CreatedAt:    now,
		Status:       order.StatusCreated,
	}
	for _, it := range args.Items {
		o.Items = append(o.Items, order.Item{
			Product:  it.Product,
			Flavor:   it.Flavor,
			Weight:   it.Weight,
			Quantity: it.Quantity,
		})
	}

	if err := o.Validate(); err != nil {
		verr := &ValidationError{Cause: err}
		return Result{Status: "failed", Error: "missing required fields: " + err.Error()}, verr
	}

	if err := b.store.Append(ctx, o); err != nil {
		// Surfaced to the model so it can apologise or retry; never
		// silently swallowed.
		slog.Error("order store write failed", "order_id", o.ID, "err", err)
		return Result{Status: "failed", Error: "the order could not be saved"},
			fmt.Errorf("tools: store write: %w", err)
	}

	slog.Info("order created",
		"order_id", o.ID,
		"customer", o.CustomerName,
		"items", len(o.Items),
	)
	return Result{Status: "created", OrderID: o.ID}, nil
}

func (b *Bridge) transferToAgent(call realtime.ToolCall) (Result, error) {
	var args struct {
		Reason string `json:"reason"`
	}
	// A missing or malformed reason is not worth failing the transfer over.
	_ = json.Unmarshal([]byte(call.Arguments), &args)

	// The actual call transfer is a signalling-layer action; the bridge only
	// records the request.
	slog.Info("transfer to human agent requested", "reason", args.Reason)
	return Result{Status: "success"}, nil
}

// Definitions returns the tool schema declared to the model at session start.
func Definitions() []realtime.ToolDefinition {
	return []realtime.ToolDefinition{
		{
			Name:        ToolCreateOrder,
			Description: "Record a completed order once the caller has confirmed all details.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"customer_name":     map[string]any{"type": "string"},
					"phone_number":      map[string]any{"type": "string"},
					"address":           map[string]any{"type": "string"},
					"delivery_datetime": map[string]any{"type": "string"},
					"items": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"product":  map[string]any{"type": "string"},
								"flavor":   map[string]any{"type": "string"},
								"weight":   map[string]any{"type": "string"},
								"quantity": map[string]any{"type": "integer"},
							},
						},
					},
				},
				"required": []string{"customer_name", "phone_number", "address", "delivery_datetime", "items"},
			},
		},
		{
			Name:        ToolTransferToAgent,
			Description: "Hand the call over to a human agent.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{"type": "string"},
				},
				"required": []string{"reason"},
			},
		},
	}
}
