package tools_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Nitesh0626/callingAgent-backend/internal/order"
	"github.com/Nitesh0626/callingAgent-backend/internal/tools"
	"github.com/Nitesh0626/callingAgent-backend/pkg/realtime"
)

// memStore is an in-memory order.Store recording appends.
type memStore struct {
	mu        sync.Mutex
	orders    []order.Order
	appendErr error
}

func (m *memStore) Append(_ context.Context, o order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.orders = append(m.orders, o)
	return nil
}

func (m *memStore) List(context.Context) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]order.Order(nil), m.orders...), nil
}

func (m *memStore) UpdateStatus(context.Context, string, order.Status) (bool, error) {
	return false, nil
}

const validArgs = `{
	"customer_name": "Alice",
	"phone_number": "+15550100",
	"address": "1 Main St",
	"delivery_datetime": "2026-09-01 14:00",
	"items": [{"product": "cake", "flavor": "chocolate", "weight": "1kg", "quantity": 1}]
}`

func fixedClock() time.Time {
	return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
}

func TestDispatch_CreateOrder(t *testing.T) {
	store := &memStore{}
	b := tools.New(store, tools.WithClock(fixedClock))

	res, err := b.Dispatch(context.Background(), realtime.ToolCall{
		ID: "call_1", Name: tools.ToolCreateOrder, Arguments: validArgs,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != "created" {
		t.Errorf("status: got %q, want created", res.Status)
	}
	if res.OrderID == "" {
		t.Error("orderId must be non-empty")
	}

	if len(store.orders) != 1 {
		t.Fatalf("expected 1 stored order, got %d", len(store.orders))
	}
	stored := store.orders[0]
	if stored.Status != order.StatusCreated {
		t.Errorf("stored status: got %q, want created", stored.Status)
	}
	if stored.CustomerName != "Alice" || stored.Items[0].Flavor != "chocolate" {
		t.Errorf("stored order fields wrong: %+v", stored)
	}
	if !stored.CreatedAt.Equal(fixedClock()) {
		t.Errorf("created_at: got %v", stored.CreatedAt)
	}
}

func TestDispatch_CreateOrderMissingAddress(t *testing.T) {
	store := &memStore{}
	b := tools.New(store)

	args := strings.Replace(validArgs, `"address": "1 Main St",`, `"address": "",`, 1)
	res, err := b.Dispatch(context.Background(), realtime.ToolCall{
		ID: "call_1", Name: tools.ToolCreateOrder, Arguments: args,
	})

	var verr *tools.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if res.Status != "failed" {
		t.Errorf("status: got %q, want failed", res.Status)
	}
	if len(store.orders) != 0 {
		t.Errorf("incomplete order must not be stored, got %d records", len(store.orders))
	}
}

func TestDispatch_CreateOrderUnparseableArguments(t *testing.T) {
	b := tools.New(&memStore{})
	res, err := b.Dispatch(context.Background(), realtime.ToolCall{
		ID: "call_1", Name: tools.ToolCreateOrder, Arguments: `{broken`,
	})
	var verr *tools.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if res.Status != "failed" {
		t.Errorf("status: got %q, want failed", res.Status)
	}
}

func TestDispatch_CreateOrderStoreFailure(t *testing.T) {
	store := &memStore{appendErr: errors.New("disk full")}
	b := tools.New(store)

	res, err := b.Dispatch(context.Background(), realtime.ToolCall{
		ID: "call_1", Name: tools.ToolCreateOrder, Arguments: validArgs,
	})
	if err == nil {
		t.Fatal("store failure must be reported, not swallowed")
	}
	if res.Status != "failed" || res.Error == "" {
		t.Errorf("failure must be surfaced to the model: %+v", res)
	}
}

func TestDispatch_TransferToAgent(t *testing.T) {
	b := tools.New(&memStore{})
	res, err := b.Dispatch(context.Background(), realtime.ToolCall{
		ID: "call_2", Name: tools.ToolTransferToAgent, Arguments: `{"reason":"caller asked"}`,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != "success" {
		t.Errorf("status: got %q, want success", res.Status)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	b := tools.New(&memStore{})
	res, err := b.Dispatch(context.Background(), realtime.ToolCall{
		ID: "call_3", Name: "cancel_subscription", Arguments: `{}`,
	})
	if !errors.Is(err, tools.ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if res.Status != "failed" {
		t.Errorf("status: got %q, want failed", res.Status)
	}
}

func TestResult_JSON(t *testing.T) {
	res := tools.Result{Status: "created", OrderID: "ORD-1"}
	got := res.JSON()
	if !strings.Contains(got, `"status":"created"`) || !strings.Contains(got, `"orderId":"ORD-1"`) {
		t.Errorf("unexpected JSON: %s", got)
	}
}

func TestDefinitions_DeclareBothTools(t *testing.T) {
	defs := tools.Definitions()
	if len(defs) != 2 {
		t.Fatalf("expected 2 tool definitions, got %d", len(defs))
	}
	names := map[string]bool{}
	for _, d := range defs {
		names[d.Name] = true
		if d.Parameters["type"] != "object" {
			t.Errorf("%s: parameters must be an object schema", d.Name)
		}
	}
	if !names[tools.ToolCreateOrder] || !names[tools.ToolTransferToAgent] {
		t.Errorf("missing tool names: %v", names)
	}
}
