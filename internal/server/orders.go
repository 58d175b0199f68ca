package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Nitesh0626/callingAgent-backend/internal/order"
)

// handleListOrders returns all stored orders, oldest first.
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.List(r.Context())
	if err != nil {
		s.log.Error("list orders", slog.String("error", err.Error()))
		http.Error(w, `{"error":"store unavailable"}`, http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// statusPatch is the PATCH /orders/{id}/status request body.
type statusPatch struct {
	Status order.Status `json:"status"`
}

// handleUpdateOrderStatus sets the status of an existing order. Status values
// beyond "created" come from here, not from the call path.
func (s *Server) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var patch statusPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	if !patch.Status.IsValid() {
		http.Error(w, `{"error":"invalid status"}`, http.StatusBadRequest)
		return
	}

	found, err := s.store.UpdateStatus(r.Context(), id, patch.Status)
	if err != nil {
		s.log.Error("update order status",
			slog.String("order_id", id),
			slog.String("error", err.Error()))
		http.Error(w, `{"error":"store unavailable"}`, http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, `{"error":"order not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"orderId": id,
		"status":  string(patch.Status),
	})
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
