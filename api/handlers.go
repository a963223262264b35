/*
handlers.go - HTTP API handlers for the edge order ledger

PURPOSE:
  Exposes the order ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Orders:
    POST   /api/orders/commands       Execute a command against the ledger
    GET    /api/orders                List active order snapshots
    GET    /api/orders/{id}           Get one order snapshot
    GET    /api/orders/{id}/events    Event history for one order
    GET    /api/orders/{id}/verify    Replay integrity check

  Sync:
    POST   /api/sync                  Incremental catch-up for clients

  Catalog:
    GET/POST /api/catalog/products    Product management
    GET/POST /api/catalog/rules       Price rule management
    GET/POST /api/catalog/activities  Stamp activity management

  Health:
    GET    /api/health                Liveness plus ledger head

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (manager, sync service, catalog)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid operations
  - 404: Order or catalog entry not found
  - 409: State conflicts (order already completed/voided)
  - 500: Storage errors

SECURITY NOTE:
  Currently NO authentication or authorization. The server binds to a
  LAN interface behind the venue's network; operator identity travels
  inside commands for attribution, not access control.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ledger/manager.go: Command execution
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mesa/pos-edge/catalog"
	"github.com/mesa/pos-edge/ledger"
	"github.com/mesa/pos-edge/ordersync"
	"github.com/mesa/pos-edge/pricing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Manager *ledger.Manager
	Store   ledger.Store
	Sync    *ordersync.Service
	Catalog catalog.Admin
	Logger  *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(manager *ledger.Manager, store ledger.Store, sync *ordersync.Service, cat catalog.Admin, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Manager: manager,
		Store:   store,
		Sync:    sync,
		Catalog: cat,
		Logger:  logger,
	}
}

// =============================================================================
// ORDER ENDPOINTS
// =============================================================================

// ExecuteCommand runs one command against the ledger.
// POST /api/orders/commands
func (h *Handler) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var cmd ledger.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid command body", err)
		return
	}

	result, err := h.Manager.Execute(r.Context(), cmd)
	if err != nil {
		h.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CommandResultDTO{
		OrderID: result.OrderID,
		Events:  result.Events,
	})
}

// ListOrders returns summaries of all active orders.
// GET /api/orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.Store.ActiveSnapshots(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list orders", err)
		return
	}

	dtos := make([]OrderSummaryDTO, 0, len(snapshots))
	for _, s := range snapshots {
		dtos = append(dtos, toOrderSummary(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetOrder returns the full snapshot for one order.
// GET /api/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	snap, err := h.Store.LoadSnapshot(r.Context(), orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load order", err)
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "Order not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetOrderEvents returns the event history for one order.
// GET /api/orders/{id}/events
func (h *Handler) GetOrderEvents(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	events, err := h.Store.EventsForOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load events", err)
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, "Order not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, EventsDTO{OrderID: orderID, Events: events})
}

// VerifyOrder replays an order's events and compares against the
// stored snapshot.
// GET /api/orders/{id}/verify
func (h *Handler) VerifyOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	result, err := h.Sync.VerifySnapshot(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, ledger.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "Order not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Verification failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// SYNC ENDPOINT
// =============================================================================

// SyncOrders answers a client's catch-up request.
// POST /api/sync
func (h *Handler) SyncOrders(w http.ResponseWriter, r *http.Request) {
	var req ordersync.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sync request", err)
		return
	}

	resp, err := h.Sync.Sync(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sync failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

// ListProducts returns all products.
// GET /api/catalog/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// SaveProduct creates or replaces a product.
// POST /api/catalog/products
func (h *Handler) SaveProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product body", err)
		return
	}
	if p.ID == "" || p.Name == "" {
		writeError(w, http.StatusBadRequest, "Product requires id and name", nil)
		return
	}

	if err := h.Catalog.SaveProduct(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save product", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListRules returns all price rules.
// GET /api/catalog/rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Catalog.ListRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}
	if rules == nil {
		rules = []pricing.PriceRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// SaveRule creates or replaces a price rule.
// POST /api/catalog/rules
func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	var rule pricing.PriceRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule body", err)
		return
	}
	if rule.ID == "" {
		writeError(w, http.StatusBadRequest, "Rule requires id", nil)
		return
	}

	if err := h.Catalog.SaveRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// ListActivities returns all stamp activities.
// GET /api/catalog/activities
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.Catalog.ListActivities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list activities", err)
		return
	}
	if activities == nil {
		activities = []catalog.StampActivity{}
	}
	writeJSON(w, http.StatusOK, activities)
}

// SaveActivity creates or replaces a stamp activity.
// POST /api/catalog/activities
func (h *Handler) SaveActivity(w http.ResponseWriter, r *http.Request) {
	var a catalog.StampActivity
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid activity body", err)
		return
	}
	if a.ID == "" {
		writeError(w, http.StatusBadRequest, "Activity requires id", nil)
		return
	}

	if err := h.Catalog.SaveActivity(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save activity", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// =============================================================================
// HEALTH ENDPOINT
// =============================================================================

// Health reports liveness and the current ledger head.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	seq, err := h.Store.CurrentSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Storage unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, HealthDTO{
		Status:   "ok",
		Sequence: seq,
		Epoch:    h.Sync.Epoch(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// writeCommandError maps ledger errors onto HTTP statuses.
func (h *Handler) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "Order not found", err)
	case errors.Is(err, ledger.ErrOrderAlreadyCompleted),
		errors.Is(err, ledger.ErrOrderAlreadyVoided):
		writeError(w, http.StatusConflict, "Order state conflict", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid command", err)
	case ledger.IsStorageError(err):
		h.Logger.Error("command storage failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Storage failure", err)
	default:
		h.Logger.Error("command failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Command failed", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
