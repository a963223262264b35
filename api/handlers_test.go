package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesa/pos-edge/api"
	"github.com/mesa/pos-edge/catalog"
	"github.com/mesa/pos-edge/ledger"
	"github.com/mesa/pos-edge/ledger/store"
	"github.com/mesa/pos-edge/ordersync"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router  http.Handler
	manager *ledger.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	cat := catalog.NewMemory()
	mgr := ledger.NewManager(mem, cat, nil, nil, decimal.Zero)
	sync := ordersync.NewService(mem, 100, nil)

	require.NoError(t, cat.SaveProduct(context.Background(), catalog.Product{
		ID: "espresso", Name: "Espresso", CategoryID: "coffee",
		Price: decimal.RequireFromString("3.50"),
	}))

	h := api.NewHandler(mgr, mem, sync, cat, nil)
	return &testServer{router: api.NewRouter(h), manager: mgr}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) execute(t *testing.T, cmd ledger.Command) {
	t.Helper()
	_, err := ts.manager.Execute(context.Background(), cmd)
	require.NoError(t, err)
}

func openTableCmd(orderID string) ledger.Command {
	return ledger.Command{
		CommandID: "c-open-" + orderID,
		Type:      ledger.CmdOpenTable,
		OrderID:   orderID,
		Payload:   ledger.OpenTablePayload{TableID: "t-1"},
	}
}

func addItemsCmd(orderID string, qty int64) ledger.Command {
	return ledger.Command{
		CommandID: "c-add-" + orderID,
		Type:      ledger.CmdAddItems,
		OrderID:   orderID,
		Payload:   ledger.AddItemsPayload{Items: []ledger.ItemInput{{ProductID: "espresso", Quantity: qty}}},
	}
}

// =============================================================================
// COMMAND ENDPOINT
// =============================================================================

func TestExecuteCommand_OpenTable(t *testing.T) {
	// GIVEN: A fresh server
	ts := newTestServer(t)

	// WHEN: Posting an open_table command
	rec := ts.do(t, http.MethodPost, "/api/orders/commands", openTableCmd("ord-1"))

	// THEN: The command succeeds and returns the minted event
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result api.CommandResultDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "ord-1", result.OrderID)
	require.Len(t, result.Events, 1)
	assert.Equal(t, ledger.EventOrderOpened, result.Events[0].Type)
	assert.EqualValues(t, 1, result.Events[0].Sequence)
}

func TestExecuteCommand_MalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/orders/commands",
		bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteCommand_UnknownOrder(t *testing.T) {
	// GIVEN: No orders exist
	ts := newTestServer(t)

	// WHEN: Targeting an order that was never opened
	rec := ts.do(t, http.MethodPost, "/api/orders/commands", ledger.Command{
		CommandID: "c-1",
		Type:      ledger.CmdVoidOrder,
		OrderID:   "ghost",
		Payload:   ledger.VoidOrderPayload{VoidType: "mistake"},
	})

	// THEN: 404
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteCommand_CompletedOrderConflict(t *testing.T) {
	// GIVEN: A completed order
	ts := newTestServer(t)
	ts.execute(t, openTableCmd("ord-1"))
	ts.execute(t, ledger.Command{
		CommandID: "c-done", Type: ledger.CmdCompleteOrder, OrderID: "ord-1",
		Payload: ledger.CompleteOrderPayload{},
	})

	// WHEN: Trying to add items to it
	rec := ts.do(t, http.MethodPost, "/api/orders/commands", addItemsCmd("ord-1", 1))

	// THEN: 409
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExecuteCommand_InvalidQuantity(t *testing.T) {
	ts := newTestServer(t)
	ts.execute(t, openTableCmd("ord-1"))

	rec := ts.do(t, http.MethodPost, "/api/orders/commands", addItemsCmd("ord-1", 0))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ORDER QUERIES
// =============================================================================

func TestListOrders_ActiveSummaries(t *testing.T) {
	ts := newTestServer(t)
	ts.execute(t, openTableCmd("ord-1"))
	ts.execute(t, openTableCmd("ord-2"))

	rec := ts.do(t, http.MethodGet, "/api/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []api.OrderSummaryDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestGetOrder_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/orders/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderEvents_ReturnsHistory(t *testing.T) {
	ts := newTestServer(t)
	ts.execute(t, openTableCmd("ord-1"))
	ts.execute(t, addItemsCmd("ord-1", 2))

	rec := ts.do(t, http.MethodGet, "/api/orders/ord-1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got api.EventsDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.Events, 2)
}

func TestVerifyOrder_Consistent(t *testing.T) {
	ts := newTestServer(t)
	ts.execute(t, openTableCmd("ord-1"))

	rec := ts.do(t, http.MethodGet, "/api/orders/ord-1/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got ordersync.VerifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Consistent)
}

// =============================================================================
// SYNC ENDPOINT
// =============================================================================

func TestSyncOrders_IncrementalCatchUp(t *testing.T) {
	// GIVEN: Two events in the ledger
	ts := newTestServer(t)
	ts.execute(t, openTableCmd("ord-1"))
	ts.execute(t, addItemsCmd("ord-1", 1))

	// WHEN: A client that has seen sequence 1 syncs
	rec := ts.do(t, http.MethodPost, "/api/sync", ordersync.Request{SinceSequence: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: It receives only the missing event
	var got ordersync.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.RequiresFullSync)
	assert.Len(t, got.Events, 1)
	assert.EqualValues(t, 2, got.ServerSequence)
	assert.NotEmpty(t, got.ServerEpoch)
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

func TestCatalog_SaveAndListProducts(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/catalog/products", catalog.Product{
		ID: "latte", Name: "Latte", Price: decimal.RequireFromString("4.80"),
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/catalog/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []catalog.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestCatalog_SaveProduct_MissingID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/catalog/products", catalog.Product{Name: "Nameless"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth_ReportsLedgerHead(t *testing.T) {
	ts := newTestServer(t)
	ts.execute(t, openTableCmd("ord-1"))

	rec := ts.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got api.HealthDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ok", got.Status)
	assert.EqualValues(t, 1, got.Sequence)
	assert.NotEmpty(t, got.Epoch)
}
