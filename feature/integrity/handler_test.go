package integrity_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stock-ledger/core/ledger"
	"stock-ledger/core/ledger/memstore"
	"stock-ledger/feature/integrity"
	"stock-ledger/feature/stock"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	rawGear   = ledger.ID(ledger.RegistryRaw, "parts", "gear")
	craftGear = ledger.ID(ledger.RegistryCrafted, "parts", "gear")
)

func setup(t *testing.T) (*fiber.App, *stock.Service) {
	t.Helper()
	ctx := context.Background()

	svc := stock.NewServiceWithStore(memstore.New(0), nil, stock.Deps{Logger: zap.NewNop()})
	actor := ledger.Actor{UserID: "u1", UserName: "alice"}
	_, err := svc.Ledger().AddEntry(ctx, ledger.NewEntry{Identity: rawGear, Quantity: 4, Required: 10, Kind: ledger.KindIntermediate}, actor)
	require.NoError(t, err)
	_, err = svc.Ledger().AddEntry(ctx, ledger.NewEntry{Identity: craftGear, Quantity: 4, Required: 10, Kind: ledger.KindIntermediate}, actor)
	require.NoError(t, err)

	// Drift the crafted side behind the engine's back.
	_, err = svc.Store().BulkApply(ctx, []ledger.UpdateOp{ledger.SetQuantity(craftGear, 1)})
	require.NoError(t, err)

	isvc := integrity.NewService(svc.Store(), svc.Ledger(), nil, time.Minute, zap.NewNop())
	app := fiber.New()
	require.NoError(t, integrity.NewFeature(isvc).Load(app))
	return app, svc
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(stock.HeaderActorName, "admin")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func quantity(t *testing.T, svc *stock.Service, id ledger.Identity) int {
	t.Helper()
	e, err := svc.Ledger().Entry(context.Background(), id)
	require.NoError(t, err)
	return e.Quantity
}

func TestHandler_Report(t *testing.T) {
	app, _ := setup(t)

	status, body := do(t, app, http.MethodGet, "/integrity?refresh=true", nil)
	require.Equal(t, http.StatusOK, status)

	report := body["report"].(map[string]any)
	summary := report["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["issues"])
	assert.Equal(t, float64(1), summary["fixable"])

	links := report["links"].(map[string]any)
	assert.Equal(t, float64(1), links["pairs"])
	diverged := links["diverged"].([]any)
	require.Len(t, diverged, 1)
	assert.Equal(t, float64(1), diverged[0].(map[string]any)["crafted_quantity"])

	plan := body["plan"].(map[string]any)
	assert.Len(t, plan["actions"].([]any), 1)
}

func TestHandler_Fix(t *testing.T) {
	t.Run("without confirm plans only", func(t *testing.T) {
		app, svc := setup(t)

		status, body := do(t, app, http.MethodPost, "/integrity/fix", map[string]any{})
		require.Equal(t, http.StatusOK, status)
		result := body["result"].(map[string]any)
		assert.Equal(t, float64(1), result["planned"])
		assert.Equal(t, float64(0), result["executed"])
		assert.Equal(t, 1, quantity(t, svc, craftGear))
	})

	t.Run("dry run", func(t *testing.T) {
		app, svc := setup(t)

		status, body := do(t, app, http.MethodPost, "/integrity/fix", map[string]any{"confirm": true, "dry_run": true})
		require.Equal(t, http.StatusOK, status)
		result := body["result"].(map[string]any)
		assert.Equal(t, true, result["dry_run"])
		assert.Equal(t, float64(0), result["executed"])
		assert.Equal(t, 1, quantity(t, svc, craftGear))
	})

	t.Run("confirmed", func(t *testing.T) {
		app, svc := setup(t)

		status, body := do(t, app, http.MethodPost, "/integrity/fix", map[string]any{"confirm": true})
		require.Equal(t, http.StatusOK, status)
		result := body["result"].(map[string]any)
		assert.Equal(t, float64(1), result["executed"])
		assert.Equal(t, 4, quantity(t, svc, craftGear))

		status, body = do(t, app, http.MethodGet, "/integrity", nil)
		require.Equal(t, http.StatusOK, status)
		summary := body["report"].(map[string]any)["summary"].(map[string]any)
		assert.Equal(t, float64(0), summary["issues"])
	})

	t.Run("invalid body", func(t *testing.T) {
		app, _ := setup(t)

		req := httptest.NewRequest(http.MethodPost, "/integrity/fix", bytes.NewReader([]byte("{")))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHandler_SchemaWithoutDatabase(t *testing.T) {
	app, _ := setup(t)

	status, body := do(t, app, http.MethodGet, "/integrity/schema", nil)
	assert.Equal(t, http.StatusNotImplemented, status)
	assert.Contains(t, body["error"], "requires a database")
}
