package report

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"filmtrack/backend/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAggregateCostsSharesSumToHundred(t *testing.T) {
	materials := []domain.Material{
		{ID: "m1", Name: "PE Granül", Unit: "kg", UnitPrice: d("50")},
		{ID: "m2", Name: "Katkı A", Unit: "kg", UnitPrice: d("100")},
		{ID: "m3", Name: "Doğalgaz", Unit: "kg", UnitPrice: d("10")},
	}
	consumptions := []domain.Consumption{
		{MaterialID: "m1", Quantity: d("10")},
		{MaterialID: "m2", Quantity: d("2")},
		{MaterialID: "m1", Quantity: d("6")},
		{MaterialID: "m3", Quantity: d("20")},
	}

	analysis := AggregateCosts(consumptions, materials, time.Now())
	require.Len(t, analysis.Rows, 3)
	assert.True(t, analysis.GrandTotal.Equal(d("1200")))

	assert.Equal(t, "m1", analysis.Rows[0].MaterialID)
	assert.True(t, analysis.Rows[0].TotalQuantity.Equal(d("16")))
	assert.True(t, analysis.Rows[0].TotalCost.Equal(d("800")))
	assert.True(t, analysis.Rows[0].Percentage.Equal(d("66.67")))

	sum := decimal.Zero
	for _, r := range analysis.Rows {
		sum = sum.Add(r.Percentage)
	}
	assert.True(t, sum.Sub(d("100")).Abs().LessThanOrEqual(d("0.05")), "shares sum to %s", sum)
}

func TestAggregateCostsZeroTotal(t *testing.T) {
	materials := []domain.Material{{ID: "m1", Name: "Free", UnitPrice: decimal.Zero}}
	consumptions := []domain.Consumption{{MaterialID: "m1", Quantity: d("5")}}

	analysis := AggregateCosts(consumptions, materials, time.Now())
	require.Len(t, analysis.Rows, 1)
	assert.True(t, analysis.GrandTotal.IsZero())
	assert.True(t, analysis.Rows[0].Percentage.IsZero())

	empty := AggregateCosts(nil, materials, time.Now())
	assert.Empty(t, empty.Rows)
	assert.True(t, empty.GrandTotal.IsZero())
}

func TestAggregateCostsUsesCurrentPrice(t *testing.T) {
	consumptions := []domain.Consumption{{MaterialID: "m1", Quantity: d("4")}}
	before := AggregateCosts(consumptions, []domain.Material{{ID: "m1", UnitPrice: d("10")}}, time.Now())
	after := AggregateCosts(consumptions, []domain.Material{{ID: "m1", UnitPrice: d("12.5")}}, time.Now())
	assert.True(t, before.GrandTotal.Equal(d("40")))
	assert.True(t, after.GrandTotal.Equal(d("50")))
}

func TestDashboardCounts(t *testing.T) {
	materials := []domain.Material{
		{CurrentStock: d("10"), MinStockLevel: d("10")},
		{CurrentStock: d("11"), MinStockLevel: d("10")},
	}
	orders := []domain.ProductionOrder{
		{Status: domain.ProductionPlanned},
		{Status: domain.ProductionInProgress},
		{Status: domain.ProductionCompleted},
	}
	shipments := []domain.Shipment{{Status: domain.ShipmentPending}, {Status: domain.ShipmentDelivered}}

	stats := Dashboard(materials, []domain.Product{{}}, orders, shipments)
	assert.Equal(t, domain.DashboardStats{
		TotalRawMaterials: 2,
		TotalProducts:     1,
		ActiveProductions: 2,
		PendingShipments:  1,
		LowStockMaterials: 1,
	}, stats)

	low := LowStock(materials)
	require.Len(t, low, 1)
	assert.True(t, low[0].LowStock)
}

func TestFinishedStockSubtractsDispatches(t *testing.T) {
	records := []domain.ManufacturingRecord{
		{ThicknessMM: d("0.02"), WidthCM: d("50"), LengthM: d("300"), ColorName: "Mavi", Quantity: 40},
		{ThicknessMM: d("0.020"), WidthCM: d("50"), LengthM: d("300"), ColorName: "Mavi", Quantity: 10},
		{ThicknessMM: d("0.02"), WidthCM: d("45"), LengthM: d("300"), Quantity: 5},
	}
	dispatches := []domain.Dispatch{
		{ThicknessMM: d("0.02"), WidthCM: d("50"), LengthM: d("300"), ColorName: "Mavi", Quantity: 15},
	}

	items := FinishedStock(records, dispatches)
	require.Len(t, items, 2)
	assert.Equal(t, int64(50), items[0].ProducedQuantity)
	assert.Equal(t, int64(15), items[0].DispatchedQuantity)
	assert.Equal(t, int64(35), items[0].TotalQuantity)
	assert.True(t, items[0].TotalSquareMeters.Equal(d("5250")), "got %s", items[0].TotalSquareMeters)
	assert.Equal(t, int64(5), items[1].TotalQuantity)
}

type mapCache struct {
	values  map[string][]byte
	deletes int
}

func (m *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	raw, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *mapCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	m.deletes++
	return nil
}

func TestEngineReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	store := &mapCache{values: map[string][]byte{}}
	engine := NewEngine(store, time.Minute)

	builds := 0
	build := func(context.Context) (domain.DashboardStats, error) {
		builds++
		return domain.DashboardStats{TotalProducts: builds}, nil
	}

	first, err := Load(ctx, engine, KeyDashboard, build)
	require.NoError(t, err)
	second, err := Load(ctx, engine, KeyDashboard, build)
	require.NoError(t, err)
	assert.Equal(t, 1, builds)
	assert.Equal(t, first, second)

	engine.Invalidate(ctx)
	third, err := Load(ctx, engine, KeyDashboard, build)
	require.NoError(t, err)
	assert.Equal(t, 2, builds)
	assert.Equal(t, 2, third.TotalProducts)
}

func TestCostAnalysisXLSX(t *testing.T) {
	analysis := AggregateCosts(
		[]domain.Consumption{{MaterialID: "m1", Quantity: d("3")}},
		[]domain.Material{{ID: "m1", Name: "PE Granül", Unit: "kg", UnitPrice: d("10")}},
		time.Now(),
	)
	data, err := CostAnalysisXLSX(analysis)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "material", rows[0][0])
	assert.Equal(t, "PE Granül", rows[1][0])
	assert.Equal(t, "TOTAL", rows[2][0])
	assert.Equal(t, "30", rows[2][4])
}
