package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"filmtrack/backend/internal/calc"
	"filmtrack/backend/internal/domain"
	"filmtrack/backend/internal/report"
	"filmtrack/backend/internal/store"
	"filmtrack/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), nil, Options{})
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: "usr-admin", Username: "admin", Role: domain.RoleAdmin})
}

func operatorCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: "usr-operator", Username: "operator", Role: domain.RoleUser})
}

func viewerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: "usr-viewer", Username: "viewer", Role: domain.RoleViewer})
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func mustStock(t *testing.T, svc *Service, materialID string) decimal.Decimal {
	t.Helper()
	m, err := svc.GetMaterial(adminCtx(), materialID)
	if err != nil {
		t.Fatalf("get material %s: %v", materialID, err)
	}
	return m.CurrentStock
}

func TestOperationsRequireActor(t *testing.T) {
	svc := newTestService()

	if _, err := svc.ListMaterials(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestViewerCannotWrite(t *testing.T) {
	svc := newTestService()

	if _, err := svc.ListMaterials(viewerCtx()); err != nil {
		t.Fatalf("viewer read failed: %v", err)
	}
	_, err := svc.AppendStockTransaction(viewerCtx(), domain.StockTransactionRequest{
		MaterialID:      "mat-pe-granule",
		TransactionType: domain.TransactionIn,
		Quantity:        dec("10"),
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for viewer write, got %v", err)
	}
	if _, err := svc.ReconcileBalances(operatorCtx(), false); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for operator reconcile, got %v", err)
	}
}

func TestStockTransactionSignsQuantityAndKeepsLedgerConsistent(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	out, err := svc.AppendStockTransaction(ctx, domain.StockTransactionRequest{
		MaterialID:      "mat-pe-granule",
		TransactionType: domain.TransactionOut,
		Quantity:        dec("120.5"),
		Reference:       "manual count",
	})
	if err != nil {
		t.Fatalf("append out failed: %v", err)
	}
	if !out.Quantity.Equal(dec("-120.5")) {
		t.Fatalf("expected signed quantity -120.5, got %s", out.Quantity)
	}
	if out.CreatedBy != "operator" {
		t.Fatalf("expected created_by operator, got %s", out.CreatedBy)
	}

	ledger, err := svc.MaterialLedger(ctx, "mat-pe-granule")
	if err != nil {
		t.Fatalf("ledger failed: %v", err)
	}
	if !ledger.Consistent {
		t.Fatalf("expected ledger to agree with counter: ledger=%s counter=%s", ledger.LedgerBalance, ledger.Material.CurrentStock)
	}
	if !ledger.LedgerBalance.Equal(dec("2379.5")) {
		t.Fatalf("expected balance 2379.5, got %s", ledger.LedgerBalance)
	}
	if len(ledger.Transactions) != 2 {
		t.Fatalf("expected opening + one entry, got %d", len(ledger.Transactions))
	}
}

func TestStockTransactionValidation(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	cases := []domain.StockTransactionRequest{
		{MaterialID: "mat-pe-granule", TransactionType: domain.TransactionIn, Quantity: decimal.Zero},
		{MaterialID: "mat-pe-granule", TransactionType: domain.TransactionIn, Quantity: dec("-5")},
		{MaterialID: "mat-pe-granule", TransactionType: "adjust", Quantity: dec("5")},
		{MaterialID: "", TransactionType: domain.TransactionIn, Quantity: dec("5")},
	}
	for _, req := range cases {
		if _, err := svc.AppendStockTransaction(ctx, req); !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("expected ErrInvalidTransaction for %+v, got %v", req, err)
		}
	}

	_, err := svc.AppendStockTransaction(ctx, domain.StockTransactionRequest{
		MaterialID:      "mat-missing",
		TransactionType: domain.TransactionIn,
		Quantity:        dec("5"),
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLenientModeAllowsNegativeBalance(t *testing.T) {
	svc := newTestService()

	if _, err := svc.AppendStockTransaction(operatorCtx(), domain.StockTransactionRequest{
		MaterialID:      "mat-spool-200",
		TransactionType: domain.TransactionOut,
		Quantity:        dec("80"),
	}); err != nil {
		t.Fatalf("lenient overdraw should succeed: %v", err)
	}
	if got := mustStock(t, svc, "mat-spool-200"); !got.Equal(dec("-30")) {
		t.Fatalf("expected -30, got %s", got)
	}
}

func TestStrictModeRejectsOverdraw(t *testing.T) {
	svc := New(memory.NewSeeded(), nil, Options{StrictStock: true})

	_, err := svc.AppendStockTransaction(operatorCtx(), domain.StockTransactionRequest{
		MaterialID:      "mat-spool-200",
		TransactionType: domain.TransactionOut,
		Quantity:        dec("80"),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := mustStock(t, svc, "mat-spool-200"); !got.Equal(dec("50")) {
		t.Fatalf("rejected movement must not change balance, got %s", got)
	}
}

func TestConcurrentStockTransactionsKeepBalance(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txType := domain.TransactionIn
			if i%2 == 0 {
				txType = domain.TransactionOut
			}
			if _, err := svc.AppendStockTransaction(ctx, domain.StockTransactionRequest{
				MaterialID:      "mat-additive-a",
				TransactionType: txType,
				Quantity:        dec("2.5"),
			}); err != nil {
				t.Errorf("append failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	ledger, err := svc.MaterialLedger(ctx, "mat-additive-a")
	if err != nil {
		t.Fatalf("ledger failed: %v", err)
	}
	if !ledger.Consistent || !ledger.LedgerBalance.Equal(dec("300")) {
		t.Fatalf("expected consistent balance 300, got ledger=%s counter=%s", ledger.LedgerBalance, ledger.Material.CurrentStock)
	}

	reconcile, err := svc.ReconcileBalances(adminCtx(), false)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(reconcile.Drifts) != 0 {
		t.Fatalf("expected no drift, got %+v", reconcile.Drifts)
	}
}

func TestCreateMaterialNormalizesAndRejectsDuplicates(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	created, err := svc.CreateMaterial(ctx, domain.MaterialCreateRequest{
		Name:          "Kırmızı Boya",
		Code:          " boy002 ",
		Unit:          "kg",
		UnitPrice:     dec("180"),
		MinStockLevel: dec("5"),
	})
	if err != nil {
		t.Fatalf("create material failed: %v", err)
	}
	if created.Code != "BOY002" {
		t.Fatalf("expected upper-cased code, got %s", created.Code)
	}
	if !created.CurrentStock.IsZero() || !created.LowStock {
		t.Fatalf("new material starts at zero and low: stock=%s low=%v", created.CurrentStock, created.LowStock)
	}

	_, err = svc.CreateMaterial(ctx, domain.MaterialCreateRequest{Name: "Dup", Code: "BOY002", Unit: "kg"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateMaterialRecordsPriceHistory(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	price := dec("52")
	updated, err := svc.UpdateMaterial(ctx, "mat-pe-granule", domain.MaterialUpdateRequest{UnitPrice: &price})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !updated.UnitPrice.Equal(price) {
		t.Fatalf("expected price 52, got %s", updated.UnitPrice)
	}

	history, err := svc.MaterialPriceHistory(ctx, "mat-pe-granule", 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 || !history[0].OldPrice.Equal(dec("48.50")) || !history[0].NewPrice.Equal(price) {
		t.Fatalf("unexpected price history: %+v", history)
	}
}

func TestLowStockIsInclusive(t *testing.T) {
	svc := newTestService()

	low, err := svc.LowStockMaterials(viewerCtx())
	if err != nil {
		t.Fatalf("low stock failed: %v", err)
	}
	if len(low) != 1 || low[0].Code != "MAS200" {
		t.Fatalf("expected only MAS200 (stock == min), got %+v", low)
	}
}

func TestProductionOrderLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	order, err := svc.CreateProductionOrder(ctx, domain.ProductionOrderCreateRequest{
		ProductID: "prd-stretch-17",
		Quantity:  dec("100"),
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.OrderNumber != "PRD-00001" || order.Status != domain.ProductionPlanned {
		t.Fatalf("unexpected order: %+v", order)
	}

	if _, err := svc.TransitionProductionOrder(ctx, order.ID, "completed"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("planned -> completed must be rejected, got %v", err)
	}
	if _, err := svc.TransitionProductionOrder(ctx, order.ID, "finished"); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("unknown status must be a validation error, got %v", err)
	}
	if _, err := svc.TransitionProductionOrder(ctx, order.ID, "in_progress"); err != nil {
		t.Fatalf("planned -> in_progress failed: %v", err)
	}
	completed, err := svc.TransitionProductionOrder(ctx, order.ID, "completed")
	if err != nil {
		t.Fatalf("in_progress -> completed failed: %v", err)
	}
	if completed.CompletedDate == nil {
		t.Fatalf("expected completed_date to be set")
	}
	if _, err := svc.TransitionProductionOrder(ctx, order.ID, "cancelled"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("completed orders are terminal, got %v", err)
	}

	products, err := svc.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	if len(products) != 1 || !products[0].CurrentStock.Equal(dec("100")) {
		t.Fatalf("expected product stock 100 after completion, got %+v", products)
	}

	movements, err := svc.ListProductMovements(ctx, "prd-stretch-17")
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 1 || !movements[0].Quantity.Equal(dec("100")) || movements[0].SourceID != order.ID {
		t.Fatalf("expected one +100 movement from the order, got %+v", movements)
	}
	if _, err := svc.ListProductMovements(ctx, "prd-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

func TestConsumptionRequiresActiveOrder(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	order, err := svc.CreateProductionOrder(ctx, domain.ProductionOrderCreateRequest{ProductID: "prd-stretch-17", Quantity: dec("10")})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	created, err := svc.CreateConsumption(ctx, domain.ConsumptionCreateRequest{
		ProductionOrderID: order.ID,
		MaterialID:        "mat-pe-granule",
		Quantity:          dec("200"),
	})
	if err != nil {
		t.Fatalf("consumption failed: %v", err)
	}
	if created.MaterialName != "PE Granül" {
		t.Fatalf("expected material name to be resolved, got %q", created.MaterialName)
	}
	if got := mustStock(t, svc, "mat-pe-granule"); !got.Equal(dec("2300")) {
		t.Fatalf("expected 2300 after consumption, got %s", got)
	}

	_, err = svc.CreateConsumption(ctx, domain.ConsumptionCreateRequest{
		ProductionOrderID: order.ID,
		MaterialID:        "mat-color-blue",
		Quantity:          dec("41"),
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if _, err := svc.TransitionProductionOrder(ctx, order.ID, "cancelled"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	_, err = svc.CreateConsumption(ctx, domain.ConsumptionCreateRequest{
		ProductionOrderID: order.ID,
		MaterialID:        "mat-pe-granule",
		Quantity:          dec("1"),
	})
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for cancelled order, got %v", err)
	}
}

func TestManufacturingDrawsSpoolsAndGas(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	record, applied, err := svc.CreateManufacturing(ctx, domain.ManufacturingCreateRequest{
		Machine:          domain.Machine1,
		ThicknessMM:      dec("0.017"),
		WidthCM:          dec("50"),
		LengthM:          dec("300"),
		Quantity:         4,
		SpoolType:        domain.Spool100,
		SpoolQuantity:    10,
		ColorMaterialID:  "mat-color-blue",
		GasConsumptionKG: dec("25"),
	})
	if err != nil {
		t.Fatalf("create manufacturing failed: %v", err)
	}
	if record.Model != "0.017 mm x 50 cm x 300 m" {
		t.Fatalf("unexpected model label %q", record.Model)
	}
	if !record.SquareMeters.Equal(dec("600")) {
		t.Fatalf("expected 600 m2, got %s", record.SquareMeters)
	}
	if record.ColorName != "Mavi Boya" {
		t.Fatalf("expected color name to be resolved, got %q", record.ColorName)
	}
	if len(applied) != 2 {
		t.Fatalf("expected spool and gas draws, got %d", len(applied))
	}
	if got := mustStock(t, svc, "mat-spool-100"); !got.Equal(dec("790")) {
		t.Fatalf("expected 790 spools, got %s", got)
	}
	if got := mustStock(t, svc, "mat-gas"); !got.Equal(dec("975")) {
		t.Fatalf("expected 975 kg gas, got %s", got)
	}

	if err := svc.DeleteManufacturing(ctx, record.ID); err != nil {
		t.Fatalf("delete manufacturing failed: %v", err)
	}
	if got := mustStock(t, svc, "mat-spool-100"); !got.Equal(dec("800")) {
		t.Fatalf("expected spools restored to 800, got %s", got)
	}
	ledger, err := svc.MaterialLedger(ctx, "mat-gas")
	if err != nil {
		t.Fatalf("ledger failed: %v", err)
	}
	if !ledger.Consistent || len(ledger.Transactions) != 3 {
		t.Fatalf("expected opening, draw and reversal entries, got %d consistent=%v", len(ledger.Transactions), ledger.Consistent)
	}
}

func TestUpdateManufacturingRedrawsStock(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	req := domain.ManufacturingCreateRequest{
		Machine:       domain.Machine1,
		ThicknessMM:   dec("0.02"),
		WidthCM:       dec("40"),
		LengthM:       dec("200"),
		Quantity:      3,
		SpoolType:     domain.Spool120,
		SpoolQuantity: 10,
	}
	record, _, err := svc.CreateManufacturing(ctx, req)
	if err != nil {
		t.Fatalf("create manufacturing failed: %v", err)
	}

	req.SpoolQuantity = 25
	updated, _, err := svc.UpdateManufacturing(ctx, record.ID, req)
	if err != nil {
		t.Fatalf("update manufacturing failed: %v", err)
	}
	if got := mustStock(t, svc, "mat-spool-120"); !got.Equal(dec("575")) {
		t.Fatalf("expected only the new draw to remain (575 spools), got %s", got)
	}

	if updated.ID != record.ID {
		t.Fatalf("edit must keep the record id, got %s want %s", updated.ID, record.ID)
	}

	records, err := svc.ListManufacturing(ctx)
	if err != nil {
		t.Fatalf("list manufacturing failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != record.ID || records[0].SpoolQuantity != 25 {
		t.Fatalf("expected the edited record only, got %+v", records)
	}

	bad := req
	bad.Machine = domain.Machine("Makine 9")
	if _, _, err := svc.UpdateManufacturing(ctx, record.ID, bad); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("unknown machine must be rejected, got %v", err)
	}
	bad = req
	bad.WidthCM = dec("0")
	if _, _, err := svc.UpdateManufacturing(ctx, record.ID, bad); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("zero width must be rejected, got %v", err)
	}
	bad = req
	bad.SpoolType = domain.SpoolType("Masura 999")
	if _, _, err := svc.UpdateManufacturing(ctx, record.ID, bad); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("unknown spool type must be rejected, got %v", err)
	}
	if got := mustStock(t, svc, "mat-spool-120"); !got.Equal(dec("575")) {
		t.Fatalf("rejected edits must not touch stock, got %s", got)
	}
	records, err = svc.ListManufacturing(ctx)
	if err != nil {
		t.Fatalf("list manufacturing failed: %v", err)
	}
	if len(records) != 1 || records[0].ID != record.ID || records[0].SpoolQuantity != 25 {
		t.Fatalf("rejected edits must leave the record in place, got %+v", records)
	}

	if _, _, err := svc.UpdateManufacturing(ctx, "mfg-missing", req); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("editing a missing record must return not found, got %v", err)
	}
	if got := mustStock(t, svc, "mat-spool-120"); !got.Equal(dec("575")) {
		t.Fatalf("missing-record edit must not touch stock, got %s", got)
	}
}

func TestManufacturingKeepsUnknownColorWithoutName(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	req := domain.ManufacturingCreateRequest{
		Machine:         domain.Machine2,
		ThicknessMM:     dec("0.02"),
		WidthCM:         dec("40"),
		LengthM:         dec("200"),
		Quantity:        2,
		ColorMaterialID: "mat-color-missing",
	}
	record, _, err := svc.CreateManufacturing(ctx, req)
	if err != nil {
		t.Fatalf("unknown color must not block the run: %v", err)
	}
	if record.ColorMaterialID != "mat-color-missing" || record.ColorName != "" {
		t.Fatalf("expected the color id kept without a name, got %q/%q", record.ColorMaterialID, record.ColorName)
	}

	req.Quantity = 4
	updated, _, err := svc.UpdateManufacturing(ctx, record.ID, req)
	if err != nil {
		t.Fatalf("edit with unknown color failed: %v", err)
	}
	if updated.Quantity != 4 || updated.ColorName != "" {
		t.Fatalf("unexpected edited record %+v", updated)
	}
}

func TestManufacturingSkipsUncoveredSpoolDraw(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	_, applied, err := svc.CreateManufacturing(ctx, domain.ManufacturingCreateRequest{
		Machine:          domain.Machine2,
		ThicknessMM:      dec("0.02"),
		WidthCM:          dec("45"),
		LengthM:          dec("250"),
		Quantity:         2,
		SpoolType:        domain.Spool200,
		SpoolQuantity:    60,
		GasConsumptionKG: dec("5"),
	})
	if err != nil {
		t.Fatalf("create manufacturing failed: %v", err)
	}
	if len(applied) != 1 || applied[0].MaterialID != "mat-gas" {
		t.Fatalf("expected only the gas draw, got %+v", applied)
	}
	if got := mustStock(t, svc, "mat-spool-200"); !got.Equal(dec("50")) {
		t.Fatalf("uncovered spool draw must be skipped, got %s", got)
	}
}

func TestManufacturingValidation(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	_, _, err := svc.CreateManufacturing(ctx, domain.ManufacturingCreateRequest{
		Machine:     "Makine 3",
		ThicknessMM: dec("0.02"),
		WidthCM:     dec("45"),
		LengthM:     dec("250"),
		Quantity:    1,
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected validation error for machine, got %v", err)
	}

	_, _, err = svc.CreateManufacturing(ctx, domain.ManufacturingCreateRequest{
		Machine:     domain.Machine1,
		ThicknessMM: dec("0.02"),
		WidthCM:     dec("45"),
		LengthM:     dec("250"),
		Quantity:    0,
	})
	if !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected validation error for quantity, got %v", err)
	}
}

func TestZeroAdditiveRatiosAreHonored(t *testing.T) {
	ratios, err := calc.NewRatios(0, 0)
	if err != nil {
		t.Fatalf("zero ratios must be valid: %v", err)
	}
	svc := New(memory.NewSeeded(), nil, Options{Ratios: &ratios})

	primary := dec("100")
	record, err := svc.CreateDailyConsumption(operatorCtx(), domain.DailyConsumptionRequest{
		Machine:   domain.Machine2,
		PrimaryKG: &primary,
	})
	if err != nil {
		t.Fatalf("create daily failed: %v", err)
	}
	if !record.AdditiveAKG.IsZero() || !record.AdditiveBKG.IsZero() || !record.AdditiveARatio.IsZero() {
		t.Fatalf("expected no additives with zero ratios, got %+v", record)
	}

	preview := svc.PreviewConsumption("100", "0")
	if !preview.AdditiveAKG.IsZero() || !preview.AdditiveBKG.IsZero() {
		t.Fatalf("expected zero additive preview, got %+v", preview)
	}
}

func TestDailyConsumptionSnapshotsRatios(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	primary := dec("1000")
	waste := dec("50")
	record, err := svc.CreateDailyConsumption(ctx, domain.DailyConsumptionRequest{
		Machine:   domain.Machine1,
		PrimaryKG: &primary,
		WasteKG:   &waste,
	})
	if err != nil {
		t.Fatalf("create daily failed: %v", err)
	}
	if !record.TotalPrimaryKG.Equal(dec("1050")) {
		t.Fatalf("expected total 1050, got %s", record.TotalPrimaryKG)
	}
	if !record.AdditiveAKG.Equal(dec("31.5")) || !record.AdditiveBKG.Equal(dec("15.75")) {
		t.Fatalf("unexpected additives: a=%s b=%s", record.AdditiveAKG, record.AdditiveBKG)
	}
	if !record.AdditiveARatio.Equal(dec("0.03")) {
		t.Fatalf("expected stored ratio 0.03, got %s", record.AdditiveARatio)
	}

	updated, err := svc.UpdateDailyConsumption(ctx, record.ID, domain.DailyConsumptionRequest{
		Machine:   domain.Machine1,
		PrimaryKG: &primary,
	})
	if err != nil {
		t.Fatalf("update daily failed: %v", err)
	}
	if !updated.WasteKG.IsZero() || !updated.TotalPrimaryKG.Equal(dec("1000")) {
		t.Fatalf("absent waste must count as zero, got %+v", updated)
	}
	if updated.CreatedBy != "operator" {
		t.Fatalf("author must survive update, got %s", updated.CreatedBy)
	}

	if err := svc.DeleteDailyConsumption(ctx, record.ID); err != nil {
		t.Fatalf("delete daily failed: %v", err)
	}
	if err := svc.DeleteDailyConsumption(ctx, record.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestShipmentLifecycle(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	order, err := svc.CreateProductionOrder(ctx, domain.ProductionOrderCreateRequest{ProductID: "prd-stretch-17", Quantity: dec("100")})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	for _, status := range []string{"in_progress", "completed"} {
		if _, err := svc.TransitionProductionOrder(ctx, order.ID, status); err != nil {
			t.Fatalf("transition %s failed: %v", status, err)
		}
	}

	if _, err := svc.CreateShipment(ctx, domain.ShipmentCreateRequest{ProductID: "prd-stretch-17", Quantity: dec("150")}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	shipment, err := svc.CreateShipment(ctx, domain.ShipmentCreateRequest{
		ProductID:    "prd-stretch-17",
		Quantity:     dec("40"),
		CustomerName: "Anadolu Ambalaj",
	})
	if err != nil {
		t.Fatalf("create shipment failed: %v", err)
	}
	if shipment.ShipmentNumber != "SHP-00001" || shipment.Status != domain.ShipmentPending {
		t.Fatalf("unexpected shipment: %+v", shipment)
	}

	if _, err := svc.TransitionShipment(ctx, shipment.ID, "delivered"); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("pending -> delivered must be rejected, got %v", err)
	}
	if _, err := svc.TransitionShipment(ctx, shipment.ID, "in_transit"); err != nil {
		t.Fatalf("pending -> in_transit failed: %v", err)
	}
	if err := svc.DeleteShipment(ctx, shipment.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("only pending shipments can be deleted, got %v", err)
	}

	products, err := svc.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	if !products[0].CurrentStock.Equal(dec("60")) {
		t.Fatalf("expected product stock 60, got %s", products[0].CurrentStock)
	}
}

func TestFinishedStockSubtractsDispatches(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	if _, _, err := svc.CreateManufacturing(ctx, domain.ManufacturingCreateRequest{
		Machine:     domain.Machine1,
		ThicknessMM: dec("0.017"),
		WidthCM:     dec("50"),
		LengthM:     dec("300"),
		Quantity:    10,
		SpoolType:   domain.NoSpool,
	}); err != nil {
		t.Fatalf("create manufacturing failed: %v", err)
	}
	dispatch, err := svc.CreateDispatch(ctx, domain.DispatchCreateRequest{
		CustomerCompany: "Ege Lojistik",
		ThicknessMM:     dec("0.017"),
		WidthCM:         dec("50"),
		LengthM:         dec("300"),
		Quantity:        3,
		VehiclePlate:    "35 abc 123",
	})
	if err != nil {
		t.Fatalf("create dispatch failed: %v", err)
	}
	if dispatch.DispatchNumber != "DSP-00001" || !dispatch.SquareMeters.Equal(dec("450")) {
		t.Fatalf("unexpected dispatch: %+v", dispatch)
	}
	if dispatch.VehiclePlate != "35 ABC 123" {
		t.Fatalf("expected upper-cased plate, got %q", dispatch.VehiclePlate)
	}

	items, err := svc.FinishedStock(viewerCtx())
	if err != nil {
		t.Fatalf("finished stock failed: %v", err)
	}
	if len(items) != 1 || items[0].TotalQuantity != 7 {
		t.Fatalf("expected 7 rolls on hand, got %+v", items)
	}
}

func TestCostAnalysisUsesCurrentPrices(t *testing.T) {
	svc := newTestService()
	ctx := operatorCtx()

	order, err := svc.CreateProductionOrder(ctx, domain.ProductionOrderCreateRequest{ProductID: "prd-stretch-17", Quantity: dec("10")})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	for _, c := range []domain.ConsumptionCreateRequest{
		{ProductionOrderID: order.ID, MaterialID: "mat-pe-granule", Quantity: dec("100")},
		{ProductionOrderID: order.ID, MaterialID: "mat-additive-a", Quantity: dec("10")},
	} {
		if _, err := svc.CreateConsumption(ctx, c); err != nil {
			t.Fatalf("consumption failed: %v", err)
		}
	}

	analysis, err := svc.CostAnalysis(viewerCtx())
	if err != nil {
		t.Fatalf("cost analysis failed: %v", err)
	}
	if !analysis.GrandTotal.Equal(dec("6050")) {
		t.Fatalf("expected grand total 6050, got %s", analysis.GrandTotal)
	}
	if len(analysis.Rows) != 2 || analysis.Rows[0].MaterialID != "mat-pe-granule" {
		t.Fatalf("expected PE granule first, got %+v", analysis.Rows)
	}
	if !analysis.Rows[0].Percentage.Equal(dec("80.17")) || !analysis.Rows[1].Percentage.Equal(dec("19.83")) {
		t.Fatalf("unexpected percentages: %s %s", analysis.Rows[0].Percentage, analysis.Rows[1].Percentage)
	}

	data, err := svc.ExportCostAnalysis(viewerCtx())
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected xlsx bytes")
	}
}

type jsonCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func (c *jsonCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *jsonCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	return nil
}

func (c *jsonCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

func TestWritesInvalidateCachedDashboard(t *testing.T) {
	cached := &jsonCache{values: make(map[string][]byte)}
	svc := New(memory.NewSeeded(), report.NewEngine(cached, time.Minute), Options{})
	ctx := operatorCtx()

	before, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if before.TotalRawMaterials != 9 || before.LowStockMaterials != 1 {
		t.Fatalf("unexpected seeded stats: %+v", before)
	}

	if _, err := svc.CreateMaterial(ctx, domain.MaterialCreateRequest{Name: "Sarı Boya", Code: "BOY003", Unit: "kg"}); err != nil {
		t.Fatalf("create material failed: %v", err)
	}

	after, err := svc.DashboardStats(ctx)
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if after.TotalRawMaterials != 10 || after.LowStockMaterials != 2 {
		t.Fatalf("expected stats to reflect the new material, got %+v", after)
	}
}

func TestUserManagement(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	created, err := svc.CreateUser(ctx, domain.UserCreateRequest{
		Username: "Planner",
		Password: "planner-pass",
		Role:     domain.RoleViewer,
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if created.Username != "planner" || created.Role != domain.RoleViewer {
		t.Fatalf("unexpected user: %+v", created)
	}

	if _, err := svc.CreateUser(ctx, domain.UserCreateRequest{Username: "planner", Password: "another-pass"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := svc.CreateUser(ctx, domain.UserCreateRequest{Username: "x1", Password: "short"}); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.ListUsers(operatorCtx()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("operators cannot list users, got %v", err)
	}
	if err := svc.DeleteUser(ctx, "usr-admin"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("self delete must be forbidden, got %v", err)
	}
	if err := svc.DeleteUser(ctx, created.ID); err != nil {
		t.Fatalf("delete user failed: %v", err)
	}

	me, err := svc.Me(viewerCtx())
	if err != nil {
		t.Fatalf("me failed: %v", err)
	}
	if me.Role != domain.RoleViewer {
		t.Fatalf("expected viewer, got %s", me.Role)
	}
}

func TestWritesAreAudited(t *testing.T) {
	svc := newTestService()

	if _, err := svc.AppendStockTransaction(operatorCtx(), domain.StockTransactionRequest{
		MaterialID:      "mat-gas",
		TransactionType: domain.TransactionIn,
		Quantity:        dec("100"),
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "stock_transaction" || logs[0].ActorUsername != "operator" {
		t.Fatalf("unexpected audit logs: %+v", logs)
	}
	if _, err := svc.ListAuditLogs(operatorCtx(), time.Time{}, time.Time{}, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("operators cannot read audit logs, got %v", err)
	}
}

func TestPreviewsTreatBadInputAsZero(t *testing.T) {
	svc := newTestService()

	if got := svc.PreviewArea("50", "300", "4"); !got.SquareMeters.Equal(dec("600")) || got.Display != "600.00" {
		t.Fatalf("unexpected area preview: %+v", got)
	}
	if got := svc.PreviewArea("abc", "300", ""); !got.SquareMeters.IsZero() || got.Display != "0.00" {
		t.Fatalf("expected zero preview, got %+v", got)
	}

	preview := svc.PreviewConsumption("1000", "")
	if !preview.TotalPrimaryKG.Equal(dec("1000")) || !preview.AdditiveAKG.Equal(dec("30")) || !preview.AdditiveBKG.Equal(dec("15")) {
		t.Fatalf("unexpected consumption preview: %+v", preview)
	}
}

func TestBootstrapAdminOnlySeedsEmptyStore(t *testing.T) {
	repo := memory.New()
	svc := New(repo, nil, Options{})
	ctx := context.Background()

	created, err := svc.BootstrapAdmin(ctx, " Root ", "first-secret")
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if !created {
		t.Fatalf("expected the first admin to be created")
	}
	account, err := repo.GetUserByUsername(ctx, "root")
	if err != nil {
		t.Fatalf("bootstrap admin missing: %v", err)
	}
	if account.Role != domain.RoleAdmin || !VerifyPassword(account.Password, "first-secret") {
		t.Fatalf("unexpected bootstrap account %+v", account)
	}

	created, err = svc.BootstrapAdmin(ctx, "second", "another-secret")
	if err != nil || created {
		t.Fatalf("expected no second bootstrap, got created=%v err=%v", created, err)
	}
	if _, err := repo.GetUserByUsername(ctx, "second"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second bootstrap must not create a user, got %v", err)
	}

	if _, err := New(memory.New(), nil, Options{}).BootstrapAdmin(ctx, "root", "123"); !errors.Is(err, store.ErrInvalidTransaction) {
		t.Fatalf("short bootstrap password must be rejected, got %v", err)
	}
}
