package memory

import (
	"context"
	"log"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"filmtrack/backend/internal/domain"
	"filmtrack/backend/internal/store"
	"filmtrack/backend/internal/xid"
)

// Store keeps every aggregate behind one RWMutex, so a ledger append and the
// counter it moves are always a single critical section.
type Store struct {
	mu               sync.RWMutex
	materials        map[string]domain.Material
	ledger           []domain.StockTransaction
	priceChanges     map[string][]domain.MaterialPriceChange
	products         map[string]domain.Product
	productMovements []domain.ProductMovement
	orders           map[string]domain.ProductionOrder
	orderSeq         int
	consumptions     []domain.Consumption
	manufacturing    map[string]domain.ManufacturingRecord
	daily            map[string]domain.DailyConsumption
	gas              map[string]domain.GasConsumption
	shipments        map[string]domain.Shipment
	shipmentSeq      int
	dispatches       map[string]domain.Dispatch
	dispatchSeq      int
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		materials:       make(map[string]domain.Material),
		ledger:          make([]domain.StockTransaction, 0, 256),
		priceChanges:    make(map[string][]domain.MaterialPriceChange),
		products:        make(map[string]domain.Product),
		orders:          make(map[string]domain.ProductionOrder),
		manufacturing:   make(map[string]domain.ManufacturingRecord),
		daily:           make(map[string]domain.DailyConsumption),
		gas:             make(map[string]domain.GasConsumption),
		shipments:       make(map[string]domain.Shipment),
		dispatches:      make(map[string]domain.Dispatch),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

func (s *Store) ListMaterials(_ context.Context) ([]domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Material, 0, len(s.materials))
	for _, m := range s.materials {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetMaterial(_ context.Context, id string) (*domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.materials[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) FindMaterialByCode(_ context.Context, code string) (*domain.Material, error) {
	return s.findMaterial(func(m domain.Material) bool { return strings.EqualFold(m.Code, code) })
}

func (s *Store) FindMaterialByName(_ context.Context, name string) (*domain.Material, error) {
	return s.findMaterial(func(m domain.Material) bool { return m.Name == name })
}

func (s *Store) findMaterial(match func(domain.Material) bool) (*domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.materials {
		if match(m) {
			found := m
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateMaterial(_ context.Context, material domain.Material) (*domain.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if material.Code == "" || material.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.materials {
		if strings.EqualFold(existing.Code, material.Code) {
			return nil, store.ErrConflict
		}
	}
	if material.ID == "" {
		material.ID = xid.New("mat")
	}
	if material.CreatedAt.IsZero() {
		material.CreatedAt = time.Now().UTC()
	}
	// Balance only ever moves through the ledger.
	material.CurrentStock = decimal.Zero
	s.materials[material.ID] = material
	created := material
	return &created, nil
}

func (s *Store) UpdateMaterial(_ context.Context, material domain.Material) (*domain.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.materials[material.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing.Name = material.Name
	existing.Unit = material.Unit
	existing.UnitPrice = material.UnitPrice
	existing.MinStockLevel = material.MinStockLevel
	s.materials[material.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) CreatePriceChange(_ context.Context, change domain.MaterialPriceChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if change.ID == "" {
		change.ID = xid.New("price")
	}
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now().UTC()
	}
	s.priceChanges[change.MaterialID] = append(s.priceChanges[change.MaterialID], change)
	return nil
}

func (s *Store) ListPriceChanges(_ context.Context, materialID string, limit int) ([]domain.MaterialPriceChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.priceChanges[materialID]
	out := make([]domain.MaterialPriceChange, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) AppendStockTransaction(_ context.Context, tx domain.StockTransaction, opts store.LedgerOptions) (*domain.StockTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.appendLocked(tx, opts)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// appendLocked must be called with s.mu held for writing.
func (s *Store) appendLocked(tx domain.StockTransaction, opts store.LedgerOptions) (domain.StockTransaction, error) {
	material, ok := s.materials[tx.MaterialID]
	if !ok {
		return domain.StockTransaction{}, store.ErrNotFound
	}
	if tx.Quantity.IsZero() {
		return domain.StockTransaction{}, store.ErrInvalidTransaction
	}
	next := material.CurrentStock.Add(tx.Quantity)
	if opts.Strict && tx.Quantity.IsNegative() && next.IsNegative() {
		return domain.StockTransaction{}, store.ErrInsufficientStock
	}

	if tx.ID == "" {
		tx.ID = xid.New("stx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.TransactionType = domain.TransactionTypeOf(tx.Quantity)

	s.ledger = append(s.ledger, tx)
	material.CurrentStock = next
	s.materials[material.ID] = material
	return tx, nil
}

func (s *Store) ListStockTransactions(_ context.Context, materialID string, limit int) ([]domain.StockTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockTransaction, 0, 64)
	for i := len(s.ledger) - 1; i >= 0; i-- {
		tx := s.ledger[i]
		if materialID != "" && tx.MaterialID != materialID {
			continue
		}
		out = append(out, tx)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ReconcileMaterialBalances(_ context.Context, repair bool) ([]domain.BalanceDrift, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sums := make(map[string]decimal.Decimal, len(s.materials))
	for _, tx := range s.ledger {
		sums[tx.MaterialID] = sums[tx.MaterialID].Add(tx.Quantity)
	}

	drifts := make([]domain.BalanceDrift, 0)
	for id, m := range s.materials {
		ledger := sums[id]
		if m.CurrentStock.Equal(ledger) {
			continue
		}
		drifts = append(drifts, domain.BalanceDrift{MaterialID: id, Code: m.Code, Counter: m.CurrentStock, Ledger: ledger})
		if repair {
			m.CurrentStock = ledger
			s.materials[id] = m
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].Code < drifts[j].Code })
	return drifts, len(s.materials), nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Code == "" || product.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.Code, product.Code) {
			return nil, store.ErrConflict
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.CurrentStock = decimal.Zero
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) ListProductMovements(_ context.Context, productID string) ([]domain.ProductMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ProductMovement, 0, 16)
	for _, mv := range s.productMovements {
		if productID == "" || mv.ProductID == productID {
			out = append(out, mv)
		}
	}
	return out, nil
}

// moveProductLocked must be called with s.mu held for writing.
func (s *Store) moveProductLocked(productID string, qty decimal.Decimal, sourceType string, sourceID string, actor string, at time.Time) error {
	product, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	s.productMovements = append(s.productMovements, domain.ProductMovement{
		ID:         xid.New("pmv"),
		ProductID:  productID,
		Quantity:   qty,
		SourceType: sourceType,
		SourceID:   sourceID,
		CreatedBy:  actor,
		CreatedAt:  at,
	})
	product.CurrentStock = product.CurrentStock.Add(qty)
	s.products[productID] = product
	return nil
}

func (s *Store) ListProductionOrders(_ context.Context) ([]domain.ProductionOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ProductionOrder, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetProductionOrder(_ context.Context, id string) (*domain.ProductionOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (s *Store) CreateProductionOrder(_ context.Context, order domain.ProductionOrder) (*domain.ProductionOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[order.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !order.Quantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	s.orderSeq++
	if order.ID == "" {
		order.ID = xid.New("po")
	}
	order.OrderNumber = xid.Sequence("PRD", s.orderSeq)
	order.ProductName = product.Name
	order.Status = domain.ProductionPlanned
	order.CompletedDate = nil
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	s.orders[order.ID] = order
	created := order
	return &created, nil
}

func (s *Store) TransitionProductionOrder(_ context.Context, id string, next domain.ProductionStatus, actor string, at time.Time) (*domain.ProductionOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, store.ErrInvalidTransition
	}
	if next == domain.ProductionCompleted {
		if err := s.moveProductLocked(order.ProductID, order.Quantity, "production_order", order.ID, actor, at); err != nil {
			return nil, err
		}
		completed := at
		order.CompletedDate = &completed
	}
	order.Status = next
	s.orders[id] = order
	updated := order
	return &updated, nil
}

func (s *Store) ListConsumptions(_ context.Context) ([]domain.Consumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Consumption, len(s.consumptions))
	copy(out, s.consumptions)
	slices.Reverse(out)
	return out, nil
}

func (s *Store) CreateConsumption(_ context.Context, consumption domain.Consumption) (*domain.Consumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[consumption.ProductionOrderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !order.Status.Active() {
		return nil, store.ErrInvalidTransition
	}
	material, ok := s.materials[consumption.MaterialID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !consumption.Quantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if material.CurrentStock.LessThan(consumption.Quantity) {
		return nil, store.ErrInsufficientStock
	}

	if consumption.ID == "" {
		consumption.ID = xid.New("cons")
	}
	if consumption.CreatedAt.IsZero() {
		consumption.CreatedAt = time.Now().UTC()
	}
	consumption.MaterialName = material.Name

	if _, err := s.appendLocked(domain.StockTransaction{
		MaterialID: material.ID,
		Quantity:   consumption.Quantity.Neg(),
		Reference:  order.OrderNumber,
		Notes:      "consumption " + consumption.ID,
		CreatedBy:  consumption.CreatedBy,
		CreatedAt:  consumption.CreatedAt,
	}, store.LedgerOptions{Strict: true}); err != nil {
		return nil, err
	}

	s.consumptions = append(s.consumptions, consumption)
	created := consumption
	return &created, nil
}

func (s *Store) ListManufacturing(_ context.Context) ([]domain.ManufacturingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ManufacturingRecord, 0, len(s.manufacturing))
	for _, r := range s.manufacturing {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductionDate.After(out[j].ProductionDate) })
	return out, nil
}

func (s *Store) CreateManufacturing(_ context.Context, record domain.ManufacturingRecord, draws []store.AutoConsumption) (*domain.ManufacturingRecord, []domain.Consumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = xid.New("mfg")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	applied, err := s.applyDrawsLocked(record.ID, record.CreatedBy, record.CreatedAt, draws)
	if err != nil {
		return nil, nil, err
	}
	s.manufacturing[record.ID] = record
	created := record
	return &created, applied, nil
}

// ReplaceManufacturing swaps a run for its edited version under the same id.
// The old draws are reversed and the new ones applied in one critical section.
func (s *Store) ReplaceManufacturing(_ context.Context, record domain.ManufacturingRecord, draws []store.AutoConsumption, actor string) (*domain.ManufacturingRecord, []domain.Consumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.manufacturing[record.ID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	record.CreatedBy = existing.CreatedBy
	record.CreatedAt = existing.CreatedAt

	now := time.Now().UTC()
	if err := s.reverseDrawsLocked(record.ID, actor, now, "manufacturing "+record.ID+" edited"); err != nil {
		return nil, nil, err
	}
	applied, err := s.applyDrawsLocked(record.ID, actor, now, draws)
	if err != nil {
		return nil, nil, err
	}
	s.manufacturing[record.ID] = record
	updated := record
	return &updated, applied, nil
}

func (s *Store) DeleteManufacturing(_ context.Context, id string, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.manufacturing[id]; !ok {
		return store.ErrNotFound
	}
	if err := s.reverseDrawsLocked(id, actor, time.Now().UTC(), "manufacturing "+id+" deleted"); err != nil {
		return err
	}
	delete(s.manufacturing, id)
	return nil
}

// applyDrawsLocked must be called with s.mu held for writing. Uncovered or
// unknown materials are skipped.
func (s *Store) applyDrawsLocked(manufacturingID string, actor string, at time.Time, draws []store.AutoConsumption) ([]domain.Consumption, error) {
	applied := make([]domain.Consumption, 0, len(draws))
	for _, draw := range draws {
		material, ok := s.materials[draw.MaterialID]
		if !ok || !draw.Quantity.IsPositive() {
			continue
		}
		if material.CurrentStock.LessThan(draw.Quantity) {
			log.Printf("[memory-store] WARN: skip auto-consumption material=%s need=%s have=%s", material.Code, draw.Quantity, material.CurrentStock)
			continue
		}
		consumption := domain.Consumption{
			ID:              xid.New("cons"),
			ManufacturingID: manufacturingID,
			MaterialID:      material.ID,
			MaterialName:    material.Name,
			Quantity:        draw.Quantity,
			CreatedBy:       actor,
			CreatedAt:       at,
		}
		if _, err := s.appendLocked(domain.StockTransaction{
			MaterialID: material.ID,
			Quantity:   draw.Quantity.Neg(),
			Reference:  draw.Reference,
			Notes:      "manufacturing " + manufacturingID,
			CreatedBy:  actor,
			CreatedAt:  at,
		}, store.LedgerOptions{}); err != nil {
			return nil, err
		}
		s.consumptions = append(s.consumptions, consumption)
		applied = append(applied, consumption)
	}
	return applied, nil
}

// reverseDrawsLocked must be called with s.mu held for writing.
func (s *Store) reverseDrawsLocked(manufacturingID string, actor string, at time.Time, notes string) error {
	kept := make([]domain.Consumption, 0, len(s.consumptions))
	for _, c := range s.consumptions {
		if c.ManufacturingID != manufacturingID {
			kept = append(kept, c)
			continue
		}
		if _, err := s.appendLocked(domain.StockTransaction{
			MaterialID: c.MaterialID,
			Quantity:   c.Quantity,
			Reference:  "reversal:" + c.ID,
			Notes:      notes,
			CreatedBy:  actor,
			CreatedAt:  at,
		}, store.LedgerOptions{}); err != nil {
			return err
		}
	}
	s.consumptions = kept
	return nil
}

func (s *Store) ListDailyConsumptions(_ context.Context) ([]domain.DailyConsumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DailyConsumption, 0, len(s.daily))
	for _, r := range s.daily {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].Machine < out[j].Machine
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

func (s *Store) GetDailyConsumption(_ context.Context, id string) (*domain.DailyConsumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.daily[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *Store) CreateDailyConsumption(_ context.Context, record domain.DailyConsumption) (*domain.DailyConsumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = xid.New("dcons")
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	s.daily[record.ID] = record
	created := record
	return &created, nil
}

func (s *Store) UpdateDailyConsumption(_ context.Context, record domain.DailyConsumption) (*domain.DailyConsumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.daily[record.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	record.CreatedAt = existing.CreatedAt
	record.CreatedBy = existing.CreatedBy
	record.UpdatedAt = time.Now().UTC()
	s.daily[record.ID] = record
	updated := record
	return &updated, nil
}

func (s *Store) DeleteDailyConsumption(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.daily[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.daily, id)
	return nil
}

func (s *Store) ListGasConsumptions(_ context.Context) ([]domain.GasConsumption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.GasConsumption, 0, len(s.gas))
	for _, r := range s.gas {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Store) CreateGasConsumption(_ context.Context, record domain.GasConsumption) (*domain.GasConsumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = xid.New("gas")
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	s.gas[record.ID] = record
	created := record
	return &created, nil
}

func (s *Store) UpdateGasConsumption(_ context.Context, record domain.GasConsumption) (*domain.GasConsumption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.gas[record.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	record.CreatedAt = existing.CreatedAt
	record.CreatedBy = existing.CreatedBy
	record.UpdatedAt = time.Now().UTC()
	s.gas[record.ID] = record
	updated := record
	return &updated, nil
}

func (s *Store) DeleteGasConsumption(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gas[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.gas, id)
	return nil
}

func (s *Store) ListShipments(_ context.Context) ([]domain.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Shipment, 0, len(s.shipments))
	for _, sh := range s.shipments {
		out = append(out, sh)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateShipment(_ context.Context, shipment domain.Shipment) (*domain.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[shipment.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !shipment.Quantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if product.CurrentStock.LessThan(shipment.Quantity) {
		return nil, store.ErrInsufficientStock
	}

	s.shipmentSeq++
	if shipment.ID == "" {
		shipment.ID = xid.New("shp")
	}
	if shipment.CreatedAt.IsZero() {
		shipment.CreatedAt = time.Now().UTC()
	}
	shipment.ShipmentNumber = xid.Sequence("SHP", s.shipmentSeq)
	shipment.ProductName = product.Name
	shipment.Status = domain.ShipmentPending

	if err := s.moveProductLocked(product.ID, shipment.Quantity.Neg(), "shipment", shipment.ID, shipment.CreatedBy, shipment.CreatedAt); err != nil {
		return nil, err
	}
	s.shipments[shipment.ID] = shipment
	created := shipment
	return &created, nil
}

func (s *Store) TransitionShipment(_ context.Context, id string, next domain.ShipmentStatus) (*domain.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shipment, ok := s.shipments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !shipment.Status.CanTransitionTo(next) {
		return nil, store.ErrInvalidTransition
	}
	shipment.Status = next
	s.shipments[id] = shipment
	updated := shipment
	return &updated, nil
}

func (s *Store) DeleteShipment(_ context.Context, id string, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	shipment, ok := s.shipments[id]
	if !ok {
		return store.ErrNotFound
	}
	if shipment.Status != domain.ShipmentPending {
		return store.ErrInvalidTransition
	}
	if err := s.moveProductLocked(shipment.ProductID, shipment.Quantity, "shipment_cancel", shipment.ID, actor, time.Now().UTC()); err != nil {
		return err
	}
	delete(s.shipments, id)
	return nil
}

func (s *Store) ListDispatches(_ context.Context) ([]domain.Dispatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Dispatch, 0, len(s.dispatches))
	for _, d := range s.dispatches {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShipmentDate.After(out[j].ShipmentDate) })
	return out, nil
}

func (s *Store) CreateDispatch(_ context.Context, dispatch domain.Dispatch) (*domain.Dispatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dispatchSeq++
	if dispatch.ID == "" {
		dispatch.ID = xid.New("dsp")
	}
	if dispatch.CreatedAt.IsZero() {
		dispatch.CreatedAt = time.Now().UTC()
	}
	dispatch.DispatchNumber = xid.Sequence("DSP", s.dispatchSeq)
	s.dispatches[dispatch.ID] = dispatch
	created := dispatch
	return &created, nil
}

func (s *Store) DeleteDispatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dispatches[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.dispatches, id)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		out = append(out, entry)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(username))
	user, ok := s.usersByUsername[key]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[key] = user
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for username, user := range s.usersByUsername {
		if user.ID == id {
			delete(s.usersByUsername, username)
			return nil
		}
	}
	return store.ErrNotFound
}
