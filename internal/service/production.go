package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"filmtrack/backend/internal/calc"
	"filmtrack/backend/internal/domain"
	"filmtrack/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := s.authorize(ctx, CapWrite); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Unit = strings.TrimSpace(req.Unit)
	if req.Name == "" || req.Code == "" || req.Unit == "" {
		return domain.Product{}, invalid("name, code and unit are required")
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:      req.Name,
		Code:      req.Code,
		Unit:      req.Unit,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.written(ctx, "product_create", "product", created.ID, "code="+created.Code)
	return *created, nil
}

func (s *Service) ListProductMovements(ctx context.Context, productID string) ([]domain.ProductMovement, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListProductMovements(ctx, productID)
}

func (s *Service) ListProductionOrders(ctx context.Context) ([]domain.ProductionOrder, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	return s.repo.ListProductionOrders(ctx)
}

func (s *Service) CreateProductionOrder(ctx context.Context, req domain.ProductionOrderCreateRequest) (domain.ProductionOrder, error) {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return domain.ProductionOrder{}, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return domain.ProductionOrder{}, invalid("product_id is required")
	}
	if !req.Quantity.IsPositive() {
		return domain.ProductionOrder{}, invalid("quantity must be greater than zero")
	}

	created, err := s.repo.CreateProductionOrder(ctx, domain.ProductionOrder{
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		PlannedDate: dayOrToday(req.PlannedDate),
		CreatedBy:   actor.Username,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.ProductionOrder{}, err
	}
	s.written(ctx, "production_order_create", "production_order", created.ID, fmt.Sprintf("number=%s,qty=%s", created.OrderNumber, created.Quantity))
	return *created, nil
}

// TransitionProductionOrder moves an order along planned -> in_progress ->
// completed, or to cancelled from any non-terminal state.
func (s *Service) TransitionProductionOrder(ctx context.Context, id string, status string) (_ domain.ProductionOrder, err error) {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return domain.ProductionOrder{}, err
	}

	next := domain.ProductionStatus(strings.ToLower(strings.TrimSpace(status)))
	if !next.Valid() {
		return domain.ProductionOrder{}, invalid("unknown production status %q", status)
	}

	ctx, span := s.startSpan(ctx, "service.TransitionProductionOrder",
		attribute.String("order.id", id),
		attribute.String("order.status", string(next)),
	)
	defer func() { endSpan(span, err) }()

	updated, err := s.repo.TransitionProductionOrder(ctx, strings.TrimSpace(id), next, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.ProductionOrder{}, err
	}
	s.written(ctx, "production_order_status", "production_order", updated.ID, fmt.Sprintf("number=%s,status=%s", updated.OrderNumber, updated.Status))
	return *updated, nil
}

func (s *Service) ListConsumptions(ctx context.Context) ([]domain.Consumption, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	return s.repo.ListConsumptions(ctx)
}

// CreateConsumption records a material draw against an active production
// order. The ledger entry is written in the same store transaction.
func (s *Service) CreateConsumption(ctx context.Context, req domain.ConsumptionCreateRequest) (_ domain.Consumption, err error) {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return domain.Consumption{}, err
	}

	req.ProductionOrderID = strings.TrimSpace(req.ProductionOrderID)
	req.MaterialID = strings.TrimSpace(req.MaterialID)
	if req.ProductionOrderID == "" || req.MaterialID == "" {
		return domain.Consumption{}, invalid("production_order_id and material_id are required")
	}
	if !req.Quantity.IsPositive() {
		return domain.Consumption{}, invalid("quantity must be greater than zero")
	}

	ctx, span := s.startSpan(ctx, "service.CreateConsumption",
		attribute.String("order.id", req.ProductionOrderID),
		attribute.String("material.id", req.MaterialID),
	)
	defer func() { endSpan(span, err) }()

	created, err := s.repo.CreateConsumption(ctx, domain.Consumption{
		ProductionOrderID: req.ProductionOrderID,
		MaterialID:        req.MaterialID,
		Quantity:          req.Quantity,
		CreatedBy:         actor.Username,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			s.metrics.LedgerEntry(string(domain.TransactionOut), "rejected")
		}
		return domain.Consumption{}, err
	}
	s.metrics.LedgerEntry(string(domain.TransactionOut), "ok")
	s.written(ctx, "consumption_create", "consumption", created.ID, fmt.Sprintf("order=%s,material=%s,qty=%s", created.ProductionOrderID, created.MaterialID, created.Quantity))
	return *created, nil
}

func (s *Service) ListManufacturing(ctx context.Context) ([]domain.ManufacturingRecord, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	return s.repo.ListManufacturing(ctx)
}

// ModelLabel names a roll by its dimensions, e.g. "0.017 mm x 50 cm x 300 m".
func ModelLabel(thicknessMM decimal.Decimal, widthCM decimal.Decimal, lengthM decimal.Decimal) string {
	return fmt.Sprintf("%s mm x %d cm x %d m", thicknessMM.String(), widthCM.IntPart(), lengthM.IntPart())
}

func validDimensions(thickness decimal.Decimal, width decimal.Decimal, length decimal.Decimal, quantity int64) error {
	if !thickness.IsPositive() || !width.IsPositive() || !length.IsPositive() {
		return invalid("thickness, width and length must be greater than zero")
	}
	if quantity <= 0 {
		return invalid("quantity must be greater than zero")
	}
	return nil
}

// colorName resolves an optional color material. A blank id means uncolored;
// an id that matches no material is kept without a name.
func (s *Service) colorName(ctx context.Context, materialID string) (string, string, error) {
	materialID = strings.TrimSpace(materialID)
	if materialID == "" {
		return "", "", nil
	}
	material, err := s.repo.GetMaterial(ctx, materialID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return materialID, "", nil
		}
		return "", "", err
	}
	return material.ID, material.Name, nil
}

// buildManufacturing validates a request and resolves everything a run needs
// before the store is touched.
func (s *Service) buildManufacturing(ctx context.Context, actor domain.Actor, req domain.ManufacturingCreateRequest) (domain.ManufacturingRecord, []store.AutoConsumption, error) {
	if !req.Machine.Valid() {
		return domain.ManufacturingRecord{}, nil, invalid("machine must be %q or %q", domain.Machine1, domain.Machine2)
	}
	if req.SpoolType == "" {
		req.SpoolType = domain.NoSpool
	}
	if !req.SpoolType.Valid() {
		return domain.ManufacturingRecord{}, nil, invalid("unknown spool type %q", req.SpoolType)
	}
	if err := validDimensions(req.ThicknessMM, req.WidthCM, req.LengthM, req.Quantity); err != nil {
		return domain.ManufacturingRecord{}, nil, err
	}
	if req.SpoolQuantity < 0 || req.GasConsumptionKG.IsNegative() {
		return domain.ManufacturingRecord{}, nil, invalid("spool quantity and gas consumption must not be negative")
	}

	colorID, colorName, err := s.colorName(ctx, req.ColorMaterialID)
	if err != nil {
		return domain.ManufacturingRecord{}, nil, err
	}

	record := domain.ManufacturingRecord{
		ProductionDate:   dayOrToday(req.ProductionDate),
		Machine:          req.Machine,
		ThicknessMM:      req.ThicknessMM,
		WidthCM:          req.WidthCM,
		LengthM:          req.LengthM,
		Quantity:         req.Quantity,
		SquareMeters:     calc.Area(req.WidthCM, req.LengthM, req.Quantity),
		SpoolType:        req.SpoolType,
		SpoolQuantity:    req.SpoolQuantity,
		ColorMaterialID:  colorID,
		ColorName:        colorName,
		Model:            ModelLabel(req.ThicknessMM, req.WidthCM, req.LengthM),
		GasConsumptionKG: req.GasConsumptionKG,
		CreatedBy:        actor.Username,
		CreatedAt:        time.Now().UTC(),
	}

	draws, err := s.manufacturingDraws(ctx, record)
	if err != nil {
		return domain.ManufacturingRecord{}, nil, err
	}
	return record, draws, nil
}

// CreateManufacturing records a production run and draws the spools and gas
// it used. Draws the stock cannot cover are skipped by the store.
func (s *Service) CreateManufacturing(ctx context.Context, req domain.ManufacturingCreateRequest) (_ domain.ManufacturingRecord, _ []domain.Consumption, err error) {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return domain.ManufacturingRecord{}, nil, err
	}

	ctx, span := s.startSpan(ctx, "service.CreateManufacturing",
		attribute.String("machine", string(req.Machine)),
		attribute.Int64("quantity", req.Quantity),
	)
	defer func() { endSpan(span, err) }()

	record, draws, err := s.buildManufacturing(ctx, actor, req)
	if err != nil {
		return domain.ManufacturingRecord{}, nil, err
	}

	created, applied, err := s.repo.CreateManufacturing(ctx, record, draws)
	if err != nil {
		return domain.ManufacturingRecord{}, nil, err
	}
	s.countDraws(len(draws), len(applied))

	s.written(ctx, "manufacturing_create", "manufacturing", created.ID, fmt.Sprintf("model=%s,qty=%d,draws=%d/%d", created.Model, created.Quantity, len(applied), len(draws)))
	return *created, applied, nil
}

func (s *Service) countDraws(planned int, applied int) {
	for i := 0; i < applied; i++ {
		s.metrics.LedgerEntry(string(domain.TransactionOut), "ok")
	}
	if planned > applied {
		s.metrics.LedgerEntry(string(domain.TransactionOut), "skipped")
	}
}

// manufacturingDraws lists the spool and gas consumption a run implies. A
// missing spool or gas material is not an error; the draw is simply omitted.
func (s *Service) manufacturingDraws(ctx context.Context, record domain.ManufacturingRecord) ([]store.AutoConsumption, error) {
	draws := make([]store.AutoConsumption, 0, 2)

	if record.SpoolType != domain.NoSpool && record.SpoolQuantity > 0 {
		spool, err := s.repo.FindMaterialByName(ctx, string(record.SpoolType))
		switch {
		case err == nil:
			draws = append(draws, store.AutoConsumption{
				MaterialID: spool.ID,
				Quantity:   decimal.NewFromInt(record.SpoolQuantity),
				Reference:  "manufacturing:" + record.Model,
			})
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	if record.GasConsumptionKG.IsPositive() {
		gas, err := s.repo.FindMaterialByCode(ctx, s.gasCode)
		switch {
		case err == nil:
			draws = append(draws, store.AutoConsumption{
				MaterialID: gas.ID,
				Quantity:   record.GasConsumptionKG,
				Reference:  "manufacturing:" + record.Model,
			})
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	return draws, nil
}

// DeleteManufacturing removes a run and books compensating entries for the
// stock it drew.
func (s *Service) DeleteManufacturing(ctx context.Context, id string) error {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteManufacturing(ctx, id, actor.Username); err != nil {
		return err
	}
	s.written(ctx, "manufacturing_delete", "manufacturing", id, "")
	return nil
}

// UpdateManufacturing edits a run in place. The old draws are reversed and
// the new ones applied in the same store transaction, so a rejected edit
// leaves the original record and stock untouched.
func (s *Service) UpdateManufacturing(ctx context.Context, id string, req domain.ManufacturingCreateRequest) (_ domain.ManufacturingRecord, _ []domain.Consumption, err error) {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return domain.ManufacturingRecord{}, nil, err
	}

	ctx, span := s.startSpan(ctx, "service.UpdateManufacturing", attribute.String("manufacturing.id", id))
	defer func() { endSpan(span, err) }()

	record, draws, err := s.buildManufacturing(ctx, actor, req)
	if err != nil {
		return domain.ManufacturingRecord{}, nil, err
	}
	record.ID = strings.TrimSpace(id)

	updated, applied, err := s.repo.ReplaceManufacturing(ctx, record, draws, actor.Username)
	if err != nil {
		return domain.ManufacturingRecord{}, nil, err
	}
	s.countDraws(len(draws), len(applied))

	s.written(ctx, "manufacturing_update", "manufacturing", updated.ID, fmt.Sprintf("model=%s,qty=%d,draws=%d/%d", updated.Model, updated.Quantity, len(applied), len(draws)))
	return *updated, applied, nil
}
