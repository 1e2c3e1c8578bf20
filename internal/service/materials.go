package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"filmtrack/backend/internal/calc"
	"filmtrack/backend/internal/domain"
	"filmtrack/backend/internal/report"
	"filmtrack/backend/internal/store"
)

func (s *Service) ListMaterials(ctx context.Context) ([]domain.Material, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	materials, err := s.repo.ListMaterials(ctx)
	if err != nil {
		return nil, err
	}
	return report.FlagLowStock(materials), nil
}

func (s *Service) GetMaterial(ctx context.Context, id string) (domain.Material, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return domain.Material{}, err
	}
	m, err := s.repo.GetMaterial(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Material{}, err
	}
	m.LowStock = calc.IsLowStock(m.CurrentStock, m.MinStockLevel)
	return *m, nil
}

func (s *Service) CreateMaterial(ctx context.Context, req domain.MaterialCreateRequest) (domain.Material, error) {
	if _, err := s.authorize(ctx, CapWrite); err != nil {
		return domain.Material{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	req.Unit = strings.TrimSpace(req.Unit)
	if req.Name == "" || req.Code == "" || req.Unit == "" {
		return domain.Material{}, invalid("name, code and unit are required")
	}
	if req.UnitPrice.IsNegative() || req.MinStockLevel.IsNegative() {
		return domain.Material{}, invalid("unit price and minimum stock level must not be negative")
	}

	created, err := s.repo.CreateMaterial(ctx, domain.Material{
		Name:          req.Name,
		Code:          req.Code,
		Unit:          req.Unit,
		UnitPrice:     req.UnitPrice,
		MinStockLevel: req.MinStockLevel,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.Material{}, err
	}

	s.written(ctx, "material_create", "raw_material", created.ID, fmt.Sprintf("code=%s,price=%s", created.Code, created.UnitPrice))
	created.LowStock = calc.IsLowStock(created.CurrentStock, created.MinStockLevel)
	return *created, nil
}

func (s *Service) UpdateMaterial(ctx context.Context, id string, req domain.MaterialUpdateRequest) (domain.Material, error) {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return domain.Material{}, err
	}

	existing, err := s.repo.GetMaterial(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Material{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Material{}, invalid("name must not be empty")
		}
		updated.Name = name
	}
	if req.Unit != nil {
		unit := strings.TrimSpace(*req.Unit)
		if unit == "" {
			return domain.Material{}, invalid("unit must not be empty")
		}
		updated.Unit = unit
	}
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return domain.Material{}, invalid("unit price must not be negative")
		}
		updated.UnitPrice = *req.UnitPrice
	}
	if req.MinStockLevel != nil {
		if req.MinStockLevel.IsNegative() {
			return domain.Material{}, invalid("minimum stock level must not be negative")
		}
		updated.MinStockLevel = *req.MinStockLevel
	}

	saved, err := s.repo.UpdateMaterial(ctx, updated)
	if err != nil {
		return domain.Material{}, err
	}

	if !existing.UnitPrice.Equal(saved.UnitPrice) {
		if err := s.repo.CreatePriceChange(ctx, domain.MaterialPriceChange{
			MaterialID: saved.ID,
			OldPrice:   existing.UnitPrice,
			NewPrice:   saved.UnitPrice,
			ChangedBy:  actor.Username,
			ChangedAt:  time.Now().UTC(),
		}); err != nil {
			log.Printf("[service] WARN: failed to record price change material=%s: %v", saved.Code, err)
		}
	}

	s.written(ctx, "material_update", "raw_material", saved.ID, fmt.Sprintf("price=%s->%s,min=%s", existing.UnitPrice, saved.UnitPrice, saved.MinStockLevel))
	saved.LowStock = calc.IsLowStock(saved.CurrentStock, saved.MinStockLevel)
	return *saved, nil
}

func (s *Service) MaterialPriceHistory(ctx context.Context, id string, limit int) ([]domain.MaterialPriceChange, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetMaterial(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListPriceChanges(ctx, id, limit)
}

// MaterialLedger returns the full movement history together with the folded
// balance, flagging any disagreement with the stored counter.
func (s *Service) MaterialLedger(ctx context.Context, id string) (domain.MaterialLedger, error) {
	material, err := s.GetMaterial(ctx, id)
	if err != nil {
		return domain.MaterialLedger{}, err
	}
	txs, err := s.repo.ListStockTransactions(ctx, material.ID, 0)
	if err != nil {
		return domain.MaterialLedger{}, err
	}
	balance := calc.Balance(txs)
	return domain.MaterialLedger{
		Material:      material,
		Transactions:  txs,
		LedgerBalance: balance,
		Consistent:    balance.Equal(material.CurrentStock),
	}, nil
}

func (s *Service) LowStockMaterials(ctx context.Context) ([]domain.Material, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	return report.Load(ctx, s.reports, report.KeyLowStock, func(ctx context.Context) ([]domain.Material, error) {
		materials, err := s.repo.ListMaterials(ctx)
		if err != nil {
			return nil, err
		}
		return report.LowStock(materials), nil
	})
}

func (s *Service) AppendStockTransaction(ctx context.Context, req domain.StockTransactionRequest) (_ domain.StockTransaction, err error) {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return domain.StockTransaction{}, err
	}

	ctx, span := s.startSpan(ctx, "service.AppendStockTransaction",
		attribute.String("material.id", req.MaterialID),
		attribute.String("transaction.type", string(req.TransactionType)),
	)
	defer func() { endSpan(span, err) }()

	req.MaterialID = strings.TrimSpace(req.MaterialID)
	if req.MaterialID == "" {
		return domain.StockTransaction{}, invalid("material_id is required")
	}
	if !req.TransactionType.Valid() {
		return domain.StockTransaction{}, invalid("transaction_type must be in or out")
	}
	if !req.Quantity.IsPositive() {
		return domain.StockTransaction{}, invalid("quantity must be greater than zero")
	}

	created, err := s.repo.AppendStockTransaction(ctx, domain.StockTransaction{
		MaterialID: req.MaterialID,
		Quantity:   req.TransactionType.Signed(req.Quantity),
		Reference:  strings.TrimSpace(req.Reference),
		Notes:      strings.TrimSpace(req.Notes),
		CreatedBy:  actor.Username,
		CreatedAt:  time.Now().UTC(),
	}, store.LedgerOptions{Strict: s.strict})
	if err != nil {
		outcome := "error"
		if errors.Is(err, store.ErrInsufficientStock) {
			outcome = "rejected"
		}
		s.metrics.LedgerEntry(string(req.TransactionType), outcome)
		return domain.StockTransaction{}, err
	}
	s.metrics.LedgerEntry(string(req.TransactionType), "ok")

	s.written(ctx, "stock_transaction", "raw_material", created.MaterialID, fmt.Sprintf("type=%s,qty=%s,ref=%s", created.TransactionType, created.Quantity, created.Reference))
	return *created, nil
}

func (s *Service) ListStockTransactions(ctx context.Context, materialID string, limit int) ([]domain.StockTransaction, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	return s.repo.ListStockTransactions(ctx, strings.TrimSpace(materialID), limit)
}

// ReconcileBalances recomputes every material balance from its ledger. With
// repair set, drifted counters are overwritten with the ledger sum.
func (s *Service) ReconcileBalances(ctx context.Context, repair bool) (_ domain.ReconcileReport, err error) {
	if _, err := s.authorize(ctx, CapReconcile); err != nil {
		return domain.ReconcileReport{}, err
	}

	ctx, span := s.startSpan(ctx, "service.ReconcileBalances", attribute.Bool("repair", repair))
	defer func() { endSpan(span, err) }()

	drifts, checked, err := s.repo.ReconcileMaterialBalances(ctx, repair)
	if err != nil {
		return domain.ReconcileReport{}, err
	}
	s.metrics.BalanceDrift(len(drifts))
	if len(drifts) > 0 {
		log.Printf("[service] WARN: %d material balance(s) drifted from ledger (repair=%t)", len(drifts), repair)
	}
	if repair && len(drifts) > 0 {
		s.written(ctx, "stock_reconcile", "raw_material", "*", fmt.Sprintf("repaired=%d", len(drifts)))
	}

	return domain.ReconcileReport{
		Checked:   checked,
		Drifts:    drifts,
		Repaired:  repair && len(drifts) > 0,
		CheckedAt: time.Now().UTC(),
	}, nil
}
