package service

import (
	"context"
	"time"

	"filmtrack/backend/internal/domain"
	"filmtrack/backend/internal/report"
)

// CostAnalysis prices every recorded consumption at the material's current
// unit price.
func (s *Service) CostAnalysis(ctx context.Context) (domain.CostAnalysis, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return domain.CostAnalysis{}, err
	}
	return report.Load(ctx, s.reports, report.KeyCosts, func(ctx context.Context) (domain.CostAnalysis, error) {
		consumptions, err := s.repo.ListConsumptions(ctx)
		if err != nil {
			return domain.CostAnalysis{}, err
		}
		materials, err := s.repo.ListMaterials(ctx)
		if err != nil {
			return domain.CostAnalysis{}, err
		}
		return report.AggregateCosts(consumptions, materials, time.Now().UTC()), nil
	})
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return domain.DashboardStats{}, err
	}
	return report.Load(ctx, s.reports, report.KeyDashboard, func(ctx context.Context) (domain.DashboardStats, error) {
		materials, err := s.repo.ListMaterials(ctx)
		if err != nil {
			return domain.DashboardStats{}, err
		}
		products, err := s.repo.ListProducts(ctx)
		if err != nil {
			return domain.DashboardStats{}, err
		}
		orders, err := s.repo.ListProductionOrders(ctx)
		if err != nil {
			return domain.DashboardStats{}, err
		}
		shipments, err := s.repo.ListShipments(ctx)
		if err != nil {
			return domain.DashboardStats{}, err
		}
		return report.Dashboard(materials, products, orders, shipments), nil
	})
}

// FinishedStock is produced rolls minus dispatched rolls, per model and color.
func (s *Service) FinishedStock(ctx context.Context) ([]domain.StockItem, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	return report.Load(ctx, s.reports, report.KeyStock, func(ctx context.Context) ([]domain.StockItem, error) {
		records, err := s.repo.ListManufacturing(ctx)
		if err != nil {
			return nil, err
		}
		dispatches, err := s.repo.ListDispatches(ctx)
		if err != nil {
			return nil, err
		}
		return report.FinishedStock(records, dispatches), nil
	})
}

func (s *Service) ExportCostAnalysis(ctx context.Context) ([]byte, error) {
	analysis, err := s.CostAnalysis(ctx)
	if err != nil {
		return nil, err
	}
	return report.CostAnalysisXLSX(analysis)
}

func (s *Service) ExportFinishedStock(ctx context.Context) ([]byte, error) {
	items, err := s.FinishedStock(ctx)
	if err != nil {
		return nil, err
	}
	return report.StockXLSX(items)
}
