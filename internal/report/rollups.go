// Package report builds the read-only rollups served by the dashboard: cost
// analysis, headline counters, finished stock and the low-stock list.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"filmtrack/backend/internal/calc"
	"filmtrack/backend/internal/domain"
)

// AggregateCosts groups consumptions by material and prices them at each
// material's current unit price. Price changes therefore restate history.
func AggregateCosts(consumptions []domain.Consumption, materials []domain.Material, at time.Time) domain.CostAnalysis {
	byID := make(map[string]domain.Material, len(materials))
	for _, m := range materials {
		byID[m.ID] = m
	}

	rowsByMaterial := make(map[string]*domain.CostAnalysisRow)
	order := make([]string, 0, len(materials))
	for _, c := range consumptions {
		row, ok := rowsByMaterial[c.MaterialID]
		if !ok {
			m, known := byID[c.MaterialID]
			row = &domain.CostAnalysisRow{
				MaterialID:    c.MaterialID,
				MaterialName:  c.MaterialName,
				TotalQuantity: decimal.Zero,
				UnitPrice:     decimal.Zero,
			}
			if known {
				row.MaterialName = m.Name
				row.Unit = m.Unit
				row.UnitPrice = m.UnitPrice
			}
			rowsByMaterial[c.MaterialID] = row
			order = append(order, c.MaterialID)
		}
		row.TotalQuantity = row.TotalQuantity.Add(c.Quantity)
	}

	grand := decimal.Zero
	rows := make([]domain.CostAnalysisRow, 0, len(order))
	for _, id := range order {
		row := rowsByMaterial[id]
		row.TotalCost = row.TotalQuantity.Mul(row.UnitPrice)
		grand = grand.Add(row.TotalCost)
		rows = append(rows, *row)
	}
	for i := range rows {
		rows[i].Percentage = calc.Round2(calc.Percent(rows[i].TotalCost, grand))
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalCost.Equal(rows[j].TotalCost) {
			return rows[i].MaterialName < rows[j].MaterialName
		}
		return rows[i].TotalCost.GreaterThan(rows[j].TotalCost)
	})

	return domain.CostAnalysis{Rows: rows, GrandTotal: grand, GeneratedAt: at}
}

// FlagLowStock sets the derived LowStock flag on each material.
func FlagLowStock(materials []domain.Material) []domain.Material {
	for i := range materials {
		materials[i].LowStock = calc.IsLowStock(materials[i].CurrentStock, materials[i].MinStockLevel)
	}
	return materials
}

func LowStock(materials []domain.Material) []domain.Material {
	out := make([]domain.Material, 0)
	for _, m := range FlagLowStock(materials) {
		if m.LowStock {
			out = append(out, m)
		}
	}
	return out
}

func Dashboard(materials []domain.Material, products []domain.Product, orders []domain.ProductionOrder, shipments []domain.Shipment) domain.DashboardStats {
	stats := domain.DashboardStats{
		TotalRawMaterials: len(materials),
		TotalProducts:     len(products),
	}
	for _, m := range materials {
		if calc.IsLowStock(m.CurrentStock, m.MinStockLevel) {
			stats.LowStockMaterials++
		}
	}
	for _, o := range orders {
		if o.Status.Active() {
			stats.ActiveProductions++
		}
	}
	for _, s := range shipments {
		if s.Status == domain.ShipmentPending {
			stats.PendingShipments++
		}
	}
	return stats
}

func stockKey(thickness, width, length decimal.Decimal, color string) string {
	return fmt.Sprintf("%s|%s|%s|%s", thickness.String(), width.String(), length.String(), color)
}

// FinishedStock nets manufactured rolls against dispatched rolls per model
// (thickness, width, length, color).
func FinishedStock(records []domain.ManufacturingRecord, dispatches []domain.Dispatch) []domain.StockItem {
	items := make(map[string]*domain.StockItem)
	get := func(thickness, width, length decimal.Decimal, color string) *domain.StockItem {
		key := stockKey(thickness, width, length, color)
		item, ok := items[key]
		if !ok {
			item = &domain.StockItem{ThicknessMM: thickness, WidthCM: width, LengthM: length, ColorName: color}
			items[key] = item
		}
		return item
	}

	for _, r := range records {
		get(r.ThicknessMM, r.WidthCM, r.LengthM, r.ColorName).ProducedQuantity += r.Quantity
	}
	for _, d := range dispatches {
		get(d.ThicknessMM, d.WidthCM, d.LengthM, d.ColorName).DispatchedQuantity += d.Quantity
	}

	out := make([]domain.StockItem, 0, len(items))
	for _, item := range items {
		item.TotalQuantity = item.ProducedQuantity - item.DispatchedQuantity
		item.TotalSquareMeters = calc.Round2(calc.Area(item.WidthCM, item.LengthM, item.TotalQuantity))
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalQuantity == out[j].TotalQuantity {
			return stockKey(out[i].ThicknessMM, out[i].WidthCM, out[i].LengthM, out[i].ColorName) <
				stockKey(out[j].ThicknessMM, out[j].WidthCM, out[j].LengthM, out[j].ColorName)
		}
		return out[i].TotalQuantity > out[j].TotalQuantity
	})
	return out
}
