package report

import (
	"bytes"

	"github.com/xuri/excelize/v2"

	"filmtrack/backend/internal/calc"
	"filmtrack/backend/internal/domain"
)

func writeSheet(header []interface{}, rows [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func CostAnalysisXLSX(analysis domain.CostAnalysis) ([]byte, error) {
	header := []interface{}{"material", "unit", "total_quantity", "unit_price", "total_cost", "percentage"}
	rows := make([][]interface{}, 0, len(analysis.Rows)+1)
	for _, r := range analysis.Rows {
		rows = append(rows, []interface{}{
			r.MaterialName,
			r.Unit,
			r.TotalQuantity.InexactFloat64(),
			r.UnitPrice.InexactFloat64(),
			calc.Round2(r.TotalCost).InexactFloat64(),
			r.Percentage.InexactFloat64(),
		})
	}
	rows = append(rows, []interface{}{"TOTAL", "", "", "", calc.Round2(analysis.GrandTotal).InexactFloat64(), ""})
	return writeSheet(header, rows)
}

func StockXLSX(items []domain.StockItem) ([]byte, error) {
	header := []interface{}{"thickness_mm", "width_cm", "length_m", "color", "produced", "dispatched", "on_hand", "square_meters"}
	rows := make([][]interface{}, 0, len(items))
	for _, it := range items {
		rows = append(rows, []interface{}{
			it.ThicknessMM.InexactFloat64(),
			it.WidthCM.InexactFloat64(),
			it.LengthM.InexactFloat64(),
			it.ColorName,
			it.ProducedQuantity,
			it.DispatchedQuantity,
			it.TotalQuantity,
			it.TotalSquareMeters.InexactFloat64(),
		})
	}
	return writeSheet(header, rows)
}
