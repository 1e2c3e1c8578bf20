package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"filmtrack/backend/internal/domain"
	"filmtrack/backend/internal/store"
	"filmtrack/backend/internal/xid"
)

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, code, unit, current_stock, created_at FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.Unit, &p.CurrentStock, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `SELECT id, name, code, unit, current_stock, created_at FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Code, &p.Unit, &p.CurrentStock, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Code == "" || product.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.CurrentStock = decimal.Zero

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, code, unit, current_stock, created_at)
		VALUES ($1,$2,$3,$4,0,$5)
	`, product.ID, product.Name, product.Code, product.Unit, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) ListProductMovements(ctx context.Context, productID string) ([]domain.ProductMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, quantity, source_type, source_id, created_by, created_at
		FROM product_movements
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY created_at
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ProductMovement, 0, 32)
	for rows.Next() {
		var mv domain.ProductMovement
		if err := rows.Scan(&mv.ID, &mv.ProductID, &mv.Quantity, &mv.SourceType, &mv.SourceID, &mv.CreatedBy, &mv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

// moveProduct adjusts finished-product stock and records the movement. With
// requireCover set, the product row is locked and a shortfall is rejected.
func moveProduct(ctx context.Context, tx *sql.Tx, mv domain.ProductMovement, requireCover bool) (string, error) {
	var name string
	var current decimal.Decimal
	err := tx.QueryRowContext(ctx, `SELECT name, current_stock FROM products WHERE id = $1 FOR UPDATE`, mv.ProductID).Scan(&name, &current)
	if err != nil {
		return "", notFound(err)
	}
	if requireCover && current.Add(mv.Quantity).IsNegative() {
		return "", store.ErrInsufficientStock
	}

	if mv.ID == "" {
		mv.ID = xid.New("pmv")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO product_movements (id, product_id, quantity, source_type, source_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, mv.ID, mv.ProductID, mv.Quantity, mv.SourceType, mv.SourceID, mv.CreatedBy, mv.CreatedAt); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE products SET current_stock = current_stock + $2 WHERE id = $1`, mv.ProductID, mv.Quantity); err != nil {
		return "", err
	}
	return name, nil
}

const orderColumns = `o.id, o.order_number, o.product_id, p.name, o.quantity, o.status, o.planned_date, o.completed_date, o.created_by, o.created_at`

func scanOrder(row rowScanner) (domain.ProductionOrder, error) {
	var o domain.ProductionOrder
	var status string
	var completed sql.NullTime
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.ProductID, &o.ProductName, &o.Quantity, &status, &o.PlannedDate, &completed, &o.CreatedBy, &o.CreatedAt); err != nil {
		return o, err
	}
	o.Status = domain.ProductionStatus(status)
	if completed.Valid {
		at := completed.Time
		o.CompletedDate = &at
	}
	return o, nil
}

func (s *Store) ListProductionOrders(ctx context.Context) ([]domain.ProductionOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM production_orders o
		JOIN products p ON p.id = o.product_id
		ORDER BY o.created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.ProductionOrder, 0, 64)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *Store) GetProductionOrder(ctx context.Context, id string) (*domain.ProductionOrder, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM production_orders o
		JOIN products p ON p.id = o.product_id
		WHERE o.id = $1
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

func (s *Store) CreateProductionOrder(ctx context.Context, order domain.ProductionOrder) (*domain.ProductionOrder, error) {
	if !order.Quantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	product, err := s.GetProduct(ctx, order.ProductID)
	if err != nil {
		return nil, err
	}

	var seq int
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('production_order_seq')`).Scan(&seq); err != nil {
		return nil, err
	}
	if order.ID == "" {
		order.ID = xid.New("po")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.OrderNumber = xid.Sequence("PRD", seq)
	order.ProductName = product.Name
	order.Status = domain.ProductionPlanned
	order.CompletedDate = nil

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO production_orders (id, order_number, product_id, quantity, status, planned_date, completed_date, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULL,$7,$8)
	`, order.ID, order.OrderNumber, order.ProductID, order.Quantity, string(order.Status), order.PlannedDate, order.CreatedBy, order.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := order
	return &created, nil
}

func (s *Store) TransitionProductionOrder(ctx context.Context, id string, next domain.ProductionStatus, actor string, at time.Time) (*domain.ProductionOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := scanOrder(tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM production_orders o
		JOIN products p ON p.id = o.product_id
		WHERE o.id = $1
		FOR UPDATE OF o
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, store.ErrInvalidTransition
	}

	var completed any
	if next == domain.ProductionCompleted {
		if _, err := moveProduct(ctx, tx, domain.ProductMovement{
			ProductID:  order.ProductID,
			Quantity:   order.Quantity,
			SourceType: "production_order",
			SourceID:   order.ID,
			CreatedBy:  actor,
			CreatedAt:  at,
		}, false); err != nil {
			return nil, err
		}
		stamp := at
		order.CompletedDate = &stamp
		completed = at
	}
	order.Status = next

	if _, err := tx.ExecContext(ctx, `
		UPDATE production_orders SET status = $2, completed_date = COALESCE($3, completed_date) WHERE id = $1
	`, id, string(next), completed); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

const consumptionColumns = `id, production_order_id, manufacturing_id, material_id, material_name, quantity, created_by, created_at`

func (s *Store) ListConsumptions(ctx context.Context) ([]domain.Consumption, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+consumptionColumns+` FROM consumptions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Consumption, 0, 128)
	for rows.Next() {
		var c domain.Consumption
		if err := rows.Scan(&c.ID, &c.ProductionOrderID, &c.ManufacturingID, &c.MaterialID, &c.MaterialName, &c.Quantity, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertConsumption(ctx context.Context, tx *sql.Tx, c domain.Consumption) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO consumptions (`+consumptionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, c.ID, c.ProductionOrderID, c.ManufacturingID, c.MaterialID, c.MaterialName, c.Quantity, c.CreatedBy, c.CreatedAt)
	return err
}

func (s *Store) CreateConsumption(ctx context.Context, consumption domain.Consumption) (*domain.Consumption, error) {
	if !consumption.Quantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var orderNumber, status string
	err = tx.QueryRowContext(ctx, `SELECT order_number, status FROM production_orders WHERE id = $1 FOR SHARE`, consumption.ProductionOrderID).
		Scan(&orderNumber, &status)
	if err != nil {
		return nil, notFound(err)
	}
	if !domain.ProductionStatus(status).Active() {
		return nil, store.ErrInvalidTransition
	}
	if err := tx.QueryRowContext(ctx, `SELECT name FROM raw_materials WHERE id = $1`, consumption.MaterialID).Scan(&consumption.MaterialName); err != nil {
		return nil, notFound(err)
	}

	if consumption.ID == "" {
		consumption.ID = xid.New("cons")
	}
	if consumption.CreatedAt.IsZero() {
		consumption.CreatedAt = time.Now().UTC()
	}

	if _, err := appendLedger(ctx, tx, domain.StockTransaction{
		MaterialID: consumption.MaterialID,
		Quantity:   consumption.Quantity.Neg(),
		Reference:  orderNumber,
		Notes:      "consumption " + consumption.ID,
		CreatedBy:  consumption.CreatedBy,
		CreatedAt:  consumption.CreatedAt,
	}, store.LedgerOptions{Strict: true}); err != nil {
		return nil, err
	}
	if err := insertConsumption(ctx, tx, consumption); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &consumption, nil
}

const manufacturingColumns = `id, production_date, machine, thickness_mm, width_cm, length_m, quantity, square_meters,
	masura_type, masura_quantity, color_material_id, color_name, model, gas_consumption_kg, created_by, created_at`

func (s *Store) ListManufacturing(ctx context.Context) ([]domain.ManufacturingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+manufacturingColumns+` FROM manufacturing_records ORDER BY production_date DESC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ManufacturingRecord, 0, 128)
	for rows.Next() {
		var r domain.ManufacturingRecord
		var machine, spool string
		if err := rows.Scan(&r.ID, &r.ProductionDate, &machine, &r.ThicknessMM, &r.WidthCM, &r.LengthM, &r.Quantity, &r.SquareMeters,
			&spool, &r.SpoolQuantity, &r.ColorMaterialID, &r.ColorName, &r.Model, &r.GasConsumptionKG, &r.CreatedBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Machine = domain.Machine(machine)
		r.SpoolType = domain.SpoolType(spool)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateManufacturing(ctx context.Context, record domain.ManufacturingRecord, draws []store.AutoConsumption) (*domain.ManufacturingRecord, []domain.Consumption, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if record.ID == "" {
		record.ID = xid.New("mfg")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO manufacturing_records (`+manufacturingColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, record.ID, record.ProductionDate, string(record.Machine), record.ThicknessMM, record.WidthCM, record.LengthM, record.Quantity, record.SquareMeters,
		string(record.SpoolType), record.SpoolQuantity, record.ColorMaterialID, record.ColorName, record.Model, record.GasConsumptionKG, record.CreatedBy, record.CreatedAt); err != nil {
		return nil, nil, err
	}

	applied, err := applyManufacturingDraws(ctx, tx, record, record.CreatedBy, record.CreatedAt, draws)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &record, applied, nil
}

// ReplaceManufacturing reverses the draws of an existing run, rewrites the
// row under the same id and applies the new draws, all in one transaction.
func (s *Store) ReplaceManufacturing(ctx context.Context, record domain.ManufacturingRecord, draws []store.AutoConsumption, actor string) (*domain.ManufacturingRecord, []domain.Consumption, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, `SELECT created_by, created_at FROM manufacturing_records WHERE id = $1 FOR UPDATE`, record.ID).
		Scan(&record.CreatedBy, &record.CreatedAt); err != nil {
		return nil, nil, notFound(err)
	}

	now := time.Now().UTC()
	if err := reverseManufacturingDraws(ctx, tx, record.ID, actor, now, "manufacturing "+record.ID+" edited"); err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE manufacturing_records
		SET production_date = $2, machine = $3, thickness_mm = $4, width_cm = $5, length_m = $6, quantity = $7,
		    square_meters = $8, masura_type = $9, masura_quantity = $10, color_material_id = $11, color_name = $12,
		    model = $13, gas_consumption_kg = $14
		WHERE id = $1
	`, record.ID, record.ProductionDate, string(record.Machine), record.ThicknessMM, record.WidthCM, record.LengthM, record.Quantity, record.SquareMeters,
		string(record.SpoolType), record.SpoolQuantity, record.ColorMaterialID, record.ColorName, record.Model, record.GasConsumptionKG); err != nil {
		return nil, nil, err
	}

	applied, err := applyManufacturingDraws(ctx, tx, record, actor, now, draws)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &record, applied, nil
}

func (s *Store) DeleteManufacturing(ctx context.Context, id string, actor string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM manufacturing_records WHERE id = $1 FOR UPDATE`, id).Scan(&exists); err != nil {
		return notFound(err)
	}
	if err := reverseManufacturingDraws(ctx, tx, id, actor, time.Now().UTC(), "manufacturing "+id+" deleted"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM manufacturing_records WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// applyManufacturingDraws books the covered draws of a run. Uncovered or
// unknown materials are skipped.
func applyManufacturingDraws(ctx context.Context, tx *sql.Tx, record domain.ManufacturingRecord, actor string, at time.Time, draws []store.AutoConsumption) ([]domain.Consumption, error) {
	applied := make([]domain.Consumption, 0, len(draws))
	for _, draw := range draws {
		if !draw.Quantity.IsPositive() {
			continue
		}
		var name, code string
		var current decimal.Decimal
		err := tx.QueryRowContext(ctx, `SELECT name, code, current_stock FROM raw_materials WHERE id = $1 FOR UPDATE`, draw.MaterialID).
			Scan(&name, &code, &current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		if current.LessThan(draw.Quantity) {
			log.Printf("[postgres-store] WARN: skip auto-consumption material=%s need=%s have=%s", code, draw.Quantity, current)
			continue
		}

		consumption := domain.Consumption{
			ID:              xid.New("cons"),
			ManufacturingID: record.ID,
			MaterialID:      draw.MaterialID,
			MaterialName:    name,
			Quantity:        draw.Quantity,
			CreatedBy:       actor,
			CreatedAt:       at,
		}
		if _, err := appendLedger(ctx, tx, domain.StockTransaction{
			MaterialID: draw.MaterialID,
			Quantity:   draw.Quantity.Neg(),
			Reference:  draw.Reference,
			Notes:      "manufacturing " + record.ID,
			CreatedBy:  actor,
			CreatedAt:  at,
		}, store.LedgerOptions{}); err != nil {
			return nil, err
		}
		if err := insertConsumption(ctx, tx, consumption); err != nil {
			return nil, err
		}
		applied = append(applied, consumption)
	}
	return applied, nil
}

// reverseManufacturingDraws books compensating entries for a run's draws and
// removes them.
func reverseManufacturingDraws(ctx context.Context, tx *sql.Tx, id string, actor string, at time.Time, notes string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, material_id, quantity FROM consumptions WHERE manufacturing_id = $1`, id)
	if err != nil {
		return err
	}
	type draw struct {
		id         string
		materialID string
		quantity   decimal.Decimal
	}
	draws := make([]draw, 0, 4)
	for rows.Next() {
		var d draw
		if err := rows.Scan(&d.id, &d.materialID, &d.quantity); err != nil {
			rows.Close()
			return err
		}
		draws = append(draws, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range draws {
		if _, err := appendLedger(ctx, tx, domain.StockTransaction{
			MaterialID: d.materialID,
			Quantity:   d.quantity,
			Reference:  "reversal:" + d.id,
			Notes:      notes,
			CreatedBy:  actor,
			CreatedAt:  at,
		}, store.LedgerOptions{}); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM consumptions WHERE manufacturing_id = $1`, id)
	return err
}
