package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"filmtrack/backend/internal/domain"
	"filmtrack/backend/internal/store"
	"filmtrack/backend/internal/xid"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate applies the embedded goose migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const materialColumns = `id, name, code, unit, unit_price, current_stock, min_stock_level, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row rowScanner) (domain.Material, error) {
	var m domain.Material
	err := row.Scan(&m.ID, &m.Name, &m.Code, &m.Unit, &m.UnitPrice, &m.CurrentStock, &m.MinStockLevel, &m.CreatedAt)
	return m, err
}

func (s *Store) ListMaterials(ctx context.Context) ([]domain.Material, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+materialColumns+` FROM raw_materials ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	materials := make([]domain.Material, 0, 64)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return materials, nil
}

func (s *Store) GetMaterial(ctx context.Context, id string) (*domain.Material, error) {
	m, err := scanMaterial(s.db.QueryRowContext(ctx, `SELECT `+materialColumns+` FROM raw_materials WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Store) FindMaterialByCode(ctx context.Context, code string) (*domain.Material, error) {
	m, err := scanMaterial(s.db.QueryRowContext(ctx, `SELECT `+materialColumns+` FROM raw_materials WHERE lower(code) = lower($1)`, code))
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Store) FindMaterialByName(ctx context.Context, name string) (*domain.Material, error) {
	m, err := scanMaterial(s.db.QueryRowContext(ctx, `SELECT `+materialColumns+` FROM raw_materials WHERE name = $1 ORDER BY created_at LIMIT 1`, name))
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Store) CreateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error) {
	if material.Code == "" || material.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if material.ID == "" {
		material.ID = xid.New("mat")
	}
	if material.CreatedAt.IsZero() {
		material.CreatedAt = time.Now().UTC()
	}
	material.CurrentStock = decimal.Zero

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_materials (id, name, code, unit, unit_price, current_stock, min_stock_level, created_at)
		VALUES ($1,$2,$3,$4,$5,0,$6,$7)
	`, material.ID, material.Name, material.Code, material.Unit, material.UnitPrice, material.MinStockLevel, material.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := material
	return &created, nil
}

func (s *Store) UpdateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error) {
	updated, err := scanMaterial(s.db.QueryRowContext(ctx, `
		UPDATE raw_materials
		SET name = $2, unit = $3, unit_price = $4, min_stock_level = $5
		WHERE id = $1
		RETURNING `+materialColumns,
		material.ID, material.Name, material.Unit, material.UnitPrice, material.MinStockLevel))
	if err != nil {
		return nil, notFound(err)
	}
	return &updated, nil
}

func (s *Store) CreatePriceChange(ctx context.Context, change domain.MaterialPriceChange) error {
	if change.ID == "" {
		change.ID = xid.New("price")
	}
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO material_price_history (id, material_id, old_price, new_price, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, change.ID, change.MaterialID, change.OldPrice, change.NewPrice, change.ChangedBy, change.ChangedAt)
	return err
}

func (s *Store) ListPriceChanges(ctx context.Context, materialID string, limit int) ([]domain.MaterialPriceChange, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, material_id, old_price, new_price, changed_by, changed_at
		FROM material_price_history
		WHERE material_id = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, materialID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.MaterialPriceChange, 0, limit)
	for rows.Next() {
		var c domain.MaterialPriceChange
		if err := rows.Scan(&c.ID, &c.MaterialID, &c.OldPrice, &c.NewPrice, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, err
		}
		history = append(history, c)
	}
	return history, rows.Err()
}

func (s *Store) AppendStockTransaction(ctx context.Context, stx domain.StockTransaction, opts store.LedgerOptions) (*domain.StockTransaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	created, err := appendLedger(ctx, tx, stx, opts)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &created, nil
}

// appendLedger locks the material row, inserts the ledger entry and moves
// the counter by the same signed quantity inside the caller's transaction.
func appendLedger(ctx context.Context, tx *sql.Tx, stx domain.StockTransaction, opts store.LedgerOptions) (domain.StockTransaction, error) {
	if stx.Quantity.IsZero() {
		return domain.StockTransaction{}, store.ErrInvalidTransaction
	}

	var current decimal.Decimal
	err := tx.QueryRowContext(ctx, `SELECT current_stock FROM raw_materials WHERE id = $1 FOR UPDATE`, stx.MaterialID).Scan(&current)
	if err != nil {
		return domain.StockTransaction{}, notFound(err)
	}
	if opts.Strict && stx.Quantity.IsNegative() && current.Add(stx.Quantity).IsNegative() {
		return domain.StockTransaction{}, store.ErrInsufficientStock
	}

	if stx.ID == "" {
		stx.ID = xid.New("stx")
	}
	if stx.CreatedAt.IsZero() {
		stx.CreatedAt = time.Now().UTC()
	}
	stx.TransactionType = domain.TransactionTypeOf(stx.Quantity)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_transactions (id, material_id, transaction_type, quantity, reference, notes, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, stx.ID, stx.MaterialID, string(stx.TransactionType), stx.Quantity, stx.Reference, stx.Notes, stx.CreatedBy, stx.CreatedAt); err != nil {
		return domain.StockTransaction{}, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE raw_materials SET current_stock = current_stock + $2 WHERE id = $1`, stx.MaterialID, stx.Quantity); err != nil {
		return domain.StockTransaction{}, err
	}
	return stx, nil
}

func (s *Store) ListStockTransactions(ctx context.Context, materialID string, limit int) ([]domain.StockTransaction, error) {
	query := `
		SELECT id, material_id, transaction_type, quantity, reference, notes, created_by, created_at
		FROM stock_transactions
		WHERE ($1 = '' OR material_id = $1)
		ORDER BY created_at DESC, id DESC`
	args := []any{materialID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.StockTransaction, 0, 64)
	for rows.Next() {
		var t domain.StockTransaction
		var txType string
		if err := rows.Scan(&t.ID, &t.MaterialID, &txType, &t.Quantity, &t.Reference, &t.Notes, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.TransactionType = domain.TransactionType(txType)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ReconcileMaterialBalances(ctx context.Context, repair bool) ([]domain.BalanceDrift, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT m.id, m.code, m.current_stock, COALESCE(SUM(t.quantity), 0)
		FROM raw_materials m
		LEFT JOIN stock_transactions t ON t.material_id = m.id
		GROUP BY m.id, m.code, m.current_stock
		ORDER BY m.code
	`)
	if err != nil {
		return nil, 0, err
	}

	checked := 0
	drifts := make([]domain.BalanceDrift, 0)
	for rows.Next() {
		var d domain.BalanceDrift
		if err := rows.Scan(&d.MaterialID, &d.Code, &d.Counter, &d.Ledger); err != nil {
			rows.Close()
			return nil, 0, err
		}
		checked++
		if !d.Counter.Equal(d.Ledger) {
			drifts = append(drifts, d)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if repair {
		for _, d := range drifts {
			if _, err := tx.ExecContext(ctx, `UPDATE raw_materials SET current_stock = $2 WHERE id = $1`, d.MaterialID, d.Ledger); err != nil {
				return nil, 0, err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return drifts, checked, nil
}
