package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"filmtrack/backend/internal/domain"
	"filmtrack/backend/internal/store"
	"filmtrack/backend/internal/xid"
)

const dailyColumns = `id, consumption_date, machine, primary_kg, additive_a_kg, additive_b_kg, waste_kg, total_primary_kg,
	additive_a_ratio, additive_b_ratio, created_by, created_at, updated_at`

func scanDaily(row rowScanner) (domain.DailyConsumption, error) {
	var r domain.DailyConsumption
	var machine string
	err := row.Scan(&r.ID, &r.Date, &machine, &r.PrimaryKG, &r.AdditiveAKG, &r.AdditiveBKG, &r.WasteKG, &r.TotalPrimaryKG,
		&r.AdditiveARatio, &r.AdditiveBRatio, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	r.Machine = domain.Machine(machine)
	return r, err
}

func (s *Store) ListDailyConsumptions(ctx context.Context) ([]domain.DailyConsumption, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+dailyColumns+` FROM daily_consumptions ORDER BY consumption_date DESC, machine`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.DailyConsumption, 0, 64)
	for rows.Next() {
		r, err := scanDaily(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetDailyConsumption(ctx context.Context, id string) (*domain.DailyConsumption, error) {
	r, err := scanDaily(s.db.QueryRowContext(ctx, `SELECT `+dailyColumns+` FROM daily_consumptions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *Store) CreateDailyConsumption(ctx context.Context, record domain.DailyConsumption) (*domain.DailyConsumption, error) {
	if record.ID == "" {
		record.ID = xid.New("dcons")
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_consumptions (`+dailyColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, record.ID, record.Date, string(record.Machine), record.PrimaryKG, record.AdditiveAKG, record.AdditiveBKG, record.WasteKG, record.TotalPrimaryKG,
		record.AdditiveARatio, record.AdditiveBRatio, record.CreatedBy, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) UpdateDailyConsumption(ctx context.Context, record domain.DailyConsumption) (*domain.DailyConsumption, error) {
	updated, err := scanDaily(s.db.QueryRowContext(ctx, `
		UPDATE daily_consumptions
		SET consumption_date = $2, machine = $3, primary_kg = $4, additive_a_kg = $5, additive_b_kg = $6, waste_kg = $7,
			total_primary_kg = $8, additive_a_ratio = $9, additive_b_ratio = $10, updated_at = now()
		WHERE id = $1
		RETURNING `+dailyColumns,
		record.ID, record.Date, string(record.Machine), record.PrimaryKG, record.AdditiveAKG, record.AdditiveBKG, record.WasteKG,
		record.TotalPrimaryKG, record.AdditiveARatio, record.AdditiveBRatio))
	if err != nil {
		return nil, notFound(err)
	}
	return &updated, nil
}

func (s *Store) DeleteDailyConsumption(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM daily_consumptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

const gasColumns = `id, consumption_date, total_gas_kg, created_by, created_at, updated_at`

func scanGas(row rowScanner) (domain.GasConsumption, error) {
	var r domain.GasConsumption
	err := row.Scan(&r.ID, &r.Date, &r.TotalGasKG, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *Store) ListGasConsumptions(ctx context.Context) ([]domain.GasConsumption, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+gasColumns+` FROM gas_consumptions ORDER BY consumption_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.GasConsumption, 0, 64)
	for rows.Next() {
		r, err := scanGas(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateGasConsumption(ctx context.Context, record domain.GasConsumption) (*domain.GasConsumption, error) {
	if record.ID == "" {
		record.ID = xid.New("gas")
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gas_consumptions (`+gasColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, record.ID, record.Date, record.TotalGasKG, record.CreatedBy, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) UpdateGasConsumption(ctx context.Context, record domain.GasConsumption) (*domain.GasConsumption, error) {
	updated, err := scanGas(s.db.QueryRowContext(ctx, `
		UPDATE gas_consumptions
		SET consumption_date = $2, total_gas_kg = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+gasColumns,
		record.ID, record.Date, record.TotalGasKG))
	if err != nil {
		return nil, notFound(err)
	}
	return &updated, nil
}

func (s *Store) DeleteGasConsumption(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM gas_consumptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

const shipmentColumns = `id, shipment_number, product_id, product_name, quantity, customer_name, destination, status, shipment_date, created_by, created_at`

func scanShipment(row rowScanner) (domain.Shipment, error) {
	var sh domain.Shipment
	var status string
	err := row.Scan(&sh.ID, &sh.ShipmentNumber, &sh.ProductID, &sh.ProductName, &sh.Quantity, &sh.CustomerName, &sh.Destination,
		&status, &sh.ShipmentDate, &sh.CreatedBy, &sh.CreatedAt)
	sh.Status = domain.ShipmentStatus(status)
	return sh, err
}

func (s *Store) ListShipments(ctx context.Context) ([]domain.Shipment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+shipmentColumns+` FROM shipments ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Shipment, 0, 64)
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Store) CreateShipment(ctx context.Context, shipment domain.Shipment) (*domain.Shipment, error) {
	if !shipment.Quantity.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if shipment.ID == "" {
		shipment.ID = xid.New("shp")
	}
	if shipment.CreatedAt.IsZero() {
		shipment.CreatedAt = time.Now().UTC()
	}

	name, err := moveProduct(ctx, tx, domain.ProductMovement{
		ProductID:  shipment.ProductID,
		Quantity:   shipment.Quantity.Neg(),
		SourceType: "shipment",
		SourceID:   shipment.ID,
		CreatedBy:  shipment.CreatedBy,
		CreatedAt:  shipment.CreatedAt,
	}, true)
	if err != nil {
		return nil, err
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT nextval('shipment_seq')`).Scan(&seq); err != nil {
		return nil, err
	}
	shipment.ShipmentNumber = xid.Sequence("SHP", seq)
	shipment.ProductName = name
	shipment.Status = domain.ShipmentPending

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO shipments (`+shipmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, shipment.ID, shipment.ShipmentNumber, shipment.ProductID, shipment.ProductName, shipment.Quantity, shipment.CustomerName,
		shipment.Destination, string(shipment.Status), shipment.ShipmentDate, shipment.CreatedBy, shipment.CreatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (s *Store) TransitionShipment(ctx context.Context, id string, next domain.ShipmentStatus) (*domain.Shipment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	shipment, err := scanShipment(tx.QueryRowContext(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if !shipment.Status.CanTransitionTo(next) {
		return nil, store.ErrInvalidTransition
	}
	if _, err := tx.ExecContext(ctx, `UPDATE shipments SET status = $2 WHERE id = $1`, id, string(next)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	shipment.Status = next
	return &shipment, nil
}

func (s *Store) DeleteShipment(ctx context.Context, id string, actor string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	shipment, err := scanShipment(tx.QueryRowContext(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return notFound(err)
	}
	if shipment.Status != domain.ShipmentPending {
		return store.ErrInvalidTransition
	}
	if _, err := moveProduct(ctx, tx, domain.ProductMovement{
		ProductID:  shipment.ProductID,
		Quantity:   shipment.Quantity,
		SourceType: "shipment_cancel",
		SourceID:   shipment.ID,
		CreatedBy:  actor,
		CreatedAt:  time.Now().UTC(),
	}, false); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM shipments WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

const dispatchColumns = `id, dispatch_number, shipment_date, customer_company, thickness_mm, width_cm, length_m, color_material_id,
	color_name, quantity, square_meters, invoice_number, vehicle_plate, driver_name, created_by, created_at`

func (s *Store) ListDispatches(ctx context.Context) ([]domain.Dispatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+dispatchColumns+` FROM dispatches ORDER BY shipment_date DESC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Dispatch, 0, 64)
	for rows.Next() {
		var d domain.Dispatch
		if err := rows.Scan(&d.ID, &d.DispatchNumber, &d.ShipmentDate, &d.CustomerCompany, &d.ThicknessMM, &d.WidthCM, &d.LengthM, &d.ColorMaterialID,
			&d.ColorName, &d.Quantity, &d.SquareMeters, &d.InvoiceNumber, &d.VehiclePlate, &d.DriverName, &d.CreatedBy, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) CreateDispatch(ctx context.Context, dispatch domain.Dispatch) (*domain.Dispatch, error) {
	var seq int
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('dispatch_seq')`).Scan(&seq); err != nil {
		return nil, err
	}
	if dispatch.ID == "" {
		dispatch.ID = xid.New("dsp")
	}
	if dispatch.CreatedAt.IsZero() {
		dispatch.CreatedAt = time.Now().UTC()
	}
	dispatch.DispatchNumber = xid.Sequence("DSP", seq)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatches (`+dispatchColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, dispatch.ID, dispatch.DispatchNumber, dispatch.ShipmentDate, dispatch.CustomerCompany, dispatch.ThicknessMM, dispatch.WidthCM,
		dispatch.LengthM, dispatch.ColorMaterialID, dispatch.ColorName, dispatch.Quantity, dispatch.SquareMeters, dispatch.InvoiceNumber,
		dispatch.VehiclePlate, dispatch.DriverName, dispatch.CreatedBy, dispatch.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &dispatch, nil
}

func (s *Store) DeleteDispatch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dispatches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(&e.ID, &e.ActorUsername, &e.ActorRole, &e.Action, &e.EntityType, &e.EntityID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" {
		return store.ErrInvalidTransaction
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, username, email, password, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Username, user.Email, user.Password, string(user.Role), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func scanUser(row rowScanner) (domain.UserAccount, error) {
	var u domain.UserAccount
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &role, &u.CreatedAt)
	u.Role = domain.Role(role)
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, email, password, role, created_at FROM app_users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password, role, created_at FROM app_users WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username))))
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE app_users SET password = $2 WHERE username = $1`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM app_users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
