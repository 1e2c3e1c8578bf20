package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"filmtrack/backend/internal/calc"
	"filmtrack/backend/internal/domain"
)

func (s *Service) ListDailyConsumptions(ctx context.Context) ([]domain.DailyConsumption, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	return s.repo.ListDailyConsumptions(ctx)
}

// deriveDaily snapshots the additive amounts with the ratios configured now.
func (s *Service) deriveDaily(req domain.DailyConsumptionRequest) (domain.DailyConsumption, error) {
	if !req.Machine.Valid() {
		return domain.DailyConsumption{}, invalid("machine must be %q or %q", domain.Machine1, domain.Machine2)
	}
	primary := calc.OrZero(req.PrimaryKG)
	waste := calc.OrZero(req.WasteKG)
	if primary.IsNegative() || waste.IsNegative() {
		return domain.DailyConsumption{}, invalid("primary and waste must not be negative")
	}

	derived := s.ratios.Derive(primary, waste)
	return domain.DailyConsumption{
		Date:           dayOrToday(req.Date),
		Machine:        req.Machine,
		PrimaryKG:      derived.Primary,
		WasteKG:        derived.Waste,
		TotalPrimaryKG: derived.TotalPrimary,
		AdditiveAKG:    derived.AdditiveA,
		AdditiveBKG:    derived.AdditiveB,
		AdditiveARatio: s.ratios.AdditiveA,
		AdditiveBRatio: s.ratios.AdditiveB,
	}, nil
}

func (s *Service) CreateDailyConsumption(ctx context.Context, req domain.DailyConsumptionRequest) (domain.DailyConsumption, error) {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return domain.DailyConsumption{}, err
	}
	record, err := s.deriveDaily(req)
	if err != nil {
		return domain.DailyConsumption{}, err
	}
	record.CreatedBy = actor.Username

	created, err := s.repo.CreateDailyConsumption(ctx, record)
	if err != nil {
		return domain.DailyConsumption{}, err
	}
	s.written(ctx, "daily_consumption_create", "daily_consumption", created.ID, fmt.Sprintf("machine=%s,total=%s", created.Machine, created.TotalPrimaryKG))
	return *created, nil
}

// UpdateDailyConsumption recomputes the derived fields with the current
// ratios; the record's author and creation time are preserved.
func (s *Service) UpdateDailyConsumption(ctx context.Context, id string, req domain.DailyConsumptionRequest) (domain.DailyConsumption, error) {
	if _, err := s.authorize(ctx, CapWrite); err != nil {
		return domain.DailyConsumption{}, err
	}
	existing, err := s.repo.GetDailyConsumption(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.DailyConsumption{}, err
	}
	record, err := s.deriveDaily(req)
	if err != nil {
		return domain.DailyConsumption{}, err
	}
	record.ID = existing.ID
	record.CreatedBy = existing.CreatedBy
	record.CreatedAt = existing.CreatedAt

	updated, err := s.repo.UpdateDailyConsumption(ctx, record)
	if err != nil {
		return domain.DailyConsumption{}, err
	}
	s.written(ctx, "daily_consumption_update", "daily_consumption", updated.ID, fmt.Sprintf("machine=%s,total=%s", updated.Machine, updated.TotalPrimaryKG))
	return *updated, nil
}

func (s *Service) DeleteDailyConsumption(ctx context.Context, id string) error {
	if _, err := s.authorize(ctx, CapWrite); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteDailyConsumption(ctx, id); err != nil {
		return err
	}
	s.written(ctx, "daily_consumption_delete", "daily_consumption", id, "")
	return nil
}

func (s *Service) ListGasConsumptions(ctx context.Context) ([]domain.GasConsumption, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	return s.repo.ListGasConsumptions(ctx)
}

func validGas(req domain.GasConsumptionRequest) error {
	if req.TotalGasKG.IsNegative() {
		return invalid("total_gas_kg must not be negative")
	}
	return nil
}

func (s *Service) CreateGasConsumption(ctx context.Context, req domain.GasConsumptionRequest) (domain.GasConsumption, error) {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return domain.GasConsumption{}, err
	}
	if err := validGas(req); err != nil {
		return domain.GasConsumption{}, err
	}
	now := time.Now().UTC()
	created, err := s.repo.CreateGasConsumption(ctx, domain.GasConsumption{
		Date:       dayOrToday(req.Date),
		TotalGasKG: req.TotalGasKG,
		CreatedBy:  actor.Username,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return domain.GasConsumption{}, err
	}
	s.written(ctx, "gas_consumption_create", "gas_consumption", created.ID, "kg="+created.TotalGasKG.String())
	return *created, nil
}

func (s *Service) UpdateGasConsumption(ctx context.Context, id string, req domain.GasConsumptionRequest) (domain.GasConsumption, error) {
	if _, err := s.authorize(ctx, CapWrite); err != nil {
		return domain.GasConsumption{}, err
	}
	if err := validGas(req); err != nil {
		return domain.GasConsumption{}, err
	}
	updated, err := s.repo.UpdateGasConsumption(ctx, domain.GasConsumption{
		ID:         strings.TrimSpace(id),
		Date:       dayOrToday(req.Date),
		TotalGasKG: req.TotalGasKG,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return domain.GasConsumption{}, err
	}
	s.written(ctx, "gas_consumption_update", "gas_consumption", updated.ID, "kg="+updated.TotalGasKG.String())
	return *updated, nil
}

func (s *Service) DeleteGasConsumption(ctx context.Context, id string) error {
	if _, err := s.authorize(ctx, CapWrite); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteGasConsumption(ctx, id); err != nil {
		return err
	}
	s.written(ctx, "gas_consumption_delete", "gas_consumption", id, "")
	return nil
}

func (s *Service) ListShipments(ctx context.Context) ([]domain.Shipment, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	return s.repo.ListShipments(ctx)
}

func (s *Service) CreateShipment(ctx context.Context, req domain.ShipmentCreateRequest) (domain.Shipment, error) {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return domain.Shipment{}, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return domain.Shipment{}, invalid("product_id is required")
	}
	if !req.Quantity.IsPositive() {
		return domain.Shipment{}, invalid("quantity must be greater than zero")
	}

	created, err := s.repo.CreateShipment(ctx, domain.Shipment{
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
		CustomerName: strings.TrimSpace(req.CustomerName),
		Destination:  strings.TrimSpace(req.Destination),
		ShipmentDate: dayOrToday(req.ShipmentDate),
		CreatedBy:    actor.Username,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.Shipment{}, err
	}
	s.written(ctx, "shipment_create", "shipment", created.ID, fmt.Sprintf("number=%s,qty=%s", created.ShipmentNumber, created.Quantity))
	return *created, nil
}

func (s *Service) TransitionShipment(ctx context.Context, id string, status string) (domain.Shipment, error) {
	if _, err := s.authorize(ctx, CapWrite); err != nil {
		return domain.Shipment{}, err
	}
	next := domain.ShipmentStatus(strings.ToLower(strings.TrimSpace(status)))
	if !next.Valid() {
		return domain.Shipment{}, invalid("unknown shipment status %q", status)
	}
	updated, err := s.repo.TransitionShipment(ctx, strings.TrimSpace(id), next)
	if err != nil {
		return domain.Shipment{}, err
	}
	s.written(ctx, "shipment_status", "shipment", updated.ID, fmt.Sprintf("number=%s,status=%s", updated.ShipmentNumber, updated.Status))
	return *updated, nil
}

func (s *Service) DeleteShipment(ctx context.Context, id string) error {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteShipment(ctx, id, actor.Username); err != nil {
		return err
	}
	s.written(ctx, "shipment_delete", "shipment", id, "")
	return nil
}

func (s *Service) ListDispatches(ctx context.Context) ([]domain.Dispatch, error) {
	if _, err := s.authorize(ctx, CapRead); err != nil {
		return nil, err
	}
	return s.repo.ListDispatches(ctx)
}

func (s *Service) CreateDispatch(ctx context.Context, req domain.DispatchCreateRequest) (domain.Dispatch, error) {
	actor, err := s.authorize(ctx, CapWrite)
	if err != nil {
		return domain.Dispatch{}, err
	}

	req.CustomerCompany = strings.TrimSpace(req.CustomerCompany)
	if req.CustomerCompany == "" {
		return domain.Dispatch{}, invalid("customer_company is required")
	}
	if err := validDimensions(req.ThicknessMM, req.WidthCM, req.LengthM, req.Quantity); err != nil {
		return domain.Dispatch{}, err
	}
	colorID, colorName, err := s.colorName(ctx, req.ColorMaterialID)
	if err != nil {
		return domain.Dispatch{}, err
	}

	created, err := s.repo.CreateDispatch(ctx, domain.Dispatch{
		ShipmentDate:    dayOrToday(req.ShipmentDate),
		CustomerCompany: req.CustomerCompany,
		ThicknessMM:     req.ThicknessMM,
		WidthCM:         req.WidthCM,
		LengthM:         req.LengthM,
		ColorMaterialID: colorID,
		ColorName:       colorName,
		Quantity:        req.Quantity,
		SquareMeters:    calc.Area(req.WidthCM, req.LengthM, req.Quantity),
		InvoiceNumber:   strings.TrimSpace(req.InvoiceNumber),
		VehiclePlate:    strings.ToUpper(strings.TrimSpace(req.VehiclePlate)),
		DriverName:      strings.TrimSpace(req.DriverName),
		CreatedBy:       actor.Username,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return domain.Dispatch{}, err
	}
	s.written(ctx, "dispatch_create", "dispatch", created.ID, fmt.Sprintf("number=%s,customer=%s,qty=%d", created.DispatchNumber, created.CustomerCompany, created.Quantity))
	return *created, nil
}

func (s *Service) DeleteDispatch(ctx context.Context, id string) error {
	if _, err := s.authorize(ctx, CapWrite); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteDispatch(ctx, id); err != nil {
		return err
	}
	s.written(ctx, "dispatch_delete", "dispatch", id, "")
	return nil
}

// PreviewArea backs the form preview. Bad input yields zero, never an error.
func (s *Service) PreviewArea(width string, length string, quantity string) domain.AreaPreview {
	area := calc.AreaFromInputs(width, length, quantity)
	return domain.AreaPreview{SquareMeters: calc.Round2(area), Display: calc.Display2(area)}
}

func (s *Service) PreviewConsumption(primary string, waste string) domain.ConsumptionPreview {
	derived := s.ratios.DeriveFromInputs(primary, waste)
	return domain.ConsumptionPreview{
		PrimaryKG:      derived.Primary,
		WasteKG:        derived.Waste,
		TotalPrimaryKG: derived.TotalPrimary,
		AdditiveAKG:    calc.Round2(derived.AdditiveA),
		AdditiveBKG:    calc.Round2(derived.AdditiveB),
	}
}
