package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"filmtrack/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrConflict           = errors.New("already exists")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// LedgerOptions controls how an out-movement is checked against the balance.
type LedgerOptions struct {
	// Strict rejects movements that would take the balance below zero.
	Strict bool
}

// AutoConsumption is a stock draw derived from a manufacturing record. It is
// applied only when the material balance covers it.
type AutoConsumption struct {
	MaterialID string
	Quantity   decimal.Decimal
	Reference  string
}

type Repository interface {
	ListMaterials(ctx context.Context) ([]domain.Material, error)
	GetMaterial(ctx context.Context, id string) (*domain.Material, error)
	FindMaterialByCode(ctx context.Context, code string) (*domain.Material, error)
	FindMaterialByName(ctx context.Context, name string) (*domain.Material, error)
	CreateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error)
	UpdateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error)
	CreatePriceChange(ctx context.Context, change domain.MaterialPriceChange) error
	ListPriceChanges(ctx context.Context, materialID string, limit int) ([]domain.MaterialPriceChange, error)

	// AppendStockTransaction writes the ledger row and moves the material's
	// counter in one writer transaction.
	AppendStockTransaction(ctx context.Context, tx domain.StockTransaction, opts LedgerOptions) (*domain.StockTransaction, error)
	ListStockTransactions(ctx context.Context, materialID string, limit int) ([]domain.StockTransaction, error)
	ReconcileMaterialBalances(ctx context.Context, repair bool) ([]domain.BalanceDrift, int, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProductMovements(ctx context.Context, productID string) ([]domain.ProductMovement, error)

	ListProductionOrders(ctx context.Context) ([]domain.ProductionOrder, error)
	GetProductionOrder(ctx context.Context, id string) (*domain.ProductionOrder, error)
	CreateProductionOrder(ctx context.Context, order domain.ProductionOrder) (*domain.ProductionOrder, error)
	// TransitionProductionOrder validates the move under lock. Completion
	// stamps completedAt and credits product stock atomically.
	TransitionProductionOrder(ctx context.Context, id string, next domain.ProductionStatus, actor string, at time.Time) (*domain.ProductionOrder, error)

	ListConsumptions(ctx context.Context) ([]domain.Consumption, error)
	CreateConsumption(ctx context.Context, consumption domain.Consumption) (*domain.Consumption, error)

	ListManufacturing(ctx context.Context) ([]domain.ManufacturingRecord, error)
	CreateManufacturing(ctx context.Context, record domain.ManufacturingRecord, draws []AutoConsumption) (*domain.ManufacturingRecord, []domain.Consumption, error)
	ReplaceManufacturing(ctx context.Context, record domain.ManufacturingRecord, draws []AutoConsumption, actor string) (*domain.ManufacturingRecord, []domain.Consumption, error)
	DeleteManufacturing(ctx context.Context, id string, actor string) error

	ListDailyConsumptions(ctx context.Context) ([]domain.DailyConsumption, error)
	GetDailyConsumption(ctx context.Context, id string) (*domain.DailyConsumption, error)
	CreateDailyConsumption(ctx context.Context, record domain.DailyConsumption) (*domain.DailyConsumption, error)
	UpdateDailyConsumption(ctx context.Context, record domain.DailyConsumption) (*domain.DailyConsumption, error)
	DeleteDailyConsumption(ctx context.Context, id string) error

	ListGasConsumptions(ctx context.Context) ([]domain.GasConsumption, error)
	CreateGasConsumption(ctx context.Context, record domain.GasConsumption) (*domain.GasConsumption, error)
	UpdateGasConsumption(ctx context.Context, record domain.GasConsumption) (*domain.GasConsumption, error)
	DeleteGasConsumption(ctx context.Context, id string) error

	ListShipments(ctx context.Context) ([]domain.Shipment, error)
	CreateShipment(ctx context.Context, shipment domain.Shipment) (*domain.Shipment, error)
	TransitionShipment(ctx context.Context, id string, next domain.ShipmentStatus) (*domain.Shipment, error)
	// DeleteShipment is allowed only while pending and returns the quantity to product stock.
	DeleteShipment(ctx context.Context, id string, actor string) error

	ListDispatches(ctx context.Context) ([]domain.Dispatch, error)
	CreateDispatch(ctx context.Context, dispatch domain.Dispatch) (*domain.Dispatch, error)
	DeleteDispatch(ctx context.Context, id string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	DeleteUser(ctx context.Context, id string) error
}
