package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Dashboards consume quantities as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

type Material struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Code          string          `json:"code"`
	Unit          string          `json:"unit"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	CurrentStock  decimal.Decimal `json:"current_stock"`
	MinStockLevel decimal.Decimal `json:"min_stock_level"`
	LowStock      bool            `json:"low_stock"`
	CreatedAt     time.Time       `json:"created_at"`
}

type MaterialCreateRequest struct {
	Name          string          `json:"name"`
	Code          string          `json:"code"`
	Unit          string          `json:"unit"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	MinStockLevel decimal.Decimal `json:"min_stock_level"`
}

type MaterialUpdateRequest struct {
	Name          *string          `json:"name,omitempty"`
	Unit          *string          `json:"unit,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	MinStockLevel *decimal.Decimal `json:"min_stock_level,omitempty"`
}

type MaterialPriceChange struct {
	ID         string          `json:"id"`
	MaterialID string          `json:"material_id"`
	OldPrice   decimal.Decimal `json:"old_price"`
	NewPrice   decimal.Decimal `json:"new_price"`
	ChangedBy  string          `json:"changed_by"`
	ChangedAt  time.Time       `json:"changed_at"`
}

// StockTransaction is one immutable ledger entry. Quantity is signed:
// positive for "in", negative for "out".
type StockTransaction struct {
	ID              string          `json:"id"`
	MaterialID      string          `json:"material_id"`
	TransactionType TransactionType `json:"transaction_type"`
	Quantity        decimal.Decimal `json:"quantity"`
	Reference       string          `json:"reference,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// StockTransactionRequest carries an unsigned magnitude; the ledger applies the sign.
type StockTransactionRequest struct {
	MaterialID      string          `json:"material_id"`
	TransactionType TransactionType `json:"transaction_type"`
	Quantity        decimal.Decimal `json:"quantity"`
	Reference       string          `json:"reference,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

type MaterialLedger struct {
	Material      Material           `json:"material"`
	Transactions  []StockTransaction `json:"transactions"`
	LedgerBalance decimal.Decimal    `json:"ledger_balance"`
	Consistent    bool               `json:"consistent"`
}

type BalanceDrift struct {
	MaterialID string          `json:"material_id"`
	Code       string          `json:"code"`
	Counter    decimal.Decimal `json:"counter"`
	Ledger     decimal.Decimal `json:"ledger"`
}

type ReconcileReport struct {
	Checked   int            `json:"checked"`
	Drifts    []BalanceDrift `json:"drifts"`
	Repaired  bool           `json:"repaired"`
	CheckedAt time.Time      `json:"checked_at"`
}

type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Code         string          `json:"code"`
	Unit         string          `json:"unit"`
	CurrentStock decimal.Decimal `json:"current_stock"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ProductCreateRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Unit string `json:"unit"`
}

// ProductMovement is the product-side ledger: production completions add,
// shipments deduct.
type ProductMovement struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	SourceType string          `json:"source_type"`
	SourceID   string          `json:"source_id"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

type ProductionOrder struct {
	ID            string           `json:"id"`
	OrderNumber   string           `json:"order_number"`
	ProductID     string           `json:"product_id"`
	ProductName   string           `json:"product_name"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Status        ProductionStatus `json:"status"`
	PlannedDate   time.Time        `json:"planned_date"`
	CompletedDate *time.Time       `json:"completed_date,omitempty"`
	CreatedBy     string           `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
}

type ProductionOrderCreateRequest struct {
	ProductID   string          `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	PlannedDate time.Time       `json:"planned_date"`
}

// Consumption is a raw-material draw, either against a production order or
// derived from a manufacturing record (spools, gas).
type Consumption struct {
	ID                string          `json:"id"`
	ProductionOrderID string          `json:"production_order_id,omitempty"`
	ManufacturingID   string          `json:"manufacturing_id,omitempty"`
	MaterialID        string          `json:"material_id"`
	MaterialName      string          `json:"material_name"`
	Quantity          decimal.Decimal `json:"quantity"`
	CreatedBy         string          `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
}

type ConsumptionCreateRequest struct {
	ProductionOrderID string          `json:"production_order_id"`
	MaterialID        string          `json:"material_id"`
	Quantity          decimal.Decimal `json:"quantity"`
}

type ManufacturingRecord struct {
	ID               string          `json:"id"`
	ProductionDate   time.Time       `json:"production_date"`
	Machine          Machine         `json:"machine"`
	ThicknessMM      decimal.Decimal `json:"thickness_mm"`
	WidthCM          decimal.Decimal `json:"width_cm"`
	LengthM          decimal.Decimal `json:"length_m"`
	Quantity         int64           `json:"quantity"`
	SquareMeters     decimal.Decimal `json:"square_meters"`
	SpoolType        SpoolType       `json:"masura_type"`
	SpoolQuantity    int64           `json:"masura_quantity"`
	ColorMaterialID  string          `json:"color_material_id,omitempty"`
	ColorName        string          `json:"color_name,omitempty"`
	Model            string          `json:"model"`
	GasConsumptionKG decimal.Decimal `json:"gas_consumption_kg"`
	CreatedBy        string          `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
}

type ManufacturingCreateRequest struct {
	ProductionDate   time.Time       `json:"production_date"`
	Machine          Machine         `json:"machine"`
	ThicknessMM      decimal.Decimal `json:"thickness_mm"`
	WidthCM          decimal.Decimal `json:"width_cm"`
	LengthM          decimal.Decimal `json:"length_m"`
	Quantity         int64           `json:"quantity"`
	SpoolType        SpoolType       `json:"masura_type"`
	SpoolQuantity    int64           `json:"masura_quantity"`
	ColorMaterialID  string          `json:"color_material_id,omitempty"`
	GasConsumptionKG decimal.Decimal `json:"gas_consumption_kg"`
}

// DailyConsumption is a per-machine snapshot. The ratios in effect at write
// time are stored so later ratio changes never rewrite history.
type DailyConsumption struct {
	ID             string          `json:"id"`
	Date           time.Time       `json:"date"`
	Machine        Machine         `json:"machine"`
	PrimaryKG      decimal.Decimal `json:"primary_kg"`
	AdditiveAKG    decimal.Decimal `json:"additive_a_kg"`
	AdditiveBKG    decimal.Decimal `json:"additive_b_kg"`
	WasteKG        decimal.Decimal `json:"waste_kg"`
	TotalPrimaryKG decimal.Decimal `json:"total_primary_kg"`
	AdditiveARatio decimal.Decimal `json:"additive_a_ratio"`
	AdditiveBRatio decimal.Decimal `json:"additive_b_ratio"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type DailyConsumptionRequest struct {
	Date      time.Time        `json:"date"`
	Machine   Machine          `json:"machine"`
	PrimaryKG *decimal.Decimal `json:"primary_kg,omitempty"`
	WasteKG   *decimal.Decimal `json:"waste_kg,omitempty"`
}

type GasConsumption struct {
	ID         string          `json:"id"`
	Date       time.Time       `json:"date"`
	TotalGasKG decimal.Decimal `json:"total_gas_kg"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type GasConsumptionRequest struct {
	Date       time.Time       `json:"date"`
	TotalGasKG decimal.Decimal `json:"total_gas_kg"`
}

// Shipment is a finished-product delivery tracked through a status sequence.
type Shipment struct {
	ID             string          `json:"id"`
	ShipmentNumber string          `json:"shipment_number"`
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Quantity       decimal.Decimal `json:"quantity"`
	CustomerName   string          `json:"customer_name"`
	Destination    string          `json:"destination"`
	Status         ShipmentStatus  `json:"status"`
	ShipmentDate   time.Time       `json:"shipment_date"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

type ShipmentCreateRequest struct {
	ProductID    string          `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	CustomerName string          `json:"customer_name"`
	Destination  string          `json:"destination"`
	ShipmentDate time.Time       `json:"shipment_date"`
}

// Dispatch is the dimension/invoice-based outbound note for rolls of film.
type Dispatch struct {
	ID              string          `json:"id"`
	DispatchNumber  string          `json:"dispatch_number"`
	ShipmentDate    time.Time       `json:"shipment_date"`
	CustomerCompany string          `json:"customer_company"`
	ThicknessMM     decimal.Decimal `json:"thickness_mm"`
	WidthCM         decimal.Decimal `json:"width_cm"`
	LengthM         decimal.Decimal `json:"length_m"`
	ColorMaterialID string          `json:"color_material_id,omitempty"`
	ColorName       string          `json:"color_name,omitempty"`
	Quantity        int64           `json:"quantity"`
	SquareMeters    decimal.Decimal `json:"square_meters"`
	InvoiceNumber   string          `json:"invoice_number"`
	VehiclePlate    string          `json:"vehicle_plate"`
	DriverName      string          `json:"driver_name"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

type DispatchCreateRequest struct {
	ShipmentDate    time.Time       `json:"shipment_date"`
	CustomerCompany string          `json:"customer_company"`
	ThicknessMM     decimal.Decimal `json:"thickness_mm"`
	WidthCM         decimal.Decimal `json:"width_cm"`
	LengthM         decimal.Decimal `json:"length_m"`
	ColorMaterialID string          `json:"color_material_id,omitempty"`
	Quantity        int64           `json:"quantity"`
	InvoiceNumber   string          `json:"invoice_number"`
	VehiclePlate    string          `json:"vehicle_plate"`
	DriverName      string          `json:"driver_name"`
}

type CostAnalysisRow struct {
	MaterialID    string          `json:"material_id"`
	MaterialName  string          `json:"material_name"`
	Unit          string          `json:"unit"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	Percentage    decimal.Decimal `json:"percentage"`
}

type CostAnalysis struct {
	Rows        []CostAnalysisRow `json:"rows"`
	GrandTotal  decimal.Decimal   `json:"grand_total"`
	GeneratedAt time.Time         `json:"generated_at"`
}

type DashboardStats struct {
	TotalRawMaterials int `json:"total_raw_materials"`
	TotalProducts     int `json:"total_products"`
	ActiveProductions int `json:"active_productions"`
	PendingShipments  int `json:"pending_shipments"`
	LowStockMaterials int `json:"low_stock_materials"`
}

// StockItem is finished film on hand for one model (dimensions + color).
type StockItem struct {
	ThicknessMM        decimal.Decimal `json:"thickness_mm"`
	WidthCM            decimal.Decimal `json:"width_cm"`
	LengthM            decimal.Decimal `json:"length_m"`
	ColorName          string          `json:"color_name,omitempty"`
	ProducedQuantity   int64           `json:"produced_quantity"`
	DispatchedQuantity int64           `json:"dispatched_quantity"`
	TotalQuantity      int64           `json:"total_quantity"`
	TotalSquareMeters  decimal.Decimal `json:"total_square_meters"`
}

type AreaPreview struct {
	SquareMeters decimal.Decimal `json:"square_meters"`
	Display      string          `json:"display"`
}

type ConsumptionPreview struct {
	PrimaryKG      decimal.Decimal `json:"primary_kg"`
	WasteKG        decimal.Decimal `json:"waste_kg"`
	TotalPrimaryKG decimal.Decimal `json:"total_primary_kg"`
	AdditiveAKG    decimal.Decimal `json:"additive_a_kg"`
	AdditiveBKG    decimal.Decimal `json:"additive_b_kg"`
}

type UserAccount struct {
	ID        string
	Username  string
	Email     string
	Password  string
	Role      Role
	CreatedAt time.Time
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (u UserAccount) Public() User {
	return User{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	User      User   `json:"user"`
}

type Actor struct {
	UserID   string
	Username string
	Role     Role
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
