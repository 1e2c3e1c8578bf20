package domain

type ProductionStatus string

const (
	ProductionPlanned    ProductionStatus = "planned"
	ProductionInProgress ProductionStatus = "in_progress"
	ProductionCompleted  ProductionStatus = "completed"
	ProductionCancelled  ProductionStatus = "cancelled"
)

func (s ProductionStatus) Valid() bool {
	switch s {
	case ProductionPlanned, ProductionInProgress, ProductionCompleted, ProductionCancelled:
		return true
	}
	return false
}

func (s ProductionStatus) Terminal() bool {
	return s == ProductionCompleted || s == ProductionCancelled
}

// Active orders still accept consumption and count on the dashboard.
func (s ProductionStatus) Active() bool {
	return s == ProductionPlanned || s == ProductionInProgress
}

// CanTransitionTo allows planned -> in_progress -> completed, and cancelling
// from either non-terminal state. Nothing leaves completed or cancelled.
func (s ProductionStatus) CanTransitionTo(next ProductionStatus) bool {
	switch s {
	case ProductionPlanned:
		return next == ProductionInProgress || next == ProductionCancelled
	case ProductionInProgress:
		return next == ProductionCompleted || next == ProductionCancelled
	}
	return false
}

type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "pending"
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentDelivered ShipmentStatus = "delivered"
)

func (s ShipmentStatus) Valid() bool {
	switch s {
	case ShipmentPending, ShipmentInTransit, ShipmentDelivered:
		return true
	}
	return false
}

// CanTransitionTo is strictly sequential: pending -> in_transit -> delivered.
func (s ShipmentStatus) CanTransitionTo(next ShipmentStatus) bool {
	switch s {
	case ShipmentPending:
		return next == ShipmentInTransit
	case ShipmentInTransit:
		return next == ShipmentDelivered
	}
	return false
}
