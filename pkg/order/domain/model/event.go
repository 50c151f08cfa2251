package model

import "github.com/google/uuid"

type OrderCreated struct {
	OrderID     uuid.UUID
	OrderNumber int64
	UserID      string
	Amount      string
}

func (e OrderCreated) Type() string { return "OrderCreated" }

type OrderStatusChanged struct {
	OrderID     uuid.UUID
	OrderNumber int64
	UserID      string
	OldStatus   Status
	NewStatus   Status
}

func (e OrderStatusChanged) Type() string { return "OrderStatusChanged" }

type OrderDeleted struct {
	OrderID     uuid.UUID
	OrderNumber int64
}

func (e OrderDeleted) Type() string { return "OrderDeleted" }

type AllOrdersDeleted struct {
	Count int64
}

func (e AllOrdersDeleted) Type() string { return "AllOrdersDeleted" }

type StockReconciled struct {
	OrderID     uuid.UUID
	OrderNumber int64
	ProductID   uuid.UUID
	Quantity    int
	NewQuantity int
	NewSold     int
}

func (e StockReconciled) Type() string { return "StockReconciled" }

type StockShortfallDetected struct {
	OrderNumber int64
	ProductID   uuid.UUID
	Requested   int
	Shortfall   int
}

func (e StockShortfallDetected) Type() string { return "StockShortfallDetected" }

type ReconciliationFailed struct {
	OrderNumber int64
	ProductID   uuid.UUID
	Reason      string
}

func (e ReconciliationFailed) Type() string { return "ReconciliationFailed" }
