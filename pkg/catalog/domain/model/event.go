package model

import "github.com/google/uuid"

type ProductCreated struct {
	ProductID uuid.UUID
	Name      string
}

func (e ProductCreated) Type() string { return "ProductCreated" }

type ProductUpdated struct {
	ProductID uuid.UUID
}

func (e ProductUpdated) Type() string { return "ProductUpdated" }

type ProductStockChanged struct {
	ProductID    uuid.UUID
	ChangeAmount int // positive - restock, negative - sale
	NewQuantity  int
}

func (e ProductStockChanged) Type() string { return "ProductStockChanged" }

type ProductDeleted struct {
	ProductID uuid.UUID
}

func (e ProductDeleted) Type() string { return "ProductDeleted" }
