package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Product struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	SKU            string    `gorm:"uniqueIndex;not null" json:"sku"`
	Name           string    `gorm:"not null" json:"name"`
	Description    string    `json:"description"`
	Category       string    `gorm:"index" json:"category"`
	UnitPrice      float64   `json:"unit_price"`
	QuantityOnHand int       `json:"quantity_on_hand"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (Product) TableName() string {
	return "products"
}
