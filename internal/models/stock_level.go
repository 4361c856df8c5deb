package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StockLevel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ProductID     uuid.UUID `gorm:"type:uuid;index;not null" json:"product_id"`
	WarehouseCode string    `gorm:"index;not null" json:"warehouse_code"`
	Quantity      int       `gorm:"not null" json:"quantity"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *StockLevel) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (StockLevel) TableName() string {
	return "stock_levels"
}
