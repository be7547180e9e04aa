package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PlanFeature is one line of a plan's feature list. Header lines group the
// lines that follow them.
type PlanFeature struct {
	Text   string `json:"text" validate:"notblank"`
	Header bool   `json:"header"`
}

// PlanFeatures is stored as a JSONB array; order is significant.
type PlanFeatures []PlanFeature

// Value implements the driver.Valuer interface for PlanFeatures
func (f PlanFeatures) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f)
}

// Scan implements the sql.Scanner interface for PlanFeatures
func (f *PlanFeatures) Scan(value interface{}) error {
	if value == nil {
		*f = PlanFeatures{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into PlanFeatures", value)
	}

	return json.Unmarshal(bytes, f)
}

// Plan is a purchasable subscription tier as shown on the pricing page.
type Plan struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Price       float64      `json:"price"`
	Credits     int          `json:"credits"`
	Description string       `json:"description"`
	Features    PlanFeatures `json:"features"`
	IsActive    bool         `json:"isActive"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// PlanInput is the create/update payload for a plan.
type PlanInput struct {
	ID          string        `json:"id" validate:"omitempty,max=64"`
	Name        string        `json:"name" validate:"notblank,max=100"`
	Price       *float64      `json:"price" validate:"required,gte=0"`
	Credits     *int          `json:"credits" validate:"required,gte=0"`
	Description string        `json:"description" validate:"max=1000"`
	Features    []PlanFeature `json:"features" validate:"dive"`
	IsActive    *bool         `json:"isActive"`
}

// ToPlan builds the stored representation. IsActive defaults to true.
func (in PlanInput) ToPlan() Plan {
	p := Plan{
		ID:          in.ID,
		Name:        in.Name,
		Description: in.Description,
		Features:    PlanFeatures(in.Features),
		IsActive:    true,
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Credits != nil {
		p.Credits = *in.Credits
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if p.Features == nil {
		p.Features = PlanFeatures{}
	}
	return p
}
