package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Measurement units used across the catalog and both ledgers.
const (
	UnitGram       = "g"
	UnitMillilitre = "ml"
	UnitPiece      = "pc"
)

// Normative types. A solution is measured in millilitres, a mixture in grams.
const (
	NormativeSolution = "solution"
	NormativeMixture  = "mixture"
)

// ComponentMap maps a component name (substance or normative) to a decimal
// quantity. Stored as a JSON column.
type ComponentMap map[string]decimal.Decimal

func (m ComponentMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *ComponentMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("components: cannot scan %T", src)
	}
	if len(b) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(b, m)
}

// Substance is a raw material in the catalog.
type Substance struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:255;not null;unique" json:"name"`
	Measurement string `gorm:"size:10;not null" json:"measurement"`
}

// Normative is a recipe for producing a solution or mixture. Output is the
// nominal quantity at which the per-component quantities are defined.
// AsComponent marks normatives that may appear as an ingredient of another
// normative.
type Normative struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:255;unique" json:"name"`
	Type        string          `gorm:"size:20" json:"type"`
	Output      decimal.Decimal `gorm:"type:decimal(20,4)" json:"output"`
	Substances  ComponentMap    `gorm:"type:text" json:"substances"`
	Solutions   ComponentMap    `gorm:"type:text" json:"solutions"`
	AsComponent bool            `json:"as_component"`
}

// Recipe defines the per-analysis consumption of substances and solutions.
type Recipe struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	Name       string       `gorm:"size:255;unique" json:"name"`
	Substances ComponentMap `gorm:"type:text" json:"substances"`
	Solutions  ComponentMap `gorm:"type:text" json:"solutions"`
}

// StockEntry is one signed movement in the substance ledger. Rows are only
// inserted, never updated; Remainder is the running balance after this row
// and Price the average price in effect when it was written.
type StockEntry struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	SubstanceName string          `gorm:"size:255;not null;index" json:"substance_name"`
	Measurement   string          `gorm:"size:10;not null" json:"measurement"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Remainder     decimal.Decimal `gorm:"type:decimal(20,4)" json:"remainder"`
	Price         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	TotalCost     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_cost"`
	CreationDate  time.Time       `json:"creation_date"`
	Notes         string          `gorm:"type:text" json:"notes,omitempty"`
	Normative     string          `gorm:"size:255" json:"normative,omitempty"`
	Recipe        string          `gorm:"size:255" json:"recipe,omitempty"`
}

// SolutionEntry is one signed movement in the solution ledger. Production
// rows carry a DueDate; consumption rows reference the consuming recipe or
// normative by name.
type SolutionEntry struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Normative   string          `gorm:"size:255;index" json:"normative"`
	Measurement string          `gorm:"size:10" json:"measurement"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	Remainder   decimal.Decimal `gorm:"type:decimal(20,4)" json:"remainder"`
	Price       decimal.Decimal `gorm:"type:decimal(20,4)" json:"price"`
	TotalCost   decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_cost"`
	CreatedAt   time.Time       `json:"created_at"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Notes       string          `gorm:"type:text" json:"notes,omitempty"`
	Recipe      string          `gorm:"size:255" json:"recipe,omitempty"`
}

// Analysis records one completed analysis run together with its cost
// breakdown. The ledger rows it generated are matched back by
// (name, amount, date) on reversal.
type Analysis struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	RecipeName     string          `gorm:"size:255" json:"recipe_name"`
	Quantity       int             `json:"quantity"`
	DoneDate       time.Time       `json:"done_date"`
	TotalCost      decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_cost"`
	SubstancesCost ComponentMap    `gorm:"type:text" json:"substances_cost"`
	SolutionsCost  ComponentMap    `gorm:"type:text" json:"solutions_cost"`
}

// MeasurementFor returns the unit a normative's output is measured in.
func MeasurementFor(normativeType string) string {
	switch normativeType {
	case NormativeSolution:
		return UnitMillilitre
	case NormativeMixture:
		return UnitGram
	}
	return ""
}
