package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chemlab/labstock/internal/costing"
	"github.com/chemlab/labstock/internal/ledger"
	"github.com/chemlab/labstock/internal/models"
)

// ErrInvalidQuantity rejects inputs before the costing engine runs.
var ErrInvalidQuantity = errors.New("services: invalid quantity")

// ProductionService realizes normative recipes: producing solutions and
// mixtures, recording stock intake, and the solution-side adjustments.
type ProductionService struct {
	DB *gorm.DB
}

func NewProductionService(db *gorm.DB) *ProductionService { return &ProductionService{DB: db} }

// ProduceRequest asks for Amount units of the named normative's output,
// dated MadeOn with shelf life until DueDate.
type ProduceRequest struct {
	Normative string
	Amount    decimal.Decimal
	MadeOn    time.Time
	DueDate   time.Time
	Notes     string
}

// ProductionSummary reports what one production run consumed and cost.
type ProductionSummary struct {
	Normative      string              `json:"normative"`
	Type           string              `json:"type"`
	Measurement    string              `json:"measurement"`
	Amount         decimal.Decimal     `json:"amount"`
	UnitPrice      decimal.Decimal     `json:"unit_price"`
	TotalCost      decimal.Decimal     `json:"total_cost"`
	SubstancesCost models.ComponentMap `json:"substances_cost"`
	SolutionsCost  models.ComponentMap `json:"solutions_cost"`
	EntryID        uint                `json:"entry_id"`
}

// ProduceNormative runs the four-phase production protocol in one
// transaction: resolve the normative, validate and price every component
// collection, stage the consumption rows plus one production row, commit.
// Any costing failure aborts before a single row is written.
func (s *ProductionService) ProduceNormative(req ProduceRequest) (*ProductionSummary, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidQuantity)
	}
	var summary *ProductionSummary
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var norm models.Normative
		if err := tx.Where("name = ?", req.Normative).First(&norm).Error; err != nil {
			return fmt.Errorf("normative %q: %w", req.Normative, err)
		}
		coef, err := costing.ScaleFactor(req.Amount, norm.Output)
		if err != nil {
			return err
		}

		stockLed := ledger.NewStockLedger(tx)
		solLed := ledger.NewSolutionLedger(tx)

		// Validate and price everything before writing anything.
		subBalances, err := stockLed.Balances(keysOf(norm.Substances))
		if err != nil {
			return err
		}
		subRes, err := costing.Consume(norm.Substances, coef, subBalances)
		if err != nil {
			return err
		}
		solBalances, err := solLed.Balances(keysOf(norm.Solutions))
		if err != nil {
			return err
		}
		solRes, err := costing.Consume(norm.Solutions, coef, solBalances)
		if err != nil {
			return err
		}

		total := subRes.Total.Add(solRes.Total)
		price, err := costing.ProductionPrice(total, req.Amount)
		if err != nil {
			return err
		}

		note := productionNote(norm)
		for _, line := range subRes.Lines {
			entry := models.StockEntry{
				SubstanceName: line.Key,
				Measurement:   line.Measurement,
				Amount:        line.Amount,
				Remainder:     line.NewRemainder,
				Price:         line.UnitPrice,
				TotalCost:     line.LineCost,
				CreationDate:  req.MadeOn,
				Notes:         note,
				Normative:     norm.Name,
			}
			if err := stockLed.Append(&entry); err != nil {
				return err
			}
		}
		for _, line := range solRes.Lines {
			entry := models.SolutionEntry{
				Normative:   line.Key,
				Measurement: line.Measurement,
				Amount:      line.Amount,
				Remainder:   line.NewRemainder,
				Price:       line.UnitPrice,
				TotalCost:   line.LineCost,
				CreatedAt:   req.MadeOn,
				Notes:       note,
				Recipe:      norm.Name,
			}
			if err := solLed.Append(&entry); err != nil {
				return err
			}
		}

		lastRemainder, err := solLed.LatestRemainder(norm.Name)
		if err != nil {
			return err
		}
		due := req.DueDate
		produced := models.SolutionEntry{
			Normative:   norm.Name,
			Measurement: models.MeasurementFor(norm.Type),
			Amount:      req.Amount,
			Remainder:   lastRemainder.Add(req.Amount),
			Price:       price,
			TotalCost:   total,
			CreatedAt:   req.MadeOn,
			DueDate:     &due,
			Notes:       req.Notes,
		}
		if err := solLed.Append(&produced); err != nil {
			return err
		}

		summary = &ProductionSummary{
			Normative:      norm.Name,
			Type:           norm.Type,
			Measurement:    produced.Measurement,
			Amount:         req.Amount,
			UnitPrice:      price,
			TotalCost:      total,
			SubstancesCost: subRes.Costs,
			SolutionsCost:  solRes.Costs,
			EntryID:        produced.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// RecordIntake appends a signed stock movement at the given price: a
// purchase when the amount is positive, a manual correction when negative.
// The price is stored as entered; intake never reprices history.
func (s *ProductionService) RecordIntake(substanceName string, amount, price decimal.Decimal, date time.Time, notes string) (*models.StockEntry, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: amount must not be zero", ErrInvalidQuantity)
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidQuantity)
	}
	var entry *models.StockEntry
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var subst models.Substance
		if err := tx.Where("name = ?", substanceName).First(&subst).Error; err != nil {
			return fmt.Errorf("substance %q: %w", substanceName, err)
		}
		led := ledger.NewStockLedger(tx)
		lastRemainder, err := led.LatestRemainder(subst.Name)
		if err != nil {
			return err
		}
		entry = &models.StockEntry{
			SubstanceName: subst.Name,
			Measurement:   subst.Measurement,
			Amount:        amount,
			Remainder:     lastRemainder.Add(amount),
			Price:         price,
			TotalCost:     price.Mul(amount).Round(2),
			CreationDate:  date,
			Notes:         "Stock intake. " + notes,
		}
		return led.Append(entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// WriteOffSolution appends a negative adjustment for a produced solution at
// the price and remainder of its latest ledger row.
func (s *ProductionService) WriteOffSolution(normativeName string, amount decimal.Decimal, date time.Time, notes string) (*models.SolutionEntry, error) {
	if !amount.IsNegative() {
		return nil, fmt.Errorf("%w: write-off amount must be negative", ErrInvalidQuantity)
	}
	var entry *models.SolutionEntry
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var last models.SolutionEntry
		if err := tx.Where("normative = ?", normativeName).Order("id desc").First(&last).Error; err != nil {
			return fmt.Errorf("solution %q: %w", normativeName, err)
		}
		entry = &models.SolutionEntry{
			Normative:   normativeName,
			Measurement: last.Measurement,
			Amount:      amount,
			Remainder:   last.Remainder.Add(amount),
			Price:       last.Price,
			TotalCost:   last.Price.Mul(amount),
			CreatedAt:   date,
			Notes:       notes,
		}
		return ledger.NewSolutionLedger(tx).Append(entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func productionNote(norm models.Normative) string {
	if norm.Type == models.NormativeMixture {
		return fmt.Sprintf("Produced mixture %s", norm.Name)
	}
	return fmt.Sprintf("Produced solution %s", norm.Name)
}

func keysOf(m models.ComponentMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
