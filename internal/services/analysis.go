package services

import (
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chemlab/labstock/internal/costing"
	"github.com/chemlab/labstock/internal/ledger"
	"github.com/chemlab/labstock/internal/models"
)

// AnalysisService records completed analyses against their recipes and
// reverses previously recorded ones.
type AnalysisService struct {
	DB *gorm.DB
}

func NewAnalysisService(db *gorm.DB) *AnalysisService { return &AnalysisService{DB: db} }

// RunAnalysis consumes quantity times the recipe's per-analysis component
// quantities from both ledgers and records the Analysis row, all in one
// transaction. The total cost is stored as a positive magnitude; the per
// component breakdowns keep the signed line costs.
func (s *AnalysisService) RunAnalysis(recipeName string, quantity int, doneDate time.Time) (*models.Analysis, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidQuantity)
	}
	var analysis *models.Analysis
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var recipe models.Recipe
		if err := tx.Where("name = ?", recipeName).First(&recipe).Error; err != nil {
			return fmt.Errorf("recipe %q: %w", recipeName, err)
		}
		coef := decimal.NewFromInt(int64(quantity))

		stockLed := ledger.NewStockLedger(tx)
		solLed := ledger.NewSolutionLedger(tx)

		subBalances, err := stockLed.Balances(keysOf(recipe.Substances))
		if err != nil {
			return err
		}
		subRes, err := costing.Consume(recipe.Substances, coef, subBalances)
		if err != nil {
			return err
		}
		solBalances, err := solLed.Balances(keysOf(recipe.Solutions))
		if err != nil {
			return err
		}
		solRes, err := costing.Consume(recipe.Solutions, coef, solBalances)
		if err != nil {
			return err
		}

		note := fmt.Sprintf("Analysis %s, runs: %d", recipe.Name, quantity)
		for _, line := range subRes.Lines {
			entry := models.StockEntry{
				SubstanceName: line.Key,
				Measurement:   line.Measurement,
				Amount:        line.Amount,
				Remainder:     line.NewRemainder,
				Price:         line.UnitPrice,
				TotalCost:     line.LineCost,
				CreationDate:  doneDate,
				Notes:         note,
				Recipe:        recipe.Name,
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
				CreatedAt:   doneDate,
				Notes:       note,
				Recipe:      recipe.Name,
			}
			if err := solLed.Append(&entry); err != nil {
				return err
			}
		}

		analysis = &models.Analysis{
			RecipeName:     recipe.Name,
			Quantity:       quantity,
			DoneDate:       doneDate,
			TotalCost:      subRes.Total.Add(solRes.Total),
			SubstancesCost: subRes.Costs,
			SolutionsCost:  solRes.Costs,
		}
		return tx.Create(analysis).Error
	})
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

// ReversalReport tallies a best-effort reversal. Failures lists every
// component whose ledger row could not be matched and removed; the other
// deletions still went through.
type ReversalReport struct {
	Deleted  int      `json:"deleted"`
	Failures []string `json:"failures,omitempty"`
}

func (r *ReversalReport) fail(context string, err error) {
	log.Printf("reversal: %s: %v", context, err)
	r.Failures = append(r.Failures, fmt.Sprintf("%s: %v", context, err))
}

// DeleteAnalysis reverses a recorded analysis by reconstruction: for every
// recipe component it recomputes the consumed amount and removes the ledger
// row matching (name, amount, done date). Each failed match is logged and
// reported while the remaining deletions still run; this path is
// deliberately best-effort, not atomic.
func (s *AnalysisService) DeleteAnalysis(id uint) (*ReversalReport, error) {
	var analysis models.Analysis
	if err := s.DB.First(&analysis, id).Error; err != nil {
		return nil, fmt.Errorf("analysis %d: %w", id, err)
	}
	var recipe models.Recipe
	if err := s.DB.Where("name = ?", analysis.RecipeName).First(&recipe).Error; err != nil {
		return nil, fmt.Errorf("recipe %q: %w", analysis.RecipeName, err)
	}

	qty := decimal.NewFromInt(int64(analysis.Quantity))
	report := &ReversalReport{}
	stockLed := ledger.NewStockLedger(s.DB)
	for name, perUnit := range recipe.Substances {
		amount := perUnit.Mul(qty).Neg()
		if _, err := stockLed.DeleteMatching(name, amount, analysis.DoneDate); err != nil {
			report.fail("stock "+name, err)
			continue
		}
		report.Deleted++
	}
	solLed := ledger.NewSolutionLedger(s.DB)
	for name, perUnit := range recipe.Solutions {
		amount := perUnit.Mul(qty).Neg()
		if _, err := solLed.DeleteMatching(name, amount, analysis.DoneDate); err != nil {
			report.fail("solution "+name, err)
			continue
		}
		report.Deleted++
	}

	if err := s.DB.Delete(&analysis).Error; err != nil {
		return report, err
	}
	report.Deleted++
	return report, nil
}

// DeleteSolution reverses one production row of the solution ledger: the
// consumption rows it generated are reconstructed from the normative scaled
// to the produced amount and removed by (name, amount, date), then the
// production row itself goes. Best-effort, like DeleteAnalysis.
func (s *AnalysisService) DeleteSolution(id uint) (*ReversalReport, error) {
	var entry models.SolutionEntry
	if err := s.DB.First(&entry, id).Error; err != nil {
		return nil, fmt.Errorf("solution entry %d: %w", id, err)
	}
	if !entry.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: entry %d is not a production row", ErrInvalidQuantity, id)
	}
	var norm models.Normative
	if err := s.DB.Where("name = ?", entry.Normative).First(&norm).Error; err != nil {
		return nil, fmt.Errorf("normative %q: %w", entry.Normative, err)
	}
	coef, err := costing.ScaleFactor(entry.Amount, norm.Output)
	if err != nil {
		return nil, err
	}

	report := &ReversalReport{}
	stockLed := ledger.NewStockLedger(s.DB)
	for name, perUnit := range norm.Substances {
		amount := perUnit.Mul(coef).Neg()
		if _, err := stockLed.DeleteMatching(name, amount, entry.CreatedAt); err != nil {
			report.fail("stock "+name, err)
			continue
		}
		report.Deleted++
	}
	solLed := ledger.NewSolutionLedger(s.DB)
	for name, perUnit := range norm.Solutions {
		amount := perUnit.Mul(coef).Neg()
		if _, err := solLed.DeleteMatching(name, amount, entry.CreatedAt); err != nil {
			report.fail("solution "+name, err)
			continue
		}
		report.Deleted++
	}

	if err := s.DB.Delete(&entry).Error; err != nil {
		return report, err
	}
	report.Deleted++
	return report, nil
}
