// Package reports is the read side: group-by rollups and filtered ledger
// listings. Nothing here writes.
package reports

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chemlab/labstock/internal/models"
)

type Service struct {
	DB *gorm.DB
}

func NewService(db *gorm.DB) *Service { return &Service{DB: db} }

// SummaryRow is one aggregated line of a stock or solution summary. AvgPrice
// is the plain average of row prices, matching the reporting SQL this view
// has always used, not the cost-weighted ledger average.
type SummaryRow struct {
	Name        string          `json:"name"`
	Measurement string          `json:"measurement"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	SumCost     decimal.Decimal `json:"sum_cost"`
}

// StockSummary groups the substance ledger by name and unit.
func (s *Service) StockSummary() ([]SummaryRow, error) {
	var rows []SummaryRow
	err := s.DB.Raw(`
		SELECT substance_name AS name, measurement,
		       SUM(amount) AS total_amount,
		       AVG(price) AS avg_price,
		       SUM(amount) * AVG(price) AS sum_cost
		FROM stock_entries
		GROUP BY substance_name, measurement
		ORDER BY substance_name`).Scan(&rows).Error
	return rows, err
}

// SolutionSummary groups the solution ledger by normative and unit.
func (s *Service) SolutionSummary() ([]SummaryRow, error) {
	var rows []SummaryRow
	err := s.DB.Raw(`
		SELECT normative AS name, measurement,
		       SUM(amount) AS total_amount,
		       AVG(price) AS avg_price,
		       SUM(amount) * AVG(price) AS sum_cost
		FROM solution_entries
		GROUP BY normative, measurement
		ORDER BY normative`).Scan(&rows).Error
	return rows, err
}

// Direction filter values for ledger listings.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// HistoryFilter narrows a ledger listing. Zero values mean "no filter";
// To is exclusive, matching the period convention of the statistics view.
type HistoryFilter struct {
	Key       string
	Direction string
	From      *time.Time
	To        *time.Time
}

func applyStockFilter(q *gorm.DB, f HistoryFilter) *gorm.DB {
	if f.Key != "" {
		q = q.Where("substance_name = ?", f.Key)
	}
	switch f.Direction {
	case DirectionIn:
		q = q.Where("amount > 0")
	case DirectionOut:
		q = q.Where("amount < 0")
	}
	if f.From != nil {
		q = q.Where("creation_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("creation_date < ?", *f.To)
	}
	return q
}

// StockHistory lists substance ledger rows, newest first.
func (s *Service) StockHistory(f HistoryFilter) ([]models.StockEntry, error) {
	var entries []models.StockEntry
	q := applyStockFilter(s.DB.Model(&models.StockEntry{}), f)
	err := q.Order("creation_date desc, id desc").Find(&entries).Error
	return entries, err
}

// SolutionHistory lists solution ledger rows, newest first.
func (s *Service) SolutionHistory(f HistoryFilter) ([]models.SolutionEntry, error) {
	var entries []models.SolutionEntry
	q := s.DB.Model(&models.SolutionEntry{})
	if f.Key != "" {
		q = q.Where("normative = ?", f.Key)
	}
	switch f.Direction {
	case DirectionIn:
		q = q.Where("amount > 0")
	case DirectionOut:
		q = q.Where("amount < 0")
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}
	err := q.Order("created_at desc, id desc").Find(&entries).Error
	return entries, err
}

// ConsumptionRow is the consumed quantity and cost of one substance over a
// period. Amounts keep their ledger sign (negative = outflow).
type ConsumptionRow struct {
	Name        string          `json:"name"`
	Measurement string          `json:"measurement"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	SumCost     decimal.Decimal `json:"sum_cost"`
}

// ConsumptionBetween sums substance outflows in [start, end).
func (s *Service) ConsumptionBetween(start, end time.Time) ([]ConsumptionRow, error) {
	var rows []ConsumptionRow
	err := s.DB.Raw(`
		SELECT substance_name AS name, measurement,
		       SUM(amount) AS total_amount,
		       SUM(total_cost) AS sum_cost
		FROM stock_entries
		WHERE amount < 0 AND creation_date >= ? AND creation_date < ?
		GROUP BY substance_name, measurement
		ORDER BY substance_name`, start, end).Scan(&rows).Error
	return rows, err
}
