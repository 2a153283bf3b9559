// Package ledger reads and appends the two append-only movement ledgers:
// stock (substances) and solutions (normative outputs). Average prices are
// recomputed from the full history of a key at the moment of reference;
// nothing here ever updates a previously written row.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chemlab/labstock/internal/models"
)

// ErrNoMatch is returned by DeleteMatching when no row matches the
// (key, amount, date) triple.
var ErrNoMatch = errors.New("ledger: no matching entry")

// AmbiguousMatchError is returned by DeleteMatching when the triple matches
// more than one row. The caller must not guess which one to remove.
type AmbiguousMatchError struct {
	Key   string
	Count int64
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ledger: %d entries match %q, expected exactly one", e.Count, e.Key)
}

// Balance is the lifetime state of one ledger key: the net remainder
// (sum of all signed amounts) and the weighted average price
// (sum of line costs / sum of amounts). AvgPrice is left zero when the
// remainder is exactly zero; the division is undefined and callers must
// reject the operation instead.
type Balance struct {
	Measurement string
	Remainder   decimal.Decimal
	AvgPrice    decimal.Decimal
}

type sums struct {
	Key         string
	Measurement string
	Amount      decimal.Decimal
	Cost        decimal.Decimal
}

func balancesFrom(rows []sums) map[string]Balance {
	out := make(map[string]Balance, len(rows))
	costs := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		b, ok := out[r.Key]
		if !ok {
			b = Balance{Measurement: r.Measurement}
		}
		b.Remainder = b.Remainder.Add(r.Amount)
		out[r.Key] = b
		costs[r.Key] = costs[r.Key].Add(r.Cost)
	}
	for key, b := range out {
		if !b.Remainder.IsZero() {
			b.AvgPrice = costs[key].Div(b.Remainder)
			out[key] = b
		}
	}
	return out
}

// StockLedger is the substance movement ledger.
type StockLedger struct {
	DB *gorm.DB
}

func NewStockLedger(db *gorm.DB) *StockLedger { return &StockLedger{DB: db} }

// Balances returns the lifetime balance for every requested substance that
// has at least one ledger row. Requested names with no rows are absent from
// the result; callers derive the missing set from that.
func (l *StockLedger) Balances(names []string) (map[string]Balance, error) {
	if len(names) == 0 {
		return map[string]Balance{}, nil
	}
	var rows []sums
	err := l.DB.Model(&models.StockEntry{}).
		Select("substance_name as key, measurement, amount, total_cost as cost").
		Where("substance_name IN ?", names).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return balancesFrom(rows), nil
}

// LatestRemainder returns the running remainder of the most recently
// inserted row for the substance, or zero when it has no rows.
func (l *StockLedger) LatestRemainder(name string) (decimal.Decimal, error) {
	var e models.StockEntry
	err := l.DB.Where("substance_name = ?", name).Order("id desc").First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return e.Remainder, nil
}

// Append inserts a new stock row. Prior rows are never touched.
func (l *StockLedger) Append(e *models.StockEntry) error {
	return l.DB.Create(e).Error
}

// DeleteMatching removes the single stock row identified by substance name,
// signed amount and creation date. Zero matches yields ErrNoMatch, several
// yield an AmbiguousMatchError; in both cases nothing is deleted.
func (l *StockLedger) DeleteMatching(name string, amount decimal.Decimal, date time.Time) (*models.StockEntry, error) {
	var matches []models.StockEntry
	err := l.DB.
		Where("substance_name = ? AND amount = ? AND creation_date = ?", name, amount, date).
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s %s on %s", ErrNoMatch, name, amount, date.Format("2006-01-02"))
	case 1:
	default:
		return nil, &AmbiguousMatchError{Key: name, Count: int64(len(matches))}
	}
	if err := l.DB.Delete(&matches[0]).Error; err != nil {
		return nil, err
	}
	return &matches[0], nil
}

// SolutionLedger is the normative-output movement ledger.
type SolutionLedger struct {
	DB *gorm.DB
}

func NewSolutionLedger(db *gorm.DB) *SolutionLedger { return &SolutionLedger{DB: db} }

// Balances mirrors StockLedger.Balances for solution entries, keyed by
// normative name.
func (l *SolutionLedger) Balances(names []string) (map[string]Balance, error) {
	if len(names) == 0 {
		return map[string]Balance{}, nil
	}
	var rows []sums
	err := l.DB.Model(&models.SolutionEntry{}).
		Select("normative as key, measurement, amount, total_cost as cost").
		Where("normative IN ?", names).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return balancesFrom(rows), nil
}

// LatestRemainder returns the running remainder of the most recently
// inserted row for the normative, or zero when it has no rows.
func (l *SolutionLedger) LatestRemainder(name string) (decimal.Decimal, error) {
	var e models.SolutionEntry
	err := l.DB.Where("normative = ?", name).Order("id desc").First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return e.Remainder, nil
}

// Append inserts a new solution row.
func (l *SolutionLedger) Append(e *models.SolutionEntry) error {
	return l.DB.Create(e).Error
}

// DeleteMatching removes the single solution row identified by normative
// name, signed amount and creation date, with the same uniqueness contract
// as StockLedger.DeleteMatching.
func (l *SolutionLedger) DeleteMatching(name string, amount decimal.Decimal, date time.Time) (*models.SolutionEntry, error) {
	var matches []models.SolutionEntry
	err := l.DB.
		Where("normative = ? AND amount = ? AND created_at = ?", name, amount, date).
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s %s on %s", ErrNoMatch, name, amount, date.Format("2006-01-02"))
	case 1:
	default:
		return nil, &AmbiguousMatchError{Key: name, Count: int64(len(matches))}
	}
	if err := l.DB.Delete(&matches[0]).Error; err != nil {
		return nil, err
	}
	return &matches[0], nil
}
