// Package costing turns a component map and a scale factor into priced,
// signed consumption lines against the current ledger balances. It is pure:
// balances come in, staged lines come out, and nothing is persisted here.
package costing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/chemlab/labstock/internal/ledger"
)

// ErrZeroQuantity rejects production of a zero output quantity, whose unit
// price would require dividing by zero.
var ErrZeroQuantity = errors.New("costing: output quantity is zero")

// MissingComponentsError lists every required component with no ledger
// history at all. The whole operation must abort; nothing is written.
type MissingComponentsError struct {
	Names []string
}

func (e *MissingComponentsError) Error() string {
	return "costing: no ledger entries for: " + strings.Join(e.Names, ", ")
}

// ZeroRemainderError marks a component whose lifetime net quantity is
// exactly zero, which leaves its average price undefined.
type ZeroRemainderError struct {
	Name string
}

func (e *ZeroRemainderError) Error() string {
	return fmt.Sprintf("costing: remainder of %q is zero, average price undefined", e.Name)
}

// Line is one staged consumption row: a negative amount priced at the
// component's current lifetime average.
type Line struct {
	Key          string
	Measurement  string
	Amount       decimal.Decimal
	NewRemainder decimal.Decimal
	UnitPrice    decimal.Decimal
	LineCost     decimal.Decimal
}

// Result is the staged outcome for one component collection.
type Result struct {
	Lines []Line
	// Costs maps each component to its (negative) line cost.
	Costs map[string]decimal.Decimal
	// Total is the positive aggregate cost of the collection.
	Total decimal.Decimal
}

// ScaleFactor is desired output over nominal output.
func ScaleFactor(desired, nominal decimal.Decimal) (decimal.Decimal, error) {
	if nominal.IsZero() {
		return decimal.Zero, errors.New("costing: normative output is zero")
	}
	return desired.Div(nominal), nil
}

// Consume scales every component quantity by coef, checks availability and
// zero remainders against the given balances, and prices the resulting
// outflows. Either every component succeeds or an error is returned and no
// line is usable: the caller commits all lines or none.
//
// The new remainder may go negative; only a remainder of exactly zero blocks
// consumption, and only because the average price division is undefined.
func Consume(components map[string]decimal.Decimal, coef decimal.Decimal, balances map[string]ledger.Balance) (*Result, error) {
	var missing []string
	for name := range components {
		if _, ok := balances[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingComponentsError{Names: missing}
	}

	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	res := &Result{
		Lines: make([]Line, 0, len(names)),
		Costs: make(map[string]decimal.Decimal, len(names)),
	}
	for _, name := range names {
		bal := balances[name]
		if bal.Remainder.IsZero() {
			return nil, &ZeroRemainderError{Name: name}
		}
		amount := components[name].Mul(coef).Neg()
		cost := bal.AvgPrice.Mul(amount)
		res.Lines = append(res.Lines, Line{
			Key:          name,
			Measurement:  bal.Measurement,
			Amount:       amount,
			NewRemainder: bal.Remainder.Add(amount),
			UnitPrice:    bal.AvgPrice,
			LineCost:     cost,
		})
		res.Costs[name] = cost
		res.Total = res.Total.Sub(cost)
	}
	return res, nil
}

// ProductionPrice is the unit price of a produced output: total cost over
// output quantity, rounded to the stored money precision.
func ProductionPrice(totalCost, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() {
		return decimal.Zero, ErrZeroQuantity
	}
	return totalCost.Div(amount).Round(2), nil
}
