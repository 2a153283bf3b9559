package services

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chemlab/labstock/internal/costing"
	"github.com/chemlab/labstock/internal/models"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Substance{}, &models.Normative{}, &models.Recipe{},
		&models.StockEntry{}, &models.SolutionEntry{}, &models.Analysis{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decEq(t *testing.T, want, got decimal.Decimal, context string) {
	t.Helper()
	if want.Sub(got).Abs().GreaterThan(dec("0.0001")) {
		t.Fatalf("%s: want %s got %s", context, want, got)
	}
}

func day(d int) time.Time {
	return time.Date(2026, 4, d, 0, 0, 0, 0, time.UTC)
}

func seedSubstance(t *testing.T, db *gorm.DB, name, unit string) {
	t.Helper()
	if err := db.Create(&models.Substance{Name: name, Measurement: unit}).Error; err != nil {
		t.Fatalf("substance %s: %v", name, err)
	}
}

// seedTitrant registers NaOH with two intake batches (100g @ 2.00, 50g @
// 3.00, lifetime average 2.333...) and a 1000ml normative consuming 10g
// NaOH per output.
func seedTitrant(t *testing.T, db *gorm.DB, svc *ProductionService) {
	t.Helper()
	seedSubstance(t, db, "NaOH", models.UnitGram)
	if _, err := svc.RecordIntake("NaOH", dec("100"), dec("2.00"), day(1), "batch 1"); err != nil {
		t.Fatalf("intake 1: %v", err)
	}
	if _, err := svc.RecordIntake("NaOH", dec("50"), dec("3.00"), day(1), "batch 2"); err != nil {
		t.Fatalf("intake 2: %v", err)
	}
	norm := models.Normative{
		Name:        "Titrant 0.1M",
		Type:        models.NormativeSolution,
		Output:      dec("1000"),
		Substances:  models.ComponentMap{"NaOH": dec("10")},
		AsComponent: true,
	}
	if err := db.Create(&norm).Error; err != nil {
		t.Fatalf("normative: %v", err)
	}
}

func TestRecordIntake(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewProductionService(db)
	seedSubstance(t, db, "NaOH", models.UnitGram)

	entry, err := svc.RecordIntake("NaOH", dec("100"), dec("2.00"), day(1), "first batch")
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	decEq(t, dec("100"), entry.Remainder, "remainder")
	decEq(t, dec("200.00"), entry.TotalCost, "total cost")
	if entry.Measurement != models.UnitGram {
		t.Fatalf("measurement: %q", entry.Measurement)
	}

	// Negative intake is a manual correction and keeps the entered price.
	entry, err = svc.RecordIntake("NaOH", dec("-20"), dec("2.00"), day(2), "spillage")
	if err != nil {
		t.Fatalf("correction: %v", err)
	}
	decEq(t, dec("80"), entry.Remainder, "remainder after correction")
	decEq(t, dec("-40.00"), entry.TotalCost, "correction cost")
}

func TestRecordIntakeRejectsBadInput(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewProductionService(db)
	seedSubstance(t, db, "NaOH", models.UnitGram)

	if _, err := svc.RecordIntake("NaOH", decimal.Zero, dec("2.00"), day(1), ""); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("zero amount: want ErrInvalidQuantity got %v", err)
	}
	if _, err := svc.RecordIntake("NaOH", dec("1"), dec("-2.00"), day(1), ""); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("negative price: want ErrInvalidQuantity got %v", err)
	}
	if _, err := svc.RecordIntake("unknown", dec("1"), dec("2.00"), day(1), ""); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("unknown substance: want not found got %v", err)
	}
}

func TestProduceNormative(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewProductionService(db)
	seedTitrant(t, db, svc)

	summary, err := svc.ProduceNormative(ProduceRequest{
		Normative: "Titrant 0.1M",
		Amount:    dec("500"),
		MadeOn:    day(3),
		DueDate:   day(18),
		Notes:     "weekly batch",
	})
	if err != nil {
		t.Fatalf("produce: %v", err)
	}

	avg := dec("350").Div(dec("150"))
	decEq(t, dec("11.67"), summary.TotalCost.Round(2), "total cost")
	decEq(t, dec("0.02"), summary.UnitPrice, "unit price")
	decEq(t, avg.Mul(dec("-5")), summary.SubstancesCost["NaOH"], "NaOH cost")
	if summary.Measurement != models.UnitMillilitre {
		t.Fatalf("measurement: %q", summary.Measurement)
	}

	// Consumption row: -5g at the lifetime average, remainder 145.
	var cons models.StockEntry
	if err := db.Where("substance_name = ? AND normative = ?", "NaOH", "Titrant 0.1M").First(&cons).Error; err != nil {
		t.Fatalf("consumption row: %v", err)
	}
	decEq(t, dec("-5"), cons.Amount, "consumed amount")
	decEq(t, dec("145"), cons.Remainder, "remainder after consumption")
	decEq(t, avg, cons.Price, "consumption price")

	// Production row: +500ml priced at total/amount.
	var prod models.SolutionEntry
	if err := db.Where("normative = ?", "Titrant 0.1M").First(&prod).Error; err != nil {
		t.Fatalf("production row: %v", err)
	}
	decEq(t, dec("500"), prod.Amount, "produced amount")
	decEq(t, dec("500"), prod.Remainder, "produced remainder")
	decEq(t, dec("0.02"), prod.Price, "produced price")
	if prod.DueDate == nil || !prod.DueDate.Equal(day(18)) {
		t.Fatalf("due date: %v", prod.DueDate)
	}
}

// Producing exactly the nominal output consumes exactly the stored
// per-output component quantities.
func TestProduceAtNominalOutput(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewProductionService(db)
	seedTitrant(t, db, svc)

	if _, err := svc.ProduceNormative(ProduceRequest{
		Normative: "Titrant 0.1M", Amount: dec("1000"), MadeOn: day(3), DueDate: day(18),
	}); err != nil {
		t.Fatalf("produce: %v", err)
	}
	var cons models.StockEntry
	if err := db.Where("normative = ?", "Titrant 0.1M").First(&cons).Error; err != nil {
		t.Fatalf("consumption row: %v", err)
	}
	decEq(t, dec("-10"), cons.Amount, "consumed amount at coefficient 1")
}

func TestProduceMissingComponentAbortsEverything(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewProductionService(db)
	seedTitrant(t, db, svc)

	norm := models.Normative{
		Name:   "Mix",
		Type:   models.NormativeMixture,
		Output: dec("100"),
		Substances: models.ComponentMap{
			"NaOH":    dec("5"),
			"Missing": dec("1"),
		},
	}
	if err := db.Create(&norm).Error; err != nil {
		t.Fatalf("normative: %v", err)
	}

	var before int64
	db.Model(&models.StockEntry{}).Count(&before)

	_, err := svc.ProduceNormative(ProduceRequest{Normative: "Mix", Amount: dec("100"), MadeOn: day(3), DueDate: day(18)})
	var missing *costing.MissingComponentsError
	if !errors.As(err, &missing) {
		t.Fatalf("want MissingComponentsError, got %v", err)
	}

	// All-or-nothing: the present component must not have been consumed.
	var after int64
	db.Model(&models.StockEntry{}).Count(&after)
	if before != after {
		t.Fatalf("stock rows written despite abort: %d -> %d", before, after)
	}
	var solutions int64
	db.Model(&models.SolutionEntry{}).Count(&solutions)
	if solutions != 0 {
		t.Fatalf("production row written despite abort")
	}
}

func TestProduceZeroRemainderRejected(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewProductionService(db)
	seedTitrant(t, db, svc)

	// Drain NaOH to exactly zero: average price becomes undefined.
	if _, err := svc.RecordIntake("NaOH", dec("-150"), dec("2.00"), day(2), "drain"); err != nil {
		t.Fatalf("drain: %v", err)
	}
	var before int64
	db.Model(&models.StockEntry{}).Count(&before)

	_, err := svc.ProduceNormative(ProduceRequest{Normative: "Titrant 0.1M", Amount: dec("500"), MadeOn: day(3), DueDate: day(18)})
	var zero *costing.ZeroRemainderError
	if !errors.As(err, &zero) {
		t.Fatalf("want ZeroRemainderError, got %v", err)
	}
	var after int64
	db.Model(&models.StockEntry{}).Count(&after)
	if before != after {
		t.Fatalf("rows written despite zero-remainder abort")
	}
}

func TestProduceRejectsNonPositiveAmount(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewProductionService(db)
	seedTitrant(t, db, svc)

	if _, err := svc.ProduceNormative(ProduceRequest{Normative: "Titrant 0.1M", Amount: decimal.Zero, MadeOn: day(3)}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("zero amount: want ErrInvalidQuantity got %v", err)
	}
}

// Consuming at the average price leaves the average itself unchanged, and
// does not touch unrelated components.
func TestConsumptionPreservesAveragePrice(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewProductionService(db)
	seedTitrant(t, db, svc)
	seedSubstance(t, db, "KCl", models.UnitGram)
	if _, err := svc.RecordIntake("KCl", dec("40"), dec("1.50"), day(1), ""); err != nil {
		t.Fatalf("intake: %v", err)
	}

	if _, err := svc.ProduceNormative(ProduceRequest{
		Normative: "Titrant 0.1M", Amount: dec("500"), MadeOn: day(3), DueDate: day(18),
	}); err != nil {
		t.Fatalf("produce: %v", err)
	}

	// NaOH average after consumption: (350 - 11.6667) / 145 = 2.3333...
	var rows []models.StockEntry
	if err := db.Where("substance_name = ?", "NaOH").Find(&rows).Error; err != nil {
		t.Fatalf("rows: %v", err)
	}
	amount, cost := decimal.Zero, decimal.Zero
	for _, r := range rows {
		amount = amount.Add(r.Amount)
		cost = cost.Add(r.TotalCost)
	}
	decEq(t, dec("350").Div(dec("150")), cost.Div(amount), "NaOH average after consumption")

	// KCl untouched.
	var kcl []models.StockEntry
	if err := db.Where("substance_name = ?", "KCl").Find(&kcl).Error; err != nil {
		t.Fatalf("kcl rows: %v", err)
	}
	if len(kcl) != 1 {
		t.Fatalf("unrelated component gained rows: %d", len(kcl))
	}
}

// A normative may consume another normative's output; the sub-solution is
// drawn from the solution ledger at its own lifetime average.
func TestProduceWithSubSolution(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewProductionService(db)
	seedTitrant(t, db, svc)

	if _, err := svc.ProduceNormative(ProduceRequest{
		Normative: "Titrant 0.1M", Amount: dec("500"), MadeOn: day(3), DueDate: day(18),
	}); err != nil {
		t.Fatalf("produce titrant: %v", err)
	}

	diluted := models.Normative{
		Name:       "Diluted reagent",
		Type:       models.NormativeSolution,
		Output:     dec("100"),
		Substances: models.ComponentMap{"NaOH": dec("2")},
		Solutions:  models.ComponentMap{"Titrant 0.1M": dec("50")},
	}
	if err := db.Create(&diluted).Error; err != nil {
		t.Fatalf("normative: %v", err)
	}

	summary, err := svc.ProduceNormative(ProduceRequest{
		Normative: "Diluted reagent", Amount: dec("100"), MadeOn: day(4), DueDate: day(10),
	})
	if err != nil {
		t.Fatalf("produce diluted: %v", err)
	}

	// Titrant average is its stored total cost over 500ml, not the rounded
	// per-unit price.
	titrantAvg := dec("350").Div(dec("150")).Mul(dec("5")).Div(dec("500"))
	decEq(t, titrantAvg.Mul(dec("-50")), summary.SolutionsCost["Titrant 0.1M"], "sub-solution cost")

	var cons models.SolutionEntry
	if err := db.Where("normative = ? AND recipe = ?", "Titrant 0.1M", "Diluted reagent").First(&cons).Error; err != nil {
		t.Fatalf("sub-solution consumption row: %v", err)
	}
	decEq(t, dec("-50"), cons.Amount, "sub-solution amount")
	decEq(t, dec("450"), cons.Remainder, "sub-solution remainder")
}

func TestWriteOffSolution(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := NewProductionService(db)
	seedTitrant(t, db, svc)

	if _, err := svc.ProduceNormative(ProduceRequest{
		Normative: "Titrant 0.1M", Amount: dec("500"), MadeOn: day(3), DueDate: day(18),
	}); err != nil {
		t.Fatalf("produce: %v", err)
	}

	entry, err := svc.WriteOffSolution("Titrant 0.1M", dec("-100"), day(5), "expired")
	if err != nil {
		t.Fatalf("write-off: %v", err)
	}
	decEq(t, dec("400"), entry.Remainder, "remainder after write-off")
	decEq(t, dec("0.02"), entry.Price, "write-off keeps last price")
	decEq(t, dec("-2.00"), entry.TotalCost, "write-off cost keeps the sign")

	if _, err := svc.WriteOffSolution("Titrant 0.1M", dec("10"), day(5), ""); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("positive write-off: want ErrInvalidQuantity got %v", err)
	}
	if _, err := svc.WriteOffSolution("nothing here", dec("-1"), day(5), ""); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("unknown solution: want not found got %v", err)
	}
}
