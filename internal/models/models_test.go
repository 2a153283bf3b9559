package models

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestComponentMapRoundTrip(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&Normative{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	in := Normative{
		Name:   "Titrant",
		Type:   NormativeSolution,
		Output: decimal.NewFromInt(1000),
		Substances: ComponentMap{
			"NaOH": decimal.RequireFromString("10.5"),
			"KCl":  decimal.RequireFromString("0.25"),
		},
	}
	if err := db.Create(&in).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	var out Normative
	if err := db.First(&out, in.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out.Substances) != 2 {
		t.Fatalf("want 2 components got %d", len(out.Substances))
	}
	if !out.Substances["NaOH"].Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("NaOH quantity: %s", out.Substances["NaOH"])
	}
	if out.Solutions != nil {
		t.Fatalf("empty map must round-trip as nil, got %v", out.Solutions)
	}
}

func TestComponentMapScan(t *testing.T) {
	var m ComponentMap
	if err := m.Scan(`{"NaOH":"2"}`); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if !m["NaOH"].Equal(decimal.NewFromInt(2)) {
		t.Fatalf("scanned value: %s", m["NaOH"])
	}
	if err := m.Scan(nil); err != nil || m != nil {
		t.Fatalf("scan nil: err=%v map=%v", err, m)
	}
	if err := m.Scan(42); err == nil {
		t.Fatalf("scanning an int must fail")
	}
}

func TestMeasurementFor(t *testing.T) {
	if got := MeasurementFor(NormativeSolution); got != UnitMillilitre {
		t.Fatalf("solution: %q", got)
	}
	if got := MeasurementFor(NormativeMixture); got != UnitGram {
		t.Fatalf("mixture: %q", got)
	}
	if got := MeasurementFor("gas"); got != "" {
		t.Fatalf("unknown type: %q", got)
	}
}
