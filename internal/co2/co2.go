// Package co2 estimates the emissions avoided by buying an item used.
//
// The emission rates, distances and degradation factor are fixed data and
// must not be tuned: published figures depend on them being stable.
package co2

import (
	"fmt"
	"math"
	"strings"

	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/shopspring/decimal"
)

const (
	// ReferenceYear is the year item age is measured against.
	ReferenceYear = 2024
	// DegradationPerYear adds 2% to the used footprint per year of age.
	DegradationPerYear = 0.02
	// ShippingPerKmKg is kg CO2 emitted per km per kg shipped.
	ShippingPerKmKg = 0.00014
	// LocalShippingKm is the assumed distance for a second-hand purchase.
	LocalShippingKm = 50

	DefaultEmissionRate = 10.0
	DefaultDistanceKm   = 5000

	// MaxWeightKg bounds accepted weights so every derived figure stays finite.
	MaxWeightKg = 1e6
)

// categoryEmissions is kg CO2 per kg of product manufactured.
var categoryEmissions = map[string]float64{
	"electronics": 50.0,
	"clothing":    15.0,
	"furniture":   8.0,
	"books":       2.5,
	"toys":        12.0,
	"appliances":  45.0,
	"sports":      10.0,
	"accessories": 8.0,
}

// countryDistances is the approximate shipping distance to Japan in km.
// Lookup is case-sensitive.
var countryDistances = map[string]float64{
	"Japan":    0,
	"China":    3000,
	"USA":      10000,
	"Germany":  9000,
	"Vietnam":  4000,
	"Thailand": 4500,
	"Korea":    1200,
	"Taiwan":   2200,
	"Unknown":  5000,
}

// Input describes the item being assessed.
type Input struct {
	Category            string
	WeightKg            float64
	ManufacturerCountry string
	ManufacturingYear   int
}

// Result holds the footprint of buying new versus used, in kg CO2.
type Result struct {
	BuyingNewKg  float64 `json:"buying_new_kg"`
	BuyingUsedKg float64 `json:"buying_used_kg"`
	SavedKg      float64 `json:"saved_kg"`
}

// Equivalents expresses saved CO2 in everyday terms.
type Equivalents struct {
	TreesPlanted           float64 `json:"trees_planted"`
	CarKmAvoided           float64 `json:"car_km_avoided"`
	PlasticBottlesRecycled float64 `json:"plastic_bottles_recycled"`
	LightBulbHours         float64 `json:"light_bulb_hours"`
}

// EmissionRate returns the manufacturing rate for a category, matched
// case-insensitively.
func EmissionRate(category string) float64 {
	if rate, ok := categoryEmissions[strings.ToLower(strings.TrimSpace(category))]; ok {
		return rate
	}
	return DefaultEmissionRate
}

// DistanceKm returns the shipping distance for a manufacturer country.
func DistanceKm(country string) float64 {
	if d, ok := countryDistances[country]; ok {
		return d
	}
	return DefaultDistanceKm
}

// Calculate computes the CO2 impact of buying in used rather than new.
// It is pure: identical inputs give bit-identical results.
func Calculate(in Input) (Result, error) {
	if math.IsNaN(in.WeightKg) || in.WeightKg < 0 || in.WeightKg > MaxWeightKg {
		return Result{}, fmt.Errorf("%w: weight must be between 0 and %g kg, got %v", faults.ErrInvalidRequest, float64(MaxWeightKg), in.WeightKg)
	}

	manufacturing := in.WeightKg * EmissionRate(in.Category)
	shippingNew := in.WeightKg * DistanceKm(in.ManufacturerCountry) * ShippingPerKmKg
	buyingNew := manufacturing + shippingNew

	shippingUsed := in.WeightKg * LocalShippingKm * ShippingPerKmKg
	age := float64(ReferenceYear - in.ManufacturingYear)
	degradation := 1.0 + age*DegradationPerYear
	// Far-future years would otherwise give a negative used footprint.
	buyingUsed := math.Max(shippingUsed*degradation, 0)

	saved := math.Max(buyingNew-buyingUsed, 0)
	if math.IsInf(buyingNew, 0) || math.IsInf(buyingUsed, 0) {
		return Result{}, fmt.Errorf("%w: CO2 estimate out of range for year %d", faults.ErrInvalidRequest, in.ManufacturingYear)
	}

	return Result{
		BuyingNewKg:  round(buyingNew, 2),
		BuyingUsedKg: round(buyingUsed, 2),
		SavedKg:      round(saved, 2),
	}, nil
}

// EquivalentsFor converts saved kg CO2 into equivalents: one tree absorbs
// about 20 kg a year, a car emits 0.12 kg/km, a recycled bottle saves
// 0.082 kg and a light bulb hour costs 0.0006 kg.
func EquivalentsFor(savedKg float64) Equivalents {
	return Equivalents{
		TreesPlanted:           round(savedKg/20, 2),
		CarKmAvoided:           round(savedKg/0.12, 2),
		PlasticBottlesRecycled: round(savedKg/0.082, 0),
		LightBulbHours:         round(savedKg/0.0006, 0),
	}
}

// round rounds the exact binary value of v half to even, so 0.125 becomes
// 0.12 and 2.675 (stored as 2.67499...) becomes 2.67.
func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloatWithExponent(v, math.MinInt32).RoundBank(places).InexactFloat64()
}
