package training

import "strings"

// Family identifies a model family. The set is closed; anything unknown is
// served by the naive fallback.
type Family string

const (
	FamilySeasonal Family = "seasonal"
	FamilyGBT      Family = "gbt"
	FamilyARIMA    Family = "arima"
	FamilyNaive    Family = "naive"
)

// Families lists every trainable family in training order.
var Families = []Family{FamilySeasonal, FamilyGBT, FamilyARIMA, FamilyNaive}

// ParseFamily maps a string to a known family.
func ParseFamily(s string) (Family, bool) {
	switch Family(strings.ToLower(strings.TrimSpace(s))) {
	case FamilySeasonal:
		return FamilySeasonal, true
	case FamilyGBT:
		return FamilyGBT, true
	case FamilyARIMA:
		return FamilyARIMA, true
	case FamilyNaive:
		return FamilyNaive, true
	}
	return "", false
}

// InferFamily guesses the family from free-form hints such as an artifact URI
// or framework metadata. Returns naive when nothing matches.
func InferFamily(hints ...string) Family {
	for _, h := range hints {
		h = strings.ToLower(h)
		switch {
		case strings.Contains(h, "seasonal"), strings.Contains(h, "prophet"):
			return FamilySeasonal
		case strings.Contains(h, "gbt"), strings.Contains(h, "lightgbm"), strings.Contains(h, "boost"):
			return FamilyGBT
		case strings.Contains(h, "arima"):
			return FamilyARIMA
		}
	}
	return FamilyNaive
}
