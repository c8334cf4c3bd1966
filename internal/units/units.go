// Package units provides shared constants and conversions for sample mass and
// volume units
package units

// Unit constants
const (
	Kilogram   = "kg"
	Gram       = "g"
	Liter      = "L"
	Milliliter = "mL"
)

// ConvertMass converts a mass in kilograms to the target units.
// Device files store sample weight in kg.
func ConvertMass(kg float64, targetUnits string) float64 {
	switch targetUnits {
	case Gram:
		return kg * 1000
	default:
		return kg
	}
}

// ConvertVolume converts a volume in liters to the target units.
// Device files store sample volume in L.
func ConvertVolume(liters float64, targetUnits string) float64 {
	switch targetUnits {
	case Milliliter:
		return liters * 1000
	default:
		return liters
	}
}

// PositiveGrams converts kg to g, returning 0 unless the input is strictly
// positive.
func PositiveGrams(kg float64) float64 {
	if kg > 0 {
		return ConvertMass(kg, Gram)
	}
	return 0
}

// PositiveMilliliters converts L to mL, returning 0 unless the input is
// strictly positive.
func PositiveMilliliters(liters float64) float64 {
	if liters > 0 {
		return ConvertVolume(liters, Milliliter)
	}
	return 0
}
