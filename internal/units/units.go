// Package units normalizes the measurement units that flow between sensor
// drivers, the decision engine, and the measurement store.
package units

// Unit identifies the physical unit carried alongside a measurement value.
type Unit string

const (
	Celsius    Unit = "C"
	Fahrenheit Unit = "F"
	Liters     Unit = "L"
	Gallons    Unit = "gal"
	Millimeter Unit = "mm"
	Inch       Unit = "in"
	Percent    Unit = "%"
	MicroS     Unit = "uS/cm"
	PPT        Unit = "ppt"
	PPM        Unit = "ppm"
	MgPerKg    Unit = "mg/kg"
	PH         Unit = "pH"
)

// gallonsPerLiter holds the exact number of liters in one US liquid
// gallon; Convert divides by it for L->gal and multiplies for gal->L.
const gallonsPerLiter = 3.785411784

// mmPerInch is the exact inch-to-millimeter conversion factor.
const mmPerInch = 25.4

// Convert converts value from one unit to another. It returns the original
// value unchanged (ok=true) when from == to. Unsupported pairs return
// ok=false and the original value.
func Convert(value float64, from, to Unit) (float64, bool) {
	if from == to {
		return value, true
	}
	switch {
	case from == Celsius && to == Fahrenheit:
		return value*9/5 + 32, true
	case from == Fahrenheit && to == Celsius:
		return (value - 32) * 5 / 9, true
	case from == Liters && to == Gallons:
		return value / gallonsPerLiter, true
	case from == Gallons && to == Liters:
		return value * gallonsPerLiter, true
	case from == Inch && to == Millimeter:
		return value * mmPerInch, true
	case from == Millimeter && to == Inch:
		return value / mmPerInch, true
	}
	return value, false
}
