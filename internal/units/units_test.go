package units

import "testing"

func TestConvertInvolutive(t *testing.T) {
	pairs := [][2]Unit{
		{Celsius, Fahrenheit},
		{Liters, Gallons},
		{Inch, Millimeter},
	}
	for _, p := range pairs {
		x := 23.456
		mid, ok := Convert(x, p[0], p[1])
		if !ok {
			t.Fatalf("%v->%v: not supported", p[0], p[1])
		}
		back, ok := Convert(mid, p[1], p[0])
		if !ok {
			t.Fatalf("%v->%v: not supported", p[1], p[0])
		}
		if diff := back - x; diff > 1e-9*x || diff < -1e-9*x {
			t.Errorf("%v<->%v round trip: got %v want %v", p[0], p[1], back, x)
		}
	}
}

func TestConvertSameUnit(t *testing.T) {
	v, ok := Convert(10, Celsius, Celsius)
	if !ok || v != 10 {
		t.Errorf("same-unit convert changed value: %v, %v", v, ok)
	}
}

func TestGallonsFactor(t *testing.T) {
	l, ok := Convert(1, Gallons, Liters)
	if !ok || l != gallonsPerLiter {
		t.Errorf("1 gal -> L: got %v want %v", l, gallonsPerLiter)
	}
}
