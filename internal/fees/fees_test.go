package fees

import "testing"

func TestRates(t *testing.T) {
	if MakerRate >= TakerRate {
		t.Fatal("maker rate must be below taker rate")
	}
	if Rate(Maker) != MakerRate || Rate(Taker) != TakerRate {
		t.Fatal("Rate does not match class constants")
	}
}

func TestAmount(t *testing.T) {
	cases := []struct {
		name     string
		notional float64
		class    Class
		want     float64
	}{
		{"taker on 10k notional", 10_000, Taker, 5},
		{"maker on 10k notional", 10_000, Maker, 2},
		{"zero notional", 0, Taker, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Amount(tc.notional, tc.class); got != tc.want {
				t.Errorf("Amount(%v, %v) = %v, want %v", tc.notional, tc.class, got, tc.want)
			}
		})
	}
}
