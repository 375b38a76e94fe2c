package engine

import "testing"

func TestPercentageRoundsHalfUp(t *testing.T) {
	cases := []struct {
		done, total, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 4, 0},
		{1, 2, 50},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{2, 5, 40},
		{4, 4, 100},
		{5, 4, 100},
	}
	for _, tc := range cases {
		if got := percentage(tc.done, tc.total); got != tc.want {
			t.Fatalf("percentage(%d, %d) = %d, want %d", tc.done, tc.total, got, tc.want)
		}
	}
}
