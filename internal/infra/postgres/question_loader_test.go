package postgres

import "testing"

func TestPointsForLevel(t *testing.T) {
	five := 5
	zero := 0
	cases := []struct {
		levelID  int
		explicit *int
		want     int
	}{
		{levelID: 1, want: 1},
		{levelID: 2, want: 2},
		{levelID: 3, want: 3},
		{levelID: 7, want: 1},
		{levelID: 0, want: 1},
		{levelID: 2, explicit: &five, want: 5},
		{levelID: 3, explicit: &zero, want: 3},
	}
	for _, tc := range cases {
		if got := pointsForLevel(tc.levelID, tc.explicit); got != tc.want {
			t.Fatalf("level %d: expected %d, got %d", tc.levelID, tc.want, got)
		}
	}
}
