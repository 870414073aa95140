package daterange

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDay(s)
	require.NoError(t, err)
	return d
}

func rng(t *testing.T, from, to string) Range {
	t.Helper()
	return Range{From: day(t, from), To: day(t, to)}
}

func TestMerge(t *testing.T) {
	testCases := []struct {
		name     string
		input    []Range
		expected []Range
	}{
		{
			name:     "empty",
			input:    nil,
			expected: []Range{},
		},
		{
			name:     "single",
			input:    []Range{rng(t, "2025-09-01", "2025-09-03")},
			expected: []Range{rng(t, "2025-09-01", "2025-09-03")},
		},
		{
			name: "overlapping",
			input: []Range{
				rng(t, "2025-09-01", "2025-09-05"),
				rng(t, "2025-09-04", "2025-09-08"),
			},
			expected: []Range{rng(t, "2025-09-01", "2025-09-08")},
		},
		{
			name: "consecutive days merge",
			input: []Range{
				rng(t, "2025-09-04", "2025-09-06"),
				rng(t, "2025-09-01", "2025-09-03"),
			},
			expected: []Range{rng(t, "2025-09-01", "2025-09-06")},
		},
		{
			name: "one day gap stays split",
			input: []Range{
				rng(t, "2025-09-01", "2025-09-03"),
				rng(t, "2025-09-05", "2025-09-06"),
			},
			expected: []Range{
				rng(t, "2025-09-01", "2025-09-03"),
				rng(t, "2025-09-05", "2025-09-06"),
			},
		},
		{
			name: "nested absorbed",
			input: []Range{
				rng(t, "2025-09-01", "2025-09-10"),
				rng(t, "2025-09-03", "2025-09-04"),
			},
			expected: []Range{rng(t, "2025-09-01", "2025-09-10")},
		},
		{
			name: "unsorted mix",
			input: []Range{
				rng(t, "2025-10-01", "2025-10-01"),
				rng(t, "2025-09-20", "2025-09-22"),
				rng(t, "2025-09-23", "2025-09-23"),
				rng(t, "2025-09-01", "2025-09-02"),
			},
			expected: []Range{
				rng(t, "2025-09-01", "2025-09-02"),
				rng(t, "2025-09-20", "2025-09-23"),
				rng(t, "2025-10-01", "2025-10-01"),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Merge(tc.input))
		})
	}
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	input := []Range{
		rng(t, "2025-09-05", "2025-09-06"),
		rng(t, "2025-09-01", "2025-09-05"),
	}
	Merge(input)
	assert.Equal(t, day(t, "2025-09-05"), input[0].From)
}

func TestOverlaps(t *testing.T) {
	existingA := rng(t, "2025-09-01", "2025-09-03")
	existingB := rng(t, "2025-09-05", "2025-09-06")

	assert.False(t, Overlaps(rng(t, "2025-09-04", "2025-09-04"), existingA))
	assert.False(t, Overlaps(rng(t, "2025-09-04", "2025-09-04"), existingB))

	assert.True(t, Overlaps(rng(t, "2025-09-03", "2025-09-05"), existingA))
	assert.True(t, Overlaps(rng(t, "2025-09-03", "2025-09-05"), existingB))
	assert.True(t, Overlaps(rng(t, "2025-08-25", "2025-09-01"), existingA))
	assert.True(t, Overlaps(rng(t, "2025-09-02", "2025-09-02"), existingA))
	assert.True(t, Overlaps(rng(t, "2025-08-01", "2025-12-01"), existingB))
}

func TestOverlaps_Symmetric(t *testing.T) {
	days := []string{"2025-09-01", "2025-09-02", "2025-09-03", "2025-09-04"}
	for _, a := range days {
		for _, b := range days {
			for _, c := range days {
				for _, d := range days {
					x, y := rng(t, a, b), rng(t, c, d)
					if !x.Valid() || !y.Valid() {
						continue
					}
					want := !x.From.After(y.To) && !y.From.After(x.To)
					assert.Equal(t, want, Overlaps(x, y), "%s %s", x, y)
					assert.Equal(t, Overlaps(x, y), Overlaps(y, x))
				}
			}
		}
	}
}

func TestDay_UsesLocation(t *testing.T) {
	lisbon, err := time.LoadLocation("Europe/Lisbon")
	require.NoError(t, err)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 23:30 in Lisbon is already the next day in Tokyo.
	instant := time.Date(2025, 9, 3, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, "2025-09-03", FormatDay(Day(instant, lisbon)))
	assert.Equal(t, "2025-09-04", FormatDay(Day(instant, tokyo)))
}

func TestParseDay_Invalid(t *testing.T) {
	_, err := ParseDay("03/09/2025")
	assert.Error(t, err)
}
