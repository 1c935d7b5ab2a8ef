package rates

import (
	"sort"

	"ratewatch/internal/domain"
)

// sortedCodes returns the currency codes in canonical (lexicographic) order.
// Go map iteration is randomized, so every report that walks the mapping goes
// through this to keep output stable.
func sortedCodes(rateValues map[string]float64) []string {
	codes := make([]string, 0, len(rateValues))
	for code := range rateValues {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Aggregate computes mean, min, max, and median over the rate values.
// Median is the value at sorted index floor(n/2): for even n this is the
// upper-middle value, not the two-middle average.
func Aggregate(rateValues map[string]float64) domain.RateStats {
	values := make([]float64, 0, len(rateValues))
	for _, v := range rateValues {
		values = append(values, v)
	}
	sort.Float64s(values)

	n := len(values)
	if n == 0 {
		return domain.RateStats{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return domain.RateStats{
		Average: sum / float64(n),
		Min:     values[0],
		Max:     values[n-1],
		Median:  values[n/2],
		Count:   n,
	}
}

// SearchRange returns the currency codes whose rate lies in [min, max],
// bounds inclusive, in canonical code order.
func SearchRange(rateValues map[string]float64, min, max float64) []string {
	matched := make([]string, 0)
	for _, code := range sortedCodes(rateValues) {
		rate := rateValues[code]
		if rate >= min && rate <= max {
			matched = append(matched, code)
		}
	}
	return matched
}
