package ring

import (
	"math"
)

func AverageFloat64(items []float64) float64 {
	count := len(items)
	if count == 0 {
		return 0
	}
	sum := 0.0

	for _, v := range items {
		sum = sum + v
	}
	return sum / float64(count)
}

func MaxFloat64(items []float64) float64 {
	if len(items) == 0 {
		return 0
	}
	max := items[0]
	for _, v := range items {
		if v > max {
			max = v
		}
	}
	return max
}

func MinFloat64(items []float64) float64 {
	if len(items) == 0 {
		return 0
	}
	min := items[0]
	for _, v := range items {
		if v < min {
			min = v
		}
	}
	return min
}

// StandardDeviationFloat64
func StandardDeviationFloat64(items []float64, calculatedAvg ...float64) float64 {
	n := len(items)
	if n == 0 {
		return 0
	}
	var average float64
	if len(calculatedAvg) > 0 {
		average = calculatedAvg[0]
	} else {
		average = AverageFloat64(items)
	}
	vn := 0.0

	for _, v := range items {
		vn += math.Pow(v-average, 2)
	}

	return math.Sqrt(vn / float64(n))
}

type Summary struct {
	Count int
	Avg   float64
	Std   float64
	Min   float64
	Max   float64
	Last  float64
}

// Summarize expects items oldest first.
func Summarize(items []float64) Summary {
	if len(items) == 0 {
		return Summary{}
	}
	avg := AverageFloat64(items)
	return Summary{
		Count: len(items),
		Avg:   avg,
		Std:   StandardDeviationFloat64(items, avg),
		Min:   MinFloat64(items),
		Max:   MaxFloat64(items),
		Last:  items[len(items)-1],
	}
}
