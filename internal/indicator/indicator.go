// Package indicator computes technical indicators over a close-price series.
//
// Every function returns a slice the same length as its input. Positions that
// fall inside an indicator's warm-up window hold NaN, mirroring how pandas'
// rolling and ewm operators behave, so index i of any output lines up with
// bar i of the input.
package indicator

import "math"

// NaNs returns a slice of n NaN values.
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average over a window of n values. A window that
// contains a NaN yields NaN.
func SMA(x []float64, n int) []float64 {
	out := NaNs(len(x))
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(x); i++ {
		win := x[i-n+1 : i+1]
		if hasNaN(win) {
			continue
		}
		sum := 0.0
		for _, v := range win {
			sum += v
		}
		out[i] = sum / float64(n)
	}
	return out
}

// RollingStd is the sample standard deviation (ddof=1) over a window of n.
func RollingStd(x []float64, n int) []float64 {
	out := NaNs(len(x))
	if n <= 1 {
		return out
	}
	for i := n - 1; i < len(x); i++ {
		win := x[i-n+1 : i+1]
		if hasNaN(win) {
			continue
		}
		mean := 0.0
		for _, v := range win {
			mean += v
		}
		mean /= float64(n)
		ss := 0.0
		for _, v := range win {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(n-1))
	}
	return out
}

// EMA is the exponential moving average with alpha = 2/(span+1), seeded with
// the first non-NaN input (pandas ewm(span, adjust=False)).
func EMA(x []float64, span int) []float64 {
	out := NaNs(len(x))
	if span <= 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	prev := math.NaN()
	for i, v := range x {
		switch {
		case math.IsNaN(v):
			out[i] = prev
		case math.IsNaN(prev):
			prev = v
			out[i] = v
		default:
			prev = alpha*v + (1-alpha)*prev
			out[i] = prev
		}
	}
	return out
}

// RSI is the relative strength index using simple rolling means of gains and
// losses over n periods (not Wilder smoothing).
func RSI(x []float64, n int) []float64 {
	out := NaNs(len(x))
	if n <= 0 || len(x) < 2 {
		return out
	}
	// The first difference is undefined; like pandas' where(delta > 0, 0)
	// it counts as neither gain nor loss.
	gains := make([]float64, len(x))
	losses := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		d := x[i] - x[i-1]
		gains[i] = math.Max(d, 0)
		losses[i] = math.Max(-d, 0)
	}
	avgGain := SMA(gains, n)
	avgLoss := SMA(losses, n)
	for i := range x {
		g, l := avgGain[i], avgLoss[i]
		switch {
		case math.IsNaN(g) || math.IsNaN(l):
		case l == 0 && g == 0:
		case l == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+g/l)
		}
	}
	return out
}

// MACD returns the MACD line (fast EMA minus slow EMA) and its signal line.
func MACD(x []float64, fast, slow, signal int) (macd, sig []float64) {
	f := EMA(x, fast)
	s := EMA(x, slow)
	macd = make([]float64, len(x))
	for i := range x {
		macd[i] = f[i] - s[i]
	}
	return macd, EMA(macd, signal)
}

// Bollinger returns the middle, upper and lower bands for a window of n and a
// width of k standard deviations.
func Bollinger(x []float64, n int, k float64) (middle, upper, lower []float64) {
	middle = SMA(x, n)
	std := RollingStd(x, n)
	upper = make([]float64, len(x))
	lower = make([]float64, len(x))
	for i := range x {
		upper[i] = middle[i] + k*std[i]
		lower[i] = middle[i] - k*std[i]
	}
	return middle, upper, lower
}

// Crossover reports whether a crossed above b at index i: a was strictly
// below b on the previous value and is strictly above it now.
func Crossover(a, b []float64, i int) bool {
	if i < 1 || i >= len(a) || i >= len(b) {
		return false
	}
	return a[i-1] < b[i-1] && a[i] > b[i]
}

// Last returns x[i], or NaN when i is out of range.
func Last(x []float64, i int) float64 {
	if i < 0 || i >= len(x) {
		return math.NaN()
	}
	return x[i]
}

func hasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
