package indicator

import "math"

// SMA computes a simple moving average over the trailing period.
// Warm-up passthrough: indices before period-1 return the raw input value.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i < period-1 {
			out[i] = v
			continue
		}
		if i >= period {
			sum -= values[i-period]
		}
		out[i] = sum / float64(period)
	}
	return out
}

// EMA computes an exponential moving average with alpha = 2/(period+1),
// seeded with the first input value.
func EMA(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI computes the Relative Strength Index with Wilder smoothing.
// Returns 100 when the average loss is exactly 0. The first period entries
// are backfilled with the first computed value, not true historical RSI.
func RSI(closes []float64, period int) []float64 {
	if len(closes) < period+1 {
		out := make([]float64, len(closes))
		for i := range out {
			out[i] = 50.0
		}
		return out
	}

	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	computed := make([]float64, 0, len(gains)-period+1)
	for i := period; i <= len(gains); i++ {
		if avgLoss == 0 {
			computed = append(computed, 100.0)
		} else {
			rs := avgGain / avgLoss
			computed = append(computed, 100.0-(100.0/(1.0+rs)))
		}
		if i < len(gains) {
			avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		}
	}

	out := make([]float64, len(closes))
	pad := len(closes) - len(computed)
	for i := 0; i < pad; i++ {
		out[i] = computed[0]
	}
	copy(out[pad:], computed)
	return out
}

// StochK computes the stochastic %K oscillator. Returns 50.0 during warm-up
// or when the rolling high-low range is zero.
func StochK(highs, lows, closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i < period-1 {
			out[i] = 50.0
			continue
		}
		hi, lo := windowHiLo(highs, lows, i, period)
		if hi == lo {
			out[i] = 50.0
		} else {
			out[i] = (closes[i] - lo) / (hi - lo) * 100
		}
	}
	return out
}

// WilliamsR computes Williams %R, the %K mirror scaled to [-100, 0].
// Returns -50.0 under the same degenerate conditions as StochK.
func WilliamsR(highs, lows, closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i < period-1 {
			out[i] = -50.0
			continue
		}
		hi, lo := windowHiLo(highs, lows, i, period)
		if hi == lo {
			out[i] = -50.0
		} else {
			out[i] = (hi - closes[i]) / (hi - lo) * -100
		}
	}
	return out
}

// ROC computes the rate of change in percent over the trailing period.
func ROC(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i < period || closes[i-period] == 0 {
			continue
		}
		out[i] = (closes[i] - closes[i-period]) / closes[i-period] * 100
	}
	return out
}

// Momentum computes the absolute price difference over the trailing period.
func Momentum(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i < period {
			continue
		}
		out[i] = closes[i] - closes[i-period]
	}
	return out
}

// BollingerBands computes upper and lower bands as mean ± k·stddev over the
// trailing window, using population variance (divisor = period). Warm-up
// rows widen by a flat ±k around the raw close.
func BollingerBands(closes []float64, period int, k float64) (upper, lower []float64) {
	sma := SMA(closes, period)
	upper = make([]float64, len(closes))
	lower = make([]float64, len(closes))
	for i := range closes {
		if i < period-1 {
			upper[i] = closes[i] + k
			lower[i] = closes[i] - k
			continue
		}
		mean := sma[i]
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - mean
			variance += d * d
		}
		variance /= float64(period)
		std := math.Sqrt(variance)
		upper[i] = mean + k*std
		lower[i] = mean - k*std
	}
	return upper, lower
}

// ATR computes the Average True Range as a Wilder-style EMA (alpha = 1/period)
// of the true range. The first true range value is duplicated at index 0.
func ATR(highs, lows, closes []float64, period int) []float64 {
	if len(closes) < 2 {
		return make([]float64, len(closes))
	}

	alpha := 1.0 / float64(period)
	out := make([]float64, len(closes))
	atr := 0.0
	for i := 1; i < len(closes); i++ {
		tr := highs[i] - lows[i]
		if v := math.Abs(highs[i] - closes[i-1]); v > tr {
			tr = v
		}
		if v := math.Abs(lows[i] - closes[i-1]); v > tr {
			tr = v
		}
		if i == 1 {
			atr = tr
		} else {
			atr = alpha*tr + (1-alpha)*atr
		}
		out[i] = atr
	}
	out[0] = out[1]
	return out
}

func windowHiLo(highs, lows []float64, i, period int) (hi, lo float64) {
	hi = highs[i-period+1]
	lo = lows[i-period+1]
	for j := i - period + 2; j <= i; j++ {
		if highs[j] > hi {
			hi = highs[j]
		}
		if lows[j] < lo {
			lo = lows[j]
		}
	}
	return hi, lo
}
