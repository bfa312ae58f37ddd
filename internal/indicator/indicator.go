// Package indicator computes technical indicator series over candle windows.
//
// Unlike streaming designs, every call recomputes all series from the full
// input window. Each output series is index-aligned 1:1 with the input bars:
// indices without enough trailing history get a documented neutral placeholder
// (the raw close, 50, -50, or 0) instead of NaN, so downstream feature
// extraction never has to handle missing values.
package indicator

import (
	"fmt"
	"log"

	"trading-botv1/internal/model"
)

// MinBars is the minimum candle count required to compute indicators.
const MinBars = 20

// Calculate computes the full indicator set for the given bars, oldest first.
// Returns an empty map when fewer than MinBars bars are provided.
func Calculate(bars []model.Candle) map[string][]float64 {
	if len(bars) < MinBars {
		log.Printf("[indicator] not enough data: %d bars (need %d)", len(bars), MinBars)
		return map[string][]float64{}
	}

	n := len(bars)
	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		opens[i] = b.Open
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	out := make(map[string][]float64, 96)

	// Raw price series
	out["open"] = opens
	out["high"] = highs
	out["low"] = lows
	out["close"] = closes
	out["volume"] = volumes

	// Shifted and derived prices
	out["Prev Close"] = shift(closes)
	out["Prev High"] = shift(highs)
	out["Prev Low"] = shift(lows)
	tp := make([]float64, n)
	mp := make([]float64, n)
	ohlc4 := make([]float64, n)
	for i := 0; i < n; i++ {
		tp[i] = (highs[i] + lows[i] + closes[i]) / 3
		mp[i] = (highs[i] + lows[i]) / 2
		ohlc4[i] = (opens[i] + highs[i] + lows[i] + closes[i]) / 4
	}
	out["Typical Price (TP)"] = tp
	out["Median Price (MP)"] = mp
	out["HLC3"] = tp
	out["OHLC4"] = ohlc4

	for _, p := range []int{5, 9, 10, 14, 20, 21, 26, 50, 100, 200} {
		out[name("SMA", p)] = SMA(closes, p)
	}
	for _, p := range []int{12, 26, 50, 200} {
		out[name("EMA", p)] = EMA(closes, p)
	}
	for _, p := range []int{14, 21} {
		out[name("RSI", p)] = RSI(closes, p)
	}
	for _, p := range []int{5, 9, 14} {
		k := StochK(highs, lows, closes, p)
		out[name("Stoch_%K", p)] = k
		out[name("Stoch_%D", p)] = SMA(k, 3)
	}
	for _, p := range []int{7, 14, 20} {
		out[name("Williams_%R", p)] = WilliamsR(highs, lows, closes, p)
	}
	for _, p := range []int{1, 2, 5, 10, 20} {
		out[name("ROC", p)] = ROC(closes, p)
	}
	for _, p := range []int{10, 14, 20} {
		out[name("Momentum", p)] = Momentum(closes, p)
	}

	// MACD(12,26) with 9-period signal line
	ema12 := out["EMA_12"]
	ema26 := out["EMA_26"]
	macd := make([]float64, n)
	for i := 0; i < n; i++ {
		macd[i] = ema12[i] - ema26[i]
	}
	sig := EMA(macd, 9)
	hist := make([]float64, n)
	for i := 0; i < n; i++ {
		hist[i] = macd[i] - sig[i]
	}
	out["MACD"] = macd
	out["MACD_Signal"] = sig
	out["MACD_Histogram"] = hist

	// Bollinger(20, 2)
	sma20 := out["SMA_20"]
	upper, lower := BollingerBands(closes, 20, 2)
	width := make([]float64, n)
	pctB := make([]float64, n)
	for i := 0; i < n; i++ {
		if sma20[i] != 0 {
			width[i] = (upper[i] - lower[i]) / sma20[i]
		}
		if upper[i] != lower[i] {
			pctB[i] = (closes[i] - lower[i]) / (upper[i] - lower[i])
		} else {
			pctB[i] = 0.5
		}
	}
	out["Bollinger_Upper"] = upper
	out["Bollinger_Lower"] = lower
	out["Bollinger_Middle"] = sma20
	out["Bollinger_Width"] = width
	out["Bollinger_%B"] = pctB

	out["ATR_14"] = ATR(highs, lows, closes, 14)

	// Volume
	volSMA := SMA(volumes, 20)
	volRatio := make([]float64, n)
	for i := 0; i < n; i++ {
		if volSMA[i] != 0 {
			volRatio[i] = volumes[i] / volSMA[i]
		} else {
			volRatio[i] = 1
		}
	}
	out["Volume_SMA_20"] = volSMA
	out["Volume_Ratio"] = volRatio

	// Price change series
	change := make([]float64, n)
	changePct := make([]float64, n)
	hlPct := make([]float64, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			change[i] = closes[i] - closes[i-1]
			if closes[i-1] != 0 {
				changePct[i] = change[i] / closes[i-1] * 100
			}
		}
		if lows[i] != 0 {
			hlPct[i] = (highs[i] - lows[i]) / lows[i] * 100
		}
	}
	out["Price_Change"] = change
	out["Price_Change_Pct"] = changePct
	out["High_Low_Pct"] = hlPct

	return out
}

// Latest extracts the last value of every series, the feature vector the
// signal model consumes.
func Latest(series map[string][]float64) map[string]float64 {
	features := make(map[string]float64, len(series))
	for k, v := range series {
		if len(v) > 0 {
			features[k] = v[len(v)-1]
		}
	}
	return features
}

// MustKeep lists the indicator features that always survive feature
// selection, regardless of the random remainder draw.
func MustKeep() []string {
	return []string{
		"close",
		"RSI_14",
		"MACD",
		"MACD_Histogram",
		"Bollinger_%B",
		"ATR_14",
		"Volume_Ratio",
		"Price_Change_Pct",
	}
}

// shift returns the series moved forward one index with a 0 at the head.
func shift(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out[1:], values[:len(values)-1])
	return out
}

func name(prefix string, period int) string {
	return fmt.Sprintf("%s_%d", prefix, period)
}
