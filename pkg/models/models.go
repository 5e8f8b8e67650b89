package models

import (
	"time"
)

// Candle представляет свечу (бар) одного инструмента
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// SortedUnique проверяет, что время открытия свечей строго возрастает
func SortedUnique(candles []*Candle) bool {
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return false
		}
	}
	return true
}
