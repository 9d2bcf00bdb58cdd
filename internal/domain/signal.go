package domain

import "time"

// Signal is the binary classification of a closed candle.
type Signal string

const (
	Rising  Signal = "RISING"
	Falling Signal = "FALLING"
)

// DefaultSignal seeds the tie carry-over at the start of every series and every
// feed connection.
const DefaultSignal = Falling

// Code returns the board code used by the presentation layer:
// "B" (banker) for rising candles, "P" (player) for falling ones.
func (s Signal) Code() string {
	if s == Rising {
		return "B"
	}
	return "P"
}

func (s Signal) String() string {
	return string(s)
}

// DerivedEvent is produced once per closed candle and relayed to subscribers.
type DerivedEvent struct {
	Time      time.Time // Display time of the candle
	Timestamp int64     // Close time, ms epoch
	Symbol    string
	Interval  Interval
	Price     float64 // Close price
	Open      float64
	High      float64
	Low       float64
	Volume    float64
	Signal    Signal
	IsUp      bool // close > open, strictly; ties are never "up"
}
