package domain

import "time"

// Candle represents a single OHLCV bucket, either parsed from a stream frame
// or from one historical record. Times are milliseconds since the epoch.
type Candle struct {
	OpenTime  int64    // Start of the bucket
	CloseTime int64    // End of the bucket
	Symbol    string   // Instrument, upper case
	Interval  Interval // Bucket width
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	IsClosed  bool // Whether the bucket has fully elapsed
}

// OpenedAt returns the bucket start as a time.Time.
func (c Candle) OpenedAt() time.Time {
	return time.UnixMilli(c.OpenTime)
}

// ClosedAt returns the bucket end as a time.Time.
func (c Candle) ClosedAt() time.Time {
	return time.UnixMilli(c.CloseTime)
}
