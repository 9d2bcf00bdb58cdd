package strategy

import (
	"time"

	"signalRelay/internal/domain"
)

// Derive classifies a candle by comparing its close to its open.
// A tie returns previous unchanged. NaN inputs compare false both ways and
// therefore also carry previous forward.
func Derive(open, close float64, previous domain.Signal) domain.Signal {
	switch {
	case close > open:
		return domain.Rising
	case close < open:
		return domain.Falling
	default:
		return previous
	}
}

// Tracker holds the carried-over signal for one series or one feed connection.
// The zero value starts from domain.DefaultSignal. Not safe for concurrent use.
type Tracker struct {
	previous domain.Signal
}

// NewTracker returns a tracker seeded with domain.DefaultSignal.
func NewTracker() *Tracker {
	return &Tracker{previous: domain.DefaultSignal}
}

// Next derives the signal for c and carries it over to the following call.
func (t *Tracker) Next(c domain.Candle) domain.Signal {
	s := Derive(c.Open, c.Close, t.Previous())
	t.previous = s
	return s
}

// Previous returns the value a tie would currently resolve to.
func (t *Tracker) Previous() domain.Signal {
	if t.previous == "" {
		return domain.DefaultSignal
	}
	return t.previous
}

// Reset drops the carried-over value back to domain.DefaultSignal.
func (t *Tracker) Reset() {
	t.previous = domain.DefaultSignal
}

// NewEvent builds the relayed event for a classified candle. displayTime is the
// human-facing time of the event: live frames use the bucket close, history
// rows use the bucket open.
func NewEvent(c domain.Candle, s domain.Signal, displayTime time.Time) domain.DerivedEvent {
	return domain.DerivedEvent{
		Time:      displayTime,
		Timestamp: c.CloseTime,
		Symbol:    c.Symbol,
		Interval:  c.Interval,
		Price:     c.Close,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Volume:    c.Volume,
		Signal:    s,
		IsUp:      c.Close > c.Open,
	}
}

// DeriveSeries classifies historical candles in order, starting from
// domain.DefaultSignal. Candles that are still forming are skipped and do not
// affect the carry-over. Nil entries are ignored.
func DeriveSeries(candles []*domain.Candle) []domain.DerivedEvent {
	events := make([]domain.DerivedEvent, 0, len(candles))
	tracker := NewTracker()
	for _, c := range candles {
		if c == nil || !c.IsClosed {
			continue
		}
		s := tracker.Next(*c)
		events = append(events, NewEvent(*c, s, c.OpenedAt()))
	}
	return events
}
