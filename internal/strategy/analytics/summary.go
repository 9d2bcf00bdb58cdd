package analytics

import "signalRelay/internal/domain"

// Summary describes a derived signal series the way the board displays it.
type Summary struct {
	Total          int           `json:"total"`
	Rising         int           `json:"rising"`
	Falling        int           `json:"falling"`
	Ties           int           `json:"ties"` // open == close, signal carried over
	RisingRatio    float64       `json:"rising_ratio"`
	LongestRising  int           `json:"longest_rising"`
	LongestFalling int           `json:"longest_falling"`
	CurrentSignal  domain.Signal `json:"current_signal,omitempty"`
	CurrentStreak  int           `json:"current_streak"`
}

// Summarize counts signals and runs over events in order.
func Summarize(events []domain.DerivedEvent) Summary {
	var s Summary
	s.Total = len(events)
	if s.Total == 0 {
		return s
	}

	var run int
	var prev domain.Signal
	for _, e := range events {
		switch e.Signal {
		case domain.Rising:
			s.Rising++
		case domain.Falling:
			s.Falling++
		}
		if e.Price == e.Open {
			s.Ties++
		}

		if e.Signal == prev {
			run++
		} else {
			run = 1
			prev = e.Signal
		}
		switch e.Signal {
		case domain.Rising:
			if run > s.LongestRising {
				s.LongestRising = run
			}
		case domain.Falling:
			if run > s.LongestFalling {
				s.LongestFalling = run
			}
		}
	}

	s.RisingRatio = float64(s.Rising) / float64(s.Total)
	s.CurrentSignal = prev
	s.CurrentStreak = run
	return s
}
