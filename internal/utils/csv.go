package utils

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"signalRelay/internal/domain"
)

var signalHeader = []string{"time", "timestamp", "symbol", "interval", "open", "high", "low", "close", "volume", "signal", "result", "is_up"}

// WriteSignalsToCSV writes events to filename, one row per event.
func WriteSignalsToCSV(events []domain.DerivedEvent, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteSignalsCSV(file, events)
}

// WriteSignalsCSV writes a header and one row per event to w.
func WriteSignalsCSV(w io.Writer, events []domain.DerivedEvent) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(signalHeader); err != nil {
		return err
	}
	for _, ev := range events {
		err := writer.Write([]string{
			ev.Time.UTC().Format(time.RFC3339),
			strconv.FormatInt(ev.Timestamp, 10),
			ev.Symbol,
			ev.Interval.String(),
			strconv.FormatFloat(ev.Open, 'f', -1, 64),
			strconv.FormatFloat(ev.High, 'f', -1, 64),
			strconv.FormatFloat(ev.Low, 'f', -1, 64),
			strconv.FormatFloat(ev.Price, 'f', -1, 64),
			strconv.FormatFloat(ev.Volume, 'f', -1, 64),
			ev.Signal.String(),
			ev.Signal.Code(),
			strconv.FormatBool(ev.IsUp),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
