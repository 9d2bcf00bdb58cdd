// Package codec renders derived events in the JSON shape shared by the HTTP
// API, the websocket push and the broker sinks.
package codec

import (
	"fmt"

	"github.com/bytedance/sonic"

	"signalRelay/internal/domain"
	"signalRelay/internal/ports"
)

// TimeLayout is the display format of an item's time field (UTC).
const TimeLayout = "2006-01-02 15:04:05"

// MessageTypeSignal tags live events pushed to consumers.
const MessageTypeSignal = "signal"

var api = sonic.ConfigStd

// Item is one signal record as consumers see it.
type Item struct {
	Time      string  `json:"time"`
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"price"`
	Result    string  `json:"result"` // "B" rising, "P" falling
	Signal    string  `json:"signal"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Volume    float64 `json:"volume"`
	IsUp      bool    `json:"is_up"`
}

// LiveItem is an Item tagged with its stream, as pushed to live consumers.
type LiveItem struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Item
}

// NewItem converts a derived event.
func NewItem(ev domain.DerivedEvent) Item {
	return Item{
		Time:      ev.Time.UTC().Format(TimeLayout),
		Timestamp: ev.Timestamp,
		Price:     ev.Price,
		Result:    ev.Signal.Code(),
		Signal:    ev.Signal.String(),
		Open:      ev.Open,
		High:      ev.High,
		Low:       ev.Low,
		Volume:    ev.Volume,
		IsUp:      ev.IsUp,
	}
}

// NewItems converts a batch, never returning nil.
func NewItems(events []domain.DerivedEvent) []Item {
	items := make([]Item, 0, len(events))
	for _, ev := range events {
		items = append(items, NewItem(ev))
	}
	return items
}

// NewLiveItem converts a live event.
func NewLiveItem(ev domain.DerivedEvent) LiveItem {
	return LiveItem{
		Type:     MessageTypeSignal,
		Symbol:   ev.Symbol,
		Interval: ev.Interval.String(),
		Item:     NewItem(ev),
	}
}

// EncodeEvent returns the live JSON encoding of ev.
func EncodeEvent(ev domain.DerivedEvent) ([]byte, error) {
	return Marshal(NewLiveItem(ev))
}

// Marshal encodes v as JSON.
func Marshal(v interface{}) ([]byte, error) {
	data, err := api.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal decodes JSON into v, wrapping failures in ports.ErrParse.
func Unmarshal(data []byte, v interface{}) error {
	if err := api.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrParse, err)
	}
	return nil
}
