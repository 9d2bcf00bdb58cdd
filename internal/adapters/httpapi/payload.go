package httpapi

import (
	"signalRelay/internal/adapters/codec"
	"signalRelay/internal/app"
	"signalRelay/internal/relay"
	"signalRelay/internal/strategy/analytics"
)

type signalsResponse struct {
	Success  bool              `json:"success"`
	Symbol   string            `json:"symbol,omitempty"`
	Interval string            `json:"interval,omitempty"`
	Data     []codec.Item      `json:"data"`
	Count    int               `json:"count"`
	Stats    analytics.Summary `json:"stats"`
	Error    string            `json:"error,omitempty"`
}

func newSignalsResponse(res app.BoardResult) signalsResponse {
	out := signalsResponse{
		Success: res.Success,
		Data:    codec.NewItems(res.Events),
		Count:   res.Count,
		Stats:   res.Stats,
	}
	if res.Stream.Symbol != "" {
		out.Symbol = res.Stream.Symbol
		out.Interval = res.Stream.Interval.String()
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

type streamStatus struct {
	Symbol      string `json:"symbol"`
	Interval    string `json:"interval"`
	Stream      string `json:"stream"`
	Generation  uint64 `json:"generation"`
	Subscribers int    `json:"subscribers"`
	FeedState   string `json:"feed_state"`
	Running     bool   `json:"running"`
}

func newStreamStatus(st relay.Status) streamStatus {
	return streamStatus{
		Symbol:      st.Stream.Symbol,
		Interval:    st.Stream.Interval.String(),
		Stream:      st.Stream.StreamName(),
		Generation:  st.Generation,
		Subscribers: st.Subscribers,
		FeedState:   st.FeedState.String(),
		Running:     st.Running,
	}
}

type reconfigureRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

type reconfigureResponse struct {
	Success  bool   `json:"success"`
	Symbol   string `json:"symbol,omitempty"`
	Interval string `json:"interval,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Websocket control messages.

const (
	actionReconfigure       = "reconfigure"
	messageTypeReconfigured = "reconfigured"
	messageTypeError        = "error"
)

type clientMessage struct {
	Action   string `json:"action"`
	Symbol   string `json:"symbol,omitempty"`
	Interval string `json:"interval,omitempty"`
}

type controlMessage struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol,omitempty"`
	Interval string `json:"interval,omitempty"`
	Message  string `json:"message,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
