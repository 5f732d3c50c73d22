package transport

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// BroadcastChannel is the single channel all event frames travel on.
const BroadcastChannel = "v1:broadcast_message"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BroadcastOptions travel with every frame.
type BroadcastOptions struct {
	ExceptSender bool `json:"except_sender"`
}

// Frame is one batch of values for one event name. Values are JSON documents serialized to strings.
type Frame struct {
	EventName string
	Options   BroadcastOptions
	Values    []string
}

// EncodeFrame renders the frame as
// ["v1:broadcast_message", event_name, {"except_sender": b}, count, value_0, ..., value_n].
func EncodeFrame(frame Frame) ([]byte, error) {
	payload := make([]any, 0, len(frame.Values)+4)
	payload = append(payload, BroadcastChannel, frame.EventName, frame.Options, len(frame.Values))

	for _, value := range frame.Values {
		payload = append(payload, value)
	}

	return json.Marshal(payload)
}

// DecodeFrame parses a frame and checks that the declared count matches the values carried.
func DecodeFrame(data []byte) (Frame, error) {
	var parts []jsoniter.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Frame{}, errors.Join(ErrMalformedFrame, err)
	}

	if len(parts) < 4 {
		return Frame{}, errors.Join(ErrMalformedFrame, fmt.Errorf("frame has %d parts", len(parts)))
	}

	var channel string
	if err := json.Unmarshal(parts[0], &channel); err != nil {
		return Frame{}, errors.Join(ErrMalformedFrame, err)
	}

	if channel != BroadcastChannel {
		return Frame{}, errors.Join(ErrUnknownChannel, fmt.Errorf("channel %q", channel))
	}

	frame := Frame{}
	if err := json.Unmarshal(parts[1], &frame.EventName); err != nil {
		return Frame{}, errors.Join(ErrMalformedFrame, err)
	}

	if err := json.Unmarshal(parts[2], &frame.Options); err != nil {
		return Frame{}, errors.Join(ErrMalformedFrame, err)
	}

	var count int
	if err := json.Unmarshal(parts[3], &count); err != nil {
		return Frame{}, errors.Join(ErrMalformedFrame, err)
	}

	if count != len(parts)-4 {
		return Frame{}, errors.Join(ErrMalformedFrame, fmt.Errorf("declared %d values, carried %d", count, len(parts)-4))
	}

	frame.Values = make([]string, 0, count)
	for _, raw := range parts[4:] {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return Frame{}, errors.Join(ErrMalformedFrame, err)
		}

		frame.Values = append(frame.Values, value)
	}

	return frame, nil
}
