package messagehub

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AntonStoeckl/realtime-docsync-go/messagehub/transport"
)

// DefaultSendDelay is the debounce window used when neither the envelope nor the hub sets one.
const DefaultSendDelay = 1000 * time.Millisecond

// Event is a value that can travel over the bus. The name selects the decoder on the receiving side.
type Event interface {
	EventName() string
}

// Options route one queued value. Values with equal options and event name share a batch.
type Options struct {
	ExceptSender bool
	Recipients   []string
	SendDelay    time.Duration
}

// key renders the options canonically. Recipient order does not matter.
func (o Options) key() string {
	recipients := append([]string(nil), o.Recipients...)
	sort.Strings(recipients)

	var b strings.Builder
	b.WriteString(strconv.FormatBool(o.ExceptSender))
	b.WriteByte('|')
	b.WriteString(strings.Join(recipients, ","))
	b.WriteByte('|')
	b.WriteString(o.SendDelay.String())

	return b.String()
}

func (o Options) broadcastOptions() transport.BroadcastOptions {
	return transport.BroadcastOptions{ExceptSender: o.ExceptSender}
}

// Envelope is a group of values queued together with shared recipients and send delay.
type Envelope struct {
	Recipients []string
	Values     []Event
	SendDelay  time.Duration
}

// NewEnvelope wraps values with default routing.
func NewEnvelope(values ...Event) Envelope {
	return Envelope{Values: values}
}
