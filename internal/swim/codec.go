package swim

import "encoding/json"

// command identifies the wire-format "command" field.
type command string

const (
	cmdPing     command = "ping"
	cmdAck      command = "ack"
	cmdPingReq  command = "ping-req"
	cmdEvent    command = "event"
	cmdEventReq command = "event-req"

	// cmdStateReq/cmdState are an optional extension beyond the core wire
	// table: a full-state dump used by Engine.RequestState and tests, not
	// by the probe protocol itself. They
	// repurpose the Updates field rather than inventing a new schema.
	cmdStateReq command = "state-req"
	cmdState    command = "state"
)

// message is the wire-format JSON object. Fields not used by a given
// command are simply omitted (omitempty).
type message struct {
	Command       command  `json:"command"`
	SenderID      int      `json:"sender_id"`
	Updates       []Update `json:"updates"`
	TargetID      int      `json:"target_id,omitempty"`
	TargetAddress string   `json:"target_address,omitempty"`
	TargetPort    int      `json:"target_port,omitempty"`
	EventName     string   `json:"eventName,omitempty"`
}

// encode marshals a message to its wire representation.
func encode(m message) ([]byte, error) {
	if m.Updates == nil {
		m.Updates = []Update{}
	}
	return json.Marshal(m)
}

// decode parses a datagram into a message. A parse failure is reported as
// a *ParseError carrying the raw datagram text.
func decode(raw []byte) (message, error) {
	var m message
	if err := json.Unmarshal(raw, &m); err != nil {
		return message{}, &ParseError{Raw: string(raw), Err: err}
	}
	return m, nil
}
