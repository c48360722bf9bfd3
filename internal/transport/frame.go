package transport

import (
	"github.com/fxamacker/cbor/v2"
)

// Broker frame actions.
const (
	actionSub = "sub"
	actionPub = "pub"
	actionMsg = "msg"
)

// frame is one CBOR-encoded websocket message between a client and the
// Broker. Clients send sub/pub frames; the broker sends msg frames.
type frame struct {
	Action    string `cbor:"action"`
	Channel   string `cbor:"channel"`
	Topic     string `cbor:"topic,omitempty"`
	Target    string `cbor:"target,omitempty"`
	Source    string `cbor:"source,omitempty"`
	Data      []byte `cbor:"data,omitempty"`
	Timestamp int64  `cbor:"ts,omitempty"`
}

var frameEncMode cbor.EncMode

func init() {
	var err error
	frameEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("transport: CBOR encoder initialization failed: " + err.Error())
	}
}

func marshalFrame(f frame) ([]byte, error) {
	return frameEncMode.Marshal(f)
}

func unmarshalFrame(data []byte) (frame, error) {
	var f frame
	err := cbor.Unmarshal(data, &f)
	return f, err
}

func (f frame) message() Message {
	return Message{Channel: f.Channel, Topic: f.Topic, Target: f.Target, Payload: f.Data}
}
