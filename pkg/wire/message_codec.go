package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pasaulais/sparkgo/pkg/process"
)

// blockKind is the wire kind for a Block message, which is not one of the
// four process.Kind values: a Block carries raw transfer payload rather
// than a Command/Event/Request/Response tuple, so it gets its own envelope
// shape instead of being shoehorned into Params.
const blockKind = "Block"

// Block is a single chunk of transfer payload, identified by the transfer
// it belongs to and its position within that transfer.
type Block struct {
	TransferID int64
	BlockID    int64
	Data       []byte
}

// envelope is the SPARKv1 on-the-wire representation of one typed message.
// The spec treats the post-negotiation codec as opaque; JSON is this
// module's concrete choice of "some textual typed-message codec".
type envelope struct {
	Kind       string        `json:"kind"`
	Tag        string        `json:"tag,omitempty"`
	TransID    int64         `json:"trans_id,omitempty"`
	Params     []interface{} `json:"params,omitempty"`
	TransferID int64         `json:"transfer_id,omitempty"`
	BlockID    int64         `json:"block_id,omitempty"`
	BlockData  []byte        `json:"block_data,omitempty"`
}

// WriteMessage encodes and frames a process.Message: a Request, Response,
// Notification, Command, or Event exchanged over an already-negotiated
// connection.
func WriteMessage(w io.Writer, m process.Message) error {
	env := envelope{
		Kind:    string(m.Kind),
		Tag:     m.Tag,
		TransID: m.TransID,
		Params:  m.Params,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("wire: encoding message: %w", err)
	}
	return WriteFrame(w, string(data))
}

// WriteBlock encodes and frames a Block message.
func WriteBlock(w io.Writer, b Block) error {
	env := envelope{
		Kind:       blockKind,
		TransferID: b.TransferID,
		BlockID:    b.BlockID,
		BlockData:  b.Data,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("wire: encoding block: %w", err)
	}
	return WriteFrame(w, string(data))
}

// ReadTyped reads one frame and decodes it into either a process.Message or
// a Block, depending on its wire kind. Exactly one of the two return values
// is non-zero.
func ReadTyped(r *bufio.Reader) (process.Message, *Block, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return process.Message{}, nil, err
	}

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return process.Message{}, nil, fmt.Errorf("wire: decoding message: %w", err)
	}

	if env.Kind == blockKind {
		return process.Message{}, &Block{
			TransferID: env.TransferID,
			BlockID:    env.BlockID,
			Data:       env.BlockData,
		}, nil
	}

	m := process.Message{
		Kind:    process.Kind(env.Kind),
		Tag:     env.Tag,
		Params:  env.Params,
		TransID: env.TransID,
	}
	return m, nil, nil
}
