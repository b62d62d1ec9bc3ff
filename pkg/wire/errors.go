package wire

import "errors"

// ErrNegotiation is returned for any failure during protocol negotiation:
// an unsupported protocol name, an out-of-sequence token, a "not-supported"
// reply from the peer, or an unexpected end of stream mid-handshake.
var ErrNegotiation = errors.New("wire: protocol negotiation failed")

// ErrUnsupportedProtocol names the protocol version this codec does not
// implement. The negotiator does not return it: an unsupported protocol
// during the handshake is reported as ErrNegotiation.
var ErrUnsupportedProtocol = errors.New("wire: unsupported protocol version")
