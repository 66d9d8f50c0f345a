package quicinitial

// Direction distinguishes the two endpoints of a flow for the purpose of
// tracking which connection ids each side has advertised.
type Direction uint8

const (
	DirectionForward Direction = iota
	DirectionReverse
)

// Context is the per-flow QUIC processing state described in spec.md
// section 3's "QUIC processing state": carried in the QUIC process
// plugin's context region of a flow record, and consulted by every
// subsequent Initial packet observed on the same flow before the plugin
// is finalized (spec.md section 4.5.6, "Cross-packet state").
type Context struct {
	// InitialDCID is the first client destination connection id
	// observed for this flow; nil until the first Initial packet is
	// seen. Used as the key-derivation input for every later Initial
	// packet belonging to the same connection.
	InitialDCID []byte

	// RetryCount counts Retry packets observed, since a Retry changes
	// which DCID subsequent Initial packets will use (the server may
	// request a retry with a new token, after which the client sends a
	// fresh Initial with the server's chosen SCID as its new DCID).
	RetryCount int

	// PendingCIDs holds each direction's most recently observed source
	// connection id, pending confirmation of which endpoint initiated
	// the connection.
	PendingCIDs [2][]byte

	// ServerKnown reports whether this flow's server-side endpoint has
	// been positively identified (by having decrypted at least one
	// packet in the server->client direction).
	ServerKnown bool
	// ServerIsDestination reports whether the server is the flow's
	// destination endpoint (true) or its source endpoint (false); only
	// meaningful once ServerKnown is true.
	ServerIsDestination bool
}

// ObserveInitial records dcid as this flow's keying DCID if none has
// been recorded yet (spec.md's "first client DCID observed per flow is
// stored").
func (c *Context) ObserveInitial(dcid []byte) {
	if c.InitialDCID == nil {
		c.InitialDCID = append([]byte(nil), dcid...)
	}
}

// ObserveSCID records dir's most recently seen source connection id.
func (c *Context) ObserveSCID(dir Direction, scid []byte) {
	c.PendingCIDs[dir] = append([]byte(nil), scid...)
}

// MarkServer records which directional endpoint is the server, once
// determined (e.g. by successfully decrypting a server Initial with the
// server secrets).
func (c *Context) MarkServer(isDestination bool) {
	c.ServerKnown = true
	c.ServerIsDestination = isDestination
}

// RecordRetry bumps the retry counter, called when a Retry packet is
// observed on this flow.
func (c *Context) RecordRetry() {
	c.RetryCount++
}
