package gateway

import "github.com/brocaar/chirpstack-api/go/v3/gw"

var backend Gateway

// Backend returns the gateway backend.
func Backend() Gateway {
	return backend
}

// SetBackend sets the given gateway backend.
func SetBackend(b Gateway) {
	backend = b
}

// Gateway is the interface of a gateway backend.
// The node side of the backend acts as a virtual gateway: uplink frames are
// published as gateway events, downlink commands are consumed from the
// network-server.
type Gateway interface {
	SendUplinkFrame(*gw.UplinkFrame) error    // publish the given uplink frame
	DownlinkFrameChan() chan *gw.DownlinkFrame // channel containing the received downlink frames
	Close() error                              // close the gateway backend
}
