// Package subprotocol dispatches a peer message's named sub-protocols to the
// account and claim-accounting handlers that implement them (spec.md §4.4).
package subprotocol

// Data is one named sub-protocol entry on a peer message (spec.md §6 "Peer
// framing"). Recognized names: info, last_claim, channel, channel_signature,
// fund_channel, ilp, claim.
type Data struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is the full set of sub-protocol data a peer message carries. Names
// are independent and may co-occur (spec.md §4.4).
type Message struct {
	Protocols []Data
}

// Get returns the first Data entry with the given name.
func (m Message) Get(name string) (Data, bool) {
	for _, d := range m.Protocols {
		if d.Name == name {
			return d, true
		}
	}
	return Data{}, false
}

const (
	NameInfo             = "info"
	NameLastClaim        = "last_claim"
	NameChannel          = "channel"
	NameChannelSignature = "channel_signature"
	NameFundChannel      = "fund_channel"
	NameILP              = "ilp"
	NameClaim            = "claim"
)
