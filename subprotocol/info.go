package subprotocol

import (
	"encoding/json"

	"xrpchan/account"
)

// InfoResponse is the JSON record returned by the `info` sub-protocol
// (spec.md §4.4 item 2). Channel is revealed once the account has advanced
// past PREPARING_CHANNEL; ClientChannel once the account has reached READY.
type InfoResponse struct {
	Address       string `json:"address"`
	Account       string `json:"account"`
	CurrencyScale uint8  `json:"currencyScale"`
	Channel       string `json:"channel,omitempty"`
	ClientChannel string `json:"clientChannel,omitempty"`
}

// HandleInfo implements spec.md §4.4 item 2.
func HandleInfo(a *account.Account) ([]byte, error) {
	deps := a.Deps()
	resp := InfoResponse{
		Address:       deps.ServerAddress,
		Account:       a.ID,
		CurrencyScale: deps.CurrencyScale,
	}
	// IncomingChannelID/ClientChannelID are only ever populated once the
	// account has advanced past PREPARING_CHANNEL/reached READY
	// respectively, so their presence alone is the reveal condition.
	if id, ok := a.IncomingChannelID(); ok {
		resp.Channel = id
	}
	if id, ok := a.ClientChannelID(); ok {
		resp.ClientChannel = id
	}
	return json.Marshal(resp)
}

// HandleLastClaim implements spec.md §4.4 item 1: return the stored incoming
// claim JSON as-is.
func HandleLastClaim(a *account.Account) ([]byte, error) {
	return json.Marshal(a.GetIncomingClaim())
}
