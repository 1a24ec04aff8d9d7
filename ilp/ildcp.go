package ilp

import "encoding/json"

// ConfigResponse is the ILDCP payload returned to a peer preparing to
// peer.config (spec.md §4.4 item 5).
type ConfigResponse struct {
	ClientAddress string `json:"clientAddress"`
	AssetCode     string `json:"assetCode"`
	AssetScale    uint8  `json:"assetScale"`
}

// ildcpAssetScale and ildcpAssetCode are fixed by spec.md §4.4: the
// connector always denominates ILDCP in whole XRP drops (asset scale 6).
const (
	ildcpAssetScale = 6
	ildcpAssetCode  = "XRP"
)

// BuildConfigResponse builds the fixed ILDCP config response for clientAddress.
func BuildConfigResponse(clientAddress string) ConfigResponse {
	return ConfigResponse{
		ClientAddress: clientAddress,
		AssetCode:     ildcpAssetCode,
		AssetScale:    ildcpAssetScale,
	}
}

// EncodeConfigResponseFulfill wraps a ConfigResponse as the Data of a
// synthetic FULFILL, per spec.md §4.4 item 5. The real ILDCP wire format is
// OER-encoded by the ILP packet codec (an external collaborator per
// spec.md §6); this JSON envelope is the payload that codec is handed.
func EncodeConfigResponseFulfill(resp ConfigResponse) (*Fulfill, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return &Fulfill{Data: data}, nil
}
