package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// channelKeysDomain namespaces the HMAC input so a per-account signing seed
// can never collide with a seed derived for another purpose from the same
// server secret.
const channelKeysDomain = "channel keys"

// DeriveAccountSeed produces the per-account ed25519 signing seed used to
// sign outgoing claims (spec.md §4.6 step 6): HMAC(secret, "channel keys" ||
// accountID). The server's XRP secret never leaves this function; only the
// derived 32-byte seed is handed to the caller.
func DeriveAccountSeed(serverSecret, accountID string) []byte {
	mac := hmac.New(sha256.New, []byte(serverSecret))
	mac.Write([]byte(channelKeysDomain))
	mac.Write([]byte(accountID))
	return mac.Sum(nil)
}
