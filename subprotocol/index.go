package subprotocol

import "fmt"

// ErrChannelBoundElsewhere is returned by ChannelIndex.Bind when a channel id
// is already associated with a different account (spec.md §8 "Race
// binding").
type ErrChannelBoundElsewhere struct {
	ChannelID string
	Owner     string
	Attempted string
}

func (e *ErrChannelBoundElsewhere) Error() string {
	return fmt.Sprintf("this channel has already been associated with a different account. account=%s associated=%s", e.Attempted, e.Owner)
}

// ChannelIndex is the orchestrator's channelId -> accountId reverse index
// (spec.md §5 "Shared resources"). Bind is idempotent for the same account
// and rejects a second, different owner.
type ChannelIndex interface {
	Bind(channelID, accountID string) error
	Lookup(channelID string) (accountID string, ok bool)
}
