package plugin

import (
	"context"
	"sync"

	"xrpchan/store"
	"xrpchan/subprotocol"
)

// storeChannelIndex is the persisted channelId -> accountId reverse index
// (spec.md §6 "channel:<channelId> -> accountId"), guarded by an in-memory
// mutex since the underlying store.Wrapper cache is itself only eventually
// durable and callers need a synchronous read-modify-write for the bind
// race spec.md §8 describes.
type storeChannelIndex struct {
	mu    sync.Mutex
	store *store.Wrapper
}

func newChannelIndex(s *store.Wrapper) *storeChannelIndex {
	return &storeChannelIndex{store: s}
}

func indexKey(channelID string) string {
	return "channel:" + channelID
}

func (idx *storeChannelIndex) Bind(channelID, accountID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.store.Load(context.Background(), indexKey(channelID)); err != nil {
		return err
	}
	if owner, ok := idx.store.Get(indexKey(channelID)); ok {
		if owner != accountID {
			return &subprotocol.ErrChannelBoundElsewhere{ChannelID: channelID, Owner: owner, Attempted: accountID}
		}
		return nil
	}
	idx.store.Set(indexKey(channelID), accountID)
	return nil
}

func (idx *storeChannelIndex) Lookup(channelID string) (string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.store.Load(context.Background(), indexKey(channelID)); err != nil {
		return "", false
	}
	return idx.store.Get(indexKey(channelID))
}

var _ subprotocol.ChannelIndex = (*storeChannelIndex)(nil)
