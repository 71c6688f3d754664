package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/iwanhae/chatroom/types"
)

// BanManager keeps a set of banned IP addresses.
type BanManager struct {
	mu     sync.RWMutex
	banned map[string]*types.Ban
}

func NewBanManager() *BanManager {
	return &BanManager{banned: make(map[string]*types.Ban)}
}

func (b *BanManager) IsBanned(ip string) bool {
	b.mu.RLock()
	_, ok := b.banned[ip]
	b.mu.RUnlock()
	return ok
}

func (b *BanManager) Ban(ip, bannedBy, reason string) {
	b.mu.Lock()
	b.banned[ip] = &types.Ban{IP: ip, BannedBy: bannedBy, Reason: reason, At: time.Now()}
	b.mu.Unlock()
}

func (b *BanManager) Unban(ip string) {
	b.mu.Lock()
	delete(b.banned, ip)
	b.mu.Unlock()
}

// Bans returns the current bans ordered by IP.
func (b *BanManager) Bans() []types.Ban {
	b.mu.RLock()
	out := make([]types.Ban, 0, len(b.banned))
	for _, ban := range b.banned {
		out = append(out, *ban)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}
