package ledger

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// rankTop drops placeholder slots (zero address or zero score), orders the
// rest by score descending and assigns 1-based ranks. Ties keep ledger order.
func rankTop(players []common.Address, scores []uint64, n int) []Entry {
	if n <= 0 {
		return []Entry{}
	}
	entries := make([]Entry, 0, len(players))
	for i, p := range players {
		if i >= len(scores) {
			break
		}
		if p == (common.Address{}) || scores[i] == 0 {
			continue
		}
		entries = append(entries, Entry{Player: p, Score: scores[i]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
