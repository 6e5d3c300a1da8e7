/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package guide

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/zapperlabs/zapper/internal/catalog"
)

// Seed derives the shuffle seed for one slot of one channel-day. FNV-1a
// over the full tuple keeps distinct channels and dates apart even when
// their serialized forms share characters.
func Seed(channelID, isoDate string, slotIndex int) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%s:%d", channelID, isoDate, slotIndex)
	return int64(h.Sum64())
}

// Order returns a deterministic permutation of items for the seed. The
// input slice is never modified.
func Order(items []catalog.Item, seed int64) []catalog.Item {
	out := make([]catalog.Item, len(items))
	copy(out, items)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
