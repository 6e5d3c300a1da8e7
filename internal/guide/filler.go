/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package guide

import (
	"time"

	"github.com/zapperlabs/zapper/internal/catalog"
	"github.com/zapperlabs/zapper/internal/models"
	"github.com/zapperlabs/zapper/internal/providers"
)

// fillRequest carries everything one slot needs to be packed.
type fillRequest struct {
	channelID string
	label     string
	items     []catalog.Item // already filtered and ordered
	start     time.Time      // effective start, never before the slot window
	end       time.Time      // absolute slot end
	day       time.Time      // generation day; what cooldown records, even past midnight
	policy    DurationPolicy
	cooldown  CooldownLedger
	hours     *HourLedger
}

// fillSlot packs programs into the window with a single greedy pass over
// the ordered candidates. It never backtracks: a committed program stays,
// an oversized candidate is skipped while shorter ones keep being tried,
// and an hour collision skips the candidate without advancing the cursor.
// An empty result is a legitimate gap.
func fillSlot(req fillRequest) []Program {
	programs := make([]Program, 0, 8)
	cursor := req.start

	for i := range req.items {
		if !cursor.Before(req.end) {
			break
		}
		it := &req.items[i]

		if req.hours.IsUsed(cursor, it.ID) {
			continue
		}

		dur := req.policy.Runtime(it)
		progEnd := cursor.Add(dur)
		if progEnd.After(req.end) {
			continue
		}

		req.hours.MarkUsed(cursor, it.ID)
		if it.Kind == models.KindMovie && req.cooldown != nil {
			req.cooldown.MarkAired(req.channelID, it.ID, req.day)
		}

		programs = append(programs, makeProgram(req.channelID, req.label, it, cursor, progEnd))
		cursor = progEnd
	}

	return programs
}

func makeProgram(channelID, label string, it *catalog.Item, start, end time.Time) Program {
	p := Program{
		ID:           programID(channelID, it.ID, start),
		ChannelID:    channelID,
		ItemID:       it.ID,
		Kind:         it.Kind,
		Title:        it.Title,
		Synopsis:     it.Synopsis,
		Runtime:      int(end.Sub(start) / time.Minute),
		Start:        start,
		End:          end,
		SlotLabel:    label,
		PosterPath:   it.PosterPath,
		BackdropPath: it.BackdropPath,
	}
	if prov := it.PrimaryProvider(); prov != nil {
		p.ProviderName = prov.Name
		p.ProviderLogo = prov.Logo
		p.DeepLink = providers.DeepLink(prov.Name, it.Title)
	}
	return p
}
