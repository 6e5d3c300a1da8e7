/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package guide

import (
	"strings"
	"time"

	"github.com/zapperlabs/zapper/internal/catalog"
	"github.com/zapperlabs/zapper/internal/models"
)

// predicate is one compiled filter dimension. A slot's criteria compile to
// an ordered predicate list evaluated with short-circuit AND; absent
// criteria simply compile to nothing.
type predicate interface {
	matches(it *catalog.Item) bool
}

// kindIs requires an exact content kind.
type kindIs models.ContentKind

func (p kindIs) matches(it *catalog.Item) bool {
	return it.Kind == models.ContentKind(p)
}

// decadeBetween requires the item's decade inside [from, to]. Items with
// no known decade fail.
type decadeBetween struct {
	from, to int
}

func (p decadeBetween) matches(it *catalog.Item) bool {
	if it.Decade == 0 {
		return false
	}
	return it.Decade >= p.from && it.Decade <= p.to
}

// ratingAtLeast requires a minimum vote average.
type ratingAtLeast float64

func (p ratingAtLeast) matches(it *catalog.Item) bool {
	return it.VoteAverage >= float64(p)
}

// votesAtLeast requires a minimum vote count.
type votesAtLeast int

func (p votesAtLeast) matches(it *catalog.Item) bool {
	return it.VoteCount >= int(p)
}

// genreAny requires at least one of the listed genre ids.
type genreAny []int

func (p genreAny) matches(it *catalog.Item) bool {
	for _, id := range p {
		if it.HasGenre(id) {
			return true
		}
	}
	return false
}

// keywordAny requires any term to appear, case-insensitively, in the
// item's title, synopsis, or keyword set.
type keywordAny []string

func (p keywordAny) matches(it *catalog.Item) bool {
	text := searchText(it)
	for _, term := range p {
		if strings.Contains(text, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// keywordNone disqualifies the item when any term appears in the same
// fields keywordAny searches.
type keywordNone []string

func (p keywordNone) matches(it *catalog.Item) bool {
	text := searchText(it)
	for _, term := range p {
		if strings.Contains(text, strings.ToLower(term)) {
			return false
		}
	}
	return true
}

// universeAny requires membership in at least one franchise tag.
type universeAny []string

func (p universeAny) matches(it *catalog.Item) bool {
	for _, name := range p {
		if it.HasUniverse(name) {
			return true
		}
	}
	return false
}

// titleAny requires any pattern to appear, case-insensitively, in the
// title, original title, or universe tags.
type titleAny []string

func (p titleAny) matches(it *catalog.Item) bool {
	fields := make([]string, 0, 2+len(it.Universes))
	fields = append(fields, strings.ToLower(it.Title), strings.ToLower(it.OriginalTitle))
	for _, u := range it.Universes {
		fields = append(fields, strings.ToLower(u))
	}
	for _, pattern := range p {
		needle := strings.ToLower(pattern)
		for _, f := range fields {
			if strings.Contains(f, needle) {
				return true
			}
		}
	}
	return false
}

// languageIs requires an exact original language.
type languageIs string

func (p languageIs) matches(it *catalog.Item) bool {
	return strings.EqualFold(it.Language, string(p))
}

// countryAny requires at least one matching origin country.
type countryAny []string

func (p countryAny) matches(it *catalog.Item) bool {
	for _, want := range p {
		for _, have := range it.Countries {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// watchable requires at least one provider. Always appended; an item
// nobody can watch is never scheduled.
type watchable struct{}

func (watchable) matches(it *catalog.Item) bool {
	return it.Watchable()
}

// outsideCooldown rejects movies that ran on this channel within the
// window ending at the target day. Series always pass.
type outsideCooldown struct {
	ledger    CooldownLedger
	channelID string
	day       time.Time // DateOf the target day
	window    int       // days
}

func (p outsideCooldown) matches(it *catalog.Item) bool {
	if it.Kind != models.KindMovie || p.ledger == nil {
		return true
	}
	last, ok := p.ledger.LastAired(p.channelID, it.ID)
	if !ok {
		return true
	}
	return DaysBetween(last, p.day) >= p.window
}

// compileFilter turns a slot's criteria into the ordered predicate list.
// The order matches the evaluation contract: kind, decade, rating, genre,
// keywords, excluded keywords, universe, title patterns, then the
// always-on votes/language/country dimensions wherever configured.
func compileFilter(f models.SlotFilter) []predicate {
	preds := make([]predicate, 0, 8)
	if f.ContentType != "" {
		preds = append(preds, kindIs(f.ContentType))
	}
	if len(f.Decade) > 0 {
		from := f.Decade[0]
		to := from
		if len(f.Decade) > 1 {
			to = f.Decade[1]
		}
		preds = append(preds, decadeBetween{from: from, to: to})
	}
	if f.VoteAverageMin > 0 {
		preds = append(preds, ratingAtLeast(f.VoteAverageMin))
	}
	if f.VoteCountMin > 0 {
		preds = append(preds, votesAtLeast(f.VoteCountMin))
	}
	if len(f.Genres) > 0 {
		preds = append(preds, genreAny(f.Genres))
	}
	if len(f.Keywords) > 0 {
		preds = append(preds, keywordAny(f.Keywords))
	}
	if len(f.ExcludeKeywords) > 0 {
		preds = append(preds, keywordNone(f.ExcludeKeywords))
	}
	if len(f.Universes) > 0 {
		preds = append(preds, universeAny(f.Universes))
	}
	if len(f.TitleContains) > 0 {
		preds = append(preds, titleAny(f.TitleContains))
	}
	if f.Language != "" {
		preds = append(preds, languageIs(f.Language))
	}
	if len(f.Countries) > 0 {
		preds = append(preds, countryAny(f.Countries))
	}
	return preds
}

// matchesAll evaluates the predicate list with short-circuit AND.
func matchesAll(it *catalog.Item, preds []predicate) bool {
	for _, p := range preds {
		if !p.matches(it) {
			return false
		}
	}
	return true
}

// filterItems returns the pool items passing every predicate, in pool order.
func filterItems(items []catalog.Item, preds []predicate) []catalog.Item {
	out := make([]catalog.Item, 0, len(items))
	for i := range items {
		if matchesAll(&items[i], preds) {
			out = append(out, items[i])
		}
	}
	return out
}

// searchText builds the lowered haystack keyword predicates search in.
func searchText(it *catalog.Item) string {
	var b strings.Builder
	b.WriteString(it.Title)
	b.WriteByte('\n')
	b.WriteString(it.Synopsis)
	for _, kw := range it.Keywords {
		b.WriteByte('\n')
		b.WriteString(kw)
	}
	return strings.ToLower(b.String())
}
