package reconciler

import (
	"sort"
	"time"

	"github.com/ladleio/ladle/pkg/types"
)

// Incoming is the reconciling scraper's live observation of one entity
type Incoming struct {
	ScraperID string
	Fields    map[string]string
}

// Change is one canonical field update decided by Merge. Source is the
// scraper whose observation won the vote.
type Change struct {
	Field  string
	Old    string
	New    string
	Source string
}

// Merge decides canonical field values by majority vote across source
// records. Each scraper votes its latest observation per field; the
// incoming observation replaces that scraper's stored one. Fields the
// incoming record does not mention are left alone. Ties break by
// source priority, then by most recent observation (the live one
// counts as newest), then by value so the outcome is deterministic.
//
// A change is emitted only when the winning value differs from the
// canonical one, so replaying an unchanged record yields no changes.
func Merge(canonical map[string]string, in Incoming, history []types.SourceRecord, priority []string) []Change {
	ranks := priorityRanks(priority)

	fields := make([]string, 0, len(in.Fields))
	for f := range in.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var changes []Change
	for _, field := range fields {
		winner := vote(field, in, history, ranks)
		if winner.value == canonical[field] {
			continue
		}
		changes = append(changes, Change{
			Field:  field,
			Old:    canonical[field],
			New:    winner.value,
			Source: creditSource(winner, ranks),
		})
	}
	return changes
}

type ballot struct {
	value   string
	scraper string
	seenAt  time.Time
	live    bool
}

type candidate struct {
	value   string
	ballots []ballot
}

func vote(field string, in Incoming, history []types.SourceRecord, ranks map[string]int) candidate {
	var ballots []ballot
	for i := range history {
		h := &history[i]
		if h.ScraperID == in.ScraperID {
			continue
		}
		if v, ok := h.Fields[field]; ok {
			ballots = append(ballots, ballot{value: v, scraper: h.ScraperID, seenAt: h.LastSeenAt})
		}
	}
	ballots = append(ballots, ballot{value: in.Fields[field], scraper: in.ScraperID, live: true})

	byValue := make(map[string]*candidate)
	var order []string
	for _, b := range ballots {
		c, ok := byValue[b.value]
		if !ok {
			c = &candidate{value: b.value}
			byValue[b.value] = c
			order = append(order, b.value)
		}
		c.ballots = append(c.ballots, b)
	}

	best := byValue[order[0]]
	for _, v := range order[1:] {
		if better(byValue[v], best, ranks) {
			best = byValue[v]
		}
	}
	return *best
}

// better reports whether candidate a beats candidate b
func better(a, b *candidate, ranks map[string]int) bool {
	if len(a.ballots) != len(b.ballots) {
		return len(a.ballots) > len(b.ballots)
	}
	ra, rb := bestRank(a.ballots, ranks), bestRank(b.ballots, ranks)
	if ra != rb {
		return ra < rb
	}
	ta, liveA := latest(a.ballots)
	tb, liveB := latest(b.ballots)
	if liveA != liveB {
		return liveA
	}
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return a.value < b.value
}

// creditSource picks the scraper credited with a winning value: the
// highest-priority voter, the live observation breaking remaining ties
func creditSource(c candidate, ranks map[string]int) string {
	best := c.ballots[0]
	for _, b := range c.ballots[1:] {
		r, br := rankOf(b, ranks), rankOf(best, ranks)
		if r < br || (r == br && b.live) {
			best = b
		}
	}
	return best.scraper
}

func priorityRanks(priority []string) map[string]int {
	ranks := make(map[string]int, len(priority))
	for i, scraper := range priority {
		ranks[scraper] = i
	}
	return ranks
}

func rankOf(b ballot, ranks map[string]int) int {
	if r, ok := ranks[b.scraper]; ok {
		return r
	}
	return len(ranks)
}

func bestRank(ballots []ballot, ranks map[string]int) int {
	best := rankOf(ballots[0], ranks)
	for _, b := range ballots[1:] {
		if r := rankOf(b, ranks); r < best {
			best = r
		}
	}
	return best
}

// latest returns the newest observation time and whether any ballot is
// the live incoming one
func latest(ballots []ballot) (time.Time, bool) {
	var t time.Time
	live := false
	for _, b := range ballots {
		if b.live {
			live = true
		}
		if b.seenAt.After(t) {
			t = b.seenAt
		}
	}
	return t, live
}
