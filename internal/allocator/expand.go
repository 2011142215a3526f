package allocator

import (
	"sort"

	"github.com/plate-filler/backend/internal/models"
)

// groupCounter accumulates replica totals per (group key, member) while
// remembering the order in which group keys were first seen.
type groupCounter struct {
	order   []string
	members map[string]map[string]int
	total   int
}

func newGroupCounter() *groupCounter {
	return &groupCounter{members: make(map[string]map[string]int)}
}

func (g *groupCounter) add(key, member string, n int) {
	counts, ok := g.members[key]
	if !ok {
		counts = make(map[string]int)
		g.members[key] = counts
		g.order = append(g.order, key)
	}
	counts[member] += n
	g.total += n
}

// sortedMembers returns the members of a group in ascending byte order.
func (g *groupCounter) sortedMembers(key string) []string {
	counts := g.members[key]
	members := make([]string, 0, len(counts))
	for m := range counts {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// roles maps a (group key, member) pair back to a placement.
func roles(s models.Strategy, key, member string) models.Placement {
	if s == models.BySample {
		return models.Placement{Sample: key, Reagent: member}
	}
	return models.Placement{Sample: member, Reagent: key}
}

// Expand flattens the experiment set into one placement per required well.
// Groups follow first-seen order of the strategy's key identity; within a
// group, the other identity is sorted and each pair is repeated by its
// accumulated replica count.
func Expand(set models.ExperimentSet, s models.Strategy) []models.Placement {
	groups := newGroupCounter()
	for _, e := range set {
		for _, reagent := range e.Reagents {
			for _, sample := range e.Samples {
				if s == models.BySample {
					groups.add(sample, reagent, e.Replicas)
				} else {
					groups.add(reagent, sample, e.Replicas)
				}
			}
		}
	}

	units := make([]models.Placement, 0, groups.total)
	for _, key := range groups.order {
		counts := groups.members[key]
		for _, member := range groups.sortedMembers(key) {
			p := roles(s, key, member)
			for i := 0; i < counts[member]; i++ {
				units = append(units, p)
			}
		}
	}
	return units
}
