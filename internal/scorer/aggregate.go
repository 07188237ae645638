package scorer

import (
	"fmt"
	"sort"
)

// Candidate is one scored index row.
type Candidate struct {
	Row    int
	WorkID int64
	Score  float64
}

// DedupByWork keeps the first candidate of each work, in order, and stops
// once target works have been collected.
func DedupByWork(candidates []Candidate, target int) []Candidate {
	seen := make(map[int64]struct{}, target)
	out := make([]Candidate, 0, target)
	for _, c := range candidates {
		if len(out) >= target {
			break
		}
		if _, dup := seen[c.WorkID]; dup {
			continue
		}
		seen[c.WorkID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Aggregation policies.
const (
	AggregateBest = "best"
	AggregateSum  = "sum"
)

// Aggregation rolls chunk hits up into works.
//
// best: each work keeps its PerWorkCap best chunks, works rank by their best
// chunk, and the chunks of the TopWorks works come back best first.
//
// sum: chunks below Cutoff are dropped, works rank by the sum of all their
// remaining chunk scores, and each of the TopWorks works contributes up to
// PerWorkCap chunks best first, in work order.
//
// Callers pass the PoolSize best candidates, sorted best first.
type Aggregation struct {
	Policy     string
	PerWorkCap int
	TopWorks   int
	PoolSize   int
	Cutoff     float64
}

var DefaultAggregation = Aggregation{
	Policy:     AggregateBest,
	PerWorkCap: 3,
	TopWorks:   5,
	PoolSize:   100,
	Cutoff:     0.05,
}

// Validate rejects unknown policies and empty work or pool limits.
func (a Aggregation) Validate() error {
	switch a.Policy {
	case AggregateBest, AggregateSum:
	default:
		return fmt.Errorf("unknown aggregation policy %q", a.Policy)
	}
	if a.TopWorks < 1 || a.PoolSize < 1 {
		return fmt.Errorf("aggregation topWorks and poolSize must be >= 1")
	}
	return nil
}

type workGroup struct {
	workID int64
	chunks []Candidate
	total  float64
}

func group(candidates []Candidate, perWorkCap int) []*workGroup {
	byWork := make(map[int64]*workGroup)
	var groups []*workGroup
	for _, c := range candidates {
		g, ok := byWork[c.WorkID]
		if !ok {
			g = &workGroup{workID: c.WorkID}
			byWork[c.WorkID] = g
			groups = append(groups, g)
		}
		g.total += c.Score
		if perWorkCap > 0 && len(g.chunks) >= perWorkCap {
			continue
		}
		g.chunks = append(g.chunks, c)
	}
	return groups
}

// Apply aggregates candidates, which must be sorted best first.
func (a Aggregation) Apply(candidates []Candidate) []Candidate {
	if a.PoolSize > 0 && len(candidates) > a.PoolSize {
		candidates = candidates[:a.PoolSize]
	}
	switch a.Policy {
	case AggregateSum:
		return a.sum(candidates)
	default:
		return a.best(candidates)
	}
}

func (a Aggregation) best(candidates []Candidate) []Candidate {
	groups := group(candidates, a.PerWorkCap)
	if a.TopWorks > 0 && len(groups) > a.TopWorks {
		groups = groups[:a.TopWorks]
	}
	var out []Candidate
	for _, g := range groups {
		out = append(out, g.chunks...)
	}
	sortCandidates(out)
	return out
}

func (a Aggregation) sum(candidates []Candidate) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= a.Cutoff {
			kept = append(kept, c)
		}
	}
	groups := group(kept, a.PerWorkCap)
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].total > groups[j].total
	})
	if a.TopWorks > 0 && len(groups) > a.TopWorks {
		groups = groups[:a.TopWorks]
	}
	var out []Candidate
	for _, g := range groups {
		out = append(out, g.chunks...)
	}
	return out
}

func sortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		return c[i].Row < c[j].Row
	})
}

// Candidates pairs the given rows with their work ids and scores.
func Candidates(rows []int, scores []float64, workOf func(row int) int64) []Candidate {
	out := make([]Candidate, len(rows))
	for i, r := range rows {
		out[i] = Candidate{Row: r, WorkID: workOf(r), Score: scores[r]}
	}
	return out
}
