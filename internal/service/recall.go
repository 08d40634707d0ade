package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/jask/powerpolicy/internal/database"
	"github.com/jask/powerpolicy/internal/database/repository"
)

// DefaultRecallLimit is how many entries per kind are kept when none is configured.
const DefaultRecallLimit = 20

// RecallService remembers submitted search terms and version ids and
// suggests them back while the user types.
type RecallService struct {
	History *repository.HistoryRepo
	Limit   int
	Now     func() time.Time
}

func (s *RecallService) limit() int {
	if s.Limit > 0 {
		return s.Limit
	}
	return DefaultRecallLimit
}

func (s *RecallService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return database.Now()
}

// Record stores value and prunes older entries of the same kind.
func (s *RecallService) Record(ctx context.Context, kind, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if err := s.History.Touch(ctx, kind, value, s.now()); err != nil {
		return fmt.Errorf("record %s %q: %w", kind, value, err)
	}
	if _, err := s.History.Prune(ctx, kind, s.limit()); err != nil {
		return fmt.Errorf("prune %s history: %w", kind, err)
	}
	return nil
}

// Suggest returns up to n remembered values for input. With no input the
// most recent values come back; otherwise prefix matches rank first, then
// substring matches, then near misses by edit distance.
func (s *RecallService) Suggest(ctx context.Context, kind, input string, n int) ([]string, error) {
	entries, err := s.History.List(ctx, kind, s.limit())
	if err != nil {
		return nil, fmt.Errorf("list %s history: %w", kind, err)
	}
	return rankRecall(entries, input, n), nil
}

type candidate struct {
	value string
	tier  int
	dist  int
	order int
}

func rankRecall(entries []repository.RecallEntry, input string, n int) []string {
	needle := strings.ToLower(strings.TrimSpace(input))
	var cands []candidate
	for i, e := range entries {
		v := strings.ToLower(e.Value)
		if needle == "" {
			cands = append(cands, candidate{value: e.Value, order: i})
			continue
		}
		if v == needle {
			continue
		}
		c := candidate{value: e.Value, order: i, dist: levenshtein.ComputeDistance(needle, v)}
		switch {
		case strings.HasPrefix(v, needle):
			c.tier = 0
		case strings.Contains(v, needle):
			c.tier = 1
		case c.dist <= maxTypos(needle):
			c.tier = 2
		default:
			continue
		}
		cands = append(cands, c)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.tier == 2 && a.dist != b.dist {
			return a.dist < b.dist
		}
		return a.order < b.order
	})

	if n > 0 && len(cands) > n {
		cands = cands[:n]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.value
	}
	return out
}

// maxTypos allows roughly one edit per three characters, at least one.
func maxTypos(s string) int {
	if n := len(s) / 3; n > 1 {
		return n
	}
	return 1
}
