package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/yuya-takeyama/mirrorsync/pkg/storage"
)

// Fresh treats dst as in sync when sizes match and dst is not older than
// src. Content is never compared, so a same-size change is missed when the
// destination clock reads equal or newer.
func Fresh(src, dst storage.Record) bool {
	return src.Size == dst.Size && !dst.Timestamp.Before(src.Timestamp)
}

// Identical treats dst as in sync only when key, size and timestamp all match.
func Identical(src, dst storage.Record) bool {
	return src.Key == dst.Key && src.Size == dst.Size && src.Timestamp.Equal(dst.Timestamp)
}

// Compute diffs two listings keyed by Key. It emits one action per source
// record in source order, then a Delete for every destination-only record in
// destination order.
func Compute(source, dest []storage.Record, policy EqualityPolicy) []Action {
	if policy == nil {
		policy = Fresh
	}

	destMap := make(map[string]storage.Record, len(dest))
	for _, rec := range dest {
		destMap[rec.Key] = rec
	}

	sourceKeys := make(map[string]struct{}, len(source))
	actions := make([]Action, 0, len(source)+len(dest))

	for _, src := range source {
		sourceKeys[src.Key] = struct{}{}

		dst, exists := destMap[src.Key]
		switch {
		case !exists:
			actions = append(actions, Add(src))
		case policy(src, dst):
			actions = append(actions, Keep(dst))
		default:
			actions = append(actions, Overwrite(src))
		}
	}

	for _, dst := range dest {
		if _, exists := sourceKeys[dst.Key]; !exists {
			actions = append(actions, Delete(dst))
		}
	}

	return actions
}

// Optimize replaces every Delete(K) that is followed anywhere later by
// Add(K) with a single Overwrite(K) in the Add's position. Everything else
// keeps its relative order.
func Optimize(actions []Action) []Action {
	// indexes of unmatched Deletes per key, oldest first
	pending := make(map[string][]int)
	dropped := make(map[int]bool)
	result := make([]Action, len(actions))
	copy(result, actions)

	for i, a := range result {
		key := a.Record.Key
		switch a.Operation {
		case OpDelete:
			pending[key] = append(pending[key], i)
		case OpAdd:
			if queue := pending[key]; len(queue) > 0 {
				result[i] = Overwrite(a.Record)
				dropped[queue[0]] = true
				pending[key] = queue[1:]
			}
		}
	}

	if len(dropped) == 0 {
		return result
	}

	optimized := make([]Action, 0, len(result)-len(dropped))
	for i, a := range result {
		if !dropped[i] {
			optimized = append(optimized, a)
		}
	}
	return optimized
}

// Order sorts deletes first, in their original order, then everything else
// by ascending size. The sort is stable.
func Order(actions []Action) []Action {
	ordered := make([]Action, len(actions))
	copy(ordered, actions)

	sort.SliceStable(ordered, func(i, j int) bool {
		di := ordered[i].Operation == OpDelete
		dj := ordered[j].Operation == OpDelete
		if di != dj {
			return di
		}
		if di {
			return false
		}
		return ordered[i].Record.Size < ordered[j].Record.Size
	})

	return ordered
}

// KeepOrphans turns every Delete into a Keep.
func KeepOrphans(actions []Action) []Action {
	result := make([]Action, len(actions))
	for i, a := range actions {
		if a.Operation == OpDelete {
			a = Keep(a.Record)
		}
		result[i] = a
	}
	return result
}

// Filter drops records whose key matches one of the exclude patterns.
func Filter(records []storage.Record, patterns []string) ([]storage.Record, error) {
	if len(patterns) == 0 {
		return records, nil
	}

	filtered := make([]storage.Record, 0, len(records))
	for _, rec := range records {
		excluded, err := IsExcluded(rec.Key, patterns)
		if err != nil {
			return nil, err
		}
		if !excluded {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

// IsExcluded reports whether path matches one of the patterns. A pattern
// ending in "/" matches a directory and everything beneath it.
func IsExcluded(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		if dirPattern, ok := strings.CutSuffix(pattern, "/"); ok {
			parts := strings.Split(path, "/")
			// the last element is the file itself
			for i := 1; i < len(parts); i++ {
				matched, err := doublestar.Match(dirPattern, strings.Join(parts[:i], "/"))
				if err != nil {
					return false, err
				}
				if matched {
					return true, nil
				}
			}
			continue
		}

		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// ValidatePatterns rejects malformed exclude patterns up front.
func ValidatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(strings.TrimSuffix(pattern, "/")) {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, doublestar.ErrBadPattern)
		}
	}
	return nil
}
