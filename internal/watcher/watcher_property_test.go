//go:build property

package watcher

import (
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPendingSetProperties validates the collapse and drain behavior of the
// pending change set.
func TestPendingSetProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	changeGen := gen.SliceOf(gopter.CombineGens(
		gen.IntRange(0, 9),
		gen.IntRange(0, 3),
	).Map(func(values []interface{}) Change {
		return Change{
			Path: filepath.Join("/docs", fmt.Sprintf("page%d.rst", values[0].(int))),
			Kind: EventKind(values[1].(int)),
		}
	}))

	// Property: draining yields each distinct change exactly once
	properties.Property("drain yields distinct changes", prop.ForAll(
		func(changes []Change) bool {
			set := NewPendingSet()
			distinct := make(map[Change]struct{})
			for _, c := range changes {
				set.Add(c)
				distinct[c] = struct{}{}
			}

			batch := set.Drain()
			if len(batch) != len(distinct) {
				return false
			}
			for _, c := range batch {
				if _, ok := distinct[c]; !ok {
					return false
				}
			}
			return set.Len() == 0
		},
		changeGen,
	))

	// Property: a drained batch is ordered by path
	properties.Property("drain is ordered", prop.ForAll(
		func(changes []Change) bool {
			set := NewPendingSet()
			for _, c := range changes {
				set.Add(c)
			}
			batch := set.Drain()
			return sort.SliceIsSorted(batch, func(i, j int) bool {
				if batch[i].Path != batch[j].Path {
					return batch[i].Path < batch[j].Path
				}
				return batch[i].Kind < batch[j].Kind
			})
		},
		changeGen,
	))

	// Property: adding a change twice is the same as adding it once
	properties.Property("add is idempotent", prop.ForAll(
		func(changes []Change) bool {
			once := NewPendingSet()
			twice := NewPendingSet()
			for _, c := range changes {
				once.Add(c)
				twice.Add(c)
				twice.Add(c)
			}
			return fmt.Sprint(once.Drain()) == fmt.Sprint(twice.Drain())
		},
		changeGen,
	))

	properties.TestingRun(t)
}

// TestBackupFileProperties validates that editor backup names are recognised
// regardless of directory or base name.
func TestBackupFileProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("tilde suffix marks backups", prop.ForAll(
		func(dir, name string) bool {
			if name == "" {
				return true
			}
			path := filepath.Join("/", dir, name)
			return IsBackupFile(path+"~") && !IsBackupFile(path)
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
