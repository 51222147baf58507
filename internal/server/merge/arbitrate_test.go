package merge

import (
	"fmt"
	"testing"

	"github.com/dmitrijs2005/notesync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func timestampGen() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		return fmt.Sprintf("2024-05-%02dT%02d:%02d:%02d.%03dZ",
			rapid.IntRange(1, 28).Draw(t, "day"),
			rapid.IntRange(0, 23).Draw(t, "hour"),
			rapid.IntRange(0, 59).Draw(t, "min"),
			rapid.IntRange(0, 59).Draw(t, "sec"),
			rapid.IntRange(0, 999).Draw(t, "ms"))
	})
}

func candidateGen() *rapid.Generator[models.Candidate] {
	return rapid.Custom(func(t *rapid.T) models.Candidate {
		return models.Candidate{
			ID:        "n1",
			Title:     rapid.StringMatching(`[A-Za-z0-9 ]{0,20}`).Draw(t, "title"),
			Body:      rapid.String().Draw(t, "body"),
			Favorite:  rapid.Bool().Draw(t, "favorite"),
			Deleted:   rapid.Bool().Draw(t, "deleted"),
			UpdatedAt: timestampGen().Draw(t, "updated_at"),
		}
	})
}

// applyAll folds candidates through Arbitrate the way the engine does.
func applyAll(cs ...models.Candidate) *models.Note {
	var current *models.Note
	for _, c := range cs {
		if next, _ := Arbitrate(current, "u1", c); next != nil {
			current = next
		}
	}
	return current
}

func content(n *models.Note) [5]any {
	return [5]any{n.Title, n.Body, n.Favorite, n.Deleted, n.UpdatedAt}
}

func TestArbitrate_CommutativeForDistinctTimestamps(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := candidateGen().Draw(t, "a")
		b := candidateGen().Draw(t, "b")
		if a.UpdatedAt == b.UpdatedAt {
			t.Skip("equal timestamps resolve to whichever arrived first")
		}
		newer := a
		if b.UpdatedAt > a.UpdatedAt {
			newer = b
		}

		ab := applyAll(a, b)
		ba := applyAll(b, a)

		assert.Equal(t, content(ab), content(ba))
		assert.Equal(t, newer.UpdatedAt, ab.UpdatedAt)
		assert.Equal(t, newer.Title, ab.Title)
		assert.Equal(t, newer.Deleted, ab.Deleted)
	})
}

func TestArbitrate_ReplayIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cs := rapid.SliceOfN(candidateGen(), 1, 8).Draw(t, "candidates")

		once := applyAll(cs...)
		twice := applyAll(append(append([]models.Candidate{}, cs...), cs...)...)

		assert.Equal(t, *once, *twice)
	})
}

func TestArbitrate_ConvergesUnderPermutation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cs := rapid.SliceOfNDistinct(candidateGen(), 1, 6, func(c models.Candidate) string {
			return c.UpdatedAt
		}).Draw(t, "candidates")
		perm := rapid.Permutation(cs).Draw(t, "perm")

		assert.Equal(t, content(applyAll(cs...)), content(applyAll(perm...)))
	})
}

func TestArbitrate_VersionCountsAcceptedWrites(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cs := rapid.SliceOfN(candidateGen(), 1, 10).Draw(t, "candidates")

		var current *models.Note
		accepted := int64(0)
		for _, c := range cs {
			next, res := Arbitrate(current, "u1", c)
			if res.Applied {
				accepted++
				current = next
				assert.Equal(t, accepted, res.Canonical.Version)
			} else {
				assert.Nil(t, next)
				assert.Equal(t, current.Version, res.Canonical.Version)
			}
		}
		assert.Equal(t, accepted, current.Version)
	})
}
