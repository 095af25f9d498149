package entity

import (
	"testing"

	"github.com/jiecolao/pyquest-game/internal/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDispatchesQualifiedPath(t *testing.T) {
	tr := watch.NewTracker(nil)
	var seen []string
	tr.Watch("Player.Health", func(n, o watch.Value) {
		seen = append(seen, n.String()+"<-"+o.String())
	})

	p := New("Player", tr)
	p.Set("Health", int64(100), watch.Int(100))
	p.Set("Health", int64(75), watch.Int(75))

	assert.Equal(t, []string{"100<-<unset>", "75<-100"}, seen)
	assert.Equal(t, watch.Int(75), tr.Value("Player.Health"))

	a, ok := p.Get("Health")
	require.True(t, ok)
	assert.Equal(t, int64(75), a.Raw)
	assert.Equal(t, watch.Int(75), a.Value)
}

func TestGetUnassigned(t *testing.T) {
	p := New("Enemy", watch.NewTracker(nil))
	_, ok := p.Get("Health")
	assert.False(t, ok)
}

func TestBagReadsAreIndependentOfStore(t *testing.T) {
	tr := watch.NewTracker(nil)
	g := New("Game", tr)
	g.Set("Score", 10, watch.Int(10))
	tr.UnwatchAll()

	a, ok := g.Get("Score")
	require.True(t, ok)
	assert.Equal(t, watch.Int(10), a.Value)
	assert.False(t, tr.Value("Game.Score").IsSet())
}

func TestNewSetBindsFixedNames(t *testing.T) {
	s := NewSet(watch.NewTracker(nil))
	require.Len(t, s.All(), 3)
	for _, n := range []string{"Player", "Game", "Enemy"} {
		e, ok := s.Lookup(n)
		require.True(t, ok, n)
		assert.Equal(t, n, e.Name())
	}
	_, ok := s.Lookup("Boss")
	assert.False(t, ok)
}

func TestAttrsKeepFirstAssignmentOrder(t *testing.T) {
	p := New("Player", watch.NewTracker(nil))
	p.Set("Mana", 1, watch.Int(1))
	p.Set("Health", 2, watch.Int(2))
	p.Set("Mana", 3, watch.Int(3))
	assert.Equal(t, []string{"Mana", "Health"}, p.Attrs())
}
