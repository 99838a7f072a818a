package fold

import (
	"cmp"
	"math/rand"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type witness struct {
	key       int
	value     int
	isAssert  bool
	isRetract bool
}

func a(k, v int) witness { return witness{k, v, true, false} }
func r(k, v int) witness { return witness{k, v, false, true} }

func replay(ws ...witness) *Upsert[int, int] {
	u := New[int, int](cmp.Compare[int])
	for _, w := range ws {
		u.Witness(w.key, w.value, w.isAssert, w.isRetract)
	}
	return u
}

func TestWitnessSequence(t *testing.T) {
	u := replay(a(1, 2), a(1, 3), r(1, 4), r(1, 5), a(2, 3), r(2, 4), a(1, 6))

	assert.Equal(t, []Entry[int, int]{{1, 6}, {2, 3}}, u.Asserted())
	assert.Equal(t, []Entry[int, int]{{2, 4}}, u.Retracted())
	assert.Equal(t, []AlteredEntry[int, int]{{Key: 1, Alteration: Alteration[int]{Old: 5, New: 6}}}, u.Altered())
	assert.Equal(t, 7, u.Witnesses())

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "witness_sequence", []byte(u.String()))
}

func TestWitnessTransitions(t *testing.T) {
	tests := []struct {
		name      string
		seq       []witness
		asserted  map[int]int
		retracted map[int]int
		altered   map[int]Alteration[int]
	}{
		{
			name:     "first assert lands in asserted",
			seq:      []witness{a(1, 10)},
			asserted: map[int]int{1: 10},
		},
		{
			name:      "first retract lands in retracted",
			seq:       []witness{r(1, 10)},
			retracted: map[int]int{1: 10},
		},
		{
			name:     "neither flag folds as assert",
			seq:      []witness{{1, 10, false, false}},
			asserted: map[int]int{1: 10},
		},
		{
			name:     "both flags on empty key",
			seq:      []witness{{1, 10, true, true}},
			asserted: map[int]int{1: 10},
			altered:  map[int]Alteration[int]{1: {10, 10}},
		},
		{
			name:     "second assert replaces asserted value",
			seq:      []witness{a(1, 10), a(1, 11)},
			asserted: map[int]int{1: 11},
		},
		{
			name:      "later retract replaces retracted value",
			seq:       []witness{r(1, 10), r(1, 11)},
			retracted: map[int]int{1: 11},
		},
		{
			name:     "retract then assert alters",
			seq:      []witness{r(1, 10), a(1, 11)},
			asserted: map[int]int{1: 11},
			altered:  map[int]Alteration[int]{1: {10, 11}},
		},
		{
			name:    "assert then retract same value is net zero",
			seq:     []witness{a(1, 10), r(1, 10)},
			altered: map[int]Alteration[int]{1: {10, 10}},
		},
		{
			name:      "assert then retract other value keeps both",
			seq:       []witness{a(1, 10), r(1, 9)},
			asserted:  map[int]int{1: 10},
			retracted: map[int]int{1: 9},
		},
		{
			name:     "altered key keeps first old value",
			seq:      []witness{r(1, 10), a(1, 11), a(1, 12)},
			asserted: map[int]int{1: 12},
			altered:  map[int]Alteration[int]{1: {10, 12}},
		},
		{
			name:     "altered key after second retract cycle",
			seq:      []witness{r(1, 10), a(1, 11), r(1, 11), r(1, 12), a(1, 13)},
			asserted: map[int]int{1: 13},
			altered:  map[int]Alteration[int]{1: {10, 13}},
		},
		{
			name:    "altered then retract of asserted value",
			seq:     []witness{r(1, 10), a(1, 11), r(1, 11)},
			altered: map[int]Alteration[int]{1: {10, 11}},
		},
		{
			name:     "both flags on asserted key",
			seq:      []witness{a(1, 10), {1, 10, true, true}},
			asserted: map[int]int{1: 10},
			altered:  map[int]Alteration[int]{1: {10, 10}},
		},
		{
			name:     "both flags on retracted key",
			seq:      []witness{r(1, 9), {1, 10, true, true}},
			asserted: map[int]int{1: 10},
			altered:  map[int]Alteration[int]{1: {10, 10}},
		},
		{
			name:     "keys fold independently",
			seq:      []witness{a(1, 10), r(2, 20), a(2, 21)},
			asserted: map[int]int{1: 10, 2: 21},
			altered:  map[int]Alteration[int]{2: {20, 21}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := replay(tt.seq...)
			assert.Equal(t, nonNil(tt.asserted), u.asserted)
			assert.Equal(t, nonNil(tt.retracted), u.retracted)
			if tt.altered == nil {
				tt.altered = map[int]Alteration[int]{}
			}
			assert.Equal(t, tt.altered, u.altered)
		})
	}
}

func nonNil(m map[int]int) map[int]int {
	if m == nil {
		return map[int]int{}
	}
	return m
}

func TestRetractOfAssertedValueFoldsToAlteredNotNothing(t *testing.T) {
	u := replay(a(7, 1), r(7, 1))

	assert.Empty(t, u.Asserted())
	assert.Empty(t, u.Retracted())
	alt, ok := u.AlteredValue(7)
	require.True(t, ok)
	assert.Equal(t, Alteration[int]{Old: 1, New: 1}, alt)
	assert.Equal(t, []int{7}, u.Keys())
}

func randomWitnesses(rng *rand.Rand, n int) []witness {
	ws := make([]witness, n)
	for i := range ws {
		ws[i] = witness{
			key:       rng.Intn(4),
			value:     rng.Intn(3),
			isAssert:  rng.Intn(2) == 0,
			isRetract: rng.Intn(2) == 0,
		}
	}
	return ws
}

func TestWitnessInvariantHoldsForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 500; round++ {
		ws := randomWitnesses(rng, 1+rng.Intn(20))
		u := New[int, int](cmp.Compare[int])
		for _, w := range ws {
			require.NotPanics(t, func() {
				u.Witness(w.key, w.value, w.isAssert, w.isRetract)
			})
			for k, av := range u.asserted {
				if rv, ok := u.retracted[k]; ok {
					require.NotEqual(t, av, rv, "round %d key %d", round, k)
				}
				if alt, ok := u.altered[k]; ok {
					require.Equal(t, av, alt.New, "round %d key %d", round, k)
				}
			}
		}
	}
}

func TestWitnessDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 100; round++ {
		ws := randomWitnesses(rng, 30)
		first := replay(ws...)
		second := replay(ws...)
		require.True(t, first.Equal(second), "round %d", round)
		require.Equal(t, first.String(), second.String())
	}
}

func TestWitnessOrderMatters(t *testing.T) {
	forward := replay(r(1, 1), a(1, 2))
	backward := replay(a(1, 2), r(1, 1))
	assert.False(t, forward.Equal(backward))
}

func TestBucketsIterateInKeyOrder(t *testing.T) {
	u := replay(a(3, 0), a(1, 0), a(2, 0), r(9, 0), r(5, 0))
	assert.Equal(t, []Entry[int, int]{{1, 0}, {2, 0}, {3, 0}}, u.Asserted())
	assert.Equal(t, []Entry[int, int]{{5, 0}, {9, 0}}, u.Retracted())
	assert.Equal(t, []int{1, 2, 3, 5, 9}, u.Keys())
}

func TestInvariantViolationPanics(t *testing.T) {
	u := New[int, int](cmp.Compare[int])
	u.asserted[1] = 5
	u.retracted[1] = 5

	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		iv, ok := rec.(*InvariantViolation)
		require.True(t, ok)
		assert.Equal(t, "1", iv.Key)
		assert.Contains(t, iv.Error(), "both asserted and retracted")
	}()
	u.check(1)
}
