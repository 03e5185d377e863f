package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// counted wraps a closure and counts calls.
type counted struct {
	*Func
	calls int
}

func newCounted(name string, cols int, deps []Dependency, call func(ev Eval, out *mat.Dense) error) *counted {
	c := &counted{}
	c.Func = NewFunc(name, cols, deps, func(ev Eval, out *mat.Dense) error {
		c.calls++
		return call(ev, out)
	})
	return c
}

func fill(v float64) func(Eval, *mat.Dense) error {
	return func(_ Eval, out *mat.Dense) error {
		r, c := out.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				out.Set(i, j, v)
			}
		}
		return nil
	}
}

func TestNode_DoubleReadEvaluatesOnce(t *testing.T) {
	m := NewMap(3)
	defer m.Release()

	f := newCounted("f", 2, nil, fill(1.5))
	n, err := m.Get(f)
	require.NoError(t, err)

	v1, err := n.Value()
	require.NoError(t, err)
	v2, err := n.Value()
	require.NoError(t, err)

	assert.Equal(t, 1, f.calls)
	assert.Equal(t, 1, n.Evaluations())
	assert.Same(t, v1, v2)
	r, c := v1.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 1.5, v1.At(2, 1))
}

func TestNode_ElementInvalidationCascades(t *testing.T) {
	m := NewMap(2)
	defer m.Release()

	a := newCounted("a", 1, []Dependency{OnToken(Element)}, func(ev Eval, out *mat.Dense) error {
		out.Set(0, 0, float64(ev.Element()))
		return nil
	})
	b := newCounted("b", 1, []Dependency{On(a)}, func(ev Eval, out *mat.Dense) error {
		out.Set(0, 0, ev.Input(0).At(0, 0)*10)
		return nil
	})
	c := newCounted("c", 1, []Dependency{On(b), OnToken(Element)}, func(ev Eval, out *mat.Dense) error {
		out.Set(0, 0, ev.Input(0).At(0, 0)+ev.Input(1).At(0, 0))
		return nil
	})

	m.SetElement(1)
	nc, err := m.Get(c)
	require.NoError(t, err)
	v, err := nc.Value()
	require.NoError(t, err)
	assert.Equal(t, 11.0, v.At(0, 0))

	na, _ := m.Get(a)
	nb, _ := m.Get(b)
	assert.True(t, na.Valid() && nb.Valid() && nc.Valid())

	m.SetElement(2)
	assert.False(t, na.Valid())
	assert.False(t, nb.Valid())
	assert.False(t, nc.Valid())

	v, err = nc.Value()
	require.NoError(t, err)
	assert.Equal(t, 22.0, v.At(0, 0))
	assert.Equal(t, 2, a.calls)
	assert.Equal(t, 2, b.calls)
	assert.Equal(t, 2, c.calls)

	elem, err := m.Lookup(Element)
	require.NoError(t, err)
	assert.True(t, nc.DependsOn(na))
	assert.True(t, nc.DependsOn(elem))
	assert.Equal(t, 3, elem.NumDependents())
}

func TestNode_SetDirectSkipsEvaluator(t *testing.T) {
	m := NewMap(1)
	defer m.Release()

	src := newCounted("src", 1, nil, fill(1))
	dst := newCounted("dst", 1, []Dependency{On(src)}, func(ev Eval, out *mat.Dense) error {
		out.Set(0, 0, ev.Input(0).At(0, 0)+1)
		return nil
	})
	ns, err := m.Get(src)
	require.NoError(t, err)
	nd, err := m.Get(dst)
	require.NoError(t, err)

	v, err := nd.Value()
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.At(0, 0))

	ns.Set(mat.NewDense(1, 1, []float64{41}))
	assert.True(t, ns.Valid())
	assert.False(t, nd.Valid())
	v, err = nd.Value()
	require.NoError(t, err)
	assert.Equal(t, 42.0, v.At(0, 0))
	assert.Equal(t, 1, src.calls)
}

func TestNode_ProxyAliasesStorage(t *testing.T) {
	m := NewMap(2)
	defer m.Release()

	u := m.BindValue(Solution)
	data := []float64{1, 2}
	u.SetProxy(mat.NewDense(2, 1, data))

	double := NewFunc("double", 1, []Dependency{OnToken(Solution)}, func(ev Eval, out *mat.Dense) error {
		out.Scale(2, ev.Input(0))
		return nil
	})
	n, err := m.Get(double)
	require.NoError(t, err)
	v, err := n.Value()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, mat.Col(nil, 0, v))

	data[1] = 5
	u.SetProxy(mat.NewDense(2, 1, data))
	v, err = n.Value()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 10}, mat.Col(nil, 0, v))
}

func TestMap_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *Map) (*Node, error)
		want  error
	}{
		{
			name: "unbound token",
			setup: func(m *Map) (*Node, error) {
				return m.Get(NewFunc("needs-normals", 3, []Dependency{OnToken(Normals)}, fill(0)))
			},
			want: ErrUnboundToken,
		},
		{
			name: "missing secondary",
			setup: func(m *Map) (*Node, error) {
				return m.Get(NewFunc("right", 1, []Dependency{OnToken(Solution).In(2)}, fill(0)))
			},
			want: ErrNoSecondary,
		},
		{
			name: "consecutive secondary",
			setup: func(m *Map) (*Node, error) {
				left := m.NewSecondary()
				left.NewSecondary().BindValue(Solution)
				inner := NewFunc("inner", 1, []Dependency{OnToken(Solution).In(1)}, fill(0))
				outer := NewFunc("outer", 1, []Dependency{On(inner).In(1)}, fill(0))
				return m.Get(outer)
			},
			want: ErrConsecutiveSecondary,
		},
		{
			name: "consecutive secondary through a provider",
			setup: func(m *Map) (*Node, error) {
				left := m.NewSecondary()
				left.NewSecondary().BindValue(Coordinates)
				left.Provide(Solution, NewFunc("shifted-solution", 1,
					[]Dependency{OnToken(Coordinates).In(1)}, fill(0)))
				outer := NewFunc("outer", 1, []Dependency{OnToken(Solution).In(1)}, fill(0))
				return m.Get(outer)
			},
			want: ErrConsecutiveSecondary,
		},
		{
			name: "value not set",
			setup: func(m *Map) (*Node, error) {
				m.BindValue(Solution)
				n, err := m.Get(NewFunc("u", 1, []Dependency{OnToken(Solution)}, fill(0)))
				if err != nil {
					return nil, err
				}
				_, err = n.Value()
				return n, err
			},
			want: ErrNotSet,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMap(1)
			defer m.Release()
			_, err := tt.setup(m)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestMap_SharesUnshadowedFunctions(t *testing.T) {
	root := NewMap(2)
	defer root.Release()
	root.Provide(Coordinates, Constant("xyz", 1, 2, 3))

	left := root.NewSecondary()
	right := root.NewSecondary()
	left.BindValue(Solution).Set(mat.NewDense(2, 1, []float64{1, 1}))
	right.BindValue(Solution).Set(mat.NewDense(2, 1, []float64{3, 3}))

	radius := NewFunc("radius", 1, []Dependency{OnToken(Coordinates)}, func(ev Eval, out *mat.Dense) error {
		x := ev.Input(0)
		for i := 0; i < ev.NumPoints(); i++ {
			out.Set(i, 0, x.At(i, 0)+x.At(i, 1)+x.At(i, 2))
		}
		return nil
	})
	scaled := NewFunc("scaled", 1, []Dependency{OnToken(Solution), On(radius)}, func(ev Eval, out *mat.Dense) error {
		out.MulElem(ev.Input(0), ev.Input(1))
		return nil
	})

	lr, err := left.Get(radius)
	require.NoError(t, err)
	rr, err := right.Get(radius)
	require.NoError(t, err)
	assert.Same(t, lr, rr)
	assert.Same(t, root, lr.Owner())

	ls, err := left.Get(scaled)
	require.NoError(t, err)
	rs, err := right.Get(scaled)
	require.NoError(t, err)
	assert.NotSame(t, ls, rs)

	lv, err := ls.Value()
	require.NoError(t, err)
	rv, err := rs.Value()
	require.NoError(t, err)
	assert.Equal(t, 6.0, lv.At(0, 0))
	assert.Equal(t, 18.0, rv.At(1, 0))
}

func TestMap_SubstitutionScope(t *testing.T) {
	boundary := NewMap(2)
	defer boundary.Release()
	boundary.BindValue(Solution).Set(mat.NewDense(2, 1, []float64{1, 2}))
	boundary.Provide(Normals, Constant("n", 1, 0, 0))

	outside := NewFunc("outside", 1, []Dependency{OnToken(Solution)}, func(ev Eval, out *mat.Dense) error {
		out.Scale(-1, ev.Input(0))
		return nil
	})
	jump := NewFunc("jump", 1, []Dependency{
		OnToken(Solution).In(1),
		OnToken(Solution).In(2),
		OnToken(Normals),
	}, func(ev Eval, out *mat.Dense) error {
		out.Sub(ev.Input(1), ev.Input(0))
		return nil
	})

	outNode, err := boundary.Get(outside)
	require.NoError(t, err)
	ext, err := boundary.Substitute(map[Token]*Node{Solution: outNode})
	require.NoError(t, err)
	pair, err := boundary.Pair(boundary, ext)
	require.NoError(t, err)

	jn, err := pair.Get(jump)
	require.NoError(t, err)
	v, err := jn.Value()
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, -4}, mat.Col(nil, 0, v))

	_, err = boundary.Get(jump)
	assert.ErrorIs(t, err, ErrNoSecondary)

	// the outside state follows the interior solution through the alias
	sol, err := boundary.Lookup(Solution)
	require.NoError(t, err)
	sol.Set(mat.NewDense(2, 1, []float64{3, 3}))
	assert.False(t, jn.Valid())
	v, err = jn.Value()
	require.NoError(t, err)
	assert.Equal(t, []float64{-6, -6}, mat.Col(nil, 0, v))
}

func TestMap_Release(t *testing.T) {
	m := NewMap(1)
	n, err := m.Get(Constant("one", 1))
	require.NoError(t, err)
	m.Release()

	_, err = n.Value()
	assert.ErrorIs(t, err, ErrReleased)
	_, err = m.Get(Constant("two", 2))
	assert.ErrorIs(t, err, ErrReleased)
}
