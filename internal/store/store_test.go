package store_test

import (
	"testing"

	"github.com/dominikbraun/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/antstemplate/internal/store"
)

func newStepGraph(t *testing.T, steps ...string) (store.CustomStore[string, string], graph.Graph[string, string]) {
	t.Helper()

	st := store.NewMemoryStore[string, string]()
	g := graph.NewWithStore(graph.StringHash, graph.Store[string, string](st), graph.Directed())
	for _, step := range steps {
		require.NoError(t, g.AddVertex(step))
	}

	return st, g
}

func TestListVerticesInsertionOrder(t *testing.T) {
	t.Parallel()

	st, _ := newStepGraph(t, "warps", "jacobian", "collect")

	got, err := st.ListVertices()
	require.NoError(t, err)
	assert.Equal(t, []string{"warps", "jacobian", "collect"}, got)

	count, err := st.VertexCount()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestUpdateVertex(t *testing.T) {
	t.Parallel()

	st, _ := newStepGraph(t, "mirror")

	st.UpdateVertex("mirror", graph.VertexAttribute("xlabel", "2s"))
	st.UpdateVertex("missing", graph.VertexAttribute("xlabel", "1s"))

	_, props, err := st.Vertex("mirror")
	require.NoError(t, err)
	assert.Equal(t, "2s", props.Attributes["xlabel"])

	_, _, err = st.Vertex("missing")
	assert.ErrorIs(t, err, graph.ErrVertexNotFound)
}

func TestEdges(t *testing.T) {
	t.Parallel()

	st, g := newStepGraph(t, "labels", "digitize", "collect")
	require.NoError(t, g.AddEdge("labels", "digitize"))
	require.NoError(t, g.AddEdge("digitize", "collect"))
	assert.ErrorIs(t, g.AddEdge("labels", "digitize"), graph.ErrEdgeAlreadyExists)

	require.NoError(t, g.UpdateEdge("labels", "digitize", graph.EdgeAttribute("label", "3ms")))
	edge, err := st.Edge("labels", "digitize")
	require.NoError(t, err)
	assert.Equal(t, "3ms", edge.Properties.Attributes["label"])

	edges, err := st.ListEdges()
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	assert.ErrorIs(t, st.RemoveVertex("digitize"), graph.ErrVertexHasEdges)
	require.NoError(t, st.RemoveEdge("labels", "digitize"))
	require.NoError(t, st.RemoveEdge("digitize", "collect"))
	require.NoError(t, st.RemoveVertex("digitize"))

	_, err = st.Edge("labels", "digitize")
	assert.ErrorIs(t, err, graph.ErrEdgeNotFound)
}

func TestCreatesCycle(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		parent string
		child  string
		want   bool
	}{
		"back to root": {parent: "sink", child: "root", want: true},
		"self":         {parent: "step", child: "step", want: true},
		"forward":      {parent: "root", child: "sink", want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			st, g := newStepGraph(t, "root", "step", "sink")
			require.NoError(t, g.AddEdge("root", "step"))
			require.NoError(t, g.AddEdge("step", "sink"))

			got, err := st.CreatesCycle(tc.parent, tc.child)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	st, _ := newStepGraph(t, "root")
	_, err := st.CreatesCycle("root", "missing")
	assert.ErrorIs(t, err, graph.ErrVertexNotFound)
}
