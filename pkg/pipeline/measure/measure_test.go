package measure_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/askiada/antstemplate/pkg/pipeline/measure"
)

func TestDefaultMetric(t *testing.T) {
	t.Parallel()

	m := measure.NewDefaultMeasure()
	mt := m.AddMetric("step", 2)
	assert.Same(t, mt, m.AddMetric("step", 4))
	assert.Same(t, mt, m.GetMetric("step"))

	mt.AddDuration(2 * time.Millisecond)
	mt.AddDuration(4 * time.Millisecond)
	mt.AddTransportDuration("root", 4*time.Millisecond)
	mt.AddTransportDuration("root", 8*time.Millisecond)

	assert.Equal(t, int64(2), mt.Count())
	assert.Equal(t, 3*time.Millisecond, mt.AVGDuration())
	// averaged over the two goroutines of the step
	assert.Equal(t, 3*time.Millisecond, mt.AVGTransportDuration()["root"].Elapsed)
	// reading the average twice must not change it
	assert.Equal(t, 3*time.Millisecond, mt.AVGTransportDuration()["root"].Elapsed)
}

func TestReport(t *testing.T) {
	t.Parallel()

	m := measure.NewDefaultMeasure()
	m.AddMetric("b", 1).SetTotalDuration(time.Second)
	m.AddMetric("a", 1).AddDuration(time.Millisecond)

	reports := measure.Report(m)
	assert.Len(t, reports, 2)
	assert.Equal(t, "a", reports[0].Name)
	assert.Equal(t, int64(1), reports[0].Count)
	assert.Equal(t, "b", reports[1].Name)
	assert.Equal(t, time.Second, reports[1].Total)
}
