package metrics

import (
	"testing"

	"github.com/plate-filler/backend/internal/allocator"
	"github.com/plate-filler/backend/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	set := models.ExperimentSet{{Samples: []string{"s1", "s2"}, Reagents: []string{"r1", "r2"}, Replicas: 1}}
	res, err := allocator.Allocate(set, models.Format96, 1, allocator.Options{})
	require.NoError(t, err)
	c.Observe(res, nil)

	_, err = allocator.Allocate(set, models.PlateFormat{Rows: 1, Columns: 1}, 1, allocator.Options{})
	require.Error(t, err)
	c.Observe(nil, err)
	c.Observe(nil, &allocator.ValidationError{Field: "plateSize"})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("ok", models.ByReagent.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("capacity_exceeded", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("invalid", "")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.wellsPlaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.platesUsed))
	assert.Equal(t, 2, testutil.CollectAndCount(c.penalty))
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() { c.Observe(nil, nil) })
}
