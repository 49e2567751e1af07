package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCacheResultIncrementsHitsAndMisses(t *testing.T) {
	CacheHits.Reset()
	CacheMisses.Reset()

	RecordCacheResult("memory", true)
	RecordCacheResult("memory", false)

	assert.Equal(t, float64(1), testutil.ToFloat64(CacheHits.WithLabelValues("memory")))
	assert.Equal(t, float64(1), testutil.ToFloat64(CacheMisses.WithLabelValues("memory")))
}

func TestRecordMigrationNoopVsMigrated(t *testing.T) {
	CapacityCheckResults.Reset()
	CacheItemsMigrated.Add(0) // ensure counter exists

	RecordMigration(0)
	RecordMigration(5)

	assert.Equal(t, float64(1), testutil.ToFloat64(CapacityCheckResults.WithLabelValues("l1", "noop")))
	assert.Equal(t, float64(1), testutil.ToFloat64(CapacityCheckResults.WithLabelValues("l1", "migrated")))
}

func TestSetFallbackActiveTogglesGauge(t *testing.T) {
	SetFallbackActive(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(CacheFallbackActive))

	SetFallbackActive(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(CacheFallbackActive))
}
