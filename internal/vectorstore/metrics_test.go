package vectorstore_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/negmine/internal/vectorstore"
)

// Metrics are process-global, so assertions work on deltas.

func TestRecordUpsert(t *testing.T) {
	beforeOps := testutil.ToFloat64(vectorstore.UpsertsTotal.WithLabelValues("testprov", "success"))
	beforePoints := testutil.ToFloat64(vectorstore.PointsUpserted.WithLabelValues("testprov"))

	vectorstore.RecordUpsert("testprov", 64, true)

	assert.Equal(t, beforeOps+1, testutil.ToFloat64(vectorstore.UpsertsTotal.WithLabelValues("testprov", "success")))
	assert.Equal(t, beforePoints+64, testutil.ToFloat64(vectorstore.PointsUpserted.WithLabelValues("testprov")))
}

func TestRecordUpsert_FailureCountsNoPoints(t *testing.T) {
	beforeErrs := testutil.ToFloat64(vectorstore.UpsertsTotal.WithLabelValues("testprov", "error"))
	beforePoints := testutil.ToFloat64(vectorstore.PointsUpserted.WithLabelValues("testprov"))

	vectorstore.RecordUpsert("testprov", 64, false)

	assert.Equal(t, beforeErrs+1, testutil.ToFloat64(vectorstore.UpsertsTotal.WithLabelValues("testprov", "error")))
	assert.Equal(t, beforePoints, testutil.ToFloat64(vectorstore.PointsUpserted.WithLabelValues("testprov")))
}

func TestRecordQuery(t *testing.T) {
	before := testutil.ToFloat64(vectorstore.QueriesTotal.WithLabelValues("testprov", "success"))

	vectorstore.RecordQuery("testprov", true)
	vectorstore.RecordQuery("testprov", true)

	assert.Equal(t, before+2, testutil.ToFloat64(vectorstore.QueriesTotal.WithLabelValues("testprov", "success")))
}

func TestObserveOperation(t *testing.T) {
	// Histogram observation must not panic; value checks need a
	// registry scrape, which RecordUpsert tests already cover.
	vectorstore.ObserveOperation("testprov", "upsert", 42*time.Millisecond)
}
