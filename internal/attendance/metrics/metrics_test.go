package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegisterOnIsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementRecordsCreated("MANUAL", 3)
	m.IncrementCardScan("CHECKED_IN")
	m.IncrementTokenIssued()
	m.IncrementTokenValidation("expired")
	m.IncrementBulkRecorded("headcount")
	m.AddTokensSwept(2)
	m.ObserveStatistics(time.Now())

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsCreated.WithLabelValues("MANUAL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CardScans.WithLabelValues("CHECKED_IN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenValidations.WithLabelValues("expired")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TokensSwept))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StatisticsDuration))
}
