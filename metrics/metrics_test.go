package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	assert.NotNil(t, TokensIssued)
	assert.NotNil(t, Validations)
	assert.NotNil(t, ValidationDuration)
	assert.NotNil(t, ProtectionViolations)
	assert.NotNil(t, StoreErrors)
	assert.NotNil(t, StoreSwept)
	assert.NotNil(t, Notifications)
}

func TestValidationsCountsPerResult(t *testing.T) {
	before := testutil.ToFloat64(Validations.WithLabelValues("metrics_test"))
	Validations.WithLabelValues("metrics_test").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Validations.WithLabelValues("metrics_test")))
}
