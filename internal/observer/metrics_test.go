package observer

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestSanitizeErrorType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "none"},
		{"remote contract mismatch: 405", "contract_mismatch"},
		{"database error: connection refused", "database"},
		{"validation failed: field 'email'", "validation"},
		{"resource not found", "not_found"},
		{"context deadline exceeded", "timeout"},
		{"remote service error: status 500", "remote"},
		{"panic recovered: boom", "panic"},
		{"something else", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeErrorType(tt.in))
		})
	}
}

func TestHelpersRespectEnabledFlag(t *testing.T) {
	InitMetrics(false)
	before := counterValue(t, IntakesSubmittedTotal.WithLabelValues("accepted"))
	IncIntakeSubmitted("accepted")
	assert.Equal(t, before, counterValue(t, IntakesSubmittedTotal.WithLabelValues("accepted")))

	InitMetrics(true)
	defer InitMetrics(false)
	IncIntakeSubmitted("accepted")
	assert.Equal(t, before+1, counterValue(t, IntakesSubmittedTotal.WithLabelValues("accepted")))

	stageBefore := counterValue(t, ReconcileStageTotal.WithLabelValues("upsert", "remote"))
	IncReconcileStage("upsert", errors.New("remote service error: status 500"))
	assert.Equal(t, stageBefore+1, counterValue(t, ReconcileStageTotal.WithLabelValues("upsert", "remote")))

	ObserveLeadSystemRequest("upsert", "POST", "json", 0, time.Millisecond)
	assert.True(t, Enabled())
}
