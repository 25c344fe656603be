package monitoring

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPrediction(t *testing.T) {
	m := NewMetrics()
	m.RecordPrediction(true, 81.5, time.Millisecond, false)
	m.RecordPrediction(false, 12, time.Millisecond, true)
	m.RecordPrediction(true, 64, time.Millisecond, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.predictions.WithLabelValues("approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.predictions.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits))
}

func TestRecordReloadKeepsSingleModelInfo(t *testing.T) {
	m := NewMetrics()
	m.RecordReload("v1", "random_forest", map[string]float64{"accuracy": 0.7, "recall": 0.5}, nil)
	m.RecordReload("v2", "random_forest", map[string]float64{"accuracy": 0.8}, nil)
	m.RecordReload("", "", nil, errors.New("corrupt"))

	assert.Equal(t, 1, testutil.CollectAndCount(m.modelInfo))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.modelInfo.WithLabelValues("v2", "random_forest")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reloads.WithLabelValues("error")))

	// scores follow the serving model; the failed load does not clear them
	assert.Equal(t, 1, testutil.CollectAndCount(m.modelQuality))
	assert.Equal(t, 0.8, testutil.ToFloat64(m.modelQuality.WithLabelValues("accuracy")))
}

func TestHandlerExposition(t *testing.T) {
	m := NewMetrics()
	m.RecordError("unencodable")
	m.ObserveHTTP("POST", "/api/predict", 422, 2*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `loan_prediction_errors_total{kind="unencodable"} 1`))
	assert.True(t, strings.Contains(string(body), `loan_http_requests_total{method="POST",route="/api/predict",status="422"} 1`))
}
