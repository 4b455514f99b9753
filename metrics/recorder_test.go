package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder("test", reg)
	require.NoError(t, err)

	r.SetProviders(2)
	r.BytesWritten("mem", 5)
	r.BytesWritten("mem", 3)
	r.ProviderError("file", "post_stream")
	r.WriteSettled("post", time.Now(), nil)
	r.WriteSettled("post", time.Now(), errors.New("boom"))

	assert.Equal(t, float64(2), testutil.ToFloat64(r.providers))
	assert.Equal(t, float64(8), testutil.ToFloat64(r.bytesWritten.WithLabelValues("mem")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.providerErrors.WithLabelValues("file", "post_stream")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.writes.WithLabelValues("post", "failure")))
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.SetProviders(1)
		r.BytesWritten("mem", 1)
		r.BytesRead("mem", 1)
		r.ProviderError("mem", "get")
		r.WriteSettled("post", time.Now(), nil)
	})
}

func TestRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder("test", reg)
	require.NoError(t, err)
	_, err = NewRecorder("test", reg)
	assert.Error(t, err)
}
