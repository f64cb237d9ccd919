package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeVolume(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"mount point", "/mnt/usb", "/mnt/usb"},
		{"deep path", "/media/alice/USB/DCIM/100", "/media/alice/USB"},
		{"trailing slash", "/Volumes/Evidence/", "/Volumes/Evidence"},
		{"relative", "evidence/a/b/c", "evidence/a/b"},
		{"root", "/", "/"},
		{"empty string", "   ", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeVolume(tc.input))
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()
	require.NotNil(t, httpRequestsTotal)
	require.NotNil(t, throttleDelaySeconds)

	ObserveThrottleDelay("/mnt/usb/a/b", 20*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(throttleDelaySeconds))

	before := testutil.ToFloat64(historyErrorsTotal.WithLabelValues("append"))
	ObserveHistoryError("append")
	assert.InDelta(t, before+1, testutil.ToFloat64(historyErrorsTotal.WithLabelValues("append")), 1e-9)

	ObserveReport("json", nil)
	ObserveReport("json", errors.New("disk full"))
	assert.InDelta(t, 1, testutil.ToFloat64(reportsTotal.WithLabelValues("json", "error")), 1e-9)

	IncStreamClients()
	IncStreamClients()
	DecStreamClients()
	assert.InDelta(t, 1, testutil.ToFloat64(streamClients), 1e-9)
	DecStreamClients()
}

// Fuzz test for SanitizeVolume.
func FuzzSanitizeVolume(f *testing.F) {
	for _, tc := range []string{"/mnt/usb", "", "../../etc", "C:\\evidence"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeVolume(orig) == "" {
			t.Errorf("SanitizeVolume(%q) returned an empty string", orig)
		}
	})
}
