package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	req := require.New(t)
	c := NewCollector("test")

	c.SetOnline(3)
	c.Admission(AdmissionAccepted)
	c.Admission(AdmissionRejected)
	c.Admission(AdmissionRejected)
	c.MessageRouted(OutcomeOffline)
	c.TypingRouted(OutcomeDelivered)
	c.PresenceBroadcast(true)
	c.DeliveryFailed("new_message")
	c.ObserveHTTP(http.MethodGet, "/api/users", http.StatusOK, 5*time.Millisecond)

	req.Equal(3.0, testutil.ToFloat64(c.OnlineUsers))
	req.Equal(2.0, testutil.ToFloat64(c.Admissions.WithLabelValues(AdmissionRejected)))
	req.Equal(1.0, testutil.ToFloat64(c.Messages.WithLabelValues(OutcomeOffline)))
	req.Equal(1.0, testutil.ToFloat64(c.TypingSignals.WithLabelValues(OutcomeDelivered)))
	req.Equal(1.0, testutil.ToFloat64(c.PresenceBroadcasts.WithLabelValues("true")))
	req.Equal(1.0, testutil.ToFloat64(c.DeliveryFailures.WithLabelValues("new_message")))
	req.Equal(1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/api/users", "200")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector

	require.NotPanics(t, func() {
		c.SetOnline(1)
		c.Admission(AdmissionAccepted)
		c.MessageRouted(OutcomeDelivered)
		c.TypingRouted(OutcomeOffline)
		c.PresenceBroadcast(false)
		c.DeliveryFailed("user_status")
		c.ObserveHTTP("GET", "/", 200, time.Millisecond)
	})
	require.Nil(t, c.Registry())
}

func TestCollector_Handler(t *testing.T) {
	req := require.New(t)
	c := NewCollector("pairchat")
	c.SetOnline(2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	req.Equal(http.StatusOK, rec.Code)
	req.True(strings.Contains(rec.Body.String(), "pairchat_online_users 2"))
}
