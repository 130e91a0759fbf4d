package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilIsNoOp(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("/api/books", "GET", "200", time.Millisecond)
		m.RecordRateLimited()
		m.RecordInventoryOp("reserve", "ok", time.Millisecond)
		m.RecordLockWait(time.Millisecond, false)
		m.RecordConflictRetry("reserve")
		m.RecordNotification("reservation_created", OutcomeSuccess)
		m.SetNotificationQueueDepth(3)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_RecordsValues(t *testing.T) {
	m := NewMetrics()

	m.RecordInventoryOp("reserve", "ok", time.Millisecond)
	m.RecordInventoryOp("reserve", "ok", time.Millisecond)
	m.RecordLockWait(time.Millisecond, false)
	m.RecordConflictRetry("return")
	m.RecordNotification("due_reminder", OutcomeDropped)
	m.SetNotificationQueueDepth(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.InventoryOperations.WithLabelValues("reserve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookLockBusy))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VersionConflictRetries.WithLabelValues("return")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("due_reminder", OutcomeDropped)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.NotificationQueue))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
