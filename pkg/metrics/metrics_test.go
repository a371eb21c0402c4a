package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackTransition(t *testing.T) {
	before := testutil.ToFloat64(queueTransitions.WithLabelValues("confirm_arrival", "applied"))
	TrackTransition("confirm_arrival", "applied")
	after := testutil.ToFloat64(queueTransitions.WithLabelValues("confirm_arrival", "applied"))
	assert.Equal(t, before+1, after)
}

func TestLateAlarmGauge(t *testing.T) {
	base := testutil.ToFloat64(lateAlarmsActive)
	LateAlarmStarted()
	LateAlarmStarted()
	LateAlarmStopped()
	assert.Equal(t, base+1, testutil.ToFloat64(lateAlarmsActive))
	LateAlarmStopped()
}
