package core

import (
	"testing"
	"time"
)

func TestNewConfig_intervals(t *testing.T) {
	t.Setenv("ENV", "test")

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "set", value: "3s", want: 3 * time.Second},
		{name: "zero", value: "0s", want: defaultProbeInterval},
		{name: "negative", value: "-5s", want: defaultProbeInterval},
		{name: "garbage", value: "soon", want: defaultProbeInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_SYNC_PROBEINTERVAL", tt.value)
			if got := NewConfig().Sync.ProbeInterval; got != tt.want {
				t.Errorf("NewConfig() probe interval = %v, want %v", got, tt.want)
			}
		})
	}

	t.Setenv("TEST_KIOSK_TICKINTERVAL", "0")
	t.Setenv("TEST_SYNC_RETRYINTERVAL", "-1m")
	conf := NewConfig()
	if conf.Kiosk.TickInterval != defaultTickInterval {
		t.Errorf("NewConfig() tick interval = %v, want %v", conf.Kiosk.TickInterval, defaultTickInterval)
	}
	if conf.Sync.RetryInterval != defaultRetryInterval {
		t.Errorf("NewConfig() retry interval = %v, want %v", conf.Sync.RetryInterval, defaultRetryInterval)
	}
}
