package config_test

import (
	"testing"
	"time"

	"github.com/utilitysc/vsd-monitor/internal/adapter/config"
)

const fleetYAML = `
version: "1.0"
units:
  - { id: 1, name: CT_9 }
  - { id: 2, name: CT_10 }
layout:
  blocks:
    - name: drive
      start: 40103
      count: 3
      registers:
        - { divisor: 10, min: 0, max: 50 }
        - { divisor: 10, min: 0, max: 200 }
        - { divisor: 10, min: -50, max: 100 }
  metrics:
    - { name: frequency, table: vsd_freq, block: drive, offset: 0 }
    - { name: current, table: vsd_current, block: drive, offset: 1 }
    - { name: temperature, table: vsd_temp, block: drive, offset: 2 }
  status:
    start: 10001
    run_bit: 2
    fault_bit: 3
    alarm_bit: 7
    run_table: vsd_run
    fault_table: vsd_fault
    alarm_table: vsd_alarm
`

func TestParseFleet(t *testing.T) {
	registry, layout, err := config.ParseFleet([]byte(fleetYAML))
	if err != nil {
		t.Fatal(err)
	}

	if registry.Len() != 2 {
		t.Errorf("fleet size: got %d, want 2", registry.Len())
	}
	if got := registry.NameOf(2); got != "CT_10" {
		t.Errorf("NameOf(2): got %q", got)
	}

	if got := layout.Blocks[0].WireAddress(); got != 102 {
		t.Errorf("block wire address: got %d, want 102", got)
	}
	if got := layout.Status.WireAddress(); got != 0 {
		t.Errorf("status wire address: got %d, want 0", got)
	}
	if got := len(layout.Tables()); got != 6 {
		t.Errorf("tables: got %d, want 6", got)
	}
}

func TestParseFleet_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "malformed yaml",
			yaml: "units: [",
		},
		{
			name: "no units",
			yaml: `
units: []
layout:
  blocks:
    - name: drive
      start: 40103
      count: 1
      registers:
        - { divisor: 10, min: 0, max: 50 }
  metrics:
    - { name: frequency, table: vsd_freq, block: drive, offset: 0 }
  status:
    run_table: vsd_run
    fault_table: vsd_fault
    alarm_table: vsd_alarm
`,
		},
		{
			name: "bad metric offset",
			yaml: `
units:
  - { id: 1, name: CT_9 }
layout:
  blocks:
    - name: drive
      start: 40103
      count: 1
      registers:
        - { divisor: 10, min: 0, max: 50 }
  metrics:
    - { name: frequency, table: vsd_freq, block: drive, offset: 4 }
  status:
    run_table: vsd_run
    fault_table: vsd_fault
    alarm_table: vsd_alarm
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := config.ParseFleet([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestConfig_ReadTimeout(t *testing.T) {
	tests := []struct {
		name      string
		explicit  time.Duration
		interval  time.Duration
		fleetSize int
		want      time.Duration
	}{
		{
			name:      "explicit timeout wins",
			explicit:  2 * time.Second,
			interval:  time.Minute,
			fleetSize: 13,
			want:      2 * time.Second,
		},
		{
			name:      "derived from interval and fleet size",
			interval:  26 * time.Second,
			fleetSize: 13,
			want:      2 * time.Second,
		},
		{
			name:      "clamped to lower bound",
			interval:  time.Second,
			fleetSize: 100,
			want:      time.Second,
		},
		{
			name:      "clamped to upper bound",
			interval:  10 * time.Minute,
			fleetSize: 2,
			want:      5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Config{}
			cfg.Fieldbus.Timeout = tt.explicit
			cfg.Polling.Interval = tt.interval
			if got := cfg.ReadTimeout(tt.fleetSize); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
