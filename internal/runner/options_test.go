package runner

import (
	"testing"

	"golang.org/x/time/rate"
)

func TestOptionsNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    Options
		validate func(*testing.T, Options)
	}{
		{
			name:  "defaults",
			input: Options{},
			validate: func(t *testing.T, o Options) {
				if o.Concurrency != 1 {
					t.Errorf("Concurrency = %d, want 1", o.Concurrency)
				}
				if o.BatchSize != DefaultBatchSize {
					t.Errorf("BatchSize = %d, want %d", o.BatchSize, DefaultBatchSize)
				}
				if o.LimiterFactory == nil {
					t.Error("LimiterFactory should not be nil")
				}
				if o.Logger == nil {
					t.Error("Logger should not be nil")
				}
			},
		},
		{
			name: "negative values corrected",
			input: Options{
				Concurrency:   -5,
				BatchSize:     -1,
				RatePerSecond: -1,
			},
			validate: func(t *testing.T, o Options) {
				if o.Concurrency != 1 {
					t.Errorf("Concurrency = %d, want 1", o.Concurrency)
				}
				if o.BatchSize != DefaultBatchSize {
					t.Errorf("BatchSize = %d, want %d", o.BatchSize, DefaultBatchSize)
				}
				if o.RatePerSecond != 0 {
					t.Errorf("RatePerSecond = %d, want 0", o.RatePerSecond)
				}
			},
		},
		{
			name:  "explicit values kept",
			input: Options{Concurrency: 8, BatchSize: 25, RatePerSecond: 100},
			validate: func(t *testing.T, o Options) {
				if o.Concurrency != 8 || o.BatchSize != 25 || o.RatePerSecond != 100 {
					t.Errorf("unexpected options %+v", o)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := tt.input
			opt.normalize()
			tt.validate(t, opt)
		})
	}
}

func TestDefaultLimiterFactory(t *testing.T) {
	opt := Options{}
	opt.normalize()

	unlimited := opt.LimiterFactory(0)
	if unlimited.Limit() != rate.Inf {
		t.Errorf("expected infinite limit, got %v", unlimited.Limit())
	}
	limited := opt.LimiterFactory(50)
	if limited.Limit() != rate.Limit(50) {
		t.Errorf("expected limit 50, got %v", limited.Limit())
	}
	if limited.Burst() != 50 {
		t.Errorf("expected burst 50, got %d", limited.Burst())
	}
}
