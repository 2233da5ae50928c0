package metrics

import (
	"reflect"
	"testing"
)

func TestFlattenStatuses(t *testing.T) {
	tests := []struct {
		name     string
		statuses map[int]uint64
		want     []StatusRow
	}{
		{
			name:     "nil statuses",
			statuses: nil,
			want:     nil,
		},
		{
			name:     "empty statuses",
			statuses: map[int]uint64{},
			want:     nil,
		},
		{
			name:     "single code",
			statuses: map[int]uint64{200: 10},
			want:     []StatusRow{{Code: 200, Count: 10}},
		},
		{
			name:     "sorted by count desc",
			statuses: map[int]uint64{200: 10, 500: 5, 404: 20},
			want: []StatusRow{
				{Code: 404, Count: 20},
				{Code: 200, Count: 10},
				{Code: 500, Count: 5},
			},
		},
		{
			name:     "tie breaking by code",
			statuses: map[int]uint64{503: 3, 200: 3, StatusTransportError: 3},
			want: []StatusRow{
				{Code: 200, Count: 3},
				{Code: 503, Count: 3},
				{Code: StatusTransportError, Count: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlattenStatuses(tt.statuses)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FlattenStatuses() = %v, want %v", got, tt.want)
			}
		})
	}
}
