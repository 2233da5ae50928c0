package metrics

import "sort"

// StatusTransportError is recorded as the status of a request that never
// produced an HTTP response.
const StatusTransportError = 599

// StatusRow represents the aggregated count for one status code.
type StatusRow struct {
	Code  int    `json:"code" yaml:"code"`
	Count uint64 `json:"count" yaml:"count"`
}

// FlattenStatuses converts a status histogram into a sorted slice of rows.
// Rows are sorted by descending count, then by code for stability.
func FlattenStatuses(statuses map[int]uint64) []StatusRow {
	if len(statuses) == 0 {
		return nil
	}
	rows := make([]StatusRow, 0, len(statuses))
	for code, count := range statuses {
		rows = append(rows, StatusRow{Code: code, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Code < rows[j].Code
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// StatusRows returns the accumulator's status histogram as sorted rows.
func (a *Accumulator) StatusRows() []StatusRow {
	return FlattenStatuses(a.statuses)
}
