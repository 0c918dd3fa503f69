package daemon

import (
	"testing"
	"time"
)

func TestTickRecorderGetRecordsIn(t *testing.T) {
	interval := 50 * time.Millisecond

	tests := []struct {
		name  string
		ticks []time.Time
		last  time.Duration
		want  int
	}{
		{
			name: "noncontinuous records",
			ticks: []time.Time{
				time.Now().Add(-310 * time.Millisecond),
				time.Now().Add(-100 * time.Millisecond),
				time.Now().Add(-50 * time.Millisecond),
			},
			last: 400 * time.Millisecond,
			want: 2,
		},
		{
			name: "continuous records",
			ticks: []time.Time{
				time.Now().Add(-200 * time.Millisecond),
				time.Now().Add(-150 * time.Millisecond),
				time.Now().Add(-100 * time.Millisecond),
				time.Now().Add(-50 * time.Millisecond),
			},
			last: 300 * time.Millisecond,
			want: 4,
		},
		{
			name: "stale last record",
			ticks: []time.Time{
				time.Now().Add(-500 * time.Millisecond),
				time.Now().Add(-450 * time.Millisecond),
			},
			last: time.Second,
			want: 0,
		},
		{
			name:  "no records",
			ticks: nil,
			last:  time.Second,
			want:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewTickRecorder(16)
			for _, tick := range tt.ticks {
				r.AddRecord(tick)
			}
			if got := r.GetRecordsIn(tt.last, interval); got != tt.want {
				t.Errorf("GetRecordsIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTickRecorderEviction(t *testing.T) {
	r := NewTickRecorder(3)
	base := time.Now().Add(-time.Second)
	for i := 0; i < 5; i++ {
		r.AddRecord(base.Add(time.Duration(i) * 50 * time.Millisecond))
	}

	records := r.GetRecords()
	if len(records) != 3 {
		t.Fatalf("expected 3 records after eviction, got %d", len(records))
	}
	if !records[0].Equal(base.Add(100 * time.Millisecond).Round(0)) {
		t.Errorf("oldest record not evicted, got %v", records[0])
	}

	last := r.GetLastRecord()
	if !last.Equal(base.Add(200 * time.Millisecond).Round(0)) {
		t.Errorf("last record = %v, want newest", last)
	}

	r.ClearRecords()
	if len(r.GetRecords()) != 0 {
		t.Errorf("records not cleared")
	}
	if !r.GetLastRecord().IsZero() {
		t.Errorf("last record should be zero after clear")
	}
}
