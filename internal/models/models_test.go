package models

import (
	"testing"
	"time"
)

func TestRunValidate(t *testing.T) {
	now := time.Now()
	valid := func() Run {
		return Run{
			ID:        "run-1",
			DataDate:  now.Add(-time.Hour),
			StartedAt: now,
			Status:    RunRunning,
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *Run)
		wantErr bool
	}{
		{name: "valid run", mutate: func(r *Run) {}, wantErr: false},
		{name: "empty ID", mutate: func(r *Run) { r.ID = "" }, wantErr: true},
		{name: "missing data date", mutate: func(r *Run) { r.DataDate = time.Time{} }, wantErr: true},
		{name: "missing start", mutate: func(r *Run) { r.StartedAt = time.Time{} }, wantErr: true},
		{name: "unknown status", mutate: func(r *Run) { r.Status = "done" }, wantErr: true},
		{name: "finished before start", mutate: func(r *Run) { r.FinishedAt = now.Add(-time.Minute) }, wantErr: true},
		{name: "negative posts", mutate: func(r *Run) { r.Posts = -1 }, wantErr: true},
		{
			name: "finished partial run",
			mutate: func(r *Run) {
				r.Status = RunPartial
				r.FinishedAt = now.Add(time.Second)
				r.Posts = 1
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Run.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
