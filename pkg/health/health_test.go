package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
		code   int
	}{
		{
			name: "all up",
			checks: map[string]Check{
				"index": PingCheck(func(context.Context) error { return nil }, false),
			},
			want: StatusUp,
			code: http.StatusOK,
		},
		{
			name: "optional down degrades",
			checks: map[string]Check{
				"index": PingCheck(func(context.Context) error { return nil }, false),
				"redis": PingCheck(func(context.Context) error { return errors.New("refused") }, true),
			},
			want: StatusDegraded,
			code: http.StatusOK,
		},
		{
			name: "required down",
			checks: map[string]Check{
				"index":    PingCheck(func(context.Context) error { return errors.New("closed") }, false),
				"settings": PingCheck(func(context.Context) error { return errors.New("refused") }, true),
			},
			want: StatusDown,
			code: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("Status = %s, want %s", report.Status, tt.want)
			}
			if len(report.Components) != len(tt.checks) {
				t.Errorf("got %d components, want %d", len(report.Components), len(tt.checks))
			}

			rec := httptest.NewRecorder()
			c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tt.code {
				t.Errorf("ready status = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}
