package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  []string
	}{
		{
			name:     "compiles",
			args:     []string{"-compact", "firefox crashes"},
			wantCode: exitOK,
			wantOut: []string{
				`ast:      Space(Term("firefox crashes"))`,
				`{"bool_and":[`,
			},
		},
		{
			name:     "range outside whitelist",
			args:     []string{"-compact", "range:title:gt:a"},
			wantCode: exitOK,
			wantOut:  []string{`compiled: {"match_none":{}}`},
		},
		{
			name:     "malformed",
			args:     []string{"firefox", "a OR"},
			wantCode: exitMalformed,
			wantOut: []string{
				`ast:      Term("firefox")`,
				"error:    unexpected end of query",
				"              ^",
			},
		},
		{
			name:     "no query",
			args:     nil,
			wantCode: exitError,
		},
		{
			name:     "bad flag",
			args:     []string{"-nope"},
			wantCode: exitError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d\nstdout: %s\nstderr: %s", code, tt.wantCode, stdout.String(), stderr.String())
			}
			for _, want := range tt.wantOut {
				if !strings.Contains(stdout.String(), want) {
					t.Errorf("output missing %q:\n%s", want, stdout.String())
				}
			}
		})
	}
}

func TestPad(t *testing.T) {
	if got := pad(3); got != "   " {
		t.Errorf("pad(3) = %q", got)
	}
	if got := pad(0); got != "" {
		t.Errorf("pad(0) = %q", got)
	}
}
