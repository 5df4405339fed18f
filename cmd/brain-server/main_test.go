package main

import (
	"testing"

	"github.com/regimebrain/brain/pkg/types"
)

func TestParseOptimizerMode(t *testing.T) {
	cases := []struct {
		in      string
		want    types.OptimizerMode
		wantErr bool
	}{
		{"on", types.OptimizerOn, false},
		{"off", types.OptimizerOff, false},
		{"preview", types.OptimizerPreview, false},
		{"bogus", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := parseOptimizerMode(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseOptimizerMode(%q): expected error, got nil", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseOptimizerMode(%q): unexpected error %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("parseOptimizerMode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSplitAddr(t *testing.T) {
	cases := []struct {
		in       string
		wantHost string
		wantPort int
	}{
		{":8080", "", 8080},
		{"0.0.0.0:9090", "0.0.0.0", 9090},
		{"localhost:3000", "localhost", 3000},
	}
	for _, c := range cases {
		host, port := splitAddr(c.in)
		if host != c.wantHost || port != c.wantPort {
			t.Errorf("splitAddr(%q) = (%q, %d), want (%q, %d)", c.in, host, port, c.wantHost, c.wantPort)
		}
	}
}
