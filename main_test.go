package main

import (
	"net"
	"testing"
	"time"
)

func TestParseTCPKeepAlive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    net.KeepAliveConfig
		wantErr bool
	}{
		{name: "on", in: "on", want: net.KeepAliveConfig{Enable: true}},
		{name: "off", in: " OFF ", want: net.KeepAliveConfig{}},
		{
			name: "triple",
			in:   "30:10:4",
			want: net.KeepAliveConfig{Enable: true, Idle: 30 * time.Second, Interval: 10 * time.Second, Count: 4},
		},
		{name: "empty", in: "", wantErr: true},
		{name: "two fields", in: "30:10", wantErr: true},
		{name: "zero count", in: "30:10:0", wantErr: true},
		{name: "not a number", in: "x:10:4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseTCPKeepAlive(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestDestScheme(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"tcp://example.com:80", "tcp"},
		{"UDP://127.0.0.1:53", "udp"},
		{"tls://[::1]:443", "tls"},
		{"example.com:80", ""},
	}

	for _, tt := range tests {
		if got := destScheme(tt.in); got != tt.want {
			t.Errorf("destScheme(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
