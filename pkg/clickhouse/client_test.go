package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

func TestOptionsNative(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []ClientOption{
		WithAddr("ch.local", 0),
		WithDatabase("finguard"),
		WithCredentials("svc", "p@ss"),
		WithTimeouts(0, 30*time.Second),
		WithMaxExecutionTime(30 * time.Second),
	} {
		opt(cfg)
	}

	o := options(cfg)
	if len(o.Addr) != 1 || o.Addr[0] != "ch.local:9000" {
		t.Fatalf("addr = %v", o.Addr)
	}
	if o.Auth.Database != "finguard" || o.Auth.Username != "svc" || o.Auth.Password != "p@ss" {
		t.Fatalf("auth = %+v", o.Auth)
	}
	if o.Protocol != clickhouse.Native || o.Compression == nil {
		t.Fatalf("expected compressed native protocol")
	}
	if o.DialTimeout != 5*time.Second || o.ReadTimeout != 30*time.Second {
		t.Fatalf("timeouts dial=%v read=%v", o.DialTimeout, o.ReadTimeout)
	}
	if o.Settings["max_execution_time"] != 30 {
		t.Fatalf("settings = %v", o.Settings)
	}
}

func TestOptionsHTTP(t *testing.T) {
	cfg := defaultConfig()
	WithAddr("ch", 8123)(cfg)
	WithHTTP(true)(cfg)

	o := options(cfg)
	if o.Protocol != clickhouse.HTTP || o.Compression != nil || o.Addr[0] != "ch:8123" {
		t.Fatalf("options = %+v", o)
	}
	if o.Settings != nil {
		t.Fatalf("unexpected settings %v", o.Settings)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without host")
	}
}
