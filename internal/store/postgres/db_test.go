package postgres

import (
	"testing"
	"time"
)

func TestOpen_RejectsNonPostgresURL(t *testing.T) {
	for _, bad := range []string{
		"mysql://root@127.0.0.1:3306/clinicbook",
		"127.0.0.1:5432",
		"",
	} {
		if _, err := Open(bad, PoolConfig{}); err == nil {
			t.Fatalf("Open(%q) expected error", bad)
		}
	}
}

func TestPoolConfigDefaults(t *testing.T) {
	got := PoolConfig{}.withDefaults()
	if got.MaxOpenConns != 20 || got.MaxIdleConns != 10 {
		t.Fatalf("defaults = %+v", got)
	}
	if got.ConnMaxLifetime != 30*time.Minute || got.ConnMaxIdleTime != 5*time.Minute {
		t.Fatalf("defaults = %+v", got)
	}

	explicit := PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetime: time.Minute, ConnMaxIdleTime: time.Second}
	if got := explicit.withDefaults(); got != explicit {
		t.Fatalf("explicit knobs overridden: %+v", got)
	}
}
