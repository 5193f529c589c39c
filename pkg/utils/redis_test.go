package utils

import (
	"context"
	"testing"
	"time"
)

func TestRedisConfig_Defaults(t *testing.T) {
	c := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if c.DialTimeout <= 0 || c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		t.Fatalf("expected timeout defaults, got %+v", c)
	}
	if c.PoolSize <= 0 {
		t.Fatalf("expected pool size default")
	}

	c = RedisConfig{Addr: "localhost:6379", PoolSize: 5, DialTimeout: time.Second}.withDefaults()
	if c.PoolSize != 5 || c.DialTimeout != time.Second {
		t.Fatalf("explicit values must not be overridden: %+v", c)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for missing addr")
	}
}
