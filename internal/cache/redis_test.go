package cache

import (
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal string
		envValue   string
		want       string
	}{
		{
			name:       "Environment variable exists",
			key:        "TEST_KEY_EXISTS",
			defaultVal: "default",
			envValue:   "custom_value",
			want:       "custom_value",
		},
		{
			name:       "Environment variable does not exist",
			key:        "TEST_KEY_NOT_EXISTS",
			defaultVal: "default_value",
			envValue:   "",
			want:       "default_value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		defaultVal int
		envValue   string
		want       int
	}{
		{
			name:       "Valid integer",
			key:        "TEST_INT_VALID",
			defaultVal: 0,
			envValue:   "42",
			want:       42,
		},
		{
			name:       "Invalid integer",
			key:        "TEST_INT_INVALID",
			defaultVal: 10,
			envValue:   "not_a_number",
			want:       10,
		},
		{
			name:       "Empty value",
			key:        "TEST_INT_EMPTY",
			defaultVal: 5,
			envValue:   "",
			want:       5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvAsInt(tt.key, tt.defaultVal)
			if got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConnectionDefaults(t *testing.T) {
	// only assert when the env did not override the defaults
	if os.Getenv("REDIS_URL") == "" && redisAddr != "localhost:6379" {
		t.Errorf("redisAddr = %q, want localhost:6379", redisAddr)
	}
	if os.Getenv("REDIS_DB") == "" && redisDB != 0 {
		t.Errorf("redisDB = %v, want 0", redisDB)
	}
}

// New returns nil rather than a half-working service when Redis is down; the
// server treats that as fatal because balances and the fairness chain live
// there.
func TestNew_NoRedis(t *testing.T) {
	os.Setenv("REDIS_URL", "invalid_host:9999")
	defer os.Unsetenv("REDIS_URL")

	service := New()

	if service != nil {
		t.Log("Redis service created (Redis might be running)")
	} else {
		t.Log("Redis service is nil (expected when Redis is not available)")
	}
}

func TestHealth_ReportsDown(t *testing.T) {
	s := &service{client: redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})}
	defer s.client.Close()

	stats := s.Health()
	if stats["status"] != "down" {
		t.Errorf(`Health()["status"] = %q, want "down"`, stats["status"])
	}
	if stats["error"] == "" {
		t.Error(`Health()["error"] is empty, want a reason`)
	}
}

func TestService_Interface(t *testing.T) {
	var _ Service = (*service)(nil)
}
