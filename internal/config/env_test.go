package config

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("T_STR", "  value ")
	t.Setenv("T_INT", "12")
	t.Setenv("T_BAD_INT", "twelve")
	t.Setenv("T_BOOL", "true")
	t.Setenv("T_FLOAT", "2.5")
	t.Setenv("T_DUR", "90s")
	t.Setenv("T_DUR_SECS", "30")
	t.Setenv("T_DUR_BAD", "soon")

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Env", Env("T_STR", "def"), "value"},
		{"Env default", Env("T_MISSING", "def"), "def"},
		{"IntEnv", IntEnv("T_INT", 1), 12},
		{"IntEnv invalid", IntEnv("T_BAD_INT", 1), 1},
		{"Int64Env", Int64Env("T_INT", 1), int64(12)},
		{"BoolEnv", BoolEnv("T_BOOL", false), true},
		{"BoolEnv default", BoolEnv("T_MISSING", true), true},
		{"FloatEnv", FloatEnv("T_FLOAT", 0), 2.5},
		{"DurationEnv", DurationEnv("T_DUR", 0), 90 * time.Second},
		{"DurationEnv seconds", DurationEnv("T_DUR_SECS", 0), 30 * time.Second},
		{"DurationEnv invalid", DurationEnv("T_DUR_BAD", time.Minute), time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestMustEnvPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for missing env")
		}
	}()
	MustEnv("T_DEFINITELY_MISSING")
}
