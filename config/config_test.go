package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      int
	}{
		{0, 5},
		{1, 4},
		{2, 3},
		{3, 2},
		{4, 1},
		{99, 2}, // out-of-range falls back to Info
	}
	for _, tt := range tests {
		c := &Config{Verbosity: tt.verbosity}
		if got := c.GetLogLevel(); got != tt.want {
			t.Errorf("GetLogLevel(verbosity=%d) = %d, want %d", tt.verbosity, got, tt.want)
		}
	}
}

func TestGetDataSubDir(t *testing.T) {
	c := &Config{DataDir: "/var/lib/powconsensusd"}
	if got := c.GetDataSubDir("chaindata"); got != filepath.Join("/var/lib/powconsensusd", "chaindata") {
		t.Fatalf("GetDataSubDir(chaindata) = %q, want %q", got, filepath.Join("/var/lib/powconsensusd", "chaindata"))
	}
}

func TestValidateAndCreateDirs_CreatesChaindataSubdir(t *testing.T) {
	dir := t.TempDir()
	cfg := defaultConfig
	cfg.DataDir = dir

	if err := validateAndCreateDirs(&cfg); err != nil {
		t.Fatalf("validateAndCreateDirs: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "chaindata")); err != nil {
		t.Fatalf("chaindata subdirectory not created: %v", err)
	}
}

func TestValidateAndCreateDirs_RejectsOutOfRangePort(t *testing.T) {
	dir := t.TempDir()
	cfg := defaultConfig
	cfg.DataDir = dir
	cfg.RPCPort = 70000

	if err := validateAndCreateDirs(&cfg); err == nil {
		t.Fatal("validateAndCreateDirs with RPCPort=70000: want error, got nil")
	}
}

func TestValidateAndCreateDirs_RejectsEmptySolverPath(t *testing.T) {
	dir := t.TempDir()
	cfg := defaultConfig
	cfg.DataDir = dir
	cfg.SolverPath = ""

	if err := validateAndCreateDirs(&cfg); err == nil {
		t.Fatal("validateAndCreateDirs with empty SolverPath: want error, got nil")
	}
}

func TestValidateAndCreateDirs_FillsZeroTunablesFromDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := defaultConfig
	cfg.DataDir = dir
	cfg.ExpectedBlockInterval = 0
	cfg.DifficultyAdjustmentBlockCount = 0
	cfg.DifficultyTuningBlockCount = 0

	if err := validateAndCreateDirs(&cfg); err != nil {
		t.Fatalf("validateAndCreateDirs: %v", err)
	}
	if cfg.ExpectedBlockInterval != defaultConfig.ExpectedBlockInterval {
		t.Errorf("ExpectedBlockInterval = %d, want default %d", cfg.ExpectedBlockInterval, defaultConfig.ExpectedBlockInterval)
	}
	if cfg.DifficultyAdjustmentBlockCount != defaultConfig.DifficultyAdjustmentBlockCount {
		t.Errorf("DifficultyAdjustmentBlockCount = %d, want default %d", cfg.DifficultyAdjustmentBlockCount, defaultConfig.DifficultyAdjustmentBlockCount)
	}
	if cfg.DifficultyTuningBlockCount != defaultConfig.DifficultyTuningBlockCount {
		t.Errorf("DifficultyTuningBlockCount = %d, want default %d", cfg.DifficultyTuningBlockCount, defaultConfig.DifficultyTuningBlockCount)
	}
}
