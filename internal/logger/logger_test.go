package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestInit(t *testing.T) {
	defer func() { Log = zap.NewNop().Sugar() }()

	tests := []struct {
		name    string
		level   string
		dev     bool
		wantErr bool
	}{
		{"info production", "info", false, false},
		{"debug development", "debug", true, false},
		{"bad level", "loud", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Init(tt.level, tt.dev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Init(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
			if Log == nil {
				t.Fatal("logger must never be nil")
			}
		})
	}
}
