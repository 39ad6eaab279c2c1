package server_test

import (
	"testing"

	"stock-ledger/core/server"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		port    string
		wantErr bool
	}{
		{"Default", "8080", false},
		{"Custom", "3000", false},
		{"Empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := server.Config{Port: tt.port}
			if tt.wantErr {
				assert.Error(t, c.Validate())
			} else {
				assert.NoError(t, c.Validate())
				assert.Equal(t, ":"+tt.port, c.Address())
			}
		})
	}
}

func TestConfig_BodyLimit(t *testing.T) {
	assert.Equal(t, 512*1024, server.Config{}.BodyLimit())
	assert.Equal(t, 64*1024, server.Config{BodyLimitKB: 64}.BodyLimit())
}
