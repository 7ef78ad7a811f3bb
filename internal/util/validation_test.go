package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "http", url: "http://loki:3100"},
		{name: "https with path", url: "https://logs.example.com/loki/api/v1/push"},
		{name: "empty", url: "", wantErr: true},
		{name: "no scheme", url: "loki:3100", wantErr: true},
		{name: "ftp scheme", url: "ftp://example.com", wantErr: true},
		{name: "no host", url: "http://", wantErr: true},
		{name: "query", url: "http://user:8081?debug=1", wantErr: true},
		{name: "fragment", url: "http://user:8081/#top", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePositiveDurationAndNonEmpty(t *testing.T) {
	t.Parallel()

	assert.Error(t, ValidatePositiveDuration(0))
	assert.Error(t, ValidatePositiveDuration(-1))
	assert.NoError(t, ValidatePositiveDuration(1))

	assert.Error(t, ValidateNonEmpty("  ", "service.name"))
	assert.NoError(t, ValidateNonEmpty("bff", "service.name"))
}
