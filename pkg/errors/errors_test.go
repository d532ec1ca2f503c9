package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"missing keyword", Mark(New("FILTER"), ErrMissingHeaderKeyword), "missing_keyword"},
		{"wrapped input read", Wrap(Mark(New("eof"), ErrInputRead), "read x.fits"), "input_read"},
		{"external tool", Wrapf(ErrExternalTool, "exit %d", 1), "external_tool"},
		{"filesystem", Mark(New("rename"), ErrFilesystem), "filesystem"},
		{"configuration", Configurationf("bad %s", "pattern"), "configuration"},
		{"plain", New("boom"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestConfigurationf(t *testing.T) {
	err := Configurationf("patterns (%d) and chains (%d) differ", 2, 3)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "patterns (2) and chains (3) differ")
	assert.False(t, IsConfigurationError(New("other")))
	assert.False(t, IsConfigurationError(nil))
}
