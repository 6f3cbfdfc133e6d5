package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"rtsp status", RtspStatus(404, "Not Found"), KindRtspStatus},
		{"protocol state", ProtocolState("Playing", "Described"), KindProtocolState},
		{"wrapped", fmt.Errorf("context: %w", Io("write failed", nil)), KindIo},
		{"plain error", errors.New("boom"), KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRtspStatusFields(t *testing.T) {
	err := RtspStatus(454, "Session Not Found")
	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, 454, e.Code)
	assert.Equal(t, "Session Not Found", e.Phrase)
}

func TestProtocolStateKindForSelfTransition(t *testing.T) {
	err := ProtocolState("Disconnected", "Disconnected")
	assert.Equal(t, KindProtocolState, KindOf(err))
}
