package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConsole(t *testing.T) {
	l, err := New(Options{})
	require.NoError(t, err)
	require.NotNil(t, l)
	l.Infow("console logger constructed", "verbose", false)
}

func TestNewJSON(t *testing.T) {
	l, err := New(Options{JSON: true, Verbose: true})
	require.NoError(t, err)
	require.NotNil(t, l)
	l.Debugw("json logger constructed")
}

func TestNopNeverPanics(t *testing.T) {
	Nop().Errorw("dropped", "key", "value")
}
