package notify

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriter(&buf)

	require.NoError(t, sink.Send("first"))
	require.NoError(t, sink.Send("second"))
	require.Equal(t, "first\nsecond\n", buf.String())
}

func TestFuncSink(t *testing.T) {
	var got string
	sink := Func(func(text string) error {
		got = text
		return nil
	})
	require.NoError(t, sink.Send("hello"))
	require.Equal(t, "hello", got)
}
