package framework

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturingLoggerAndDump(t *testing.T) {
	var l CapturingLogger
	l.Printf("a %d", 1)
	LoggerWithPrefix(&l, "[fixtures] ").Printf("b")
	fmt.Fprint(LoggerWriter(&l), "c")

	output := l.Output()
	require.Len(t, output, 3)
	assert.Equal(t, "a 1", output[0].Message)
	assert.Equal(t, "[fixtures] b", output[1].Message)
	assert.Equal(t, "c", output[2].Message)

	output[0].Time = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	output[:1].Dump(&buf, "  DEBUG ")
	assert.Equal(t, "  DEBUG [2025-03-01 12:00:00.000] a 1\n", buf.String())
}

func TestLoggerWithPrefixToleratesNilTarget(t *testing.T) {
	assert.NotPanics(t, func() { LoggerWithPrefix(nil, "x").Printf("y") })
}
