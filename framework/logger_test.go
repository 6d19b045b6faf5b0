package framework

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturingLoggerTagsProcessOutput(t *testing.T) {
	var l CapturingLogger
	l.Printf("starting %s", "router")
	l.Record("router stdout", "Z_OPEN(Ack)")

	output := l.Output()
	require.Len(t, output, 2)
	assert.Equal(t, "", output[0].Source)
	assert.Equal(t, "starting router", output[0].Message)
	assert.Equal(t, "router stdout", output[1].Source)

	output[0].Time = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	output[1].Time = output[0].Time
	var buf bytes.Buffer
	output.Dump(&buf, "> ")
	assert.Equal(t,
		"> [10:00:00.000] starting router\n> [10:00:00.000] [router stdout] Z_OPEN(Ack)\n",
		buf.String())
}

func TestCapturingLoggerKeepsMostRecentMessages(t *testing.T) {
	l := CapturingLogger{Limit: 3}
	for i := 0; i < 5; i++ {
		l.Record("z_sub stdout", fmt.Sprintf("line %d", i))
	}
	output := l.Output()
	require.Len(t, output, 4)
	assert.Equal(t, "(2 earlier messages dropped)", output[0].Message)
	for i, m := range output[1:] {
		assert.Equal(t, fmt.Sprintf("line %d", i+2), m.Message)
	}
}
