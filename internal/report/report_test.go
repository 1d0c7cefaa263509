package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dronetrace/internal/infer"
	"github.com/banshee-data/dronetrace/internal/rc"
	"github.com/banshee-data/dronetrace/internal/session"
)

func TestWriteHTML(t *testing.T) {
	t.Parallel()

	sum := &session.Summary{
		Events: []infer.Event{
			{Kind: infer.KindCommand, Label: "takeoff", Start: 100.5, End: 100.5},
			{Kind: infer.KindMovement, Axis: rc.AxisPitch, Label: "forward", Start: 101.0, End: 102.4},
		},
		Counts:         map[string]int{"takeoff": 1, "forward": 1},
		TotalPackets:   50,
		ControlFrames:  49,
		FirstTimestamp: 100.0,
		LastTimestamp:  103.0,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, "flight.pcap", sum))

	html := buf.String()
	assert.True(t, strings.Contains(html, "<html"), "output should be an HTML document")
	assert.Contains(t, html, "Inferred events")
	assert.Contains(t, html, "Event timeline")
	assert.Contains(t, html, "takeoff")
	assert.Contains(t, html, "flight.pcap")
}

func TestWriteHTMLEmptySession(t *testing.T) {
	t.Parallel()

	sum := &session.Summary{Counts: map[string]int{}}

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, "empty.pcap", sum))
	assert.NotZero(t, buf.Len())
}
