package lib

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunReport(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRunReport(start)
	r.Observe(10*time.Millisecond, true)
	r.Observe(30*time.Millisecond, true)
	r.Observe(5*time.Millisecond, false)
	r.AddScreenshot("shots/a.png")
	r.AddRecording("cast.avi")
	r.Finish(start.Add(2 * time.Second))

	assert.Equal(t, 2, r.Frames)
	assert.Equal(t, 1, r.Dropped)
	assert.Equal(t, []float64{10, 30}, r.LoopMillis)
	assert.InDelta(t, 1, r.FPS(), 1e-9)

	var buf bytes.Buffer
	r.Fprint(&buf)
	out := buf.String()
	assert.Contains(t, out, "Frames:")
	assert.Contains(t, out, "shots/a.png")
	assert.Contains(t, out, "cast.avi")
	assert.Contains(t, out, "20.00", "mean loop time")
	assert.NotContains(t, out, "[green]", "color tags are rendered")
}

func TestRunReportUnfinished(t *testing.T) {
	r := NewRunReport(time.Now())
	assert.Equal(t, 0.0, r.FPS())

	var buf bytes.Buffer
	r.Fprint(&buf)
	assert.NotContains(t, buf.String(), "Loop ms")
}
