package lib

import (
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/k0kubun/go-ansi"
	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
)

// RunReport collects what happened during one run of the capture loop.
type RunReport struct {
	Frames      int
	Dropped     int
	LoopMillis  []float64
	Screenshots []string
	Recordings  []string
	Started     time.Time
	Finished    time.Time
}

func NewRunReport(now time.Time) *RunReport {
	return &RunReport{Started: now}
}

// Observe records one loop iteration. ok is false when no frame was
// available.
func (r *RunReport) Observe(d time.Duration, ok bool) {
	if !ok {
		r.Dropped++
		return
	}
	r.Frames++
	r.LoopMillis = append(r.LoopMillis, float64(d)/float64(time.Millisecond))
}

func (r *RunReport) AddScreenshot(path string) {
	r.Screenshots = append(r.Screenshots, path)
}

func (r *RunReport) AddRecording(path string) {
	r.Recordings = append(r.Recordings, path)
}

func (r *RunReport) Finish(now time.Time) {
	r.Finished = now
}

// FPS is the average frame rate over the whole run.
func (r *RunReport) FPS() float64 {
	secs := r.Finished.Sub(r.Started).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.Frames) / secs
}

// Fprint writes a colored summary of the run.
func (r *RunReport) Fprint(w io.Writer) {
	colorstring.Fprintf(w, "\nFrames: [green]%d[reset], ", r.Frames)
	colorstring.Fprintf(w, "Missed: [red]%d[reset], ", r.Dropped)
	colorstring.Fprintf(w, "FPS: [green]%.2f[reset]\n", r.FPS())
	if len(r.LoopMillis) > 0 {
		colorstring.Fprintf(w, "Loop ms: mean [green]%.2f[reset], ", FloatsMean(r.LoopMillis))
		colorstring.Fprintf(w, "stddev [yellow]%.2f[reset], ", FloatsStddev(r.LoopMillis))
		colorstring.Fprintf(w, "min [green]%.2f[reset], ", FloatsMin(r.LoopMillis))
		colorstring.Fprintf(w, "max [red]%.2f[reset]\n", FloatsMax(r.LoopMillis))
	}
	for _, p := range r.Screenshots {
		colorstring.Fprintf(w, "Screenshot: [cyan]%s[reset]\n", p)
	}
	for _, p := range r.Recordings {
		colorstring.Fprintf(w, "Screencast: [cyan]%s[reset]\n", p)
	}
}

func (r *RunReport) Print() {
	r.Fprint(ansi.NewAnsiStdout())
}

// NewRecordingBar shows progress through a fixed number of frames.
func NewRecordingBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(15),
		progressbar.OptionSetDescription("[cyan][REC][reset] "+description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// PrintKeyHelp lists the key bindings of the interactive driver.
func PrintKeyHelp() {
	color.Output = ansi.NewAnsiStdout()
	color.Cyan("space  write a screenshot")
	color.Cyan("tab    start/stop a screencast")
	color.Cyan("c      toggle color/gray capture")
	color.Cyan("esc/q  quit")
}
