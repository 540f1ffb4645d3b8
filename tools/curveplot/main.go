package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cameo/lib"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var presets = map[string]lib.ChannelCurves{
	"portra":       lib.PortraCurves,
	"provia":       lib.ProviaCurves,
	"velvia":       lib.VelviaCurves,
	"crossprocess": lib.CrossProcessCurves,
}

func toXYs(xs []float64, ys []float64) plotter.XYs {
	data := make(plotter.XYs, len(xs))
	for i := range data {
		data[i].X = xs[i]
		data[i].Y = ys[i]
	}
	return data
}

// plotCurves draws the combined value+channel curve for each channel of one
// preset.
func plotCurves(name string, curves lib.ChannelCurves, savePath string) error {
	p := plot.New()
	p.Title.Text = "Curves for " + name
	p.X.Label.Text = "Input"
	p.Y.Label.Text = "Output"

	value := lib.NewCurveFunc(curves.Value)
	var lines []interface{}
	for _, ch := range []struct {
		label  string
		points []lib.CurvePoint
	}{
		{"blue", curves.Blue},
		{"green", curves.Green},
		{"red", curves.Red},
	} {
		fn := lib.ComposeCurves(lib.NewCurveFunc(ch.points), value)
		table := lib.NewLookupTable(fn, 256)
		xs, ys := lib.SampleCurve(nil, 256)
		if table != nil {
			ys = table.Entries()
		}
		lines = append(lines, ch.label, toXYs(xs, ys))
	}
	if value != nil {
		xs, ys := lib.SampleCurve(value, 256)
		lines = append(lines, "value", toXYs(xs, ys))
	}

	if err := plotutil.AddLines(p, lines...); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 8*vg.Inch, savePath)
}

func main() {
	saveRoot := flag.String("out", ".", "directory for the PNG files")
	flag.Parse()

	if _, err := os.Stat(*saveRoot); os.IsNotExist(err) {
		os.MkdirAll(*saveRoot, 0755)
	}

	names := flag.Args()
	if len(names) == 0 {
		for name := range presets {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	for _, name := range names {
		curves, ok := presets[name]
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown preset %q\n", name)
			os.Exit(1)
		}
		savePath := filepath.Join(*saveRoot, name+"_curves.png")
		if err := plotCurves(name, curves, savePath); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		fmt.Printf("Curve graph saved to '%s'.\n", savePath)
	}
}
