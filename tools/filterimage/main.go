package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"cameo/lib"
)

func main() {
	in := flag.String("in", "", "input image")
	out := flag.String("out", "", "output image")
	filters := flag.String("filters", "portra", "comma separated filters: "+strings.Join(lib.FilterNames(), ", "))
	flag.Parse()

	if *in == "" || *out == "" {
		flag.Usage()
		os.Exit(2)
	}

	var chain lib.FilterChain
	for _, name := range strings.Split(*filters, ",") {
		f, err := lib.NewNamedFilter(strings.TrimSpace(name))
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		chain = append(chain, f)
	}

	im, err := lib.LoadFrame(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if err := chain.Apply(im, im); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if err := (lib.FileImageSink{}).WriteImage(*out, im); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Println("Saved", *out)
}
