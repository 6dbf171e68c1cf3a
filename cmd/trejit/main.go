package main

import (
	"log"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"

	"github.com/zegl/trejit/cmd/trejit/build"
)

func main() {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	debug := flags.Bool("debug", false, "log every gate visit, escape and phi")
	dump := flags.Bool("dump", false, "print the circuit after rewriting")
	maxVisits := flags.Int("max-visits", 1000000, "give up after this many gate visits (0 for no limit)")
	color := flags.String("color", "auto", "highlight the report: auto, always or never")
	_ = flags.Parse(os.Args[1:])

	if flags.NArg() < 1 {
		log.Printf("No file specified. Usage: %s [flags] path/to/circuit.yaml", os.Args[0])
		os.Exit(1)
	}

	opts := build.Options{
		Debug:     *debug,
		Dump:      *dump,
		MaxVisits: *maxVisits,
	}
	switch *color {
	case "always":
		opts.Color = true
	case "never":
	default:
		opts.Color = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	if err := build.Build(flags.Arg(0), opts, os.Stdout); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
