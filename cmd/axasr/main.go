// Command axasr transcribes one WAV file with the on-device engine and
// prints the text to stdout.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/axvoice/axasr/asr"
)

func main() {
	var (
		modelType string
		modelPath string
		language  string
		verbose   bool
	)

	flag.StringVar(&modelType, "model", "base", "Model type (e.g. tiny, base, small)")
	flag.StringVar(&modelPath, "models", "./models", "Directory holding model artifacts")
	flag.StringVar(&language, "lang", "auto", "Language code, or auto for detection")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: axasr [flags] <file.wav>")
		os.Exit(2)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, err := asr.Init(modelType, modelPath, language, asr.WithLogger(logger))
	if err != nil {
		logger.Error("init failed",
			slog.String("status", asr.StatusOf(err).String()),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer ctx.Close()

	result, err := ctx.RunFile(flag.Arg(0))
	if err != nil {
		logger.Error("recognition failed",
			slog.String("status", asr.StatusOf(err).String()),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	if result.Outcome != asr.OutcomeNormal {
		logger.Warn("recognition finished abnormally", slog.String("outcome", result.Outcome.String()))
	}
	fmt.Println(result.Text)
}
