package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/V4T54L/sensor-recorder/internal/pkg/logger"
	"github.com/V4T54L/sensor-recorder/internal/usecase"
)

func main() {
	in := flag.String("in", "", "Recording to sort")
	out := flag.String("out", "", "Output file (default: <in>.sorted)")
	inspect := flag.Bool("inspect", false, "Print recording summary instead of sorting")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log := logger.New(*logLevel)
	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: resort -in <recording.csv> [-out <file>] [-inspect]")
		os.Exit(2)
	}

	src, err := os.Open(*in)
	if err != nil {
		log.Error("failed to open recording", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	if *inspect {
		info, err := usecase.InspectRecording(src)
		if err != nil {
			log.Error("failed to inspect recording", "error", err)
			os.Exit(1)
		}
		fmt.Printf("id:       %s\nperson:   %s\ncomment:  %s\ncreated:  %s\nevents:   %d\nremark:   %q\n",
			info.ID, info.Metadata.Person, info.Metadata.Comment, info.Metadata.CreatedAt, info.Events, info.Remark)
		return
	}

	if *out == "" {
		*out = *in + ".sorted"
	}
	if err := sortFile(src, *out, log); err != nil {
		log.Error("failed to sort recording", "error", err)
		os.Exit(1)
	}
}

func sortFile(src *os.File, path string, log *slog.Logger) error {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(dst)

	n, err := usecase.SortRecording(src, w)
	if err == nil {
		err = w.Flush()
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	log.Info("sorted recording", "in", src.Name(), "out", path, "data_lines", n)
	return nil
}
