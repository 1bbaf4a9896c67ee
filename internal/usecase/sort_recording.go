package usecase

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

const maxLineSize = 16 << 20

type sortLine struct {
	relative int64
	text     string
}

// SortRecording copies a recording from r to w with its data lines stably
// sorted by relative timestamp. Header lines stay first and the trailing
// comment block stays last. It returns the number of data lines written.
func SortRecording(r io.Reader, w io.Writer) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	var (
		headers []string
		data    []sortLine
		trailer []string
		lineNo  int
	)
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if len(trailer) > 0 || strings.HasPrefix(text, "#") {
			trailer = append(trailer, text)
			continue
		}
		if text == "" {
			continue
		}

		relative, kind, err := parseLinePrefix(text)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if kind == domain.KindFileMetadata || kind == domain.KindRecordingID {
			headers = append(headers, text)
			continue
		}
		data = append(data, sortLine{relative: relative, text: text})
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read recording: %w", err)
	}

	slices.SortStableFunc(data, func(a, b sortLine) int {
		switch {
		case a.relative < b.relative:
			return -1
		case a.relative > b.relative:
			return 1
		}
		return 0
	})

	bw := bufio.NewWriter(w)
	for _, h := range headers {
		if _, err := fmt.Fprintln(bw, h); err != nil {
			return 0, err
		}
	}
	for _, d := range data {
		if _, err := fmt.Fprintln(bw, d.text); err != nil {
			return 0, err
		}
	}
	for _, t := range trailer {
		if _, err := fmt.Fprintln(bw, t); err != nil {
			return 0, err
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("failed to write sorted recording: %w", err)
	}
	return len(data), nil
}

func parseLinePrefix(text string) (int64, domain.EventKind, error) {
	fields := strings.SplitN(text, domain.FieldSeparator, 3)
	if len(fields) < 3 {
		return 0, 0, fmt.Errorf("malformed record %q", text)
	}
	relative, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid timestamp %q: %w", fields[0], err)
	}
	kind, err := domain.ParseEventKind(fields[1])
	if err != nil {
		return 0, 0, err
	}
	return relative, kind, nil
}
