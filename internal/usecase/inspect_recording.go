package usecase

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/V4T54L/sensor-recorder/internal/domain"
)

// RecordingInfo summarizes a recording file.
type RecordingInfo struct {
	ID       string
	Metadata domain.FileMetadata
	Events   int64
	Remark   string
}

// InspectRecording reads the header lines, counts the events and collects
// the remark of a recording.
func InspectRecording(r io.Reader) (RecordingInfo, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	var (
		info    RecordingInfo
		remark  []string
		inBlock bool
		lineNo  int
	)
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if strings.HasPrefix(text, "#") {
			if inBlock {
				remark = append(remark, strings.TrimPrefix(strings.TrimPrefix(text, "#"), " "))
			}
			inBlock = true
			continue
		}
		if text == "" {
			continue
		}

		_, kind, err := parseLinePrefix(text)
		if err != nil {
			return RecordingInfo{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
		info.Events++
		payload := strings.SplitN(text, domain.FieldSeparator, 3)[2]
		switch kind {
		case domain.KindRecordingID:
			info.ID = payload
		case domain.KindFileMetadata:
			info.Metadata = parseMetadata(payload)
		}
	}
	if err := scanner.Err(); err != nil {
		return RecordingInfo{}, fmt.Errorf("failed to read recording: %w", err)
	}
	info.Remark = strings.Join(remark, "\n")
	return info, nil
}

func parseMetadata(payload string) domain.FileMetadata {
	fields := strings.SplitN(payload, domain.FieldSeparator, 3)
	var meta domain.FileMetadata
	if created, err := time.Parse(domain.MetadataTimeLayout, fields[0]); err == nil {
		meta.CreatedAt = created
	}
	if len(fields) > 1 {
		meta.Person = fields[1]
	}
	if len(fields) > 2 {
		meta.Comment = fields[2]
	}
	return meta
}
