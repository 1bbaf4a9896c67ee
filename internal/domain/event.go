package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// BeginningTimestamp marks header events that are pinned to relative time 0
// instead of being offset against the session start.
const BeginningTimestamp int64 = math.MinInt64

// FieldSeparator separates the fields of a persisted line.
const FieldSeparator = ";"

// EventKind identifies the producer type of an event. The integer value is
// part of the persisted format: values are never reused or renumbered.
type EventKind int

const (
	KindGroundTruthPath    EventKind = -1
	KindFileMetadata       EventKind = -2
	KindRecordingID        EventKind = -3
	KindAccelerometer      EventKind = 0
	KindGravity            EventKind = 1
	KindLinearAcceleration EventKind = 2
	KindGyroscope          EventKind = 3
	KindMagneticField      EventKind = 4
	KindPressure           EventKind = 5
	KindOrientationNew     EventKind = 6
	KindRotationMatrix     EventKind = 7
	KindWiFi               EventKind = 8
	KindIBeacon            EventKind = 9
	KindRelativeHumidity   EventKind = 10
	KindOrientationOld     EventKind = 11
	KindRotationVector     EventKind = 12
	KindLight              EventKind = 13
	KindAmbientTemperature EventKind = 14
	KindHeartRate          EventKind = 15
	KindGPS                EventKind = 16
	KindWiFiRTT            EventKind = 17
	KindGameRotationVector EventKind = 18
	KindEddystoneUID       EventKind = 19
	KindDecawaveUWB        EventKind = 20
	KindStepDetector       EventKind = 21
	KindHeadingChange      EventKind = 22
	KindMicrophoneMetadata EventKind = 23
	KindGroundTruth        EventKind = 99
)

var kindNames = map[EventKind]string{
	KindGroundTruthPath:    "ground_truth_path",
	KindFileMetadata:       "file_metadata",
	KindRecordingID:        "recording_id",
	KindAccelerometer:      "accelerometer",
	KindGravity:            "gravity",
	KindLinearAcceleration: "linear_acceleration",
	KindGyroscope:          "gyroscope",
	KindMagneticField:      "magnetic_field",
	KindPressure:           "pressure",
	KindOrientationNew:     "orientation_new",
	KindRotationMatrix:     "rotation_matrix",
	KindWiFi:               "wifi",
	KindIBeacon:            "ibeacon",
	KindRelativeHumidity:   "relative_humidity",
	KindOrientationOld:     "orientation_old",
	KindRotationVector:     "rotation_vector",
	KindLight:              "light",
	KindAmbientTemperature: "ambient_temperature",
	KindHeartRate:          "heart_rate",
	KindGPS:                "gps",
	KindWiFiRTT:            "wifi_rtt",
	KindGameRotationVector: "game_rotation_vector",
	KindEddystoneUID:       "eddystone_uid",
	KindDecawaveUWB:        "decawave_uwb",
	KindStepDetector:       "step_detector",
	KindHeadingChange:      "heading_change",
	KindMicrophoneMetadata: "microphone_metadata",
	KindGroundTruth:        "ground_truth",
}

// ID returns the persisted integer identifier of the kind.
func (k EventKind) ID() int { return int(k) }

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseEventKind resolves a kind from its name or its integer id.
func ParseEventKind(s string) (EventKind, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	if id, err := strconv.Atoi(s); err == nil && EventKind(id).Valid() {
		return EventKind(id), nil
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// Event is a formatted line waiting to be committed. Timestamp is relative to
// the session start, in nanoseconds.
type Event struct {
	Timestamp int64
	Kind      EventKind
	Line      string
}

// FormatLine renders the persisted representation of one event.
func FormatLine(relative int64, kind EventKind, payload string) string {
	var b strings.Builder
	b.Grow(len(payload) + 24)
	b.WriteString(strconv.FormatInt(relative, 10))
	b.WriteString(FieldSeparator)
	b.WriteString(strconv.Itoa(kind.ID()))
	b.WriteString(FieldSeparator)
	b.WriteString(payload)
	b.WriteByte('\n')
	return b.String()
}

// MetadataTimeLayout is the UTC timestamp layout of the file metadata line.
const MetadataTimeLayout = "2006-01-02T15:04:05.000Z"

// FileMetadata annotates a recording with who made it and why.
type FileMetadata struct {
	Person    string
	Comment   string
	CreatedAt time.Time
}

// NewFileMetadata returns metadata stamped with the current time.
func NewFileMetadata(person, comment string) FileMetadata {
	return FileMetadata{Person: person, Comment: comment, CreatedAt: time.Now()}
}

// Payload renders the metadata line payload: "<utc time>;<person>;<comment>".
func (m FileMetadata) Payload() string {
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return created.UTC().Format(MetadataTimeLayout) + FieldSeparator + m.Person + FieldSeparator + m.Comment
}
