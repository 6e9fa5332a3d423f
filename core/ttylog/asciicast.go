package ttylog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// AsciicastFileExt holds the suggested file extension for asciicast files.
const AsciicastFileExt = "cast"

func writeJSONLine(w io.Writer, structure interface{}) error {
	line, err := json.Marshal(structure)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%s\n", string(line))
	return err
}

// AsciicastHeader describes the recorded terminal.
type AsciicastHeader struct {
	Width  int
	Height int
	Title  string
}

// NewAsciicastLogSink creates a LogSink compatible with the asciicast v2
// format.
//
// See: https://github.com/asciinema/asciinema/blob/develop/doc/asciicast-v2.md
func NewAsciicastLogSink(w io.Writer, header AsciicastHeader) LogSink {
	var (
		firstLogTimeMicros int64
		once               sync.Once
	)
	if header.Width <= 0 {
		header.Width = 80
	}
	if header.Height <= 0 {
		header.Height = 24
	}
	if header.Title == "" {
		header.Title = "npcsh session"
	}

	return func(entry *Entry) error {
		var headerErr error
		once.Do(func() {
			firstLogTimeMicros = entry.TimestampMicros
			headerErr = writeJSONLine(w, map[string]interface{}{
				"version":   2,
				"width":     header.Width,
				"height":    header.Height,
				"timestamp": time.UnixMicro(firstLogTimeMicros).Unix(),
				"title":     header.Title,
				"env": map[string]interface{}{
					"TERM":  "xterm-256color",
					"SHELL": "npcsh",
				},
			})
		})
		if headerErr != nil {
			return headerErr
		}

		deltaSecond := microsecondsToSeconds(entry.TimestampMicros - firstLogTimeMicros)

		direction := "o"
		if entry.FD == FDStdin {
			direction = "i"
		}
		return writeJSONLine(w, &asciicastLogLine{deltaSecond, direction, string(entry.Data)})
	}
}

type AsciicastLogSource struct {
	r             *bufio.Reader
	consumeHeader sync.Once
}

var _ LogSource = (*AsciicastLogSource)(nil)

// NewAsciicastLogSource reads log events from an Asciicast formatted file.
func NewAsciicastLogSource(r io.Reader) *AsciicastLogSource {
	return &AsciicastLogSource{r: bufio.NewReader(r)}
}

// Next gets the next log entry, it returns io.EOF if there are no more.
func (log *AsciicastLogSource) Next() (*Entry, error) {
	log.consumeHeader.Do(func() {
		log.r.ReadBytes('\n')
	})

	for {
		line, err := log.r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}

		if len(line) == 1 {
			// Skip blank lines
			continue
		}

		var asciicastLine asciicastLogLine
		if err := json.Unmarshal(line, &asciicastLine); err != nil {
			return nil, err
		}

		// Asciicast doesn't support stderr so it's collapsed into stdout.
		var fd FD
		switch asciicastLine.EventType {
		case "o":
			fd = FDStdout
		case "i":
			fd = FDStdin
		default:
			// skip unknown events
			continue
		}

		return &Entry{
			TimestampMicros: secondsToMicroseconds(asciicastLine.TimeSeconds),
			FD:              fd,
			Data:            []byte(asciicastLine.EventData),
		}, nil
	}
}

type asciicastLogLine struct {
	TimeSeconds float64
	EventType   string
	EventData   string
}

func (log *asciicastLogLine) UnmarshalJSON(data []byte) error {
	var v []interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if count := len(v); count != 3 {
		return fmt.Errorf("malformed line, expected 3 entries got %d", count)
	}

	var timeOk, typeOk, dataOk bool
	log.TimeSeconds, timeOk = v[0].(float64)
	log.EventType, typeOk = v[1].(string)
	log.EventData, dataOk = v[2].(string)

	if !timeOk || !typeOk || !dataOk {
		return fmt.Errorf("malformed data in line: %q", v)
	}

	return nil
}

func (log *asciicastLogLine) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{log.TimeSeconds, log.EventType, log.EventData})
}

func microsecondsToSeconds(microseconds int64) (seconds float64) {
	return (float64(microseconds) * float64(time.Microsecond)) / float64(time.Second)
}

func secondsToMicroseconds(seconds float64) (microseconds int64) {
	return int64(float64(seconds)*float64(time.Second)) / int64(time.Microsecond)
}
