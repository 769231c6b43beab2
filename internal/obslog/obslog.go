// Package obslog is the structured event log: one JSON line per event,
// written through logrus the way the teacher's engine emits its
// cxdb event payloads as flat field maps.
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger emits one JSON object per event. Fields vary per event;
// callers pass whatever is relevant (study_uid, sop_uid, ae_title,
// calling_aet, remote_ip, outcome, error, worker, duration_ms, ...) —
// there is no fixed schema beyond timestamp/level/message, plus stage
// on a logger returned by Stage.
type Logger struct {
	entry *logrus.Entry
}

// New opens path (or stdout if path is empty) and returns a Logger that
// writes timestamped, leveled JSON lines to it.
func New(path string) (*Logger, error) {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w = f
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	l.SetLevel(logrus.InfoLevel)

	return &Logger{entry: logrus.NewEntry(l)}, nil
}

// Fields is a shorthand for the per-event field map passed to Info/
// Warn/Error.
type Fields = logrus.Fields

// Stage returns a Logger scoped to a single pipeline stage (e.g.
// "receive", "forward", "correlate"); every event logged through it
// carries a "stage" field.
func (l *Logger) Stage(stage string) *Logger {
	return &Logger{entry: l.entry.WithField("stage", stage)}
}

func (l *Logger) Info(message string, fields Fields) {
	l.entry.WithFields(fields).WithTime(time.Now().UTC()).Info(message)
}

func (l *Logger) Warn(message string, fields Fields) {
	l.entry.WithFields(fields).WithTime(time.Now().UTC()).Warn(message)
}

func (l *Logger) Error(message string, fields Fields) {
	l.entry.WithFields(fields).WithTime(time.Now().UTC()).Error(message)
}
