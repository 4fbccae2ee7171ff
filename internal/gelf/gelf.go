// Package gelf forwards zerolog JSON events to a Graylog input over UDP.
package gelf

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Writer sends one GELF message per zerolog event. It implements
// zerolog.LevelWriter so it can sit in a zerolog.MultiLevelWriter.
type Writer struct {
	conn     net.Conn
	hostname string
	service  string
	minLevel zerolog.Level
}

// New creates a GELF UDP writer connected to addr (e.g. "172.17.0.1:12201").
// Events below minLevel are dropped.
func New(addr, service string, minLevel zerolog.Level) (*Writer, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("gelf: dial %s: %w", addr, err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = service + "-server"
	}
	return &Writer{conn: conn, hostname: hostname, service: service, minLevel: minLevel}, nil
}

// Close closes the UDP socket.
func (w *Writer) Close() error {
	return w.conn.Close()
}

// Write treats p as a single event of unknown level.
func (w *Writer) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel never fails the log call; send errors are dropped.
func (w *Writer) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level != zerolog.NoLevel && level < w.minLevel {
		return len(p), nil
	}
	payload, err := json.Marshal(w.message(level, p))
	if err != nil {
		return len(p), nil
	}
	_, _ = w.conn.Write(payload)
	return len(p), nil
}

func (w *Writer) message(level zerolog.Level, p []byte) map[string]any {
	var event map[string]any
	if err := json.Unmarshal(p, &event); err != nil {
		event = map[string]any{zerolog.MessageFieldName: strings.TrimRight(string(p), "\n")}
	}

	msg := map[string]any{
		"version":   "1.1",
		"host":      w.hostname,
		"timestamp": float64(time.Now().UnixNano()) / 1e9,
		"level":     syslogLevel(level),
		"_service":  w.service,
	}
	short, _ := event[zerolog.MessageFieldName].(string)
	if short == "" {
		short = "-"
	}
	msg["short_message"] = short

	for k, v := range event {
		switch k {
		case zerolog.MessageFieldName, zerolog.LevelFieldName, zerolog.TimestampFieldName:
			continue
		case "id":
			k = "event_id"
		}
		if s, ok := v.(string); ok || v == nil {
			msg["_"+k] = s
			continue
		}
		// GELF additional fields must be strings or numbers.
		if n, ok := v.(float64); ok {
			msg["_"+k] = n
			continue
		}
		raw, _ := json.Marshal(v)
		msg["_"+k] = string(raw)
	}
	return msg
}

// syslogLevel maps zerolog levels onto syslog severities.
func syslogLevel(l zerolog.Level) int {
	switch l {
	case zerolog.PanicLevel:
		return 1
	case zerolog.FatalLevel:
		return 2
	case zerolog.ErrorLevel:
		return 3
	case zerolog.WarnLevel:
		return 4
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return 7
	default:
		return 6
	}
}
