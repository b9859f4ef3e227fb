package audit

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	reconnectBackoffInit = 100 * time.Millisecond
	reconnectBackoffMax  = 30 * time.Second
)

// SyslogSink writes verdict records to the local syslog daemon as RFC 5424
// messages with structured data.
//
// On write failure the sink attempts to reconnect to the syslog socket with
// exponential backoff (100ms initial, 30s cap). This handles transient
// syslog restarts without tight-looping.
type SyslogSink struct {
	conn       net.Conn
	hostname   string
	appName    string
	facility   Facility
	socketPath string

	mu              sync.Mutex
	backoff         time.Duration
	lastReconnectAt time.Time
}

// SyslogConfig holds configuration for the syslog sink.
type SyslogConfig struct {
	SocketPath string   // Default: "/dev/log"
	Hostname   string   // Default: os.Hostname()
	AppName    string   // Default: "pcrgate"
	Facility   Facility // Default: FacLocal0
}

// NewSyslogSink creates a SyslogSink. Returns an error if the syslog socket
// is unavailable; callers should degrade gracefully (database-only audit is
// acceptable).
func NewSyslogSink(cfg SyslogConfig) (*SyslogSink, error) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = "/dev/log"
	}
	if cfg.Hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			cfg.Hostname = "unknown"
		} else {
			cfg.Hostname = h
		}
	}
	if cfg.AppName == "" {
		cfg.AppName = "pcrgate"
	}
	if cfg.Facility == 0 {
		cfg.Facility = FacLocal0
	}

	conn, err := dialSyslog(cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("syslog connect: %w", err)
	}

	return &SyslogSink{
		conn:       conn,
		hostname:   cfg.Hostname,
		appName:    cfg.AppName,
		facility:   cfg.Facility,
		socketPath: cfg.SocketPath,
	}, nil
}

// Append converts a Record to an RFC 5424 message and writes it to the
// syslog socket. Implements Sink. Safe to call on a nil receiver.
func (w *SyslogSink) Append(rec Record) error {
	if w == nil {
		return nil
	}

	params := []SDParam{
		{Name: "verdict_id", Value: rec.VerdictID},
		{Name: "principal", Value: rec.PrincipalID},
		{Name: "outcome", Value: rec.Outcome},
		{Name: "mismatch_count", Value: strconv.Itoa(len(rec.Mismatches))},
	}
	for _, mm := range rec.Mismatches {
		params = append(params, SDParam{
			Name:  "pcr" + strconv.Itoa(mm.Index),
			Value: mm.Reason,
		})
	}

	msg := Message{
		Facility:  w.facility,
		Severity:  severityForOutcome(rec.Outcome),
		Timestamp: rec.EvaluatedAt,
		Hostname:  w.hostname,
		AppName:   w.appName,
		MessageID: "verdict." + strings.ToLower(rec.Outcome),
		SD: []SDElement{{
			ID:     "pcrgate",
			Params: params,
		}},
	}

	return w.writeOrReconnect(FormatMessage(msg))
}

// writeOrReconnect writes data to the syslog socket. On failure it attempts
// one reconnect (subject to backoff) and retries the write.
func (w *SyslogSink) writeOrReconnect(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := w.conn.Write(data)
	if err == nil {
		w.backoff = 0
		return nil
	}

	// Write failed. Attempt reconnect (backoff-gated).
	if reconnErr := w.reconnectLocked(); reconnErr != nil {
		return fmt.Errorf("syslog write failed (%v), reconnect failed: %w", err, reconnErr)
	}

	// Retry on the fresh connection.
	_, err = w.conn.Write(data)
	if err == nil {
		w.backoff = 0
	}
	return err
}

// reconnectLocked closes the dead connection and dials a new one.
// Must be called with w.mu held. Respects exponential backoff to avoid
// tight reconnect loops during sustained syslog outages.
func (w *SyslogSink) reconnectLocked() error {
	if w.backoff > 0 && time.Since(w.lastReconnectAt) < w.backoff {
		return fmt.Errorf("syslog reconnect backoff: retry in %v", w.backoff-time.Since(w.lastReconnectAt))
	}

	w.conn.Close()

	conn, err := dialSyslog(w.socketPath)
	if err != nil {
		w.lastReconnectAt = time.Now()
		if w.backoff == 0 {
			w.backoff = reconnectBackoffInit
		} else {
			w.backoff *= 2
			if w.backoff > reconnectBackoffMax {
				w.backoff = reconnectBackoffMax
			}
		}
		return fmt.Errorf("syslog reconnect: %w", err)
	}

	w.conn = conn
	w.backoff = 0
	w.lastReconnectAt = time.Time{}
	return nil
}

// Close closes the syslog socket connection.
// Safe to call on a nil receiver.
func (w *SyslogSink) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Close()
}

// dialSyslog connects to the local syslog daemon. Tries unixgram (datagram)
// first, falls back to unix (stream) for compatibility with different
// syslog implementations.
func dialSyslog(socketPath string) (net.Conn, error) {
	conn, err := net.Dial("unixgram", socketPath)
	if err == nil {
		return conn, nil
	}
	return net.Dial("unix", socketPath)
}
