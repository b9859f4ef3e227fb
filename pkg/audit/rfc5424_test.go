package audit

import (
	"strings"
	"testing"
	"time"
)

func TestFormatMessage_Full(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	msg := Message{
		Facility:  FacLocal0,
		Severity:  SeverityWarning,
		Timestamp: ts,
		Hostname:  "host1",
		AppName:   "pcrgate",
		MessageID: "verdict.mismatch",
		SD: []SDElement{{
			ID: "pcrgate",
			Params: []SDParam{
				{Name: "principal", Value: "node-1"},
				{Name: "outcome", Value: "MISMATCH"},
			},
		}},
	}

	got := string(FormatMessage(msg))
	want := `<132>1 2026-03-14T09:26:53.589Z host1 pcrgate - verdict.mismatch [pcrgate principal="node-1" outcome="MISMATCH"]`
	if got != want {
		t.Errorf("FormatMessage:\n got %q\nwant %q", got, want)
	}
}

func TestFormatMessage_NilFields(t *testing.T) {
	got := string(FormatMessage(Message{
		Facility: FacLocal0,
		Severity: SeverityInfo,
	}))
	want := "<134>1 - - - - - -"
	if got != want {
		t.Errorf("FormatMessage = %q, want %q", got, want)
	}
}

func TestFormatMessage_EscapesSDParamValues(t *testing.T) {
	got := string(FormatMessage(Message{
		Facility: FacLocal0,
		Severity: SeverityInfo,
		SD: []SDElement{{
			ID:     "pcrgate",
			Params: []SDParam{{Name: "p", Value: `a"b\c]d`}},
		}},
	}))
	if !strings.Contains(got, `p="a\"b\\c\]d"`) {
		t.Errorf("SD param not escaped: %q", got)
	}
}

func TestFormatMessage_TruncatesLongAppName(t *testing.T) {
	got := string(FormatMessage(Message{
		Facility: FacLocal0,
		Severity: SeverityInfo,
		AppName:  strings.Repeat("x", 100),
	}))
	if strings.Contains(got, strings.Repeat("x", 49)) {
		t.Errorf("app name not truncated to 48: %q", got)
	}
	if !strings.Contains(got, strings.Repeat("x", 48)) {
		t.Errorf("app name over-truncated: %q", got)
	}
}

func TestSeverityForOutcome(t *testing.T) {
	tests := []struct {
		outcome string
		want    Severity
	}{
		{"MATCH", SeverityInfo},
		{"MISMATCH", SeverityWarning},
		{"UNREADABLE", SeverityWarning},
		{"garbage", SeverityWarning},
	}
	for _, tt := range tests {
		if got := severityForOutcome(tt.outcome); got != tt.want {
			t.Errorf("severityForOutcome(%q) = %v, want %v", tt.outcome, got, tt.want)
		}
	}
}

func TestSeverityString(t *testing.T) {
	tests := []struct {
		sev  Severity
		want string
	}{
		{SeverityInfo, "INFO"},
		{SeverityNotice, "NOTICE"},
		{SeverityWarning, "WARNING"},
		{Severity(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.sev.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.sev, got, tt.want)
		}
	}
}
