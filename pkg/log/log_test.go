package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestErrorMsg(t *testing.T) {
	// Capture stderr
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	std = NewLogger(false)

	ErrorMsg("test error: %s", "something")

	w.Close()
	os.Stderr = old
	std = NewLogger(false)

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	if output == "" {
		t.Error("ErrorMsg() produced no output")
	}
	if !strings.Contains(output, "test error") {
		t.Errorf("ErrorMsg() output does not contain expected text: %q", output)
	}
}

func TestLogger_InfoMsg(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewLoggerTo(&buf, false)
	l.InfoMsg("listening on %d\n", 1234)

	if !strings.Contains(buf.String(), "[+] listening on 1234") {
		t.Errorf("InfoMsg() output = %q", buf.String())
	}
}

func TestLogger_VerboseMsg(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		verbose bool
		want    bool
	}{
		{"verbose", true, true},
		{"quiet", false, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			l := NewLoggerTo(&buf, tc.verbose)
			l.VerboseMsg("frame of %d bytes", 12)

			got := strings.Contains(buf.String(), "frame of 12 bytes")
			if got != tc.want {
				t.Errorf("VerboseMsg() printed = %v, want %v (output %q)", got, tc.want, buf.String())
			}
		})
	}
}

func TestLogger_Nil(t *testing.T) {
	t.Parallel()

	var l *Logger
	l.InfoMsg("nothing")
	l.ErrorMsg("nothing")
	l.VerboseMsg("nothing")
	if l.Verbose() {
		t.Error("nil logger reports verbose")
	}
}
