package audit

import (
	"context"
	"testing"
)

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestOpenRejectsMalformedDSN(t *testing.T) {
	if _, err := Open(context.Background(), "not a dsn at all :::"); err == nil {
		t.Fatal("expected error for a malformed dsn")
	}
}

func TestCloseOnNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.Close() // must not panic
}
