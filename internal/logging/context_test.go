package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(&buf, "info", "json")

	FromContext(WithRequestID(context.Background(), "req-7"), base).Info("hello")
	if !strings.Contains(buf.String(), `"request_id":"req-7"`) {
		t.Fatalf("expected request id in %s", buf.String())
	}

	buf.Reset()
	FromContext(context.Background(), base).Info("plain")
	if strings.Contains(buf.String(), "request_id") {
		t.Fatalf("unexpected request id in %s", buf.String())
	}
	if RequestID(context.Background()) != "" {
		t.Fatal("expected empty id")
	}
}
