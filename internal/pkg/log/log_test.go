package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatLog_WithRequestID(t *testing.T) {
	msg := formatLog("INFO", "abc-123", "uploaded %d bytes", 42)
	assert.Equal(t, "[INFO] [req_id=abc-123] uploaded 42 bytes", msg)
}

func TestFormatLog_WithoutRequestID(t *testing.T) {
	msg := formatLog("WARN", "", "cache miss")
	assert.Equal(t, "[WARN] cache miss", msg)
}

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	assert.Equal(t, "req-9", RequestID(ctx))
	assert.Equal(t, "", RequestID(context.Background()))
}
