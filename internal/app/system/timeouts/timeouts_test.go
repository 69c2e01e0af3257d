package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigure_IgnoresZero(t *testing.T) {
	defer Reset()

	Configure(Config{Short: 7 * time.Second})
	got := Current()
	want := Config{Ping: DefaultPing, Short: 7 * time.Second, Medium: DefaultMedium, Long: DefaultLong}
	if got != want {
		t.Errorf("Current() = %+v, want %+v", got, want)
	}

	Reset()
	if Short() != DefaultShort {
		t.Errorf("Short() after Reset = %v, want %v", Short(), DefaultShort)
	}
}

func TestWithTimeout_LogsDeadline(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	ctx, cancel := WithTimeout(context.Background(), time.Millisecond, log, "slow op")
	<-ctx.Done()
	cancel()

	if logs.Len() != 1 {
		t.Fatalf("logged %d entries, want 1", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["operation"]; got != "slow op" {
		t.Errorf("operation field = %v, want %q", got, "slow op")
	}

	_, cancel = WithTimeout(context.Background(), time.Hour, log, "fast op")
	cancel()
	if logs.Len() != 1 {
		t.Errorf("early cancel should not log; got %d entries", logs.Len())
	}
}
