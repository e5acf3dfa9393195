package api

import (
	"testing"

	"github.com/google/uuid"

	"github.com/maum-on/haruon-hub/internal/analysis"
)

func TestInitQueueFromEnvSettlesBeforeServing(t *testing.T) {
	queueClient = nil
	t.Cleanup(func() { queueClient = nil })

	t.Setenv("MAUM_QUEUE_ENABLE", "")
	if InitQueueFromEnv() {
		t.Fatal("queue must stay disabled without MAUM_QUEUE_ENABLE")
	}
	if queueEnabled() {
		t.Fatal("queueEnabled must report false when init declined")
	}
	if err := EnqueueAnalysis(analysis.Input{DiaryID: uuid.New()}); err == nil {
		t.Fatal("enqueue without a queue must error so callers fall back in-process")
	}

	t.Setenv("MAUM_QUEUE_ENABLE", "1")
	t.Setenv("MAUM_REDIS_ADDR", "127.0.0.1:1")
	if !InitQueueFromEnv() {
		t.Fatal("queue should enable with MAUM_QUEUE_ENABLE set")
	}
	// Handlers must observe the client immediately on return, without
	// waiting for the consumer goroutine.
	if !queueEnabled() {
		t.Fatal("queueEnabled must report true right after init")
	}
}
