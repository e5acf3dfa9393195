package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maum-on/haruon-hub/internal/analysis"
)

var queueClient *redis.Client

const analysisStream = "maum:jobs:analysis"
const analysisGroup = "analysis"
const analysisDLQStream = "maum:jobs:analysis:dlq"

func queueEnabled() bool { return queueClient != nil }

// InitQueueFromEnv opens the Redis connection when MAUM_QUEUE_ENABLE
// is set. It must run before the router starts serving: request
// handlers read queueClient without synchronization, so the assignment
// has to happen-before the first request.
func InitQueueFromEnv() bool {
	if os.Getenv("MAUM_QUEUE_ENABLE") == "" {
		return false
	}
	addr := os.Getenv("MAUM_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	db := 0
	if v := os.Getenv("MAUM_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}
	queueClient = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("MAUM_REDIS_PASSWORD"),
		DB:       db,
	})
	return true
}

// StartAnalysisWorker starts Redis Streams consumers for diary
// analysis jobs. InitQueueFromEnv must have run first; without a queue
// this is a no-op and mutations run analysis in-process instead.
func StartAnalysisWorker(ctx context.Context) {
	if !queueEnabled() {
		return
	}
	if p, err := queueClient.XPending(ctx, analysisStream, analysisGroup).Result(); err == nil && p != nil {
		log.Printf("queue worker online: pending=%d", p.Count)
	} else {
		log.Printf("queue worker online: pending=unknown (group may be new)")
	}
	_ = queueClient.XGroupCreateMkStream(ctx, analysisStream, analysisGroup, "$").Err()

	workers := 2
	if v := os.Getenv("MAUM_QUEUE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workers = n
		}
	}
	readCount := 4
	if v := os.Getenv("MAUM_QUEUE_READ_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			readCount = n
		}
	}

	for i := 0; i < workers; i++ {
		consumer := fmt.Sprintf("worker-%d-%d", time.Now().UnixNano(), i)
		go func(consumerName string) {
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				streams, err := queueClient.XReadGroup(ctx, &redis.XReadGroupArgs{
					Group:    analysisGroup,
					Consumer: consumerName,
					Streams:  []string{analysisStream, ">"},
					Count:    int64(readCount),
					Block:    5 * time.Second,
				}).Result()
				if err != nil && err != redis.Nil {
					time.Sleep(500 * time.Millisecond)
					continue
				}
				for _, s := range streams {
					for _, msg := range s.Messages {
						if processAnalysisMessage(ctx, msg) {
							_, _ = queueClient.XAck(ctx, analysisStream, analysisGroup, msg.ID).Result()
						}
					}
				}
			}
		}(consumer)
	}

	startAnalysisReclaimer(ctx)
}

// startAnalysisReclaimer scans pending entries, re-delivers stalled
// ones, and moves anything past the delivery budget to the DLQ.
func startAnalysisReclaimer(ctx context.Context) {
	minIdle := 30 * time.Second
	if v := os.Getenv("MAUM_QUEUE_PENDING_IDLE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			minIdle = time.Duration(ms) * time.Millisecond
		}
	}
	maxDeliveries := 3
	if v := os.Getenv("MAUM_QUEUE_MAX_DELIVERIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxDeliveries = n
		}
	}
	scanEvery := 10 * time.Second
	if v := os.Getenv("MAUM_QUEUE_RECLAIM_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			scanEvery = time.Duration(ms) * time.Millisecond
		}
	}
	batch := 10
	if v := os.Getenv("MAUM_QUEUE_AUTOCLAIM_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			batch = n
		}
	}
	reclaimer := fmt.Sprintf("reclaimer-%d", time.Now().UnixNano())
	go func() {
		ticker := time.NewTicker(scanEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if p, err := queueClient.XPending(ctx, analysisStream, analysisGroup).Result(); err == nil && p != nil {
				SetQueuePending("analysis", p.Count)
			}
			pendings, err := queueClient.XPendingExt(ctx, &redis.XPendingExtArgs{
				Stream: analysisStream,
				Group:  analysisGroup,
				Start:  "-",
				End:    "+",
				Count:  int64(batch),
			}).Result()
			if err != nil || len(pendings) == 0 {
				continue
			}
			for _, p := range pendings {
				if p.Idle < minIdle {
					continue
				}
				if int(p.RetryCount) >= maxDeliveries {
					msgs, _ := queueClient.XRange(ctx, analysisStream, p.ID, p.ID).Result()
					var payload any = map[string]any{"error": "missing"}
					if len(msgs) == 1 {
						payload = msgs[0].Values["payload"]
					}
					_, _ = queueClient.XAdd(ctx, &redis.XAddArgs{
						Stream: analysisDLQStream,
						Values: map[string]any{
							"payload":    payload,
							"reason":     fmt.Sprintf("max deliveries %d exceeded", maxDeliveries),
							"deliveries": p.RetryCount,
							"at":         time.Now().Unix(),
						},
					}).Result()
					RecordDLQInsert("analysis", "max_deliveries_exceeded")
					if xlen, err := queueClient.XLen(ctx, analysisDLQStream).Result(); err == nil {
						SetDLQDepth("analysis", xlen)
					}
					_, _ = queueClient.XAck(ctx, analysisStream, analysisGroup, p.ID).Result()
					continue
				}
				claimed, err := queueClient.XClaim(ctx, &redis.XClaimArgs{
					Stream:   analysisStream,
					Group:    analysisGroup,
					Consumer: reclaimer,
					MinIdle:  minIdle,
					Messages: []string{p.ID},
				}).Result()
				if err != nil || len(claimed) == 0 {
					continue
				}
				for _, msg := range claimed {
					if processAnalysisMessage(ctx, msg) {
						_, _ = queueClient.XAck(ctx, analysisStream, analysisGroup, msg.ID).Result()
					}
				}
			}
		}
	}()
}

// EnqueueAnalysis publishes an analysis job to the stream.
func EnqueueAnalysis(in analysis.Input) error {
	if queueClient == nil {
		return fmt.Errorf("queue disabled")
	}
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return queueClient.XAdd(context.Background(), &redis.XAddArgs{
		Stream: analysisStream,
		Values: map[string]any{"payload": string(b)},
	}).Err()
}

// processAnalysisMessage runs one job synchronously. Returns true when
// the message should be ACKed; false leaves it pending for the
// reclaimer. Analysis is idempotent per diary row (each run overwrites
// the AI columns), so re-delivery after a crash is safe.
func processAnalysisMessage(ctx context.Context, msg redis.XMessage) bool {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		// malformed; drop
		return true
	}
	var in analysis.Input
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		log.Printf("queue: malformed analysis payload dropped: %v", err)
		return true
	}
	if err := analysis.Run(ctx, in); err != nil {
		log.Printf("queue: analysis for diary %s failed: %v", in.DiaryID, err)
		return false
	}
	return true
}
