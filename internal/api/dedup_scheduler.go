package api

import (
	"log"
	"os"
	"sync"

	"github.com/robfig/cron/v3"

	database "github.com/maum-on/haruon-hub/internal"
)

var dedupOnce sync.Once

// StartDedupScheduler runs the duplicate-diary sweep on a cron
// schedule (default 03:30 every night, MAUM_DEDUP_CRON to override).
// The sweep is also triggered lazily by the by-date read path; the
// cron pass catches rows no one reads.
func StartDedupScheduler() {
	dedupOnce.Do(func() {
		spec := os.Getenv("MAUM_DEDUP_CRON")
		if spec == "" {
			spec = "30 3 * * *"
		}
		sched := cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
		if _, err := sched.AddFunc(spec, RunDedupSweep); err != nil {
			log.Printf("dedup: invalid cron spec %q: %v", spec, err)
			return
		}
		sched.Start()
	})
}

// RunDedupSweep collapses every (user, date) pair holding more than
// one diary row down to its canonical row.
func RunDedupSweep() {
	pairs, err := database.DuplicateDiaryDates()
	if err != nil {
		log.Printf("dedup: scan failed: %v", err)
		return
	}
	cleaned := 0
	for _, p := range pairs {
		if _, err := database.CanonicalDiaryByDate(p.UserID, p.Date); err != nil {
			log.Printf("dedup: sweep for user %s date %s failed: %v", p.UserID, p.Date, err)
			continue
		}
		cleaned++
	}
	if len(pairs) > 0 {
		log.Printf("dedup: swept %d/%d duplicated dates", cleaned, len(pairs))
	}
}
