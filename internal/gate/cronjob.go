package gate

import (
	"context"
	"log"
	"sync"
	"time"

	robfig "github.com/robfig/cron/v3"

	"github.com/djlord-it/adhoc-skipper/internal/cron"
	"github.com/djlord-it/adhoc-skipper/internal/domain"
)

// ScheduledRunPrefix is used for run ids generated by the cron adapter.
const ScheduledRunPrefix = "scheduled__"

// CronWrapper returns a robfig/cron JobWrapper that skips firings arriving
// too late after their slot, e.g. after the process was suspended.
//
// The slot of a firing is the first fire time after the previous firing,
// matching how robfig/cron advances an entry. The very first firing is
// attributed to the latest slot not after the firing time.
func CronWrapper(g *Gate, sched robfig.Schedule) robfig.JobWrapper {
	return func(j robfig.Job) robfig.Job {
		return &cronJob{gate: g, sched: sched, job: j}
	}
}

type cronJob struct {
	gate  *Gate
	sched robfig.Schedule
	job   robfig.Job

	mu      sync.Mutex
	lastRun time.Time
}

func (c *cronJob) Run() {
	now := c.gate.clock().UTC()

	slot, ok := c.slotFor(now)
	if !ok {
		log.Printf("gate: cron firing at %s has no schedule slot, proceeding", now.Format(time.RFC3339))
		c.job.Run()
		return
	}

	rec := domain.InvocationRecord{
		RunID:       ScheduledRunPrefix + slot.Format(time.RFC3339),
		ScheduledAt: slot,
	}
	if _, err := c.gate.CheckAt(context.Background(), rec, now); err != nil {
		// Already logged by the gate; cron.Job has no way to report it.
		return
	}
	c.job.Run()
}

func (c *cronJob) slotFor(now time.Time) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	last := c.lastRun
	c.lastRun = now

	if last.IsZero() {
		slot, err := cron.LatestSlot(c.sched, now)
		if err != nil {
			return time.Time{}, false
		}
		return slot, true
	}

	slot := c.sched.Next(last)
	if slot.IsZero() || slot.After(now) {
		// Fired ahead of its slot; treat the firing time as the slot.
		return now, true
	}
	return slot.UTC(), true
}
