package proactive

import (
	"context"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Scheduler scans for due engagements on a cron interval and hands them
// to the deliverer. Pending results stay queued for the next scan.
type Scheduler struct {
	store     *Store
	deliverer *Deliverer
	spec      string
	batch     int
	cron      *rcron.Cron

	// running keeps scans from overlapping. A scan can outlast the cron
	// interval when deliveries block on generation; a second pass must
	// not re-read rows the first is still delivering.
	running sync.Mutex
}

func NewScheduler(store *Store, deliverer *Deliverer, spec string, batch int) *Scheduler {
	if spec == "" {
		spec = "@every 30s"
	}
	if batch <= 0 {
		batch = 20
	}
	return &Scheduler{
		store:     store,
		deliverer: deliverer,
		spec:      spec,
		batch:     batch,
	}
}

func (s *Scheduler) Start() error {
	s.cron = rcron.New()
	if _, err := s.cron.AddFunc(s.spec, s.Scan); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[proactive] scheduler started (interval %s)", s.spec)
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Printf("[proactive] scheduler stopped")
}

// Scan is one pass over due engagements. Exported so the serve loop can
// trigger it outside the cron tick. A tick that fires while a previous
// scan is still delivering is skipped; the rows it would have seen are
// either mid-delivery or picked up by the next tick.
func (s *Scheduler) Scan() {
	if !s.running.TryLock() {
		log.Printf("[proactive] previous scan still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	due, err := s.store.DuePending(time.Now(), s.batch)
	if err != nil {
		log.Printf("[proactive] scan: %v", err)
		return
	}

	for _, eng := range due {
		res := s.deliverer.Deliver(context.Background(), eng)
		switch res.Status {
		case StatusDelivered:
			if err := s.store.MarkDelivered(eng.ID, res.MessageID); err != nil {
				log.Printf("[proactive] mark delivered %s: %v", eng.ID, err)
			}
		case StatusPending:
			// Stays queued; the user will be retried when next online.
		case StatusFailed:
			log.Printf("[proactive] engagement %s failed: %s", eng.ID, res.Reason)
		}
	}
}
