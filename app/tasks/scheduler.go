package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/feedpoll/feedpoll/app/feed"
	"github.com/feedpoll/feedpoll/app/health"
	"github.com/feedpoll/feedpoll/app/queue"
	"github.com/feedpoll/feedpoll/app/store"
)

var _ SchedulerInterface = (*Scheduler)(nil)

// Scheduler owns the two moving parts of the ingestion pipeline: a ticker
// loop that scans feed metadata and enqueues a fetch task per due feed, and
// a worker pool consuming the queue. Enqueuing is fire-and-forget; delivery
// and retry guarantees live in the queue.
type Scheduler struct {
	gateway     *store.Gateway
	queue       *queue.Queue
	fetcher     *feed.Fetcher
	detector    *feed.Detector
	tracker     *health.Tracker
	interval    time.Duration
	workerCount int
	taskTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewScheduler(gateway *store.Gateway, q *queue.Queue, fetcher *feed.Fetcher,
	detector *feed.Detector, tracker *health.Tracker,
	interval time.Duration, workerCount int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		gateway:     gateway,
		queue:       q,
		fetcher:     fetcher,
		detector:    detector,
		tracker:     tracker,
		interval:    interval,
		workerCount: workerCount,
		taskTimeout: 5 * time.Minute,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunScan(time.Now().UTC())

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.RunScan(time.Now().UTC())
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// RunScan evaluates every feed's schedule at the given instant and enqueues
// a fetch task for each due feed.
func (s *Scheduler) RunScan(now time.Time) {
	metas, err := s.gateway.ScanMeta(s.ctx)
	if err != nil {
		slog.Error("Failed to scan feed metadata", "error", err)
		return
	}

	due := 0
	for _, meta := range metas {
		if !feed.Due(meta, now) {
			continue
		}

		feedID := meta.Key.FeedID()
		feedURL := meta.Attrs.GetString("feed_url")
		if feedURL == "" {
			slog.Warn("Feed metadata has no URL, skipping", "feed", feedID)
			continue
		}

		task := queue.Task{FeedID: feedID, FeedURL: feedURL}
		if err := s.queue.Publish(task); err != nil {
			slog.Warn("Failed to enqueue fetch task", "feed", feedID, "error", err)
			continue
		}
		due++
	}

	slog.Debug("Schedule scan completed", "feeds", len(metas), "due", due)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		msg, err := s.queue.Receive(s.ctx)
		if err != nil {
			return
		}
		s.processMessage(id, msg)
	}
}

func (s *Scheduler) processMessage(workerID int, msg *queue.Message) {
	task, err := msg.Task()
	if err != nil {
		// Malformed messages can never succeed; acknowledge and drop.
		slog.Error("Discarding malformed task message", "worker_id", workerID, "error", err)
		s.queue.Ack(msg)
		return
	}

	ingest := NewIngestFeedTask(task.FeedID, task.FeedURL, s.fetcher, s.detector, s.gateway, s.tracker)
	ingest.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	if err := ingest.Execute(taskCtx); err != nil {
		slog.Error("Worker task execution failed",
			"worker_id", workerID,
			"type", string(ingest.GetType()),
			"id", ingest.GetID(),
			"feed", task.FeedID,
			"receive_count", msg.ReceiveCount,
			"error", err)
		s.queue.Nack(msg)
		return
	}

	s.queue.Ack(msg)
}
