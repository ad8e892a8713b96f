package services

import (
	"context"
	"log"
	"sync"
	"time"

	"mtquotesAPI/internal/notification"
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []string, msg notification.Message) error
}

// NotificationDispatcher delivers push jobs on a small worker pool so
// billing calls never wait on FCM.
type NotificationDispatcher struct {
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan *DispatchJob
	wg           sync.WaitGroup
	stopOnce     sync.Once
}

type DispatchJob struct {
	UserID  string
	Tokens  []string
	Message notification.Message
}

func NewNotificationDispatcher(provider PushNotificationProvider, workers int) *NotificationDispatcher {
	if workers <= 0 {
		workers = 1
	}
	d := &NotificationDispatcher{
		pushProvider: provider,
		workers:      workers,
		jobQueue:     make(chan *DispatchJob, 100),
	}
	d.startWorkers()
	return d
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

func (d *NotificationDispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobQueue {
		d.processJob(job)
	}
}

func (d *NotificationDispatcher) processJob(job *DispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.pushProvider.SendPush(ctx, job.Tokens, job.Message); err != nil {
		log.Printf("Push failed for user %s: %v", job.UserID, err)
	}
}

// Dispatch queues a job; it drops the job when the queue stays full.
func (d *NotificationDispatcher) Dispatch(job *DispatchJob) {
	select {
	case d.jobQueue <- job:
	case <-time.After(5 * time.Second):
		log.Printf("Failed to queue push for user %s: queue full", job.UserID)
	}
}

// Stop drains queued jobs and waits for the workers.
func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.jobQueue)
	})
	d.wg.Wait()
}
