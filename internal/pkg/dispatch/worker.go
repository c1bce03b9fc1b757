package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pressline/insiderhub/internal/pkg/billing"
	"github.com/pressline/insiderhub/internal/pkg/database"
	"github.com/pressline/insiderhub/internal/pkg/env"
)

const retryBatchSize = 50

// Worker manages the billing background tasks: re-dispatching failed
// fulfillment calls and sweeping past_due subscriptions out of their grace
// window.
type Worker struct {
	dispatcher  *Dispatcher
	billing     *billing.Service
	retryTicker *time.Ticker
	graceTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

var (
	globalWorker *Worker
	workerOnce   sync.Once
)

// GetWorker returns the global background worker (singleton).
func GetWorker() *Worker {
	workerOnce.Do(func() {
		db := database.GetDB()
		dispatcher := NewDispatcherFromDB(db)
		globalWorker = &Worker{
			dispatcher: dispatcher,
			billing:    billing.NewServiceFromDB(db, dispatcher),
			stopCh:     make(chan struct{}),
		}
	})
	return globalWorker
}

// Dispatcher returns the managed side-effect dispatcher so the webhook path
// can share it.
func (w *Worker) Dispatcher() *Dispatcher {
	return w.dispatcher
}

// BillingService returns the managed billing service.
func (w *Worker) BillingService() *billing.Service {
	return w.billing
}

// Start starts the background tasks.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}

	// Recreate stop channel for each start cycle so the worker can be restarted safely.
	w.stopCh = make(chan struct{})
	w.running = true
	log.Info("[Dispatch Worker] Starting background tasks")

	retryInterval := time.Duration(env.GetEnvInt("FULFILLMENT_RETRY_INTERVAL_MINUTES", 2)) * time.Minute
	graceInterval := time.Duration(env.GetEnvInt("BILLING_GRACE_SWEEP_INTERVAL_MINUTES", 60)) * time.Minute

	w.retryTicker = time.NewTicker(retryInterval)
	w.wg.Add(1)
	go w.fulfillmentRetryWorker()

	w.graceTicker = time.NewTicker(graceInterval)
	w.wg.Add(1)
	go w.graceSweepWorker()

	log.Info("[Dispatch Worker] Started successfully")
}

// Stop stops the background tasks and waits for them to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	log.Info("[Dispatch Worker] Stopping background tasks...")

	if w.retryTicker != nil {
		w.retryTicker.Stop()
	}
	if w.graceTicker != nil {
		w.graceTicker.Stop()
	}

	close(w.stopCh)
	w.stopCh = nil
	w.running = false

	w.wg.Wait()

	log.Info("[Dispatch Worker] Stopped successfully")
}

// fulfillmentRetryWorker periodically re-dispatches fulfillment records whose
// outbound call failed.
func (w *Worker) fulfillmentRetryWorker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			log.Info("[Dispatch Worker] Fulfillment retry worker stopping")
			return
		case <-w.retryTicker.C:
			sent, err := w.dispatcher.ProcessRetryPending(retryBatchSize)
			if err != nil {
				log.Errorf("[Dispatch Worker] Fulfillment retry error: %v", err)
				continue
			}
			if sent > 0 {
				log.Infof("[Dispatch Worker] Re-dispatched %d fulfillment record(s)", sent)
			}
		}
	}
}

// graceSweepWorker periodically cancels past_due subscriptions whose grace
// period has elapsed.
func (w *Worker) graceSweepWorker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			log.Info("[Dispatch Worker] Grace sweep worker stopping")
			return
		case <-w.graceTicker.C:
			swept, err := w.billing.SweepPastDueGrace(context.Background())
			if err != nil {
				log.Errorf("[Dispatch Worker] Grace sweep error: %v", err)
				continue
			}
			if swept > 0 {
				log.Infof("[Dispatch Worker] Canceled %d subscription(s) past their grace period", swept)
			}
		}
	}
}
