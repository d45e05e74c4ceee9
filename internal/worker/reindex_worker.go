// Package worker runs the background consumers of the engine.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	appsvc "tutorat/internal/app"
	"tutorat/internal/platform/rabbitmq"
)

// Reindexer is the slice of the ingestion pipeline the worker drives.
type Reindexer interface {
	ReindexDocument(ctx context.Context, documentID string) error
}

// ReindexWorker consumes reindex jobs and replays one document through the
// ingestion pipeline. Unknown documents are dropped without requeue; a
// transient failure is requeued once, then the message is shed so a document
// that always fails cannot redeliver in a hot loop.
type ReindexWorker struct {
	conn      *amqp.Connection
	ingest    Reindexer
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReindexWorker(conn *amqp.Connection, ingest Reindexer, queueName string) *ReindexWorker {
	return &ReindexWorker{
		conn:      conn,
		ingest:    ingest,
		queueName: queueName,
	}
}

func (w *ReindexWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *ReindexWorker) handle(ctx context.Context, d amqp.Delivery) {
	var job rabbitmq.ReindexJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("worker decode reindex job failed: %v", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.ingest.ReindexDocument(ctx, job.DocumentID); err != nil {
		if errors.Is(err, appsvc.ErrDocumentNotFound) {
			// Deleted between enqueue and delivery. Requeueing would loop.
			log.Printf("worker reindex job %s: document %s gone, dropping", job.JobID, job.DocumentID)
			_ = d.Ack(false)
			return
		}
		if d.Redelivered {
			log.Printf("worker reindex document %s failed again, dropping job %s: %v",
				job.DocumentID, job.JobID, err)
			_ = d.Nack(false, false)
			return
		}
		log.Printf("worker reindex document %s failed, requeueing: %v", job.DocumentID, err)
		_ = d.Nack(false, true)
		return
	}

	log.Printf("worker reindexed document %s (job %s)", job.DocumentID, job.JobID)
	_ = d.Ack(false)
}

func (w *ReindexWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
