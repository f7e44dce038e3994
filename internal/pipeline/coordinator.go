package pipeline

import (
	"context"
	"fmt"

	"github.com/contextforge/contextforge/backend/go-services/internal/document"
	"github.com/contextforge/contextforge/backend/go-services/pkg/logger"
	"github.com/contextforge/contextforge/backend/go-services/pkg/metrics"
)

// Observer is notified of every item transition and of batch completion.
// Calls happen on the goroutine running the batch, in transition order.
type Observer interface {
	ItemChanged(b *Batch, ev Event)
	BatchFinished(b *Batch)
}

// Result is the terminal outcome of one item.
type Result struct {
	Index  int
	DocID  string
	Status document.Status
	Err    error
}

// Coordinator runs batches through the pipeline one item at a time.
type Coordinator struct {
	p         *Pipeline
	observers []Observer
}

func NewCoordinator(p *Pipeline, observers ...Observer) *Coordinator {
	return &Coordinator{p: p, observers: observers}
}

// Run processes every item of b in submission order. Item k+1 is not
// started before item k is terminal. A failing item never stops the batch.
// Run returns once the batch is no longer uploading.
func (c *Coordinator) Run(ctx context.Context, b *Batch) []Result {
	metrics.BatchesInFlight.Inc()
	defer metrics.BatchesInFlight.Dec()

	for _, ev := range b.enqueued() {
		c.notify(b, ev)
	}
	results := make([]Result, b.Len())
	for i := range results {
		results[i] = c.runItem(ctx, b, i)
	}
	b.finish()
	for _, o := range c.observers {
		o.BatchFinished(b)
	}
	logger.With("batch", b.ID, "items", len(results)).Infof("batch finished")
	return results
}

func (c *Coordinator) runItem(ctx context.Context, b *Batch, i int) (res Result) {
	f := b.file(i)
	log := logger.With("batch", b.ID, "item", i, "file", f.Name)
	res.Index = i

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Errorf("item aborted: %v", err)
			// the result mirrors whatever the batch already recorded
			if st := b.Status(i); st.Terminal() {
				res.Status = st
				if st == document.StatusError {
					res.Err = err
				}
				return
			}
			c.move(b, i, document.StatusError, "", err.Error())
			res.Status = document.StatusError
			res.Err = err
		}
	}()

	d, err := c.p.Upload(ctx, f)
	if err != nil {
		log.Warnf("upload failed: %v", err)
		c.move(b, i, document.StatusError, "", err.Error())
		return Result{Index: i, Status: document.StatusError, Err: err}
	}
	res.DocID = d.ID
	c.move(b, i, document.StatusProcessing, d.ID, "")

	if err := c.p.Ingest(ctx, d.ID, d.Filename); err != nil {
		log.With("doc", d.ID).Warnf("ingest failed: %v", err)
		c.move(b, i, document.StatusError, "", err.Error())
		return Result{Index: i, DocID: d.ID, Status: document.StatusError, Err: err}
	}
	c.move(b, i, document.StatusDone, "", "")
	log.With("doc", d.ID).Infof("item done")
	return Result{Index: i, DocID: d.ID, Status: document.StatusDone}
}

func (c *Coordinator) move(b *Batch, i int, next document.Status, docID, detail string) {
	ev, err := b.transition(i, next, docID, detail)
	if err != nil {
		logger.With("batch", b.ID).Errorf("%v", err)
		return
	}
	c.notify(b, ev)
}

func (c *Coordinator) notify(b *Batch, ev Event) {
	metrics.ItemTransitions.WithLabelValues(string(ev.To)).Inc()
	for _, o := range c.observers {
		o.ItemChanged(b, ev)
	}
}

// ObserverFunc adapts a plain function to Observer; BatchFinished is a no-op.
type ObserverFunc func(b *Batch, ev Event)

func (f ObserverFunc) ItemChanged(b *Batch, ev Event) { f(b, ev) }
func (f ObserverFunc) BatchFinished(*Batch)           {}
