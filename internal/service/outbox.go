package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type remoteOp struct {
	name    string
	subject string
	fn      func(ctx context.Context) error
}

// outbox is a bounded FIFO of remote writes drained by a single worker, so
// writes reach the backend in mutation order. Writes are best effort: a full
// queue drops the new write and failures are logged, never retried.
type outbox struct {
	queue   chan remoteOp
	stop    chan struct{}
	done    chan struct{}
	timeout time.Duration
	logger  logrus.FieldLogger
	metrics MetricsRecorder
	onError func(error)

	mu      sync.Mutex
	started bool
	closed  bool
}

func newOutbox(size int, timeout time.Duration, logger logrus.FieldLogger, metrics MetricsRecorder, onError func(error)) *outbox {
	return &outbox{
		queue:   make(chan remoteOp, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
		onError: onError,
	}
}

func (o *outbox) start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.closed {
		return
	}
	o.started = true
	go o.run()
}

func (o *outbox) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	started := o.started
	close(o.stop)
	o.mu.Unlock()

	if started {
		<-o.done
	}
}

func (o *outbox) pending() int {
	return len(o.queue)
}

func (o *outbox) enqueue(op remoteOp) {
	select {
	case o.queue <- op:
		o.metrics.SetOutboxDepth(len(o.queue))
	default:
		o.metrics.RemoteWrite(op.name, false)
		o.logger.WithFields(logrus.Fields{"op": op.name, "subject": op.subject}).Warn("Remote write queue full, dropping write")
	}
}

func (o *outbox) run() {
	defer close(o.done)
	for {
		select {
		case <-o.stop:
			if n := len(o.queue); n > 0 {
				o.logger.WithField("pending", n).Warn("Dropping unsent remote writes on shutdown")
			}
			return
		case op := <-o.queue:
			o.send(op)
			o.metrics.SetOutboxDepth(len(o.queue))
		}
	}
}

func (o *outbox) send(op remoteOp) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	err := op.fn(ctx)
	o.metrics.RemoteWrite(op.name, err == nil)
	log := o.logger.WithFields(logrus.Fields{"op": op.name, "subject": op.subject})
	if err != nil {
		log.WithError(err).Error("Remote write failed")
		if o.onError != nil {
			o.onError(err)
		}
		return
	}
	log.Debug("Remote write done")
}
