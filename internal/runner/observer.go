package runner

import "context"

// RecordObserver receives every record a Sender produces.
type RecordObserver interface {
	Observe(rec Record)
}

type observingSender struct {
	inner    Sender
	observer RecordObserver
}

// WithObserver wraps a Sender so obs sees each record as it is produced.
func WithObserver(s Sender, obs RecordObserver) Sender {
	if obs == nil {
		return s
	}
	return &observingSender{inner: s, observer: obs}
}

func (o *observingSender) Send(ctx context.Context, workerID, requestID, batchSize int) Record {
	rec := o.inner.Send(ctx, workerID, requestID, batchSize)
	o.observer.Observe(rec)
	return rec
}
