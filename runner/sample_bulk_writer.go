package runner

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const sampleFlushInterval = time.Second

var errBulkWriterClosed = errors.New("writing on a closed SampleBulkWriter")

type FlushFunc func(data []float64) error

// SampleBulkWriter buffers cycle samples and hands them to flushFunc periodically,
// keeping Redis round trips out of the worker loop.
type SampleBulkWriter struct {
	ticker    *time.Ticker
	tickerCh  <-chan time.Time
	buf       []float64
	data      chan float64
	closeLock *sync.Mutex
	closed    atomic.Bool
	quit      chan bool
	done      chan struct{}
	flushFunc FlushFunc
}

func NewSampleBulkWriter(flushInterval time.Duration, flushFunc FlushFunc) *SampleBulkWriter {
	bw := &SampleBulkWriter{
		buf:       make([]float64, 0),
		data:      make(chan float64, 128),
		quit:      make(chan bool),
		done:      make(chan struct{}),
		flushFunc: flushFunc,
		tickerCh:  make(chan time.Time),
		closeLock: &sync.Mutex{},
	}

	if flushInterval > 0 {
		bw.ticker = time.NewTicker(flushInterval)
		bw.tickerCh = bw.ticker.C
	}

	go bw.processor()

	return bw
}

func (b *SampleBulkWriter) processor() {
	defer close(b.done)
	for {
		select {
		case d := <-b.data:
			b.buf = append(b.buf, d)
		case <-b.tickerCh:
			b.flush()
		case <-b.quit:
			// Drain what was written before close
			for {
				select {
				case d := <-b.data:
					b.buf = append(b.buf, d)
				default:
					b.flush()
					return
				}
			}
		}
	}
}

func (b *SampleBulkWriter) write(sample float64) error {
	if b.closed.Load() {
		return errBulkWriterClosed
	}

	b.data <- sample

	return nil
}

func (b *SampleBulkWriter) flush() {
	if len(b.buf) == 0 {
		return
	}

	if err := b.flushFunc(b.buf); err != nil {
		log.WithError(err).Error("error while flushing samples")
	}

	b.buf = []float64{}
}

// close flushes buffered samples and waits for the processor to exit.
func (b *SampleBulkWriter) close() {
	b.closeLock.Lock()
	defer b.closeLock.Unlock()

	if b.closed.Load() {
		log.Error("closing a closed SampleBulkWriter")
		return
	}

	b.closed.Store(true)

	close(b.quit)

	if b.ticker != nil {
		b.ticker.Stop()
	}
	<-b.done
}
