package app

import (
	"context"
	"log"
	"sync"
	"time"
)

// MintWorker drives pending and retryable certificates through the external
// minter on a fixed cadence. Backoff between attempts is handled by
// CertificateService's retry eligibility, not by sleeping here.
type MintWorker struct {
	certificates *CertificateService
	logger       *log.Logger
	interval     time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

const defaultMintInterval = 2 * time.Second

func NewMintWorker(certificates *CertificateService, logger *log.Logger, interval time.Duration) *MintWorker {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = defaultMintInterval
	}
	return &MintWorker{
		certificates: certificates,
		logger:       logger,
		interval:     interval,
		stop:         make(chan struct{}),
	}
}

func (w *MintWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ticker != nil {
		return
	}
	w.ticker = time.NewTicker(w.interval)
	w.wg.Add(1)
	go w.run()
}

func (w *MintWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ticker == nil {
		return
	}
	w.ticker.Stop()
	close(w.stop)
	w.wg.Wait()
	w.ticker = nil
}

func (w *MintWorker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ticker.C:
			if err := w.MintDue(context.Background()); err != nil {
				w.logger.Printf("WARN: mint pass: %v", err)
			}
		case <-w.stop:
			return
		}
	}
}

// MintDue attempts every certificate currently owed a mint. A failure on
// one certificate does not block the rest of the pass.
func (w *MintWorker) MintDue(ctx context.Context) error {
	due, err := w.certificates.Mintable(ctx)
	if err != nil {
		return err
	}
	for _, cert := range due {
		if _, err := w.certificates.MintOnce(ctx, cert.ID); err != nil {
			w.logger.Printf("WARN: mint certificate %s: %v", cert.ID, err)
		}
	}
	return nil
}
