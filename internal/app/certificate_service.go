package app

import (
	"context"
	"log"
	"time"

	"github.com/qrbn-app/qurban-crypto-app/internal/clock"
	"github.com/qrbn-app/qurban-crypto-app/internal/domain"
	"github.com/qrbn-app/qurban-crypto-app/internal/metrics"
)

// Minter is the external certificate-minting collaborator.
type Minter interface {
	Mint(ctx context.Context, ledgerEntryID, metadataURI string) (tokenRef string, err error)
}

type CertificateRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateCertificate(ctx context.Context, c domain.Certificate) error
	GetCertificateForUpdate(ctx context.Context, id string) (domain.Certificate, error)
	FindByLedgerEntry(ctx context.Context, ledgerEntryID string) (*domain.Certificate, error)
	UpdateCertificate(ctx context.Context, c domain.Certificate) error

	// ListMintable returns certificates still owed a mint attempt: pending
	// ones and failed ones under the attempt cap.
	ListMintable(ctx context.Context, maxAttempts, limit int) ([]domain.Certificate, error)
	ListFailed(ctx context.Context, minAttempts int) ([]domain.Certificate, error)
}

// CertificateService issues one certificate per completed ledger entry and
// drives it to minted through the external collaborator. Mint failures are
// retried with exponential backoff up to maxAttempts; exhausted certificates
// stay failed and remain visible on the operator queue.
type CertificateService struct {
	repo        CertificateRepository
	minter      Minter
	clock       clock.Clock
	logger      *log.Logger
	metadataFor func(ledgerEntryID string) string
	maxAttempts int
	baseDelay   time.Duration
}

const (
	defaultMaxMintAttempts = 5
	defaultMintBaseDelay   = time.Second
)

func NewCertificateService(repo CertificateRepository, minter Minter, clk clock.Clock, logger *log.Logger, opts ...CertificateServiceOption) *CertificateService {
	if logger == nil {
		logger = log.Default()
	}
	svc := &CertificateService{
		repo:        repo,
		minter:      minter,
		clock:       clk,
		logger:      logger,
		metadataFor: defaultMetadataURI,
		maxAttempts: defaultMaxMintAttempts,
		baseDelay:   defaultMintBaseDelay,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CertificateServiceOption func(*CertificateService)

// WithMintAttempts caps how many mint attempts a certificate gets.
func WithMintAttempts(n int) CertificateServiceOption {
	return func(s *CertificateService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithMintBaseDelay sets the first backoff delay; it doubles per attempt.
func WithMintBaseDelay(d time.Duration) CertificateServiceOption {
	return func(s *CertificateService) {
		if d > 0 {
			s.baseDelay = d
		}
	}
}

// WithMetadataURI overrides how a ledger entry maps to certificate metadata.
func WithMetadataURI(fn func(ledgerEntryID string) string) CertificateServiceOption {
	return func(s *CertificateService) {
		if fn != nil {
			s.metadataFor = fn
		}
	}
}

func defaultMetadataURI(ledgerEntryID string) string {
	return "https://qrbn.app/certificates/" + ledgerEntryID
}

// CreatePending records the pending certificate for a completed entry.
// Called inside the confirm-payment transaction so a completed purchase can
// never lack its certificate. One certificate per entry: a concurrent retry
// that already created it is a no-op.
func (s *CertificateService) CreatePending(ctx context.Context, entry domain.LedgerEntry) error {
	if entry.ID == "" {
		return domain.ErrInvalidID
	}
	if entry.Outcome != domain.LedgerOutcomeCompleted {
		return domain.ErrInvalidTransition
	}

	existing, err := s.repo.FindByLedgerEntry(ctx, entry.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	now := s.clock.Now()
	return s.repo.CreateCertificate(ctx, domain.Certificate{
		ID:            newUUID(),
		LedgerEntryID: entry.ID,
		OwnerID:       entry.BuyerID,
		MetadataURI:   s.metadataFor(entry.ID),
		MintState:     domain.MintStatePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// MintOnce performs a single mint attempt for the certificate and records
// the outcome. Returns the updated certificate.
func (s *CertificateService) MintOnce(ctx context.Context, certificateID string) (domain.Certificate, error) {
	var result domain.Certificate
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		cert, err := s.repo.GetCertificateForUpdate(txCtx, certificateID)
		if err != nil {
			return err
		}
		if cert.MintState == domain.MintStateMinted {
			result = cert
			return nil
		}

		metrics.MintAttempts.Inc()
		tokenRef, mintErr := s.minter.Mint(txCtx, cert.LedgerEntryID, cert.MetadataURI)

		cert.Attempts++
		cert.UpdatedAt = s.clock.Now()
		if mintErr != nil {
			metrics.MintFailures.Inc()
			cert.MintState = domain.MintStateFailed
			s.logger.Printf("WARN: mint attempt %d/%d failed for certificate %s: %v",
				cert.Attempts, s.maxAttempts, cert.ID, mintErr)
		} else {
			cert.MintState = domain.MintStateMinted
			cert.TokenRef = tokenRef
		}

		if err := s.repo.UpdateCertificate(txCtx, cert); err != nil {
			return err
		}
		result = cert
		return nil
	})
	if err != nil {
		return domain.Certificate{}, err
	}
	return result, nil
}

// NextRetryAt computes when a failed certificate becomes eligible again:
// baseDelay doubled per prior attempt, counted from the last attempt.
func (s *CertificateService) NextRetryAt(cert domain.Certificate) time.Time {
	if cert.Attempts == 0 {
		return cert.UpdatedAt
	}
	delay := s.baseDelay << (cert.Attempts - 1)
	return cert.UpdatedAt.Add(delay)
}

// Mintable lists certificates due a mint attempt right now.
func (s *CertificateService) Mintable(ctx context.Context) ([]domain.Certificate, error) {
	certs, err := s.repo.ListMintable(ctx, s.maxAttempts, 100)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	due := certs[:0]
	for _, cert := range certs {
		if cert.MintState == domain.MintStatePending || !s.NextRetryAt(cert).After(now) {
			due = append(due, cert)
		}
	}
	return due, nil
}

// OperatorQueue lists certificates whose retries are exhausted. They are
// never dropped; an operator resolves them out of band.
func (s *CertificateService) OperatorQueue(ctx context.Context) ([]domain.Certificate, error) {
	return s.repo.ListFailed(ctx, s.maxAttempts)
}
