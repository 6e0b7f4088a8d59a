package validation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/pkg/logger"
	"github.com/ignite/listkeeper/internal/policy"
	"github.com/ignite/listkeeper/internal/smtpprobe"
)

// MXResolver answers whether a domain publishes a mail exchanger.
type MXResolver interface {
	HasMX(ctx context.Context, domain string) bool
}

// Prober runs a recipient-verification handshake for one address.
type Prober interface {
	Probe(ctx context.Context, address, domain string) smtpprobe.Result
}

// Options controls validation behavior for a service instance. A zero
// Rubric means the default weight table; RejectGreylisted turns off the
// optimistic treatment of 4xx probe deferrals.
type Options struct {
	CheckDNS          bool
	RejectRoleBased   bool
	RejectGreylisted  bool
	Rubric            policy.Rubric
	Concurrency       int
	ProgressEvery     int
	SMTPProgressEvery int
}

// RunResult is the aggregate outcome of one validation run.
type RunResult struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// Service implements both validation pipelines.
type Service struct {
	repo   Repository
	mx     MXResolver
	prober Prober
	rubric policy.Rubric
	opts   Options
}

// NewService creates a validation service. mx and prober may be the same
// value; smtpprobe.Prober satisfies both interfaces.
func NewService(repo Repository, mx MXResolver, prober Prober, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 100
	}
	if opts.SMTPProgressEvery <= 0 {
		opts.SMTPProgressEvery = 25
	}
	rubric := opts.Rubric
	if rubric == (policy.Rubric{}) {
		rubric = policy.DefaultRubric
	}
	return &Service{repo: repo, mx: mx, prober: prober, rubric: rubric, opts: opts}
}

// RunStandard validates a batch with the policy scan and scoring rubric.
// The scan is sequential; it is CPU and DNS bound, not latency bound.
func (s *Service) RunStandard(ctx context.Context, batchID int64, revalidate bool, report func(processed, total int), cancelled func() bool) (*RunResult, error) {
	records, err := s.listCandidates(ctx, batchID, revalidate)
	if err != nil {
		return nil, err
	}

	res := &RunResult{Total: len(records)}
	for i, rec := range records {
		out := s.standardOutcome(ctx, &rec)
		if err := s.persistOutcome(ctx, &rec, out); err != nil {
			s.repo.UpdateBatchValidation(ctx, batchID, res.Valid, res.Invalid)
			return res, err
		}
		if out.Valid {
			res.Valid++
		} else {
			res.Invalid++
		}

		if (i+1)%s.opts.ProgressEvery == 0 {
			if report != nil {
				report(i+1, res.Total)
			}
			if cancelled != nil && cancelled() {
				s.repo.UpdateBatchValidation(ctx, batchID, res.Valid, res.Invalid)
				return res, ErrCancelled
			}
		}
	}
	if report != nil {
		report(res.Total, res.Total)
	}
	if err := s.repo.UpdateBatchValidation(ctx, batchID, res.Valid, res.Invalid); err != nil {
		return res, fmt.Errorf("updating batch counters: %w", err)
	}
	logger.Info("standard validation complete", "batch_id", batchID, "valid", res.Valid, "invalid", res.Invalid)
	return res, nil
}

// listCandidates resolves a run's records, distinguishing a missing
// batch from an empty one.
func (s *Service) listCandidates(ctx context.Context, batchID int64, revalidate bool) ([]domain.EmailRecord, error) {
	exists, err := s.repo.BatchExists(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("checking batch: %w", err)
	}
	if !exists {
		return nil, ErrBatchNotFound
	}
	records, err := s.repo.ListCandidates(ctx, batchID, revalidate)
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}
	return records, nil
}

// standardOutcome applies the policy checks in fixed order. First failing
// check names the rejection; a clean record gets the rubric score.
func (s *Service) standardOutcome(ctx context.Context, rec *domain.EmailRecord) Outcome {
	fail := func(reason domain.RejectionReason, detail string) Outcome {
		return Outcome{
			EmailID: rec.ID, Valid: false, Method: domain.MethodStandard,
			Score: 0, Rating: domain.RatingD, Reason: reason, Detail: detail,
		}
	}

	if !policy.SyntaxValid(rec.Address) {
		return fail(domain.ReasonInvalidSyntax, "address fails syntax check")
	}
	local, err := policy.ExtractLocal(rec.Address)
	if err != nil {
		return fail(domain.ReasonInvalidSyntax, err.Error())
	}
	dom := rec.Domain

	if policy.PolicySuffixBlocked(dom) {
		return fail(domain.ReasonPolicySuffix, "blocked institutional suffix")
	}
	if !policy.TLDAdmissible(dom, policy.USPublicSuffixes) {
		return fail(domain.ReasonCCTLDPolicy, "non-domestic country-code TLD")
	}
	if policy.HasTypoTLD(dom) {
		return fail(domain.ReasonTypoTLD, "likely misspelled TLD")
	}
	if policy.IsFakeLocal(local) {
		return fail(domain.ReasonFakeLocal, "placeholder or low-entropy local part")
	}
	if policy.IsDisposable(dom) {
		return fail(domain.ReasonDisposable, "disposable mail provider")
	}
	isRole := policy.IsRoleAddress(local)
	if s.opts.RejectRoleBased && isRole {
		return fail(domain.ReasonRoleBased, "generic mailbox name")
	}
	if s.opts.CheckDNS && !s.mx.HasMX(ctx, dom) {
		return fail(domain.ReasonNoMXRecord, "no mail exchanger for domain")
	}

	score := s.rubric.Score(policy.Signals{
		SyntaxValid: true,
		// MX weight is only granted when the lookup actually ran.
		MXPresent:  s.opts.CheckDNS,
		Role:       isRole,
		Disposable: false,
		Category:   rec.DomainCategory,
	})
	now := time.Now().UTC()
	return Outcome{
		EmailID: rec.ID, Valid: true, Method: domain.MethodStandard,
		Score: score, Rating: domain.RatingForScore(score), VerifiedAt: &now,
	}
}

// RunSMTP validates a batch with direct mail-exchanger probes through a
// bounded worker pool. The score is binary: 100 when the probe passes,
// zero when the exchanger definitively rejects the mailbox.
func (s *Service) RunSMTP(ctx context.Context, batchID int64, revalidate bool, report func(processed, total int), cancelled func() bool) (*RunResult, error) {
	records, err := s.listCandidates(ctx, batchID, revalidate)
	if err != nil {
		return nil, err
	}

	res := &RunResult{Total: len(records)}
	var mu sync.Mutex
	processed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)

	stop := false
	for i := range records {
		// Cooperative cancellation, checked at the progress cadence only.
		if i%s.opts.SMTPProgressEvery == 0 && cancelled != nil && cancelled() {
			stop = true
			break
		}
		rec := records[i]
		g.Go(func() error {
			out := s.probeOutcome(gctx, &rec)
			if err := s.persistOutcome(gctx, &rec, out); err != nil {
				return err
			}
			mu.Lock()
			if out.Valid {
				res.Valid++
			} else {
				res.Invalid++
			}
			processed++
			p := processed
			mu.Unlock()
			if report != nil && p%s.opts.SMTPProgressEvery == 0 {
				report(p, res.Total)
			}
			return nil
		})
	}
	runErr := g.Wait()

	if report != nil {
		report(processed, res.Total)
	}
	if err := s.repo.UpdateBatchValidation(ctx, batchID, res.Valid, res.Invalid); err != nil {
		return res, fmt.Errorf("updating batch counters: %w", err)
	}
	if runErr != nil {
		return res, runErr
	}
	if stop {
		return res, ErrCancelled
	}
	logger.Info("smtp validation complete", "batch_id", batchID, "valid", res.Valid, "invalid", res.Invalid)
	return res, nil
}

func (s *Service) probeOutcome(ctx context.Context, rec *domain.EmailRecord) Outcome {
	probe := s.prober.Probe(ctx, rec.Address, rec.Domain)

	if probe.Outcome == smtpprobe.Inconclusive {
		// Distinct from a definitive rejection: the network failed, not
		// the mailbox.
		logger.Warn("smtp probe inconclusive",
			"email", rec.Address, "host", probe.Host, "detail", probe.Detail)
	}

	valid := probe.Valid()
	if probe.Outcome == smtpprobe.Greylisted && s.opts.RejectGreylisted {
		valid = false
	}
	if valid {
		now := time.Now().UTC()
		return Outcome{
			EmailID: rec.ID, Valid: true, Method: domain.MethodSMTP,
			Score: 100, Rating: domain.RatingA, VerifiedAt: &now,
			Detail: probe.Outcome.String(),
		}
	}

	out := Outcome{
		EmailID: rec.ID, Valid: false, Method: domain.MethodSMTP,
		Score: 0, Rating: domain.RatingD, Detail: probe.Detail,
	}
	switch probe.Outcome {
	case smtpprobe.NoMX:
		out.Reason = domain.ReasonNoMXRecord
	case smtpprobe.Greylisted:
		out.Detail = fmt.Sprintf("deferred by %s (%d)", probe.Host, probe.Code)
	default:
		out.Detail = fmt.Sprintf("mailbox rejected by %s (%d)", probe.Host, probe.Code)
	}
	return out
}

// persistOutcome writes one outcome and folds it into the per-domain
// reputation rollup. Reputation failures are logged, not fatal.
func (s *Service) persistOutcome(ctx context.Context, rec *domain.EmailRecord, out Outcome) error {
	if err := s.repo.ApplyOutcome(ctx, out); err != nil {
		return fmt.Errorf("applying outcome for %d: %w", out.EmailID, err)
	}
	if err := s.repo.BumpDomainReputation(ctx, rec.Domain, out.Valid); err != nil {
		logger.Warn("domain reputation update failed", "domain", rec.Domain, "error", err.Error())
	}
	return nil
}
