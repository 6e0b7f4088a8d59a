package admission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/pkg/logger"
	"github.com/ignite/listkeeper/internal/policy"
)

// RunInput describes one admission run over an uploaded line stream.
type RunInput struct {
	BatchID        int64
	UploadedBy     int64
	ConsentGranted bool
	IsolatedScope  bool
	Lines          io.Reader
}

// RunResult is the aggregate outcome of an admission run.
type RunResult struct {
	Total      int `json:"total"`
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// Service implements the admission pipeline. Safe for concurrent use; each
// Run processes its own stream.
type Service struct {
	repo          Repository
	categorySets  []policy.CategorySet
	progressEvery int
}

// NewService creates an admission service backed by the given repository.
func NewService(repo Repository, categorySets []policy.CategorySet, progressEvery int) *Service {
	if progressEvery <= 0 {
		progressEvery = 100
	}
	return &Service{repo: repo, categorySets: categorySets, progressEvery: progressEvery}
}

// Run processes the input stream line by line. report is called at the
// progress cadence with the number of lines processed; cancelled is checked
// at the same cadence, never mid-record. Per-line failures are captured as
// RejectedItems and never abort the run; only storage failures do.
//
// On cancellation or mid-stream failure, lines already committed stay
// committed and the batch is finished as failed with partial counts.
func (s *Service) Run(ctx context.Context, in RunInput, report func(processed int), cancelled func() bool) (*RunResult, error) {
	if _, err := s.repo.GetBatch(ctx, in.BatchID); err != nil {
		return nil, err
	}
	if err := s.repo.MarkBatchRunning(ctx, in.BatchID); err != nil {
		return nil, fmt.Errorf("marking batch running: %w", err)
	}

	res := &RunResult{}
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(in.Lines)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		// Skip a header line if the file carries one.
		if res.Total == 0 && strings.EqualFold(raw, "email") {
			continue
		}
		res.Total++

		if err := s.admitLine(ctx, in, raw, seen, res); err != nil {
			logger.Error("admission storage failure", "batch_id", in.BatchID, "error", err.Error())
			s.finish(ctx, in.BatchID, domain.BatchFailed, res, err.Error())
			return res, err
		}

		if res.Total%s.progressEvery == 0 {
			if report != nil {
				report(res.Total)
			}
			if cancelled != nil && cancelled() {
				s.finish(ctx, in.BatchID, domain.BatchFailed, res, "cancelled by operator")
				return res, ErrCancelled
			}
		}
	}
	if err := scanner.Err(); err != nil {
		s.finish(ctx, in.BatchID, domain.BatchFailed, res, err.Error())
		return res, fmt.Errorf("reading upload: %w", err)
	}

	if report != nil {
		report(res.Total)
	}
	if err := s.finish(ctx, in.BatchID, domain.BatchSuccess, res, ""); err != nil {
		return res, err
	}
	logger.Info("admission run complete",
		"batch_id", in.BatchID,
		"total", res.Total,
		"imported", res.Imported,
		"duplicates", res.Duplicates,
		"rejected", res.Rejected)
	return res, nil
}

func (s *Service) finish(ctx context.Context, batchID int64, status domain.BatchStatus, res *RunResult, errMsg string) error {
	return s.repo.FinishBatch(ctx, batchID, status, res.Total, res.Imported, res.Duplicates, res.Rejected, errMsg)
}

// admitLine applies the fixed check order to one raw line. Returns an error
// only for storage failures; policy outcomes are recorded, not returned.
func (s *Service) admitLine(ctx context.Context, in RunInput, raw string, seen map[string]struct{}, res *RunResult) error {
	addr, err := policy.Normalize(raw)
	if err != nil || !policy.SyntaxValid(addr) {
		return s.reject(ctx, in, raw, addr, domain.ReasonInvalidSyntax, "address fails syntax check", res)
	}

	dom, err := policy.ExtractDomain(addr)
	if err != nil {
		return s.reject(ctx, in, raw, addr, domain.ReasonInvalidSyntax, err.Error(), res)
	}

	// Suffix block takes precedence over the ccTLD rule when both fire.
	if policy.PolicySuffixBlocked(dom) {
		return s.reject(ctx, in, raw, addr, domain.ReasonPolicySuffix, "blocked institutional suffix", res)
	}
	if !policy.TLDAdmissible(dom, policy.USPublicSuffixes) {
		return s.reject(ctx, in, raw, addr, domain.ReasonCCTLDPolicy, "non-domestic country-code TLD", res)
	}

	ignored, err := s.repo.IsIgnoredDomain(ctx, dom)
	if err != nil {
		return fmt.Errorf("ignore lookup: %w", err)
	}
	if ignored {
		return s.reject(ctx, in, raw, addr, domain.ReasonIgnoreDomain, fmt.Sprintf("domain %s is on the ignore list", dom), res)
	}

	suppressed, err := s.repo.IsSuppressed(ctx, addr)
	if err != nil {
		return fmt.Errorf("suppression lookup: %w", err)
	}
	if suppressed {
		return s.reject(ctx, in, raw, addr, domain.ReasonSuppressed, "address is on the suppression list", res)
	}

	if _, dup := seen[addr]; dup {
		return s.duplicate(ctx, in, addr, nil, res)
	}
	seen[addr] = struct{}{}

	rec := &domain.EmailRecord{
		Address:          addr,
		Domain:           dom,
		DomainCategory:   policy.ClassifyDomain(dom, s.categorySets),
		Status:           domain.StatusUnverified,
		ValidationMethod: domain.MethodNone,
		ConsentGranted:   in.ConsentGranted,
		BatchID:          in.BatchID,
		UploadedBy:       in.UploadedBy,
	}
	id, inserted, err := s.repo.InsertEmail(ctx, rec)
	if err != nil {
		return fmt.Errorf("inserting email: %w", err)
	}
	if !inserted {
		// Existing global record. Shared state is left untouched.
		return s.duplicate(ctx, in, addr, &id, res)
	}

	res.Imported++
	if in.IsolatedScope {
		return s.repo.AddGuestItem(ctx, &domain.GuestEmailItem{
			BatchID:        in.BatchID,
			Address:        addr,
			Outcome:        domain.GuestInserted,
			MatchedEmailID: &id,
		})
	}
	return nil
}

func (s *Service) reject(ctx context.Context, in RunInput, raw, addr string, reason domain.RejectionReason, detail string, res *RunResult) error {
	res.Rejected++
	if err := s.repo.AddRejectedItem(ctx, &domain.RejectedItem{
		BatchID: in.BatchID,
		RawLine: raw,
		Address: addr,
		Reason:  reason,
		Detail:  detail,
	}); err != nil {
		return fmt.Errorf("recording rejection: %w", err)
	}
	if in.IsolatedScope {
		return s.repo.AddGuestItem(ctx, &domain.GuestEmailItem{
			BatchID:         in.BatchID,
			Address:         addr,
			Outcome:         domain.GuestRejected,
			RejectionReason: reason,
		})
	}
	return nil
}

func (s *Service) duplicate(ctx context.Context, in RunInput, addr string, matchedID *int64, res *RunResult) error {
	res.Duplicates++
	if in.IsolatedScope {
		if matchedID == nil {
			if id, found, err := s.repo.FindEmailID(ctx, addr); err == nil && found {
				matchedID = &id
			}
		}
		return s.repo.AddGuestItem(ctx, &domain.GuestEmailItem{
			BatchID:        in.BatchID,
			Address:        addr,
			Outcome:        domain.GuestDuplicate,
			MatchedEmailID: matchedID,
		})
	}
	return s.repo.AddRejectedItem(ctx, &domain.RejectedItem{
		BatchID: in.BatchID,
		RawLine: addr,
		Address: addr,
		Reason:  domain.ReasonDuplicate,
		Detail:  "address already admitted",
	})
}
