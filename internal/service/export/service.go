package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/pkg/logger"
	"github.com/ignite/listkeeper/internal/storage"
)

// Service implements the export state machine on top of an atomic claim.
type Service struct {
	repo        Repository
	store       storage.ArtifactStore
	maxPartSize int
	delimiter   rune
}

// NewService creates an export service. maxPartSize caps records per
// artifact when a request does not set its own part size; delimiter is
// the CSV field separator, comma when empty.
func NewService(repo Repository, store storage.ArtifactStore, maxPartSize int, delimiter string) *Service {
	if maxPartSize <= 0 {
		maxPartSize = 50000
	}
	comma := ','
	if delimiter != "" {
		comma = []rune(delimiter)[0]
	}
	return &Service{repo: repo, store: store, maxPartSize: maxPartSize, delimiter: comma}
}

// Export claims available records matching the filter, writes one artifact
// per part, and returns the history entries. The claimed count may be less
// than requested after a race; the entries report the honest count.
func (s *Service) Export(ctx context.Context, filter domain.ExportFilter, requestedBy int64) ([]domain.DownloadHistoryEntry, error) {
	records, err := s.repo.ClaimAvailable(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("claiming records: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	partSize := filter.PartSize
	if partSize <= 0 || partSize > s.maxPartSize {
		partSize = s.maxPartSize
	}
	parts := splitRecords(records, partSize)
	filterJSON, _ := json.Marshal(filter)

	// Short random token keeps concurrent exports in the same second
	// from colliding on a name.
	stamp := fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102_150405"), uuid.NewString()[:8])
	entries := make([]domain.DownloadHistoryEntry, 0, len(parts))
	for i, part := range parts {
		name := fmt.Sprintf("export_%s_part%d.csv", stamp, i+1)
		if len(parts) == 1 {
			name = fmt.Sprintf("export_%s.csv", stamp)
		}
		var buf bytes.Buffer
		if err := s.writeRecordsCSV(&buf, part); err != nil {
			s.releaseFrom(ctx, parts, i)
			return entries, fmt.Errorf("writing artifact: %w", err)
		}
		path, err := s.store.Put(ctx, name, &buf)
		if err != nil {
			// The claim and the artifact are one unit: parts without an
			// artifact go back to the pool instead of staying consumed.
			s.releaseFrom(ctx, parts, i)
			return entries, fmt.Errorf("storing artifact: %w", err)
		}

		entry := domain.DownloadHistoryEntry{
			Filename:    name,
			StoragePath: path,
			RecordCount: len(part),
			FilterJSON:  filterJSON,
			Part:        i + 1,
			PartCount:   len(parts),
			RequestedBy: requestedBy,
		}
		if err := s.repo.AddDownloadHistory(ctx, &entry); err != nil {
			s.releaseFrom(ctx, parts, i)
			return entries, fmt.Errorf("recording history: %w", err)
		}
		entries = append(entries, entry)
	}

	logger.Info("export complete",
		"requested_by", requestedBy,
		"records", len(records),
		"parts", len(parts))
	return entries, nil
}

// Redownload re-serves a previously produced artifact and bumps its
// counter. No record state changes and nothing is re-claimed.
func (s *Service) Redownload(ctx context.Context, historyID int64) (io.ReadCloser, *domain.DownloadHistoryEntry, error) {
	entry, err := s.repo.GetDownloadHistory(ctx, historyID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Get(ctx, entry.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening artifact: %w", err)
	}
	if err := s.repo.IncrementDownloadCount(ctx, historyID); err != nil {
		rc.Close()
		return nil, nil, fmt.Errorf("updating counter: %w", err)
	}
	entry.DownloadedTimes++
	return rc, entry, nil
}

// History lists produced artifacts, newest first.
func (s *Service) History(ctx context.Context, limit, offset int) ([]domain.DownloadHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListDownloadHistory(ctx, limit, offset)
}

// GuestExport writes an artifact from an isolated-scope batch's shadow
// rows. Shared records are read through the duplicate links but never
// claimed or mutated.
func (s *Service) GuestExport(ctx context.Context, batchID int64) (*domain.GuestDownloadHistory, error) {
	items, err := s.repo.ListGuestItems(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("listing shadow rows: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = s.delimiter
	w.Write([]string{"email", "outcome"})
	count := 0
	for _, item := range items {
		if item.Outcome == domain.GuestRejected {
			continue
		}
		w.Write([]string{item.Address, string(item.Outcome)})
		count++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("writing artifact: %w", err)
	}
	if count == 0 {
		return nil, ErrNoRecords
	}

	name := fmt.Sprintf("guest_batch%d_%s_%s.csv", batchID,
		time.Now().UTC().Format("20060102_150405"), uuid.NewString()[:8])
	path, err := s.store.Put(ctx, name, &buf)
	if err != nil {
		return nil, fmt.Errorf("storing artifact: %w", err)
	}

	entry := &domain.GuestDownloadHistory{
		BatchID:     batchID,
		Filename:    name,
		StoragePath: path,
		RecordCount: count,
	}
	if err := s.repo.AddGuestDownload(ctx, entry); err != nil {
		return nil, fmt.Errorf("recording shadow history: %w", err)
	}
	return entry, nil
}

// GuestRedownload re-serves a shadow artifact and bumps its counter.
func (s *Service) GuestRedownload(ctx context.Context, historyID int64) (io.ReadCloser, *domain.GuestDownloadHistory, error) {
	entry, err := s.repo.GetGuestDownload(ctx, historyID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Get(ctx, entry.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening artifact: %w", err)
	}
	if err := s.repo.IncrementGuestDownloadCount(ctx, historyID); err != nil {
		rc.Close()
		return nil, nil, fmt.Errorf("updating counter: %w", err)
	}
	entry.DownloadedTimes++
	return rc, entry, nil
}

// WriteRejected streams a batch's refused lines as CSV. This is a plain
// report, not a claim: nothing is consumed.
func (s *Service) WriteRejected(ctx context.Context, batchID int64, w io.Writer) (int, error) {
	items, err := s.repo.ListRejectedItems(ctx, batchID)
	if err != nil {
		return 0, fmt.Errorf("listing rejected items: %w", err)
	}
	cw := csv.NewWriter(w)
	cw.Comma = s.delimiter
	cw.Write([]string{"raw_line", "email", "reason", "detail"})
	for _, item := range items {
		cw.Write([]string{item.RawLine, item.Address, string(item.Reason), item.Detail})
	}
	cw.Flush()
	return len(items), cw.Error()
}

// SaveTemplate stores a named filter for reuse.
func (s *Service) SaveTemplate(ctx context.Context, name string, filter domain.ExportFilter, createdBy int64) (*domain.ExportTemplate, error) {
	if name == "" {
		return nil, fmt.Errorf("template name is required")
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("encoding filter: %w", err)
	}
	tpl := &domain.ExportTemplate{Name: name, FilterJSON: filterJSON, CreatedBy: createdBy}
	if err := s.repo.SaveTemplate(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// ExportWithTemplate runs an export using a saved filter.
func (s *Service) ExportWithTemplate(ctx context.Context, name string, requestedBy int64) ([]domain.DownloadHistoryEntry, error) {
	tpl, err := s.repo.GetTemplate(ctx, name)
	if err != nil {
		return nil, err
	}
	var filter domain.ExportFilter
	if err := json.Unmarshal(tpl.FilterJSON, &filter); err != nil {
		return nil, fmt.Errorf("decoding template filter: %w", err)
	}
	return s.Export(ctx, filter, requestedBy)
}

// Templates lists saved export templates.
func (s *Service) Templates(ctx context.Context) ([]domain.ExportTemplate, error) {
	return s.repo.ListTemplates(ctx)
}

// DeleteTemplate removes a saved template.
func (s *Service) DeleteTemplate(ctx context.Context, name string) error {
	return s.repo.DeleteTemplate(ctx, name)
}

// releaseFrom returns the claims of parts that never got an artifact.
// Parts already recorded keep theirs. A failed release is logged; those
// records then stay consumed until an operator intervenes.
func (s *Service) releaseFrom(ctx context.Context, parts [][]domain.EmailRecord, from int) {
	var ids []int64
	for _, part := range parts[from:] {
		for _, rec := range part {
			ids = append(ids, rec.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if err := s.repo.ReleaseClaim(ctx, ids); err != nil {
		logger.Error("release claimed records", "count", len(ids), "error", err.Error())
	}
}

func splitRecords(records []domain.EmailRecord, partSize int) [][]domain.EmailRecord {
	var parts [][]domain.EmailRecord
	for start := 0; start < len(records); start += partSize {
		end := start + partSize
		if end > len(records) {
			end = len(records)
		}
		parts = append(parts, records[start:end])
	}
	return parts
}

// writeRecordsCSV writes the artifact rows. The address column is always
// present; csv quoting keeps every field machine-parseable.
func (s *Service) writeRecordsCSV(w io.Writer, records []domain.EmailRecord) error {
	cw := csv.NewWriter(w)
	cw.Comma = s.delimiter
	cw.Write([]string{"email", "domain", "category", "status", "rating", "score", "method"})
	for _, r := range records {
		score := ""
		if r.QualityScore != nil {
			score = strconv.Itoa(*r.QualityScore)
		}
		cw.Write([]string{
			r.Address,
			r.Domain,
			r.DomainCategory,
			string(r.Status),
			string(r.Rating),
			score,
			string(r.ValidationMethod),
		})
	}
	cw.Flush()
	return cw.Error()
}
