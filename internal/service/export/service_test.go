package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/storage"
)

// mockRepo is an in-memory repository for testing. ClaimAvailable is
// atomic under a mutex, matching the database claim guarantee.
type mockRepo struct {
	mu          sync.Mutex
	records     []*domain.EmailRecord
	history     map[int64]*domain.DownloadHistoryEntry
	guestItems  []domain.GuestEmailItem
	guestHist   map[int64]*domain.GuestDownloadHistory
	rejected    []domain.RejectedItem
	templates   map[string]*domain.ExportTemplate
	nextID      int64
	claimCalls  int
}

func newMockRepo(records ...*domain.EmailRecord) *mockRepo {
	return &mockRepo{
		records:   records,
		history:   make(map[int64]*domain.DownloadHistoryEntry),
		guestHist: make(map[int64]*domain.GuestDownloadHistory),
		templates: make(map[string]*domain.ExportTemplate),
	}
}

func (m *mockRepo) ClaimAvailable(_ context.Context, filter domain.ExportFilter) ([]domain.EmailRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimCalls++
	order := make([]int, len(m.records))
	for i := range order {
		order[i] = i
	}
	if filter.Random {
		rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	var out []domain.EmailRecord
	for _, i := range order {
		r := m.records[i]
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
		if !r.Available() {
			continue
		}
		if filter.StatusClass == domain.ExportClassVerified && r.Status != domain.StatusVerified {
			continue
		}
		consumed := *r
		now := time.Now().UTC()
		r.ConsumedAt = &now
		r.ConsumptionCount++
		out = append(out, consumed)
	}
	return out, nil
}

func (m *mockRepo) ReleaseClaim(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	released := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		released[id] = struct{}{}
	}
	for _, r := range m.records {
		if _, ok := released[r.ID]; ok {
			r.ConsumedAt = nil
			if r.ConsumptionCount > 0 {
				r.ConsumptionCount--
			}
		}
	}
	return nil
}

func (m *mockRepo) AddDownloadHistory(_ context.Context, entry *domain.DownloadHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	copied := *entry
	m.history[entry.ID] = &copied
	return nil
}

func (m *mockRepo) GetDownloadHistory(_ context.Context, id int64) (*domain.DownloadHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.history[id]
	if !ok {
		return nil, ErrHistoryNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *mockRepo) IncrementDownloadCount(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.history[id]
	if !ok {
		return ErrHistoryNotFound
	}
	e.DownloadedTimes++
	return nil
}

func (m *mockRepo) ListDownloadHistory(_ context.Context, limit, offset int) ([]domain.DownloadHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DownloadHistoryEntry
	for _, e := range m.history {
		out = append(out, *e)
	}
	return out, nil
}

func (m *mockRepo) ListGuestItems(_ context.Context, batchID int64) ([]domain.GuestEmailItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GuestEmailItem
	for _, it := range m.guestItems {
		if it.BatchID == batchID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockRepo) AddGuestDownload(_ context.Context, entry *domain.GuestDownloadHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	copied := *entry
	m.guestHist[entry.ID] = &copied
	return nil
}

func (m *mockRepo) GetGuestDownload(_ context.Context, id int64) (*domain.GuestDownloadHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.guestHist[id]
	if !ok {
		return nil, ErrHistoryNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *mockRepo) IncrementGuestDownloadCount(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.guestHist[id]
	if !ok {
		return ErrHistoryNotFound
	}
	e.DownloadedTimes++
	return nil
}

func (m *mockRepo) ListRejectedItems(_ context.Context, batchID int64) ([]domain.RejectedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RejectedItem
	for _, it := range m.rejected {
		if it.BatchID == batchID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *mockRepo) SaveTemplate(_ context.Context, tpl *domain.ExportTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	tpl.ID = m.nextID
	copied := *tpl
	m.templates[tpl.Name] = &copied
	return nil
}

func (m *mockRepo) GetTemplate(_ context.Context, name string) (*domain.ExportTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[name]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	copied := *tpl
	return &copied, nil
}

func (m *mockRepo) ListTemplates(_ context.Context) ([]domain.ExportTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ExportTemplate
	for _, tpl := range m.templates {
		out = append(out, *tpl)
	}
	return out, nil
}

func (m *mockRepo) DeleteTemplate(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.templates, name)
	return nil
}

func availableRecord(id int64, address string) *domain.EmailRecord {
	return &domain.EmailRecord{
		ID: id, Address: address, Domain: "example.com",
		Status: domain.StatusVerified, ConsentGranted: true,
	}
}

func newTestService(t *testing.T, repo *mockRepo, maxPart int) *Service {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return NewService(repo, store, maxPart, ",")
}

// brokenStore fails every write, simulating a lost artifact backend.
type brokenStore struct{}

func (brokenStore) Put(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", fmt.Errorf("storage backend unavailable")
}

func (brokenStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("storage backend unavailable")
}

func (brokenStore) Delete(_ context.Context, _ string) error { return nil }

func TestExportClaimsAndWrites(t *testing.T) {
	repo := newMockRepo(
		availableRecord(1, "a@example.com"),
		availableRecord(2, "b@example.com"),
	)
	svc := newTestService(t, repo, 100)

	entries, err := svc.Export(context.Background(), domain.ExportFilter{StatusClass: domain.ExportClassVerified}, 7)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(entries) != 1 || entries[0].RecordCount != 2 {
		t.Fatalf("unexpected entries %+v", entries)
	}

	rc, _, err := svc.Redownload(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("Redownload: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !strings.Contains(string(data), "a@example.com") || !strings.Contains(string(data), "b@example.com") {
		t.Errorf("artifact missing addresses: %q", data)
	}

	// All records are now consumed; a second export finds nothing.
	if _, err := svc.Export(context.Background(), domain.ExportFilter{}, 7); err != ErrNoRecords {
		t.Errorf("second export err = %v, want ErrNoRecords", err)
	}
}

func TestNoDoubleExportUnderConcurrency(t *testing.T) {
	var records []*domain.EmailRecord
	for i := int64(1); i <= 200; i++ {
		records = append(records, availableRecord(i, fmt.Sprintf("user%d@example.com", i)))
	}
	repo := newMockRepo(records...)
	svc := newTestService(t, repo, 1000)

	const workers = 8
	results := make([][]domain.DownloadHistoryEntry, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			entries, err := svc.Export(context.Background(), domain.ExportFilter{Limit: 50}, int64(w))
			if err != nil && err != ErrNoRecords {
				t.Errorf("worker %d: %v", w, err)
			}
			results[w] = entries
		}(w)
	}
	wg.Wait()

	total := 0
	for _, entries := range results {
		for _, e := range entries {
			total += e.RecordCount
		}
	}
	// Every record claimed at most once across all racing exports.
	if total != 200 {
		t.Errorf("total exported = %d, want exactly 200", total)
	}
}

func TestSplitParts(t *testing.T) {
	var records []*domain.EmailRecord
	for i := int64(1); i <= 25; i++ {
		records = append(records, availableRecord(i, fmt.Sprintf("user%d@example.com", i)))
	}
	repo := newMockRepo(records...)
	svc := newTestService(t, repo, 100)

	entries, err := svc.Export(context.Background(), domain.ExportFilter{PartSize: 10}, 1)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("parts = %d, want 3", len(entries))
	}
	counts := []int{entries[0].RecordCount, entries[1].RecordCount, entries[2].RecordCount}
	if counts[0] != 10 || counts[1] != 10 || counts[2] != 5 {
		t.Errorf("part counts = %v", counts)
	}
	for i, e := range entries {
		if e.Part != i+1 || e.PartCount != 3 {
			t.Errorf("entry %d part=%d partcount=%d", i, e.Part, e.PartCount)
		}
	}
}

func TestRedownloadIsIdempotent(t *testing.T) {
	repo := newMockRepo(availableRecord(1, "a@example.com"))
	svc := newTestService(t, repo, 100)

	entries, err := svc.Export(context.Background(), domain.ExportFilter{}, 1)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	id := entries[0].ID
	claimsAfterExport := repo.claimCalls

	var first, second []byte
	for i, dst := range []*[]byte{&first, &second} {
		rc, entry, err := svc.Redownload(context.Background(), id)
		if err != nil {
			t.Fatalf("Redownload %d: %v", i, err)
		}
		*dst, _ = io.ReadAll(rc)
		rc.Close()
		if entry.DownloadedTimes != i+1 {
			t.Errorf("download %d: counter = %d, want %d", i, entry.DownloadedTimes, i+1)
		}
	}
	if !bytes.Equal(first, second) {
		t.Error("re-download served different bytes")
	}
	if repo.claimCalls != claimsAfterExport {
		t.Error("re-download must not claim records")
	}
}

func TestGuestExportReadsShadowOnly(t *testing.T) {
	matched := int64(99)
	repo := newMockRepo(availableRecord(99, "existing@example.com"))
	repo.guestItems = []domain.GuestEmailItem{
		{BatchID: 5, Address: "fresh@example.com", Outcome: domain.GuestInserted},
		{BatchID: 5, Address: "existing@example.com", Outcome: domain.GuestDuplicate, MatchedEmailID: &matched},
		{BatchID: 5, Address: "bad-line", Outcome: domain.GuestRejected, RejectionReason: domain.ReasonInvalidSyntax},
		{BatchID: 6, Address: "other@example.com", Outcome: domain.GuestInserted},
	}
	svc := newTestService(t, repo, 100)

	entry, err := svc.GuestExport(context.Background(), 5)
	if err != nil {
		t.Fatalf("GuestExport: %v", err)
	}
	if entry.RecordCount != 2 {
		t.Errorf("record count = %d, want 2 (inserted + duplicate)", entry.RecordCount)
	}
	// The shadow export never claims shared records.
	if repo.claimCalls != 0 {
		t.Error("guest export touched the shared claim path")
	}
	if repo.records[0].ConsumedAt != nil {
		t.Error("guest export consumed a shared record")
	}

	rc, got, err := svc.GuestRedownload(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("GuestRedownload: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !strings.Contains(string(data), "existing@example.com,duplicate") {
		t.Errorf("artifact missing duplicate row: %q", data)
	}
	if got.DownloadedTimes != 1 {
		t.Errorf("counter = %d, want 1", got.DownloadedTimes)
	}
}

func TestWriteRejected(t *testing.T) {
	repo := newMockRepo()
	repo.rejected = []domain.RejectedItem{
		{BatchID: 3, RawLine: "user@example.con", Address: "user@example.con", Reason: domain.ReasonTypoTLD, Detail: "likely misspelled TLD"},
		{BatchID: 3, RawLine: "not an email", Reason: domain.ReasonInvalidSyntax, Detail: "address fails syntax check"},
	}
	svc := newTestService(t, repo, 100)

	var buf bytes.Buffer
	n, err := svc.WriteRejected(context.Background(), 3, &buf)
	if err != nil {
		t.Fatalf("WriteRejected: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	out := buf.String()
	if !strings.Contains(out, "typo_tld") || !strings.Contains(out, "invalid_syntax") {
		t.Errorf("missing reasons in %q", out)
	}
	if !strings.HasPrefix(out, "raw_line,email,reason,detail") {
		t.Errorf("missing detail column in %q", out)
	}
	if !strings.Contains(out, "likely misspelled TLD") {
		t.Errorf("missing detail text in %q", out)
	}
}

func TestRandomSampleBounded(t *testing.T) {
	var records []*domain.EmailRecord
	for i := int64(1); i <= 100; i++ {
		records = append(records, availableRecord(i, fmt.Sprintf("user%d@example.com", i)))
	}
	repo := newMockRepo(records...)
	svc := newTestService(t, repo, 1000)

	const workers = 4
	results := make([][]domain.DownloadHistoryEntry, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			entries, err := svc.Export(context.Background(), domain.ExportFilter{Limit: 30, Random: true}, int64(w))
			if err != nil && err != ErrNoRecords {
				t.Errorf("worker %d: %v", w, err)
			}
			results[w] = entries
		}(w)
	}
	wg.Wait()

	total := 0
	for _, entries := range results {
		perExport := 0
		for _, e := range entries {
			perExport += e.RecordCount
		}
		if perExport > 30 {
			t.Errorf("random export claimed %d records, limit 30", perExport)
		}
		total += perExport
	}
	// The pool is exhausted exactly once; random ordering never changes
	// how many records a claim may take.
	if total != 100 {
		t.Errorf("total exported = %d, want exactly 100", total)
	}
	for _, r := range repo.records {
		if r.ConsumptionCount != 1 {
			t.Fatalf("record %d consumed %d times, want 1", r.ID, r.ConsumptionCount)
		}
	}
}

func TestStoreFailureReleasesClaim(t *testing.T) {
	repo := newMockRepo(
		availableRecord(1, "a@example.com"),
		availableRecord(2, "b@example.com"),
		availableRecord(3, "c@example.com"),
	)
	broken := NewService(repo, brokenStore{}, 100, ",")

	if _, err := broken.Export(context.Background(), domain.ExportFilter{}, 1); err == nil {
		t.Fatal("Export with broken store should fail")
	}
	for _, r := range repo.records {
		if r.ConsumedAt != nil || r.ConsumptionCount != 0 {
			t.Fatalf("record %d still consumed after failed artifact write", r.ID)
		}
	}

	// The same records are claimable again once storage works.
	svc := newTestService(t, repo, 100)
	entries, err := svc.Export(context.Background(), domain.ExportFilter{}, 1)
	if err != nil {
		t.Fatalf("Export after recovery: %v", err)
	}
	if len(entries) != 1 || entries[0].RecordCount != 3 {
		t.Fatalf("recovered export entries %+v, want all 3 records", entries)
	}
}

func TestCustomDelimiter(t *testing.T) {
	repo := newMockRepo(availableRecord(1, "a@example.com"))
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	svc := NewService(repo, store, 100, ";")

	entries, err := svc.Export(context.Background(), domain.ExportFilter{}, 1)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	rc, _, err := svc.Redownload(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("Redownload: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if !strings.HasPrefix(string(data), "email;domain;category") {
		t.Errorf("artifact not using configured delimiter: %q", data)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	repo := newMockRepo(availableRecord(1, "a@example.com"))
	svc := newTestService(t, repo, 100)

	filter := domain.ExportFilter{StatusClass: domain.ExportClassVerified, Ratings: []domain.Rating{domain.RatingA}}
	if _, err := svc.SaveTemplate(context.Background(), "weekly-a-list", filter, 1); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}

	entries, err := svc.ExportWithTemplate(context.Background(), "weekly-a-list", 1)
	if err != nil {
		t.Fatalf("ExportWithTemplate: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	if err := svc.DeleteTemplate(context.Background(), "weekly-a-list"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if _, err := svc.ExportWithTemplate(context.Background(), "weekly-a-list", 1); err != ErrTemplateNotFound {
		t.Errorf("err = %v, want ErrTemplateNotFound", err)
	}
}
