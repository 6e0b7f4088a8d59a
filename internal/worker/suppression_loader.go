package worker

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lib/pq"

	"github.com/ignite/listkeeper/internal/pkg/logger"
	"github.com/ignite/listkeeper/internal/policy"
)

const (
	suppBatchSize     = 50000
	suppWriterWorkers = 4
	suppChannelBuffer = 8
)

// SuppressionLoader bulk-loads suppression files into the suppression
// table. Files are streamed line by line at constant memory and written
// through the COPY protocol in large batches, with a multi-row INSERT
// fallback when COPY is unavailable.
type SuppressionLoader struct {
	db *sql.DB
}

// NewSuppressionLoader creates a loader over the given database.
func NewSuppressionLoader(db *sql.DB) *SuppressionLoader {
	return &SuppressionLoader{db: db}
}

// LoadResult summarizes one bulk load.
type LoadResult struct {
	Total     int64 `json:"total"`
	Imported  int64 `json:"imported"`
	Duplicate int64 `json:"duplicate"`
	Invalid   int64 `json:"invalid"`
}

// Load streams addresses from r into the suppression list, tagging each
// row with the given source label. report, when non-nil, receives the
// running line count at batch boundaries.
func (l *SuppressionLoader) Load(ctx context.Context, r io.Reader, source string, report func(processed int64)) (*LoadResult, error) {
	var res LoadResult
	var mu sync.Mutex

	batches := make(chan []string, suppChannelBuffer)
	var wg sync.WaitGroup
	writerErr := make(chan error, suppWriterWorkers)

	// Closed on the first writer failure so the producer never blocks
	// sending to a channel nobody reads anymore.
	abort := make(chan struct{})
	var abortOnce sync.Once

	for i := 0; i < suppWriterWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batches {
				imported, duplicates, err := l.insertBatch(ctx, source, batch)
				if err != nil {
					select {
					case writerErr <- err:
					default:
					}
					abortOnce.Do(func() { close(abort) })
					return
				}
				mu.Lock()
				res.Imported += imported
				res.Duplicate += duplicates
				mu.Unlock()
			}
		}()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	batch := make([]string, 0, suppBatchSize)
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		select {
		case batches <- batch:
			batch = make([]string, 0, suppBatchSize)
			return true
		case <-abort:
			return false
		case <-ctx.Done():
			return false
		}
	}

scan:
	for scanner.Scan() {
		res.Total++
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.EqualFold(line, "email") {
			res.Total--
			continue
		}
		if !policy.SyntaxValid(line) {
			res.Invalid++
			continue
		}
		batch = append(batch, line)
		if len(batch) >= suppBatchSize {
			if !flush() {
				break scan
			}
			if report != nil {
				report(res.Total)
			}
		}
	}
	flush()
	close(batches)
	wg.Wait()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read suppression file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case err := <-writerErr:
		return nil, err
	default:
	}

	if report != nil {
		report(res.Total)
	}
	logger.Info("suppression load complete",
		"source", source,
		"total", res.Total,
		"imported", res.Imported,
		"duplicate", res.Duplicate,
		"invalid", res.Invalid)
	return &res, nil
}

// insertBatch COPYs a batch into a session temp table and merges it,
// so duplicates inside the file and against existing rows collapse in
// one statement.
func (l *SuppressionLoader) insertBatch(ctx context.Context, source string, batch []string) (imported, duplicates int64, err error) {
	if len(batch) == 0 {
		return 0, 0, nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin suppression batch: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		CREATE TEMP TABLE _supp_load (address VARCHAR(320)) ON COMMIT DROP
	`)
	if err != nil {
		return l.insertBatchFallback(ctx, source, batch)
	}

	stmt, err := tx.Prepare(pq.CopyIn("_supp_load", "address"))
	if err != nil {
		return l.insertBatchFallback(ctx, source, batch)
	}
	for _, addr := range batch {
		if _, err := stmt.Exec(addr); err != nil {
			stmt.Close()
			return l.insertBatchFallback(ctx, source, batch)
		}
	}
	if _, err := stmt.Exec(); err != nil {
		stmt.Close()
		return l.insertBatchFallback(ctx, source, batch)
	}
	stmt.Close()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO suppression_entries (address, source, created_at)
		SELECT DISTINCT t.address, $1, NOW()
		FROM _supp_load t
		ON CONFLICT (address) DO NOTHING
	`, source)
	if err != nil {
		return 0, 0, fmt.Errorf("merge suppression batch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit suppression batch: %w", err)
	}

	inserted, _ := result.RowsAffected()
	return inserted, int64(len(batch)) - inserted, nil
}

// insertBatchFallback uses a multi-row INSERT when COPY is unavailable,
// e.g. against pgbouncer in transaction pooling mode.
func (l *SuppressionLoader) insertBatchFallback(ctx context.Context, source string, batch []string) (imported, duplicates int64, err error) {
	const chunk = 1000
	for start := 0; start < len(batch); start += chunk {
		end := start + chunk
		if end > len(batch) {
			end = len(batch)
		}
		part := batch[start:end]

		var sb strings.Builder
		args := make([]interface{}, 0, len(part)+1)
		args = append(args, source)
		sb.WriteString("INSERT INTO suppression_entries (address, source, created_at) VALUES ")
		for i, addr := range part {
			if i > 0 {
				sb.WriteString(", ")
			}
			args = append(args, addr)
			fmt.Fprintf(&sb, "($%d, $1, NOW())", len(args))
		}
		sb.WriteString(" ON CONFLICT (address) DO NOTHING")

		result, err := l.db.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			return imported, duplicates, fmt.Errorf("insert suppression batch: %w", err)
		}
		inserted, _ := result.RowsAffected()
		imported += inserted
		duplicates += int64(len(part)) - inserted
	}
	return imported, duplicates, nil
}
