package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/listkeeper/internal/config"
	"github.com/ignite/listkeeper/internal/domain"
	"github.com/ignite/listkeeper/internal/pkg/distlock"
	"github.com/ignite/listkeeper/internal/pkg/logger"
	"github.com/ignite/listkeeper/internal/progress"
	"github.com/ignite/listkeeper/internal/repository/postgres"
	"github.com/ignite/listkeeper/internal/service/admission"
	"github.com/ignite/listkeeper/internal/service/export"
	"github.com/ignite/listkeeper/internal/service/validation"
	"github.com/ignite/listkeeper/internal/storage"
)

// ImportPayload carries the parameters of an import job.
type ImportPayload struct {
	BatchID        int64  `json:"batch_id"`
	Source         string `json:"source"`
	UploadedBy     int64  `json:"uploaded_by"`
	ConsentGranted bool   `json:"consent_granted"`
	IsolatedScope  bool   `json:"isolated_scope"`
}

// ValidatePayload carries the parameters of a validation job.
type ValidatePayload struct {
	BatchID    int64                   `json:"batch_id"`
	Method     domain.ValidationMethod `json:"method"`
	Revalidate bool                    `json:"revalidate"`
}

// ExportPayload carries the parameters of an export job.
type ExportPayload struct {
	Filter      domain.ExportFilter `json:"filter"`
	Template    string              `json:"template,omitempty"`
	RequestedBy int64               `json:"requested_by"`
}

// Runner polls the job queue and executes import, validation and export
// jobs. Multiple runners can share a queue; claiming is atomic and
// validation runs take a per-batch distributed lock.
type Runner struct {
	jobs       *postgres.JobRepo
	admission  *admission.Service
	validation *validation.Service
	export     *export.Service
	tracker    *progress.Tracker
	store      storage.ArtifactStore
	db         *sql.DB
	redis      *redis.Client
	cfg        config.WorkerConfig

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner wires a job runner from its collaborators.
func NewRunner(
	jobs *postgres.JobRepo,
	adm *admission.Service,
	val *validation.Service,
	exp *export.Service,
	tracker *progress.Tracker,
	store storage.ArtifactStore,
	db *sql.DB,
	redisClient *redis.Client,
	cfg config.WorkerConfig,
) *Runner {
	if cfg.PollIntervalSecs <= 0 {
		cfg.PollIntervalSecs = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	return &Runner{
		jobs:       jobs,
		admission:  adm,
		validation: val,
		export:     exp,
		tracker:    tracker,
		store:      store,
		db:         db,
		redis:      redisClient,
		cfg:        cfg,
	}
}

// Start launches the polling loop with the configured number of
// executor slots.
func (r *Runner) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.done = make(chan struct{})
	slots := make(chan struct{}, r.cfg.Concurrency)

	go func() {
		defer close(r.done)
		logger.Info("job runner started",
			"poll_interval", r.cfg.PollInterval().String(),
			"concurrency", r.cfg.Concurrency)

		ticker := time.NewTicker(r.cfg.PollInterval())
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				logger.Info("job runner stopped")
				return
			case <-ticker.C:
				r.drain(slots)
			}
		}
	}()
}

// Stop signals the loop and waits for it to exit. In-flight jobs see
// their context cancelled and finish through the cooperative path.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// drain claims jobs until the queue is empty or all slots are busy.
func (r *Runner) drain(slots chan struct{}) {
	for {
		select {
		case slots <- struct{}{}:
		default:
			return
		}
		job, err := r.jobs.ClaimNext(r.ctx)
		if err != nil {
			logger.Error("claim job", "error", err.Error())
			<-slots
			return
		}
		if job == nil {
			<-slots
			return
		}
		go func(job *domain.Job) {
			defer func() { <-slots }()
			r.execute(job)
		}(job)
	}
}

func (r *Runner) execute(job *domain.Job) {
	logger.Info("job started", "job_id", job.ID, "type", string(job.Type))

	var err error
	switch job.Type {
	case domain.JobImport:
		err = r.runImport(r.ctx, job)
	case domain.JobValidate:
		err = r.runValidation(r.ctx, job)
	case domain.JobExport:
		err = r.runExport(r.ctx, job)
	default:
		err = fmt.Errorf("unknown job type %q", job.Type)
	}

	switch {
	case err == nil:
		r.finish(job, domain.JobCompleted, "")
	case errors.Is(err, admission.ErrCancelled) || errors.Is(err, validation.ErrCancelled):
		r.finish(job, domain.JobCancelled, "cancelled by operator")
	default:
		logger.Error("job failed", "job_id", job.ID, "type", string(job.Type), "error", err.Error())
		r.finish(job, domain.JobFailed, err.Error())
	}
}

func (r *Runner) finish(job *domain.Job, status domain.JobStatus, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.jobs.Finish(ctx, job.ID, status, errMsg); err != nil {
		logger.Error("finish job", "job_id", job.ID, "error", err.Error())
	}
	r.tracker.Set(ctx, domain.Progress{JobID: job.ID, Status: status, Message: errMsg})
	logger.Info("job finished", "job_id", job.ID, "status", string(status))
}

// cancelRequested checks the shared tracker first, then the job row, so
// a cancel lands even when the API and the runner do not share Redis.
func (r *Runner) cancelRequested(ctx context.Context, jobID int64) bool {
	if r.tracker.CancelRequested(ctx, jobID) {
		return true
	}
	j, err := r.jobs.Get(ctx, jobID)
	return err == nil && j.CancelRequested
}

func (r *Runner) runImport(ctx context.Context, job *domain.Job) error {
	var p ImportPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode import payload: %w", err)
	}

	src, err := r.store.Get(ctx, p.Source)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	res, err := r.admission.Run(ctx, admission.RunInput{
		BatchID:        p.BatchID,
		UploadedBy:     p.UploadedBy,
		ConsentGranted: p.ConsentGranted,
		IsolatedScope:  p.IsolatedScope,
		Lines:          src,
	}, func(processed int) {
		r.tracker.Set(ctx, domain.Progress{
			JobID:     job.ID,
			Processed: processed,
			Status:    domain.JobRunning,
		})
	}, func() bool {
		return r.cancelRequested(ctx, job.ID)
	})
	if err != nil {
		return err
	}

	// The source file served its purpose; keep storage bounded.
	if err := r.store.Delete(ctx, p.Source); err != nil {
		logger.Warn("delete upload", "source", p.Source, "error", err.Error())
	}

	logger.Info("import complete",
		"batch_id", p.BatchID,
		"total", res.Total,
		"imported", res.Imported,
		"duplicates", res.Duplicates,
		"rejected", res.Rejected)
	return nil
}

func (r *Runner) runValidation(ctx context.Context, job *domain.Job) error {
	var p ValidatePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode validation payload: %w", err)
	}

	// One validation run per batch at a time, across all runners.
	lock := distlock.NewLock(r.redis, r.db,
		fmt.Sprintf("listkeeper:validate:batch:%d", p.BatchID), 30*time.Minute)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire validation lock: %w", err)
	}
	if !acquired {
		return validation.ErrAlreadyRunning
	}
	defer lock.Release(context.Background())

	report := func(processed, total int) {
		r.tracker.Set(ctx, domain.Progress{
			JobID:     job.ID,
			Processed: processed,
			Total:     total,
			Status:    domain.JobRunning,
		})
	}
	cancelled := func() bool {
		return r.cancelRequested(ctx, job.ID)
	}

	var res *validation.RunResult
	switch p.Method {
	case domain.MethodSMTP:
		res, err = r.validation.RunSMTP(ctx, p.BatchID, p.Revalidate, report, cancelled)
	default:
		res, err = r.validation.RunStandard(ctx, p.BatchID, p.Revalidate, report, cancelled)
	}
	if err != nil {
		return err
	}

	logger.Info("validation complete",
		"batch_id", p.BatchID,
		"method", string(p.Method),
		"total", res.Total,
		"valid", res.Valid,
		"invalid", res.Invalid)
	return nil
}

func (r *Runner) runExport(ctx context.Context, job *domain.Job) error {
	var p ExportPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("decode export payload: %w", err)
	}

	var entries []domain.DownloadHistoryEntry
	var err error
	if p.Template != "" {
		entries, err = r.export.ExportWithTemplate(ctx, p.Template, p.RequestedBy)
	} else {
		entries, err = r.export.Export(ctx, p.Filter, p.RequestedBy)
	}
	if err != nil {
		return err
	}

	total := 0
	for _, e := range entries {
		total += e.RecordCount
	}
	r.tracker.Set(ctx, domain.Progress{
		JobID:     job.ID,
		Processed: total,
		Total:     total,
		Status:    domain.JobRunning,
		Message:   fmt.Sprintf("%d artifacts", len(entries)),
	})
	logger.Info("export complete", "job_id", job.ID, "parts", len(entries), "records", total)
	return nil
}
