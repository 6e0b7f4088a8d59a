package export

import (
	"context"

	"github.com/ignite/listkeeper/internal/domain"
)

// Repository defines the data access contract for the export state machine.
type Repository interface {
	// ClaimAvailable atomically selects and consumes available records
	// matching the filter. Selection and marking happen as one unit: a
	// record claimed here is invisible to a concurrently racing claim.
	// May return fewer records than requested after a race; never errors
	// for that.
	ClaimAvailable(ctx context.Context, filter domain.ExportFilter) ([]domain.EmailRecord, error)

	// ReleaseClaim returns claimed records to the available pool. Used
	// when artifact production fails after a successful claim.
	ReleaseClaim(ctx context.Context, ids []int64) error

	// AddDownloadHistory records one produced artifact, setting entry.ID.
	AddDownloadHistory(ctx context.Context, entry *domain.DownloadHistoryEntry) error

	// GetDownloadHistory returns an entry by ID, or ErrHistoryNotFound.
	GetDownloadHistory(ctx context.Context, id int64) (*domain.DownloadHistoryEntry, error)

	// IncrementDownloadCount bumps the re-download counter.
	IncrementDownloadCount(ctx context.Context, id int64) error

	// ListDownloadHistory returns history entries, newest first.
	ListDownloadHistory(ctx context.Context, limit, offset int) ([]domain.DownloadHistoryEntry, error)

	// ListGuestItems returns the shadow rows of an isolated-scope batch.
	ListGuestItems(ctx context.Context, batchID int64) ([]domain.GuestEmailItem, error)

	// AddGuestDownload records a shadow-history artifact, setting entry.ID.
	AddGuestDownload(ctx context.Context, entry *domain.GuestDownloadHistory) error

	// GetGuestDownload returns a shadow entry by ID, or ErrHistoryNotFound.
	GetGuestDownload(ctx context.Context, id int64) (*domain.GuestDownloadHistory, error)

	// IncrementGuestDownloadCount bumps the shadow re-download counter.
	IncrementGuestDownloadCount(ctx context.Context, id int64) error

	// ListRejectedItems returns a batch's refused lines.
	ListRejectedItems(ctx context.Context, batchID int64) ([]domain.RejectedItem, error)

	// SaveTemplate inserts or updates a named filter, setting tpl.ID.
	SaveTemplate(ctx context.Context, tpl *domain.ExportTemplate) error

	// GetTemplate returns a template by name, or ErrTemplateNotFound.
	GetTemplate(ctx context.Context, name string) (*domain.ExportTemplate, error)

	// ListTemplates returns all saved templates.
	ListTemplates(ctx context.Context) ([]domain.ExportTemplate, error)

	// DeleteTemplate removes a template by name.
	DeleteTemplate(ctx context.Context, name string) error
}
