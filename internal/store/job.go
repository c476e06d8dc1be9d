package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kubev2v/transcriber/internal/store/model"
	"gorm.io/gorm"
)

type Job interface {
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	GetByProviderJobID(ctx context.Context, providerJobID string) (*model.Job, error)
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Update(ctx context.Context, id uuid.UUID, update JobUpdate) (*model.Job, error)
	IncrementRetry(ctx context.Context, id uuid.UUID) (int, error)
	ListStaleProcessing(ctx context.Context, threshold time.Duration) (model.JobList, error)
	ListProcessing(ctx context.Context) (model.JobList, error)
	CountActive(ctx context.Context) (int64, error)
	InitialMigration(ctx context.Context) error
}

// JobUpdate holds the fields written by a single Update call. Nil fields are
// left untouched.
type JobUpdate struct {
	Status        *model.JobStatus
	SourceRef     *string
	ResultRef     *string
	ErrorMessage  *string
	ProviderJobID *string
	CompletedAt   *time.Time
}

func NewJobUpdate() JobUpdate {
	return JobUpdate{}
}

func (u JobUpdate) WithStatus(status model.JobStatus) JobUpdate {
	u.Status = &status
	return u
}

func (u JobUpdate) WithSourceRef(ref string) JobUpdate {
	u.SourceRef = &ref
	return u
}

func (u JobUpdate) WithProviderJobID(id string) JobUpdate {
	u.ProviderJobID = &id
	return u
}

// Completed sets every field required by the completed status.
func (u JobUpdate) Completed(resultRef string, at time.Time) JobUpdate {
	status := model.JobStatusCompleted
	at = at.UTC()
	u.Status = &status
	u.ResultRef = &resultRef
	u.CompletedAt = &at
	return u
}

// Failed sets every field required by the error status.
func (u JobUpdate) Failed(message string) JobUpdate {
	status := model.JobStatusError
	u.Status = &status
	u.ErrorMessage = &message
	return u
}

func (u JobUpdate) Validate() error {
	if u.Status == nil {
		if u.ResultRef != nil || u.CompletedAt != nil || u.ErrorMessage != nil {
			return fmt.Errorf("%w: result and error fields require a status", ErrInvalidUpdate)
		}
		return nil
	}

	switch *u.Status {
	case model.JobStatusCompleted:
		if u.ResultRef == nil || *u.ResultRef == "" || u.CompletedAt == nil {
			return fmt.Errorf("%w: completed requires a result ref and a completion time", ErrInvalidUpdate)
		}
	case model.JobStatusError:
		if u.ErrorMessage == nil || *u.ErrorMessage == "" {
			return fmt.Errorf("%w: error requires an error message", ErrInvalidUpdate)
		}
	case model.JobStatusQueued, model.JobStatusProcessing:
		if u.ResultRef != nil || u.CompletedAt != nil || u.ErrorMessage != nil {
			return fmt.Errorf("%w: %s cannot carry a result or an error", ErrInvalidUpdate, *u.Status)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidUpdate, *u.Status)
	}
	return nil
}

func (u JobUpdate) columns() map[string]any {
	cols := make(map[string]any)
	if u.Status != nil {
		cols["status"] = u.Status.String()
	}
	if u.SourceRef != nil {
		cols["audio_s3_key"] = *u.SourceRef
	}
	if u.ResultRef != nil {
		cols["srt_s3_key"] = *u.ResultRef
	}
	if u.ErrorMessage != nil {
		cols["error_message"] = *u.ErrorMessage
	}
	if u.ProviderJobID != nil {
		cols["provider_job_id"] = *u.ProviderJobID
	}
	if u.CompletedAt != nil {
		cols["completed_at"] = *u.CompletedAt
	}
	return cols
}

// sources returns the statuses a row must be in for the update to apply.
func (u JobUpdate) sources() []model.JobStatus {
	if u.Status == nil {
		return model.ActiveStatuses
	}
	return model.TransitionSources(*u.Status)
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (j *JobStore) InitialMigration(ctx context.Context) error {
	return j.getDB(ctx).AutoMigrate(&model.Job{})
}

func (j *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	var jobs model.JobList
	tx := j.getDB(ctx).WithContext(ctx)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Model(&jobs).Find(&jobs).Error; err != nil {
		return nil, err
	}

	return jobs, nil
}

func (j *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job := model.Job{}

	if err := j.getDB(ctx).WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return &job, nil
}

func (j *JobStore) GetByProviderJobID(ctx context.Context, providerJobID string) (*model.Job, error) {
	if providerJobID == "" {
		return nil, ErrRecordNotFound
	}

	job := model.Job{}
	if err := j.getDB(ctx).WithContext(ctx).First(&job, "provider_job_id = ?", providerJobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return &job, nil
}

// Create inserts a new job in the queued status.
func (j *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Status = model.JobStatusQueued
	job.ResultRef = nil
	job.ErrorMessage = nil
	job.CompletedAt = nil

	if err := j.getDB(ctx).WithContext(ctx).Create(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}

	return &job, nil
}

// Update writes every field of the update in one statement. The statement only
// matches a row whose current status may move to the requested one, so a
// terminal job is never overwritten.
func (j *JobStore) Update(ctx context.Context, id uuid.UUID, update JobUpdate) (*model.Job, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	cols := update.columns()
	if len(cols) == 0 {
		return j.Get(ctx, id)
	}

	result := j.getDB(ctx).WithContext(ctx).
		Model(&model.Job{}).
		Where("id = ? AND status IN ?", id, statusValues(update.sources())).
		Updates(cols)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("updating job %s: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		return nil, j.missedUpdate(ctx, id)
	}

	return j.Get(ctx, id)
}

// IncrementRetry bumps retry_count of a non terminal job and returns the new value.
func (j *JobStore) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	result := j.getDB(ctx).WithContext(ctx).
		Model(&model.Job{}).
		Where("id = ? AND status IN ?", id, statusValues(model.ActiveStatuses)).
		Update("retry_count", gorm.Expr("retry_count + ?", 1))
	if result.Error != nil {
		return 0, fmt.Errorf("incrementing retry count of job %s: %w", id, result.Error)
	}

	if result.RowsAffected == 0 {
		return 0, j.missedUpdate(ctx, id)
	}

	job, err := j.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return job.RetryCount, nil
}

// ListStaleProcessing returns processing jobs with a provider id created at
// least threshold ago.
func (j *JobStore) ListStaleProcessing(ctx context.Context, threshold time.Duration) (model.JobList, error) {
	filter := NewJobQueryFilter().
		ByStatus(model.JobStatusProcessing).
		WithProviderJobID().
		CreatedBefore(time.Now().Add(-threshold))

	return j.List(ctx, filter, NewJobQueryOptions().WithSortOrder(SortByCreatedTime))
}

// ListProcessing returns every processing job with a provider id.
func (j *JobStore) ListProcessing(ctx context.Context) (model.JobList, error) {
	filter := NewJobQueryFilter().
		ByStatus(model.JobStatusProcessing).
		WithProviderJobID()

	return j.List(ctx, filter, NewJobQueryOptions().WithSortOrder(SortByCreatedTime))
}

func (j *JobStore) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := j.getDB(ctx).WithContext(ctx).
		Model(&model.Job{}).
		Where("status IN ?", statusValues(model.ActiveStatuses)).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// missedUpdate explains why a guarded statement did not match any row.
func (j *JobStore) missedUpdate(ctx context.Context, id uuid.UUID) error {
	job, err := j.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrJobTerminal
	}
	return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, job.Status)
}

func (j *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return j.db
}
