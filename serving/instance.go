package serving

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/modelflow-ai/modelflow/types"
)

// JobStatus is the coarse lifecycle status persisted for an instance.
// Readiness is never written back here; the reconciler reads it live
// from the cluster every pass.
type JobStatus string

const (
	StatusCreated JobStatus = "CREATED"
	StatusRunning JobStatus = "RUNNING"
	StatusFailed  JobStatus = "FAILED"
)

// ServingInstance is one row of the instance ledger. The dedup tuple
// (project, model version, runtime version, resource pool) is unique
// across all rows; the id is assigned once at insert and never reused.
type ServingInstance struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	ProjectID        int64     `gorm:"not null;uniqueIndex:idx_serving_dedup"`
	ModelVersionID   int64     `gorm:"not null;uniqueIndex:idx_serving_dedup"`
	RuntimeVersionID int64     `gorm:"not null;uniqueIndex:idx_serving_dedup"`
	ResourcePool     string    `gorm:"size:255;not null;uniqueIndex:idx_serving_dedup"`
	OwnerID          int64     `gorm:"not null"`
	Status           JobStatus `gorm:"size:32;not null"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	LastVisitTime    time.Time `gorm:"index"`
}

func (ServingInstance) TableName() string { return "serving_instance" }

// InstanceKey is the dedup key of a logical instance.
type InstanceKey struct {
	ProjectID        int64
	ModelVersionID   int64
	RuntimeVersionID int64
	ResourcePool     string
}

// Ledger is the authoritative store of serving instances.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Migrate creates the ledger table and its unique dedup index.
func (l *Ledger) Migrate() error {
	return l.db.AutoMigrate(&ServingInstance{})
}

// FindOrCreate inserts a row for the key if none exists and returns
// the row holding the key, reporting whether this call inserted it.
// The insert is conflict-ignoring, so the unique index enforces the
// dedup invariant even if callers race. Exactly one row must hold the
// key afterwards; more than one is a fatal consistency fault.
func (l *Ledger) FindOrCreate(ctx context.Context, key InstanceKey, ownerID int64) (*ServingInstance, bool, error) {
	row := ServingInstance{
		ProjectID:        key.ProjectID,
		ModelVersionID:   key.ModelVersionID,
		RuntimeVersionID: key.RuntimeVersionID,
		ResourcePool:     key.ResourcePool,
		OwnerID:          ownerID,
		Status:           StatusCreated,
	}
	res := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, false, types.NewError(types.ErrDatabaseError, "insert serving instance").WithCause(res.Error)
	}
	created := res.RowsAffected == 1

	var rows []ServingInstance
	err := l.db.WithContext(ctx).
		Where("project_id = ? AND model_version_id = ? AND runtime_version_id = ? AND resource_pool = ?",
			key.ProjectID, key.ModelVersionID, key.RuntimeVersionID, key.ResourcePool).
		Find(&rows).Error
	if err != nil {
		return nil, false, types.NewError(types.ErrDatabaseError, "list serving instances by key").WithCause(err)
	}
	switch len(rows) {
	case 1:
		return &rows[0], created, nil
	case 0:
		return nil, false, types.NewError(types.ErrDatabaseError, "serving instance vanished after insert")
	default:
		return nil, false, types.Errorf(types.ErrDuplicateEntries,
			"%d ledger rows hold one dedup key", len(rows))
	}
}

// Touch updates the last visit time of an instance.
func (l *Ledger) Touch(ctx context.Context, id int64, now time.Time) error {
	err := l.db.WithContext(ctx).Model(&ServingInstance{}).
		Where("id = ?", id).
		Update("last_visit_time", now).Error
	if err != nil {
		return types.NewError(types.ErrDatabaseError, "touch serving instance").WithCause(err)
	}
	return nil
}

// Find returns the instance with the given id, or nil if no row
// exists. A missing row is an answer here, not an error: the
// reconciler uses it to detect orphaned workloads.
func (l *Ledger) Find(ctx context.Context, id int64) (*ServingInstance, error) {
	var row ServingInstance
	err := l.db.WithContext(ctx).First(&row, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrDatabaseError, "find serving instance").WithCause(err)
	}
	return &row, nil
}

// List returns all ledger rows, newest visit first.
func (l *Ledger) List(ctx context.Context) ([]ServingInstance, error) {
	var rows []ServingInstance
	err := l.db.WithContext(ctx).Order("last_visit_time DESC").Find(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrDatabaseError, "list serving instances").WithCause(err)
	}
	return rows, nil
}
