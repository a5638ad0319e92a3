// Package catalog holds the reference entities a serving instance is
// created against: projects, model versions and runtime versions.
package catalog

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/modelflow-ai/modelflow/types"
)

// Project groups models and runtimes under a single owner namespace.
type Project struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"size:255;uniqueIndex;not null"`
	OwnerID   int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Project) TableName() string { return "project" }

// ModelVersion is one immutable version of a packaged model.
type ModelVersion struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	ProjectID int64     `gorm:"index;not null"`
	ModelName string    `gorm:"size:255;not null"`
	Name      string    `gorm:"size:255;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ModelVersion) TableName() string { return "model_version" }

// RuntimeVersion is one immutable version of a packaged runtime,
// carrying the container image the version was built into.
type RuntimeVersion struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	ProjectID   int64     `gorm:"index;not null"`
	RuntimeName string    `gorm:"size:255;not null"`
	Name        string    `gorm:"size:255;not null"`
	Image       string    `gorm:"size:512;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (RuntimeVersion) TableName() string { return "runtime_version" }

// Resolver looks up catalog entities by id.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Migrate creates the catalog tables.
func (r *Resolver) Migrate() error {
	return r.db.AutoMigrate(&Project{}, &ModelVersion{}, &RuntimeVersion{})
}

func (r *Resolver) Project(ctx context.Context, id int64) (*Project, error) {
	var p Project
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, wrapLookup(err, "project")
	}
	return &p, nil
}

func (r *Resolver) ModelVersion(ctx context.Context, id int64) (*ModelVersion, error) {
	var mv ModelVersion
	if err := r.db.WithContext(ctx).First(&mv, id).Error; err != nil {
		return nil, wrapLookup(err, "model version")
	}
	return &mv, nil
}

func (r *Resolver) RuntimeVersion(ctx context.Context, id int64) (*RuntimeVersion, error) {
	var rv RuntimeVersion
	if err := r.db.WithContext(ctx).First(&rv, id).Error; err != nil {
		return nil, wrapLookup(err, "runtime version")
	}
	return &rv, nil
}

// ProjectByName resolves a project by its unique name.
func (r *Resolver) ProjectByName(ctx context.Context, name string) (*Project, error) {
	var p Project
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&p).Error; err != nil {
		return nil, wrapLookup(err, "project")
	}
	return &p, nil
}

// ModelVersionByRef resolves a "<model>/<version>" reference within a
// project.
func (r *Resolver) ModelVersionByRef(ctx context.Context, projectID int64, ref string) (*ModelVersion, error) {
	name, version, err := splitRef(ref)
	if err != nil {
		return nil, err
	}
	var mv ModelVersion
	err = r.db.WithContext(ctx).
		Where("project_id = ? AND model_name = ? AND name = ?", projectID, name, version).
		First(&mv).Error
	if err != nil {
		return nil, wrapLookup(err, "model version")
	}
	return &mv, nil
}

// RuntimeVersionByRef resolves a "<runtime>/<version>" reference
// within a project.
func (r *Resolver) RuntimeVersionByRef(ctx context.Context, projectID int64, ref string) (*RuntimeVersion, error) {
	name, version, err := splitRef(ref)
	if err != nil {
		return nil, err
	}
	var rv RuntimeVersion
	err = r.db.WithContext(ctx).
		Where("project_id = ? AND runtime_name = ? AND name = ?", projectID, name, version).
		First(&rv).Error
	if err != nil {
		return nil, wrapLookup(err, "runtime version")
	}
	return &rv, nil
}

func splitRef(ref string) (name, version string, err error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", types.Errorf(types.ErrInvalidReference, "malformed reference %q, want <name>/<version>", ref)
	}
	return parts[0], parts[1], nil
}

func wrapLookup(err error, kind string) error {
	if err == gorm.ErrRecordNotFound {
		return types.NewError(types.ErrNotFound, kind+" not found")
	}
	return types.NewError(types.ErrDatabaseError, "lookup "+kind).WithCause(err)
}
