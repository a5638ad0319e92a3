package catalog

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/modelflow-ai/modelflow/types"
)

func testResolver(t *testing.T) *Resolver {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	r := NewResolver(db)
	require.NoError(t, r.Migrate())
	return r
}

func TestResolveRoundTrip(t *testing.T) {
	r := testResolver(t)
	ctx := context.Background()

	proj := &Project{Name: "demo", OwnerID: 1}
	require.NoError(t, r.db.Create(proj).Error)
	mv := &ModelVersion{ProjectID: proj.ID, ModelName: "mnist", Name: "v1"}
	require.NoError(t, r.db.Create(mv).Error)
	rv := &RuntimeVersion{ProjectID: proj.ID, RuntimeName: "pytorch", Name: "v2", Image: "docker.io/org/pytorch:v2"}
	require.NoError(t, r.db.Create(rv).Error)

	gotP, err := r.Project(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, "demo", gotP.Name)

	gotM, err := r.ModelVersion(ctx, mv.ID)
	require.NoError(t, err)
	assert.Equal(t, "mnist", gotM.ModelName)
	assert.Equal(t, "v1", gotM.Name)

	gotR, err := r.RuntimeVersion(ctx, rv.ID)
	require.NoError(t, err)
	assert.Equal(t, "docker.io/org/pytorch:v2", gotR.Image)
}

func TestResolveByReference(t *testing.T) {
	r := testResolver(t)
	ctx := context.Background()

	proj := &Project{Name: "demo", OwnerID: 1}
	require.NoError(t, r.db.Create(proj).Error)
	require.NoError(t, r.db.Create(&ModelVersion{ProjectID: proj.ID, ModelName: "mnist", Name: "v1"}).Error)
	require.NoError(t, r.db.Create(&RuntimeVersion{ProjectID: proj.ID, RuntimeName: "pytorch", Name: "v2", Image: "org/pytorch:v2"}).Error)

	got, err := r.ProjectByName(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, proj.ID, got.ID)

	mv, err := r.ModelVersionByRef(ctx, proj.ID, "mnist/v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", mv.Name)

	rv, err := r.RuntimeVersionByRef(ctx, proj.ID, "pytorch/v2")
	require.NoError(t, err)
	assert.Equal(t, "org/pytorch:v2", rv.Image)
}

func TestMalformedReference(t *testing.T) {
	r := testResolver(t)
	ctx := context.Background()

	for _, ref := range []string{"", "mnist", "mnist/", "/v1", "a/b/c"} {
		_, err := r.ModelVersionByRef(ctx, 1, ref)
		require.Error(t, err, "ref %q", ref)
		assert.True(t, types.IsCode(err, types.ErrInvalidReference), "ref %q", ref)
	}
}

func TestResolveMissingReturnsNotFound(t *testing.T) {
	r := testResolver(t)
	ctx := context.Background()

	_, err := r.Project(ctx, 999)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))

	_, err = r.ModelVersion(ctx, 999)
	assert.True(t, types.IsCode(err, types.ErrNotFound))

	_, err = r.RuntimeVersion(ctx, 999)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}
