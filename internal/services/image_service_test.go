package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinetree/internal/models"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type imageFixture struct {
	images    *ImageService
	pinecones *PineconeService
	store     *SQLPineconeStore
	tree      map[string]*models.Pinecone
}

func newImageFixture(t *testing.T, limits models.TierLimits) *imageFixture {
	t.Helper()
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	store := NewPineconeStore(db)
	tiers := NewTierService(nil, map[string]models.TierLimits{models.TierFree: limits})
	pinecones := NewPineconeService(store, tiers, nil, nil, nil)
	limiter := NewUsageLimiterService(tiers, nil)
	return &imageFixture{
		images:    NewImageService(db, pinecones, tiers, limiter, nil, t.TempDir()),
		pinecones: pinecones,
		store:     store,
		tree:      seedTree(t, store, alice, [2]string{"", "a"}),
	}
}

func TestImageService_UploadAndGet(t *testing.T) {
	f := newImageFixture(t, models.TierLimits{MaxImageUploadsPerDay: 5, MaxImageBytes: 1 << 20})
	ctx := context.Background()
	node := f.tree["a"].Guid

	img, err := f.images.Upload(ctx, alice, node, "../../photo.png", bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, "photo.png", img.Filename)
	assert.Len(t, img.Hash, 64)
	assert.True(t, strings.HasSuffix(img.StoragePath, ".png"))

	info, err := os.Stat(img.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := f.images.Get(ctx, alice, img.ID)
	require.NoError(t, err)
	assert.Equal(t, img.Hash, got.Hash)

	_, err = f.images.Get(ctx, bob, img.ID)
	assert.ErrorIs(t, err, ErrNotFound, "private images are hidden")

	_, err = f.pinecones.SetVisibility(ctx, alice, node, true)
	require.NoError(t, err)
	_, err = f.images.Get(ctx, "", img.ID)
	assert.NoError(t, err, "images of public nodes are readable by anyone")

	_, err = f.images.Get(ctx, alice, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImageService_UploadRejections(t *testing.T) {
	f := newImageFixture(t, models.TierLimits{MaxImageUploadsPerDay: 1, MaxImageBytes: 1 << 20})
	ctx := context.Background()
	node := f.tree["a"].Guid

	_, err := f.images.Upload(ctx, bob, node, "x.png", bytes.NewReader(pngBytes(t)))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.images.Upload(ctx, alice, node, "x.png", strings.NewReader("just some text"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.images.Upload(ctx, alice, node, "x.png", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.images.Upload(ctx, alice, node, "x.png", bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)

	_, err = f.images.Upload(ctx, alice, node, "y.png", bytes.NewReader(pngBytes(t)))
	var limitErr *LimitExceededError
	assert.ErrorAs(t, err, &limitErr)
}

func TestImageService_SizeLimit(t *testing.T) {
	f := newImageFixture(t, models.TierLimits{MaxImageUploadsPerDay: -1, MaxImageBytes: 16})
	_, err := f.images.Upload(context.Background(), alice, f.tree["a"].Guid, "big.png", bytes.NewReader(pngBytes(t)))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestImageService_DeleteAndPurgeOrphans(t *testing.T) {
	f := newImageFixture(t, models.TierLimits{MaxImageUploadsPerDay: -1, MaxImageBytes: -1})
	ctx := context.Background()

	onRoot, err := f.images.Upload(ctx, alice, f.tree["R"].Guid, "r.png", bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	onChild, err := f.images.Upload(ctx, alice, f.tree["a"].Guid, "a.png", bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	spare, err := f.images.Upload(ctx, alice, f.tree["a"].Guid, "b.png", bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)

	assert.ErrorIs(t, f.images.Delete(ctx, bob, spare.ID), ErrUnauthorized)
	require.NoError(t, f.images.Delete(ctx, alice, spare.ID))
	_, err = os.Stat(spare.StoragePath)
	assert.True(t, os.IsNotExist(err))

	_, err = f.pinecones.DeleteNode(ctx, alice, f.tree["a"].Guid)
	require.NoError(t, err)

	n, err := f.images.PurgeOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.images.Get(ctx, alice, onChild.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.images.Get(ctx, alice, onRoot.ID)
	assert.NoError(t, err)
}
