package images

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facehook/internal/models"
	"github.com/your-org/facehook/internal/storage"
)

const baseURL = "http://facehook.local:5000"

var receivedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func ptr(s string) *string { return &s }

func newLocal(t *testing.T) *storage.LocalStore {
	t.Helper()
	s, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func upload(field, name, data string) models.Upload {
	return models.Upload{FieldName: field, OriginalName: name, ContentType: "image/jpeg", Data: []byte(data)}
}

// storedBytes reads back the artifact a resolved URL points at.
func storedBytes(t *testing.T, s storage.Store, u *string) string {
	t.Helper()
	require.NotNil(t, u)
	require.True(t, strings.HasPrefix(*u, baseURL+UploadsPath), *u)
	data, _, err := s.Get(context.Background(), strings.TrimPrefix(*u, baseURL+UploadsPath))
	require.NoError(t, err)
	return string(data)
}

type fakeFetcher struct {
	data  map[string]string
	err   error
	mu    sync.Mutex
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, deviceIP, ref string) ([]byte, string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, deviceIP+"/"+ref)
	f.mu.Unlock()
	if f.err != nil {
		return nil, "", f.err
	}
	d, ok := f.data[ref]
	if !ok {
		return nil, "", &FetchError{URL: ResourceURL(deviceIP, ref), Status: http.StatusNotFound}
	}
	return []byte(d), "image/jpeg", nil
}

func TestResolveByFieldName(t *testing.T) {
	store := newLocal(t)
	r := NewResolver(store, nil)

	res, err := r.Resolve(context.Background(), Input{
		Payload: &models.DetectionPayload{},
		Uploads: []models.Upload{
			upload("bodyPic", "body.jpg", "B"),
			upload("originPic", "origin.jpg", "O"),
			upload("facePic", "face.jpg", "F"),
		},
		BaseURL:    baseURL,
		ReceivedAt: receivedAt,
	})
	require.NoError(t, err)

	assert.Equal(t, "O", storedBytes(t, store, res.Images.OriginPic))
	assert.Equal(t, "B", storedBytes(t, store, res.Images.BodyPic))
	assert.Equal(t, "F", storedBytes(t, store, res.Images.FacePic))
	assert.Nil(t, res.Images.PersonPhoto)
	require.Len(t, res.Attached, 3)
	assert.Equal(t, int64(1), res.Attached[0].SizeBytes)
}

func TestResolveCanonicalNameBeatsAlias(t *testing.T) {
	store := newLocal(t)
	res, err := NewResolver(store, nil).Resolve(context.Background(), Input{
		Uploads: []models.Upload{
			upload("face", "alias.jpg", "alias"),
			upload("facePic", "canonical.jpg", "canonical"),
		},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "canonical", storedBytes(t, store, res.Images.FacePic))
}

func TestResolveFaceFallsBackToFirstUnmatched(t *testing.T) {
	store := newLocal(t)
	res, err := NewResolver(store, nil).Resolve(context.Background(), Input{
		Uploads: []models.Upload{
			upload("originPic", "origin.jpg", "O"),
			upload("file", "first.jpg", "first"),
			upload("file2", "second.jpg", "second"),
		},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "O", storedBytes(t, store, res.Images.OriginPic))
	assert.Equal(t, "first", storedBytes(t, store, res.Images.FacePic))
	assert.Nil(t, res.Images.BodyPic)
}

func TestResolveBinaryBlobBecomesFace(t *testing.T) {
	store := newLocal(t)
	res, err := NewResolver(store, nil).Resolve(context.Background(), Input{
		Uploads: []models.Upload{{OriginalName: "upload.jpg", Data: []byte("blob")}},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "blob", storedBytes(t, store, res.Images.FacePic))
}

func TestResolveFetchesFromDevice(t *testing.T) {
	store := newLocal(t)
	dev := &fakeFetcher{data: map[string]string{"face_001.jpg": "remote face", "p9": "remote photo"}}

	res, err := NewResolver(store, dev).Resolve(context.Background(), Input{
		Payload: &models.DetectionPayload{
			Device: models.DeviceMeta{IP: ptr("10.0.0.5")},
			Refs:   models.ImageRefs{FacePic: ptr("face_001.jpg"), Photo: ptr("p9")},
		},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.NoError(t, err)

	assert.Equal(t, "remote face", storedBytes(t, store, res.Images.FacePic))
	assert.Equal(t, "remote photo", storedBytes(t, store, res.Images.PersonPhoto))
	assert.True(t, strings.HasSuffix(*res.Images.PersonPhoto, "-p9.jpg"), *res.Images.PersonPhoto)
	assert.Len(t, res.Fetched, 2)
	assert.ElementsMatch(t, []string{"10.0.0.5/face_001.jpg", "10.0.0.5/p9"}, dev.calls)
}

func TestResolveUploadWinsOverDeviceRef(t *testing.T) {
	store := newLocal(t)
	dev := &fakeFetcher{data: map[string]string{"face_001.jpg": "remote"}}

	res, err := NewResolver(store, dev).Resolve(context.Background(), Input{
		Payload: &models.DetectionPayload{
			Device: models.DeviceMeta{IP: ptr("10.0.0.5")},
			Refs:   models.ImageRefs{FacePic: ptr("face_001.jpg")},
		},
		Uploads: []models.Upload{upload("facePic", "face.jpg", "uploaded")},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "uploaded", storedBytes(t, store, res.Images.FacePic))
	assert.Empty(t, dev.calls)
}

func TestResolveRefWithoutDeviceIP(t *testing.T) {
	dev := &fakeFetcher{data: map[string]string{"face_001.jpg": "remote"}}
	res, err := NewResolver(newLocal(t), dev).Resolve(context.Background(), Input{
		Payload: &models.DetectionPayload{Refs: models.ImageRefs{FacePic: ptr("face_001.jpg")}},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Images.FacePic)
	assert.Empty(t, dev.calls)
}

func TestResolveFetchFailureDegrades(t *testing.T) {
	dev := &fakeFetcher{err: &FetchError{URL: "http://10.0.0.5/resource/x", Timeout: true}}
	res, err := NewResolver(newLocal(t), dev).Resolve(context.Background(), Input{
		Payload: &models.DetectionPayload{
			Device: models.DeviceMeta{IP: ptr("10.0.0.5")},
			Refs:   models.ImageRefs{FacePic: ptr("x")},
		},
		Uploads: []models.Upload{upload("originPic", "origin.jpg", "O")},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Images.FacePic)
	assert.NotNil(t, res.Images.OriginPic)
}

func TestResolveDeviceTimeoutEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	res, err := NewResolver(newLocal(t), NewDeviceClient(50*time.Millisecond, 0)).Resolve(context.Background(), Input{
		Payload: &models.DetectionPayload{
			Device: models.DeviceMeta{IP: ptr(deviceHost(srv))},
			Refs:   models.ImageRefs{FacePic: ptr("slow.jpg")},
		},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Images.FacePic)
}

type failingStore struct {
	storage.Store
	failAfter int
	puts      int
	deleted   []string
}

func (f *failingStore) Put(ctx context.Context, name string, data []byte, ct string) (string, error) {
	f.puts++
	if f.puts > f.failAfter {
		return "", errors.New("disk full")
	}
	return f.Store.Put(ctx, name, data, ct)
}

func (f *failingStore) Delete(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return f.Store.Delete(ctx, name)
}

func TestResolveStorageFailureIsFatal(t *testing.T) {
	local := newLocal(t)
	store := &failingStore{Store: local, failAfter: 1}

	res, err := NewResolver(store, nil).Resolve(context.Background(), Input{
		Uploads: []models.Upload{
			upload("originPic", "origin.jpg", "O"),
			upload("facePic", "face.jpg", "F"),
		},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.ErrorIs(t, err, ErrStorage)
	assert.Nil(t, res)

	// The first upload was rolled back.
	assert.Len(t, store.deleted, 1)
	left, err := local.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestResolveFetchedStorageFailureIsFatal(t *testing.T) {
	store := &failingStore{Store: newLocal(t), failAfter: 0}
	dev := &fakeFetcher{data: map[string]string{"f.jpg": "remote"}}

	_, err := NewResolver(store, dev).Resolve(context.Background(), Input{
		Payload: &models.DetectionPayload{
			Device: models.DeviceMeta{IP: ptr("10.0.0.5")},
			Refs:   models.ImageRefs{FacePic: ptr("f.jpg")},
		},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.ErrorIs(t, err, ErrStorage)
}

type panickingFetcher struct{}

func (panickingFetcher) Fetch(context.Context, string, string) ([]byte, string, error) {
	panic("decoder bug")
}

func TestResolveFetchPanicIsFatal(t *testing.T) {
	local := newLocal(t)

	res, err := NewResolver(local, panickingFetcher{}).Resolve(context.Background(), Input{
		Payload: &models.DetectionPayload{
			Device: models.DeviceMeta{IP: ptr("10.0.0.5")},
			Refs:   models.ImageRefs{Photo: ptr("p.jpg")},
		},
		Uploads: []models.Upload{upload("facePic", "face.jpg", "F")},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoder bug")
	assert.Nil(t, res)

	left, err := local.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRollbackRemovesStoredArtifacts(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	r := NewResolver(local, &fakeFetcher{data: map[string]string{"p.jpg": "remote"}})

	res, err := r.Resolve(ctx, Input{
		Payload: &models.DetectionPayload{
			Device: models.DeviceMeta{IP: ptr("10.0.0.5")},
			Refs:   models.ImageRefs{Photo: ptr("p.jpg")},
		},
		Uploads: []models.Upload{upload("facePic", "face.jpg", "F")},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.NoError(t, err)
	require.Len(t, res.Fetched, 1)

	r.Rollback(ctx, res)
	left, err := local.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)

	// A second rollback finds nothing left and stays quiet.
	r.Rollback(ctx, res)
}

func TestDiscardRemovesOriginAndBody(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)
	r := NewResolver(store, nil)

	res, err := r.Resolve(ctx, Input{
		Uploads: []models.Upload{
			upload("originPic", "origin.jpg", "O"),
			upload("bodyPic", "body.jpg", "B"),
			upload("facePic", "face.jpg", "F"),
		},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.NoError(t, err)
	origin, _ := res.File(RoleOrigin)
	body, _ := res.File(RoleBody)

	r.Discard(ctx, res)

	assert.Nil(t, res.Images.OriginPic)
	assert.Nil(t, res.Images.BodyPic)
	assert.Equal(t, "F", storedBytes(t, store, res.Images.FacePic))
	_, _, err = store.Get(ctx, origin.StoredName)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, _, err = store.Get(ctx, body.StoredName)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDiscardToleratesMissingFiles(t *testing.T) {
	ctx := context.Background()
	store := newLocal(t)
	r := NewResolver(store, nil)

	res, err := r.Resolve(ctx, Input{
		Uploads: []models.Upload{upload("originPic", "origin.jpg", "O")},
		BaseURL: baseURL, ReceivedAt: receivedAt,
	})
	require.NoError(t, err)
	origin, _ := res.File(RoleOrigin)
	require.NoError(t, store.Delete(ctx, origin.StoredName))

	r.Discard(ctx, res)
	assert.Nil(t, res.Images.OriginPic)
}

func TestStoredNameIsUniqueAndSafe(t *testing.T) {
	a := StoredName(receivedAt, "../../etc/passwd")
	b := StoredName(receivedAt, "../../etc/passwd")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "1714564800000-"), a)
	assert.True(t, strings.HasSuffix(a, "-passwd"), a)
	assert.NotContains(t, a, "/")

	assert.True(t, strings.HasSuffix(StoredName(receivedAt, "my face (1).jpg"), "-my_face__1_.jpg"))
	assert.True(t, strings.HasSuffix(StoredName(receivedAt, ""), "-upload"))
}
