package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facehook/internal/images"
	"github.com/your-org/facehook/internal/payload"
	"github.com/your-org/facehook/internal/recognition"
	"github.com/your-org/facehook/internal/storage"
)

type testEnv struct {
	router *gin.Engine
	store  *storage.LocalStore
}

type envOptions struct {
	device       images.Fetcher
	maxFileBytes int64
	staticDir    string
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	svc := recognition.NewService(recognition.ServiceConfig{
		Decoder:             payload.NewDecoder(opts.maxFileBytes),
		Resolver:            images.NewResolver(store, opts.device),
		Latest:              recognition.NewLatestStore(time.Now().UTC()),
		DiscardUnrecognized: true,
	})
	r := NewRouter(RouterConfig{Service: svc, Store: store, StaticDir: opts.staticDir})
	return &testEnv{router: r, store: store}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) latest(t *testing.T) map[string]any {
	t.Helper()
	w := e.do(httptest.NewRequest(http.MethodGet, "/api/face-recognition/latest", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func ingestRequest(t *testing.T, event string, files ...[2]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("data", event))
	for _, f := range files {
		fw, err := mw.CreateFormFile(f[0], f[0]+".jpg")
		require.NoError(t, err)
		_, err = fw.Write([]byte(f[1]))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/face-recognition", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestLatestBeforeFirstIngest(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	out := env.latest(t)
	assert.Equal(t, false, out["recognized"])
	assert.Equal(t, "Waiting for first recognition...", out["message"])
	assert.NotEmpty(t, out["timestamp"])
}

func TestIngestRoundTrip(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w := env.do(ingestRequest(t,
		`[{"personId":"42","name":"Alice","deviceIp":"10.0.0.5","glassess":"1"}]`,
		[2]string{"facePic", "face-bytes"},
		[2]string{"originPic", "origin-bytes"},
	))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"recognized":true,"name":"Alice"}`, w.Body.String())

	out := env.latest(t)
	assert.Equal(t, true, out["recognized"])
	assert.Equal(t, "Alice", out["name"])
	assert.Equal(t, "42", out["personId"])
	assert.Equal(t, "1", out["bodyInfo"].(map[string]any)["glasses"])
	assert.Equal(t, "10.0.0.5", out["deviceInfo"].(map[string]any)["deviceIp"])
	assert.Equal(t, "10.0.0.5", out["deviceIp"])

	imgs := out["images"].(map[string]any)
	assert.Nil(t, imgs["bodyPic"])
	faceURL, ok := imgs["facePic"].(string)
	require.True(t, ok)
	u, err := url.Parse(faceURL)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com", u.Scheme+"://"+u.Host)
	require.True(t, strings.HasPrefix(u.Path, "/uploads/"))

	img := env.do(httptest.NewRequest(http.MethodGet, u.Path, nil))
	require.Equal(t, http.StatusOK, img.Code)
	assert.Equal(t, "face-bytes", img.Body.String())
	assert.Equal(t, "image/jpeg", img.Header().Get("Content-Type"))
}

func TestIngestUsesForwardedProto(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	req := ingestRequest(t, `[{"personId":"1","name":"Bob"}]`, [2]string{"facePic", "f"})
	req.Header.Set("X-Forwarded-Proto", "https")
	require.Equal(t, http.StatusOK, env.do(req).Code)

	face := env.latest(t)["images"].(map[string]any)["facePic"].(string)
	assert.True(t, strings.HasPrefix(face, "https://example.com/uploads/"))
}

func TestIngestMalformedEnvelope(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	before := env.latest(t)

	w := env.do(ingestRequest(t, `{not json`))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid JSON in data field"}`, w.Body.String())

	assert.Equal(t, before, env.latest(t))
}

func TestIngestFileTooLarge(t *testing.T) {
	env := newTestEnv(t, envOptions{maxFileBytes: 8})

	w := env.do(ingestRequest(t, `[{}]`, [2]string{"facePic", "way more than eight bytes"}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestLatestIsIdempotent(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	require.Equal(t, http.StatusOK, env.do(ingestRequest(t, `[{"personId":"7","name":"Eve"}]`)).Code)

	a := env.do(httptest.NewRequest(http.MethodGet, "/api/face-recognition/latest", nil))
	b := env.do(httptest.NewRequest(http.MethodGet, "/api/face-recognition/latest", nil))
	assert.Equal(t, a.Body.String(), b.Body.String())
}

func TestUnrecognizedDiscardsHeavyImages(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w := env.do(ingestRequest(t, `[{"deviceIp":"10.0.0.5"}]`,
		[2]string{"originPic", "o"}, [2]string{"bodyPic", "b"}, [2]string{"facePic", "f"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"recognized":false}`, w.Body.String())

	out := env.latest(t)
	assert.Equal(t, "No user match", out["message"])
	imgs := out["images"].(map[string]any)
	assert.Nil(t, imgs["originPic"])
	assert.Nil(t, imgs["bodyPic"])
	assert.NotNil(t, imgs["facePic"])

	entries, err := os.ReadDir(env.store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestConcurrentIngestsNeverMix(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	people := [][2]string{{"1", "Alice"}, {"2", "Bob"}}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		p := people[i%2]
		event := fmt.Sprintf(`[{"personId":%q,"name":%q}]`, p[0], p[1])
		req := ingestRequest(t, event, [2]string{"facePic", p[1]})
		wg.Add(2)
		go func() {
			defer wg.Done()
			w := env.do(req)
			assert.Equal(t, http.StatusOK, w.Code)
		}()
		go func() {
			defer wg.Done()
			w := env.do(httptest.NewRequest(http.MethodGet, "/api/face-recognition/latest", nil))
			var out map[string]any
			if !assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &out)) || out["recognized"] != true {
				return
			}
			switch out["name"] {
			case "Alice":
				assert.Equal(t, "1", out["personId"])
			case "Bob":
				assert.Equal(t, "2", out["personId"])
			default:
				t.Errorf("unexpected name %v", out["name"])
			}
		}()
	}
	wg.Wait()

	out := env.latest(t)
	assert.Contains(t, []any{"Alice", "Bob"}, out["name"])
}

func TestDeviceTimeoutStillAccepted(t *testing.T) {
	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer device.Close()
	host := strings.TrimPrefix(device.URL, "http://")

	env := newTestEnv(t, envOptions{device: images.NewDeviceClient(50*time.Millisecond, 0)})

	body := fmt.Sprintf(`{"personId":"9","name":"Zoe","deviceIp":%q,"facePicRef":"face_9.jpg"}`, host)
	req := httptest.NewRequest(http.MethodPost, "/api/face-recognition", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Less(t, time.Since(start), time.Second)

	out := env.latest(t)
	assert.Equal(t, "Zoe", out["name"])
	assert.Nil(t, out["images"].(map[string]any)["facePic"])
}

func TestDeviceFetchFillsFace(t *testing.T) {
	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resource/face_9.jpg", r.URL.Path)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("from device"))
	}))
	defer device.Close()
	host := strings.TrimPrefix(device.URL, "http://")

	env := newTestEnv(t, envOptions{device: images.NewDeviceClient(time.Second, 0)})
	event := fmt.Sprintf(`[{"personId":"9","name":"Zoe","deviceIp":%q,"facePicRef":"face_9.jpg"}]`, host)
	require.Equal(t, http.StatusOK, env.do(ingestRequest(t, event)).Code)

	face := env.latest(t)["images"].(map[string]any)["facePic"].(string)
	u, err := url.Parse(face)
	require.NoError(t, err)
	img := env.do(httptest.NewRequest(http.MethodGet, u.Path, nil))
	require.Equal(t, http.StatusOK, img.Code)
	assert.Equal(t, "from device", img.Body.String())
}

func TestUploadsNotFound(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodGet, "/uploads/missing.jpg", nil)).Code)
	assert.Equal(t, http.StatusNotFound, env.do(httptest.NewRequest(http.MethodGet, "/uploads/..%2Fsecret", nil)).Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","checks":{"storage":"ok"}}`, w.Body.String())
}

func TestDashboardFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>dash</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))
	env := newTestEnv(t, envOptions{staticDir: dir})

	w := env.do(httptest.NewRequest(http.MethodGet, "/live/view", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dash")

	w = env.do(httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "console.log")

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
