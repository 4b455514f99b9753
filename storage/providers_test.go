package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/danielkbx/multi-storage/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// providerContract writes through both write paths of p and reads the content
// back through both read paths where available.
func providerContract(t *testing.T, p interfaces.Provider) {
	t.Helper()
	ctx := context.Background()
	payload := []byte("provider contract payload")

	sink, err := p.PostStream(ctx, NormalizeOptions(interfaces.WriteOptions{Name: "streamed-%", Path: "contract"}))
	require.NoError(t, err)
	_, err = sink.Write(payload[:10])
	require.NoError(t, err)
	_, err = sink.Write(payload[10:])
	require.NoError(t, err)
	streamedURL, err := sink.Commit()
	require.NoError(t, err)
	require.NoError(t, checkURL(streamedURL))

	urls := []string{streamedURL}
	if writer, ok := p.(interfaces.ScalarWriter); ok {
		url, err := writer.Post(ctx, payload, NormalizeOptions(interfaces.WriteOptions{Name: "scalar", Path: "contract"}))
		require.NoError(t, err)
		urls = append(urls, url)
	}

	for _, url := range urls {
		rc, err := p.GetStream(ctx, url)
		require.NoError(t, err, url)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, payload, data, url)

		if reader, ok := p.(interfaces.ScalarReader); ok {
			data, err := reader.Get(ctx, url, interfaces.BinaryEncoding)
			require.NoError(t, err, url)
			assert.Equal(t, payload, data, url)
		}

		require.NoError(t, p.Delete(ctx, url))
		_, err = p.GetStream(ctx, url)
		assert.ErrorIs(t, err, interfaces.ErrContentNotFound, url)
	}
}

func TestMemoryProvider(t *testing.T) {
	p := NewMemoryProvider("", testLogger())
	assert.Equal(t, "memory", p.Name())
	assert.Equal(t, []string{"mem"}, p.Schemes())

	providerContract(t, p)
	assert.Equal(t, 0, p.Len())

	_, err := p.GetStream(context.Background(), "file:///etc/passwd")
	assert.ErrorIs(t, err, interfaces.ErrInvalidScheme)
	assert.NoError(t, p.Delete(context.Background(), "mem:///missing"))
}

func TestMemoryProvider_AbortDiscards(t *testing.T) {
	p := NewMemoryProvider("mem", testLogger())

	sink, err := p.PostStream(context.Background(), interfaces.WriteOptions{Name: "aborted"})
	require.NoError(t, err)
	_, err = sink.Write([]byte("partial"))
	require.NoError(t, err)
	sink.Abort(fmt.Errorf("cancelled"))

	_, err = sink.Commit()
	assert.Error(t, err)
	assert.Equal(t, 0, p.Len())
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFileProvider(dir, testLogger())
	require.NoError(t, err)

	_, isReader := interface{}(p).(interfaces.ScalarReader)
	_, isWriter := interface{}(p).(interfaces.ScalarWriter)
	assert.False(t, isReader)
	assert.False(t, isWriter)

	providerContract(t, p)
}

func TestFileProvider_AbortRemovesTemporaryFile(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFileProvider(dir, testLogger())
	require.NoError(t, err)

	sink, err := p.PostStream(context.Background(), interfaces.WriteOptions{Name: "doc.txt"})
	require.NoError(t, err)
	_, err = sink.Write([]byte("partial"))
	require.NoError(t, err)
	sink.Abort(fmt.Errorf("cancelled"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileProvider_StaysInBaseDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "store")
	p, err := NewFileProvider(dir, testLogger())
	require.NoError(t, err)

	sink, err := p.PostStream(context.Background(), interfaces.WriteOptions{Name: "../../escape.txt"})
	require.NoError(t, err)
	_, err = sink.Write([]byte("x"))
	require.NoError(t, err)
	url, err := sink.Commit()
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(dir, "escape.txt")), url)

	_, err = p.GetStream(context.Background(), "file://"+filepath.ToSlash(filepath.Join(root, "other.txt")))
	assert.ErrorIs(t, err, errOutsideBaseDir)
}

// fakeObjectStore serves the subset of the S3 REST API used by the S3
// provider, with path style addressing.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (s *fakeObjectStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.URL.Path
	switch r.Method {
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.objects[key] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := s.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Write(data)
	case http.MethodDelete:
		delete(s.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *fakeObjectStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func TestS3Provider(t *testing.T) {
	store := newFakeObjectStore()
	srv := httptest.NewServer(store)
	defer srv.Close()

	p, err := NewS3Provider(S3Config{
		Bucket:    "bucket",
		Prefix:    "/uploads/",
		Region:    "eu-west-1",
		Endpoint:  srv.URL,
		AccessKey: "key",
		SecretKey: "secret",
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "s3-bucket", p.Name())

	url, err := p.Post(context.Background(), []byte("x"), interfaces.WriteOptions{Name: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/uploads/a.txt", url)
	assert.True(t, store.has("/bucket/uploads/a.txt"))

	providerContract(t, p)
}

func TestS3Location(t *testing.T) {
	bucket, key, err := s3Location("s3://bucket/some/key.txt")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "some/key.txt", key)

	_, _, err = s3Location("s3://bucket")
	assert.ErrorIs(t, err, interfaces.ErrInvalidURL)

	_, _, err = s3Location("minio://bucket/key")
	assert.ErrorIs(t, err, interfaces.ErrInvalidScheme)
}

func TestMinioProvider_Config(t *testing.T) {
	_, err := NewMinioProvider(MinioConfig{Bucket: "b"}, testLogger())
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	p, err := NewMinioProvider(MinioConfig{Endpoint: "localhost:9000", Bucket: "media", AccessKey: "k", SecretKey: "s"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "minio-media", p.Name())
	assert.Equal(t, []string{"minio"}, p.Schemes())

	bucket, key, err := minioLocation("minio://media/2024/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "media", bucket)
	assert.Equal(t, "2024/clip.mp4", key)
}

// fakeVault serves the KV v2 endpoints used by the Vault provider.
type fakeVault struct {
	mu      sync.Mutex
	secrets map[string]map[string]interface{}
	tokens  []string
}

func (v *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.tokens = append(v.tokens, r.Header.Get("X-Vault-Token"))
	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPut || r.Method == http.MethodPost:
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := body["data"].(map[string]interface{})
		v.secrets[path] = data
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"version": 1}})
	case r.Method == http.MethodGet:
		data, ok := v.secrets[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"errors":[]}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"data": data, "metadata": map[string]interface{}{"version": 1}},
		})
	case r.Method == http.MethodDelete:
		delete(v.secrets, strings.Replace(path, "/metadata/", "/data/", 1))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestVaultProvider(t *testing.T) {
	vault := &fakeVault{secrets: make(map[string]map[string]interface{})}
	srv := httptest.NewServer(vault)
	defer srv.Close()

	p, err := NewVaultProvider(VaultConfig{
		Address: srv.URL,
		Mount:   "kv",
		Prefix:  "storage",
		Token:   "test-token",
	}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "vault-kv", p.Name())

	url, err := p.Post(context.Background(), []byte{0xff, 0x00}, interfaces.WriteOptions{Name: "bin", Encoding: "binary"})
	require.NoError(t, err)
	assert.Equal(t, "vault://kv/storage/bin", url)

	vault.mu.Lock()
	stored := vault.secrets["kv/data/storage/bin"]
	vault.mu.Unlock()
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0xff, 0x00}), stored["content"])

	providerContract(t, p)

	vault.mu.Lock()
	defer vault.mu.Unlock()
	for _, token := range vault.tokens {
		assert.Equal(t, "test-token", token)
	}
}

// fakeIPFS serves the add, cat and pin/rm commands of the IPFS HTTP API.
type fakeIPFS struct {
	mu      sync.Mutex
	objects map[string][]byte
	pinned  map[string]bool
}

func (f *fakeIPFS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	arg := strings.TrimPrefix(r.URL.Query().Get("arg"), "/ipfs/")

	switch r.URL.Path {
	case "/api/v0/add":
		mr, err := r.MultipartReader()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		part, err := mr.NextPart()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(part)
		cid := fmt.Sprintf("QmFake%d", len(f.objects))
		f.objects[cid] = data
		f.pinned[cid] = r.URL.Query().Get("pin") == "true"
		json.NewEncoder(w).Encode(map[string]string{"Name": cid, "Hash": cid, "Size": fmt.Sprint(len(data))})
	case "/api/v0/cat":
		data, ok := f.objects[arg]
		if !ok || !f.pinned[arg] {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]interface{}{"Message": "block was not found locally (offline)", "Code": 0, "Type": "error"})
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write(data)
	case "/api/v0/pin/rm":
		if !f.pinned[arg] {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]interface{}{"Message": "not pinned or pinned indirectly", "Code": 0, "Type": "error"})
			return
		}
		f.pinned[arg] = false
		json.NewEncoder(w).Encode(map[string][]string{"Pins": {arg}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestIPFSProvider(t *testing.T) {
	node := &fakeIPFS{objects: make(map[string][]byte), pinned: make(map[string]bool)}
	srv := httptest.NewServer(node)
	defer srv.Close()

	p := NewIPFSProvider(srv.Listener.Addr().String(), 0, testLogger())
	assert.True(t, strings.HasPrefix(p.Name(), "ipfs-127.0.0.1-"))

	providerContract(t, p)

	assert.NoError(t, p.Delete(context.Background(), "ipfs://QmFake0"))

	_, err := ipfsCID("ipfs://")
	assert.ErrorIs(t, err, interfaces.ErrInvalidURL)
}
