package objectstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deniedPrefix = "denied/"

// s3Stub answers path-style S3 requests for a handful of stored objects.
// Keys under deniedPrefix answer 403 for every method.
type s3Stub struct {
	objects map[string]string
}

func (s *s3Stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")

	if strings.HasPrefix(key, deniedPrefix) {
		writeS3Error(w, r, http.StatusForbidden, "AccessDenied", "Access Denied.", bucket, key)
		return
	}

	switch r.Method {
	case http.MethodPut:
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		body, ok := s.objects[path]
		if !ok {
			writeS3Error(w, r, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.", bucket, key)
			return
		}
		w.Header().Set("ETag", `"0123456789abcdef0123456789abcdef"`)
		w.Header().Set("Last-Modified", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, body)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeS3Error(w http.ResponseWriter, r *http.Request, status int, code, message, bucket, key string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>`+code+`</Code><Message>`+message+
		`</Message><BucketName>`+bucket+`</BucketName><Key>`+key+`</Key></Error>`)
}

func newMinioTestBackend(t *testing.T, endpoint string) *MinioBackend {
	t.Helper()
	retries := minio.MaxRetry
	minio.MaxRetry = 1
	t.Cleanup(func() { minio.MaxRetry = retries })

	backend, err := NewMinioBackend(MinioOptions{
		Endpoint:  endpoint,
		AccessKey: "access",
		SecretKey: "secret",
		Region:    "us-phoenix-1",
	})
	require.NoError(t, err)
	return backend
}

func newMinioTestClient(t *testing.T, stub *s3Stub) *Client {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	backend := newMinioTestBackend(t, strings.TrimPrefix(srv.URL, "http://"))
	return newTestClient(backend)
}

func TestMinioBackend_Get(t *testing.T) {
	client := newMinioTestClient(t, &s3Stub{objects: map[string]string{
		"datalakebucket/ehr/Binary/fhir_tenant_id=t/1.json": `{"resourceType":"Binary","id":"1"}`,
	}})
	ctx := context.Background()

	data, err := client.GetDatalakeObject(ctx, "ehr/Binary/fhir_tenant_id=t/1.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"resourceType":"Binary","id":"1"}`, string(data))

	data, err = client.GetDatalakeObject(ctx, "ehr/Binary/fhir_tenant_id=t/2.json")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestMinioBackend_Exists(t *testing.T) {
	client := newMinioTestClient(t, &s3Stub{objects: map[string]string{
		"datalakebucket/present.json": `{}`,
	}})
	ctx := context.Background()

	exists, err := client.DatalakeObjectExists(ctx, "present.json")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.DatalakeObjectExists(ctx, "absent.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMinioBackend_Put(t *testing.T) {
	client := newMinioTestClient(t, &s3Stub{})

	ok, err := client.UploadToDatalake(context.Background(), "ehr/location/fhir_tenant_id=t/_date=1990-01-03/abc.json", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMinioBackend_AccessDeniedIsRejected(t *testing.T) {
	client := newMinioTestClient(t, &s3Stub{})
	ctx := context.Background()

	ok, err := client.UploadToDatalake(ctx, deniedPrefix+"a.json", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.GetDatalakeObject(ctx, deniedPrefix+"a.json")
	require.Error(t, err)
	assert.Equal(t, ClassRejected, Classify(err))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, "AccessDenied", statusErr.Code)

	_, err = client.DatalakeObjectExists(ctx, deniedPrefix+"a.json")
	require.Error(t, err)
	assert.Equal(t, ClassRejected, Classify(err))
}

func TestMinioBackend_UnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	backend := newMinioTestBackend(t, endpoint)
	_, err := backend.HeadObject(context.Background(), "datalakebucket", "key.json")
	require.Error(t, err)
	assert.Equal(t, ClassTransient, Classify(err))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, StatusClientFailure, statusErr.StatusCode)
}

func TestMinioBackend_CancelledContext(t *testing.T) {
	client := newMinioTestClient(t, &s3Stub{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.DatalakeObjectExists(ctx, "key.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ClassUnknown, Classify(err))
}
