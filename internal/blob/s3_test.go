package blob

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metaPrefix = "X-Amz-Meta-"

type fakeObject struct {
	body        []byte
	size        int64
	contentType string
	meta        http.Header
}

// fakeBucket answers the path-style PUT, HEAD and GET requests S3Store sends.
type fakeBucket struct {
	objects map[string]fakeObject
}

func (f *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	if len(parts) != 2 {
		return respond(http.StatusBadRequest, nil, nil), nil
	}
	key := parts[1]

	switch req.Method {
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		obj := fakeObject{body: body, size: int64(len(body)), contentType: req.Header.Get("Content-Type"), meta: http.Header{}}
		if decoded := req.Header.Get("X-Amz-Decoded-Content-Length"); decoded != "" {
			if n, err := strconv.ParseInt(decoded, 10, 64); err == nil {
				obj.size = n
				obj.body = unchunk(body, n)
			}
		}
		for name, values := range req.Header {
			if len(name) > len(metaPrefix) && strings.EqualFold(name[:len(metaPrefix)], metaPrefix) {
				obj.meta[name] = values
			}
		}
		f.objects[key] = obj
		return respond(http.StatusOK, http.Header{"Etag": {`"v1"`}}, nil), nil
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, nil, nil), nil
		}
		header := obj.meta.Clone()
		header.Set("Content-Length", strconv.FormatInt(obj.size, 10))
		header.Set("Content-Type", obj.contentType)
		header.Set("Etag", `"d41d8cd9"`)
		header.Set("Last-Modified", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		if req.Method == http.MethodHead {
			return respond(http.StatusOK, header, nil), nil
		}
		return respond(http.StatusOK, header, obj.body), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func respond(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Header: header, Body: io.NopCloser(bytes.NewReader(body)), ContentLength: int64(len(body))}
}

// unchunk strips aws-chunked framing from a single-chunk upload.
func unchunk(body []byte, n int64) []byte {
	header, rest, ok := bytes.Cut(body, []byte("\r\n"))
	if !ok {
		return body
	}
	size, err := strconv.ParseInt(strings.SplitN(string(header), ";", 2)[0], 16, 64)
	if err != nil || size != n || int64(len(rest)) < n {
		return body
	}
	return rest[:n]
}

func newFakeS3Store(t *testing.T) *S3Store {
	t.Helper()
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String("https://s3.test.local")
		o.HTTPClient = &http.Client{Transport: &fakeBucket{objects: map[string]fakeObject{}}}
		o.UsePathStyle = true
	})
	return &S3Store{client: client, bucket: "reports"}
}

func TestS3StorePutHead(t *testing.T) {
	store := newFakeS3Store(t)
	ctx := context.Background()

	info, err := store.Put(ctx, "2024/quota.xlsx", bytes.NewReader([]byte("hello")), PutOptions{
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Metadata:    map[string]string{"run-id": "abc"},
	})
	require.NoError(t, err)

	assert.Equal(t, "2024/quota.xlsx", info.Key)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", info.ContentType)
	assert.Equal(t, "d41d8cd9", info.ETag, "quotes are trimmed from the etag")
	assert.Equal(t, "s3://reports/2024/quota.xlsx", info.Location)
	assert.Equal(t, "abc", info.Metadata["run-id"])
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), info.LastModified.UTC())

	head, err := store.Head(ctx, "2024/quota.xlsx")
	require.NoError(t, err)
	assert.Equal(t, info, head)
}

func TestS3StoreGet(t *testing.T) {
	store := newFakeS3Store(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "quota.xlsx", bytes.NewReader([]byte("hello")), PutOptions{})
	require.NoError(t, err)

	info, body, err := store.Get(ctx, "quota.xlsx")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "s3://reports/quota.xlsx", info.Location)
}

func TestS3StoreMissingKey(t *testing.T) {
	store := newFakeS3Store(t)
	_, err := store.Head(context.Background(), "missing.xlsx")
	assert.ErrorContains(t, err, "head object missing.xlsx")
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestS3StoreDriver(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:          "reports",
		Endpoint:        "https://s3.test.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, DriverS3, store.Driver())
}
