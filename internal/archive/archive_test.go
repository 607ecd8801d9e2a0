package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cg-order-portal/internal/domain"
)

// fakeS3 serves path-style PUT and GET requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(req.URL.Path, "/")
	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			body = decodeChunked(body)
		}
		f.objects[key] = body
		f.types[key] = req.Header.Get("Content-Type")
		return respond(http.StatusOK, nil, http.Header{"ETag": {`"etag"`}}), nil
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, nil, http.Header{}), nil
		}
		return respond(http.StatusOK, body, http.Header{
			"Content-Length": {strconv.Itoa(len(body))},
			"Content-Type":   {f.types[key]},
		}), nil
	}
	return respond(http.StatusNotImplemented, nil, http.Header{}), nil
}

func respond(status int, body []byte, header http.Header) *http.Response {
	return &http.Response{StatusCode: status, Header: header, Body: io.NopCloser(bytes.NewReader(body))}
}

// decodeChunked strips aws-chunked framing: <hex size>\r\n<data>\r\n ... 0\r\n<trailers>.
func decodeChunked(b []byte) []byte {
	var out []byte
	for {
		line, rest, ok := bytes.Cut(b, []byte("\r\n"))
		if !ok {
			return out
		}
		sizeHex, _, _ := bytes.Cut(line, []byte(";"))
		size, err := strconv.ParseInt(string(sizeHex), 16, 64)
		if err != nil || size == 0 || int64(len(rest)) < size {
			return out
		}
		out = append(out, rest[:size]...)
		b = bytes.TrimPrefix(rest[size:], []byte("\r\n"))
	}
}

func newFakeS3Store(t *testing.T) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return NewS3Store(client, "orderforms"), fake
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	store, fake := newFakeS3Store(t)
	assert.Equal(t, DriverS3, store.Driver())

	key, err := Save(ctx, store, "order.xlsx", strings.NewReader("workbook bytes"))
	require.NoError(t, err)
	assert.Equal(t, []byte("workbook bytes"), fake.objects["orderforms/"+key])
	assert.Equal(t, spreadsheetType, fake.types["orderforms/"+key])

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "workbook bytes", string(body))

	_, err = store.Get(ctx, "orderforms/missing.xlsx")
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
}

func TestFSStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "orderforms/a.xlsx", strings.NewReader("one"), spreadsheetType))
	assert.Error(t, store.Put(ctx, "orderforms/a.xlsx", strings.NewReader("two"), spreadsheetType), "keys are write-once")

	rc, err := store.Get(ctx, "orderforms/a.xlsx")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "one", string(body))

	_, err = store.Get(ctx, "orderforms/b.xlsx")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	for _, key := range []string{"", "/etc/passwd", "../escape", "a/../../escape"} {
		assert.Error(t, store.Put(ctx, key, strings.NewReader("x"), ""), key)
	}
}

func TestKey(t *testing.T) {
	now := time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC)

	key := Key(`C:\Users\lab\order form.xlsx`, now)
	assert.True(t, strings.HasPrefix(key, "orderforms/2026/03/04/"), key)
	assert.True(t, strings.HasSuffix(key, "-order form.xlsx"), key)
	assert.NotEqual(t, key, Key("order form.xlsx", now))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, domain.ArchiveConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DriverNone, store.Driver())
	require.NoError(t, store.Put(ctx, "k", strings.NewReader("x"), ""))
	_, err = store.Get(ctx, "k")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	store, err = New(ctx, domain.ArchiveConfig{Driver: DriverFS, Root: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.Equal(t, DriverFS, store.Driver())

	_, err = New(ctx, domain.ArchiveConfig{Driver: DriverS3}, nil)
	assert.ErrorContains(t, err, "bucket")

	_, err = New(ctx, domain.ArchiveConfig{Driver: "tape"}, nil)
	assert.Error(t, err)
}
