package gcs //nolint:testpackage

import (
	"context"
	"errors"
	"io"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/googleapis/google-cloud-go-testing/storage/stiface"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/breatheroute/airdata-extract/internal/airquality"
	"github.com/breatheroute/airdata-extract/internal/columnar"
)

func TestNewClient(t *testing.T) { //nolint:paralleltest
	saveStorageNewClient := storageNewClient
	defer func() {
		storageNewClient = saveStorageNewClient
	}()

	errForced := errors.New("forced failure")
	storageNewClient = func(ctx context.Context, opts ...option.ClientOption) (*storage.Client, error) {
		return nil, errForced
	}
	_, err := NewClient(context.Background(), Config{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrCreateClient)
	assert.ErrorIs(t, err, errForced)

	storageNewClient = func(ctx context.Context, opts ...option.ClientOption) (*storage.Client, error) {
		return &storage.Client{}, nil
	}
	client, err := NewClient(context.Background(), Config{Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestUploadSucceed(t *testing.T) { //nolint:paralleltest
	fc := newFakeClient()
	client := newStorageClient(fc, zerolog.Nop())

	err := client.Upload(context.Background(), "some-bucket", "a/b/c.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)

	obj := fc.objects["some-bucket/a/b/c.txt"]
	require.NotNil(t, obj)
	assert.Equal(t, "hello", string(obj.data))
	assert.Equal(t, "text/plain", obj.attrs.ContentType)
	assert.True(t, obj.closed)
}

func TestUploadFail(t *testing.T) { //nolint:paralleltest
	client := newStorageClient(newFakeClient(), zerolog.Nop())
	err := client.Upload(context.Background(), "some-bucket", "key", "", []byte("should-fail-write"))
	assert.ErrorIs(t, err, ErrUpload)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	client = newStorageClient(newFakeClient(), zerolog.Nop())
	err = client.Upload(context.Background(), "some-bucket", "key", "", []byte("should-fail-close"))
	assert.ErrorIs(t, err, ErrClose)
	assert.ErrorIs(t, err, io.EOF)
}

func TestUploadTable(t *testing.T) { //nolint:paralleltest
	table, err := columnar.FromRecords([]airquality.Record{{
		EventTime: "2023-09-09T10:00:00",
		PM10:      30,
		O3:        0.02,
		NO2:       0.03,
		CO:        0.4,
		SO2:       0.01,
	}})
	require.NoError(t, err)
	defer table.Release()

	fc := newFakeClient()
	client := newStorageClient(fc, zerolog.Nop())

	key := "airkorea/kr/2023/09/09/10/airdata/airdata.parquet"
	require.NoError(t, client.UploadTable(context.Background(), table, "de415-raw-apnortheast2-073658113926-dev", key))

	obj := fc.objects["de415-raw-apnortheast2-073658113926-dev/"+key]
	require.NotNil(t, obj)
	assert.Equal(t, ParquetContentType, obj.attrs.ContentType)
	assert.Equal(t, "PAR1", string(obj.data[:4]))
}

func TestClose(t *testing.T) { //nolint:paralleltest
	fc := newFakeClient()
	client := newStorageClient(fc, zerolog.Nop())
	require.NoError(t, client.Close())
	assert.True(t, fc.closed)
}

// Fake stiface implementations.
type fakeClient struct {
	stiface.Client
	objects map[string]*fakeWriter
	closed  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: map[string]*fakeWriter{}}
}

func (f *fakeClient) Bucket(name string) stiface.BucketHandle { //nolint:ireturn
	return &fakeBucketHandle{client: f, name: name}
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

type fakeBucketHandle struct {
	stiface.BucketHandle
	client *fakeClient
	name   string
}

func (f *fakeBucketHandle) Object(name string) stiface.ObjectHandle { //nolint:ireturn
	return &fakeObjectHandle{bucket: f, name: name}
}

type fakeObjectHandle struct {
	stiface.ObjectHandle
	bucket *fakeBucketHandle
	name   string
}

func (f *fakeObjectHandle) NewWriter(ctx context.Context) stiface.Writer { //nolint:ireturn
	w := &fakeWriter{}
	f.bucket.client.objects[f.bucket.name+"/"+f.name] = w
	return w
}

type fakeWriter struct {
	stiface.Writer
	attrs  storage.ObjectAttrs
	data   []byte
	closed bool
}

func (f *fakeWriter) ObjectAttrs() *storage.ObjectAttrs {
	return &f.attrs
}

func (f *fakeWriter) Write(p []byte) (int, error) {
	if string(p) == "should-fail-write" {
		return 0, io.ErrUnexpectedEOF
	}
	f.data = append(f.data, p...)
	return len(p), nil
}

func (f *fakeWriter) Close() error {
	if string(f.data) == "should-fail-close" {
		return io.EOF
	}
	f.closed = true
	return nil
}
