package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/config"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Store(ctx, "c-1/t-1/100-return.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "fs://c-1/t-1/100-return.pdf", ref)

	data, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)

	_, err = store.Get(ctx, "s3://bucket/key")
	assert.Error(t, err)
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../outside", "/etc/passwd", "", "a/../../b"} {
		_, err := store.Store(context.Background(), key, []byte("x"))
		assert.Error(t, err, key)
	}
}

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	k := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[k] = body
	f.types[k] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, fmt.Errorf("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestS3Store(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	store := newS3Store(api, "evidence", "compliance")
	ctx := context.Background()

	ref, err := store.Store(ctx, "c-1/t-1/100-return.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "s3://evidence/compliance/c-1/t-1/100-return.pdf", ref)
	assert.Equal(t, "application/pdf", api.types["evidence/compliance/c-1/t-1/100-return.pdf"])

	data, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)

	_, err = store.Get(ctx, "s3://other/compliance/c-1/t-1/100-return.pdf")
	assert.Error(t, err)

	api.putErr = fmt.Errorf("AccessDenied")
	_, err = store.Store(ctx, "c-1/t-1/101-x.bin", []byte("x"))
	assert.ErrorContains(t, err, "s3 put failed")
}

func TestParseS3Ref(t *testing.T) {
	bucket, key, err := parseS3Ref("s3://b/k/x.pdf")
	require.NoError(t, err)
	assert.Equal(t, "b", bucket)
	assert.Equal(t, "k/x.pdf", key)

	for _, ref := range []string{"fs://b/k", "s3://b", "s3:///k"} {
		_, _, err := parseS3Ref(ref)
		assert.Error(t, err, ref)
	}
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(context.Background(), config.DocumentsConfig{Backend: "fs", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = NewStore(context.Background(), config.DocumentsConfig{Backend: "s3"})
	assert.Error(t, err)

	_, err = NewStore(context.Background(), config.DocumentsConfig{Backend: "gcs"})
	assert.Error(t, err)
}
