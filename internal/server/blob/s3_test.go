package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	put        []*s3.PutObjectInput
	deleted    []string
	batches    [][]string
	objects    map[string]string
	pages      [][]string
	getErr     error
	listErr    error
	listInputs []*s3.ListObjectsV2Input
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = append(f.put, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.listInputs = append(f.listInputs, in)
	i := len(f.listInputs) - 1
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(i < len(f.pages)-1)}
	if i < len(f.pages)-1 {
		out.NextContinuationToken = aws.String("next")
	}
	for _, k := range f.pages[i] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	var keys []string
	for _, o := range in.Delete.Objects {
		keys = append(keys, aws.ToString(o.Key))
	}
	f.batches = append(f.batches, keys)
	return &s3.DeleteObjectsOutput{}, nil
}

type fakePresign struct{ err error }

func (p fakePresign) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &v4.PresignedHTTPRequest{URL: "http://minio/" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key), Method: http.MethodGet}, nil
}

func TestS3Store_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	f := &fakeS3{objects: map[string]string{"t1/task/a.pdf": "%PDF"}}
	s := &S3Store{client: f, presign: fakePresign{}, bucket: "taskkeeper"}

	require.NoError(t, s.Put(ctx, "t1/task/b.png", strings.NewReader("png"), 3, "image/png"))
	require.Len(t, f.put, 1)
	assert.Equal(t, "taskkeeper", aws.ToString(f.put[0].Bucket))
	assert.Equal(t, "t1/task/b.png", aws.ToString(f.put[0].Key))
	assert.Equal(t, int64(3), aws.ToInt64(f.put[0].ContentLength))
	assert.Equal(t, "image/png", aws.ToString(f.put[0].ContentType))

	rc, info, err := s.Open(ctx, "t1/task/a.pdf")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "%PDF", string(b))
	assert.Equal(t, "application/pdf", info.ContentType)
	assert.Equal(t, int64(4), info.Size)

	_, _, err = s.Open(ctx, "t1/task/missing.pdf")
	assert.True(t, errors.Is(err, common.ErrorNotFound))

	require.NoError(t, s.Delete(ctx, "t1/task/a.pdf"))
	assert.Equal(t, []string{"t1/task/a.pdf"}, f.deleted)
}

func TestS3Store_OpenBackendError(t *testing.T) {
	s := &S3Store{client: &fakeS3{getErr: errors.New("down")}, bucket: "b"}
	_, _, err := s.Open(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrorNotFound))
}

func TestS3Store_DeletePrefixPages(t *testing.T) {
	f := &fakeS3{pages: [][]string{{"t1/task/a", "t1/task/b"}, {"t1/completion/c"}}}
	s := &S3Store{client: f, bucket: "b"}

	require.NoError(t, s.DeletePrefix(context.Background(), "t1"))

	require.Len(t, f.listInputs, 2)
	assert.Equal(t, "t1/", aws.ToString(f.listInputs[0].Prefix))
	assert.Nil(t, f.listInputs[0].ContinuationToken)
	assert.Equal(t, "next", aws.ToString(f.listInputs[1].ContinuationToken))
	assert.Equal(t, [][]string{{"t1/task/a", "t1/task/b"}, {"t1/completion/c"}}, f.batches)
}

func TestS3Store_DeletePrefixListError(t *testing.T) {
	s := &S3Store{client: &fakeS3{listErr: errors.New("denied")}, bucket: "b"}
	require.ErrorContains(t, s.DeletePrefix(context.Background(), "t1"), "denied")
}

func TestS3Store_PresignGet(t *testing.T) {
	s := &S3Store{presign: fakePresign{}, bucket: "b"}
	url, err := s.PresignGet(context.Background(), "t1/task/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "http://minio/b/t1/task/a.pdf", url)

	s.presign = fakePresign{err: errors.New("no creds")}
	_, err = s.PresignGet(context.Background(), "k")
	require.ErrorContains(t, err, "no creds")
}

func TestNewS3Store_AppliesConfig(t *testing.T) {
	origLoad, origNew := loadDefaultAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-west-1", lo.Region)
		return aws.Config{Region: lo.Region}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return s3.New(s3.Options{Region: cfg.Region})
	}

	s, err := NewS3Store(context.Background(), S3Config{
		User: "u", Password: "p", Bucket: "taskkeeper", Region: "eu-west-1", BaseEndpoint: "http://127.0.0.1:9000",
	})
	require.NoError(t, err)
	assert.Equal(t, "taskkeeper", s.bucket)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)
}

func TestNewS3Store_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("bad profile")
	}

	_, err := NewS3Store(context.Background(), S3Config{})
	require.ErrorContains(t, err, "bad profile")
}
