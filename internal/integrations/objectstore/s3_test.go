package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	last *s3.PutObjectInput
	body string
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(in.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestNewS3Uploader_Validation(t *testing.T) {
	_, err := NewS3Uploader(nil, "b", "ap-northeast-1", "")
	require.Error(t, err)
	_, err = NewS3Uploader(&fakeS3{}, "", "ap-northeast-1", "")
	require.Error(t, err)
	_, err = NewS3Uploader(&fakeS3{}, "b", "", "")
	require.Error(t, err)

	u, err := NewS3Uploader(&fakeS3{}, "b", "ap-northeast-1", "/uploads/")
	require.NoError(t, err)
	require.Equal(t, "uploads", u.prefix)
}

func TestUpload(t *testing.T) {
	api := &fakeS3{}
	u, err := NewS3Uploader(api, "relay-images", "ap-northeast-1", "")
	require.NoError(t, err)
	u.newID = func() string { return "abc" }

	url, err := u.Upload(context.Background(), "U1", strings.NewReader("jpeg"))
	require.NoError(t, err)
	require.Equal(t, "https://relay-images.s3.ap-northeast-1.amazonaws.com/images/U1/abc.jpg", url)
	require.Equal(t, "relay-images", *api.last.Bucket)
	require.Equal(t, "images/U1/abc.jpg", *api.last.Key)
	require.Equal(t, "image/jpeg", *api.last.ContentType)
	require.Equal(t, "jpeg", api.body)
}

func TestUpload_Errors(t *testing.T) {
	u, err := NewS3Uploader(&fakeS3{err: errors.New("AccessDenied")}, "b", "r", "")
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), "U1", strings.NewReader("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "PutObject")

	_, err = u.Upload(context.Background(), "", strings.NewReader("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "userId is required")
}
