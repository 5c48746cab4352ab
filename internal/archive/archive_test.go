package archive

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/arutneva1/IB-Trade/internal/domain"
)

type fakeUploader struct {
	lastInput *s3.PutObjectInput
	err       error
	body      []byte
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := input.Body.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	f.body = buf
	return &manager.UploadOutput{}, nil
}

func TestStore_Save_EncodesAndUploadsRecord(t *testing.T) {
	up := &fakeUploader{}
	store := NewStoreWithUploader(up, "my-bucket", "runs")

	runAt := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	record := Record{
		RunAt:  runAt,
		Result: domain.ExecutionResult{SellProceeds: 1234.5},
	}

	key, err := store.Save(context.Background(), record)
	require.NoError(t, err)
	assert.Contains(t, key, "runs/")
	require.NotNil(t, up.lastInput)
	assert.Equal(t, "my-bucket", *up.lastInput.Bucket)

	var decoded Record
	require.NoError(t, msgpack.Unmarshal(up.body, &decoded))
	assert.InDelta(t, 1234.5, decoded.Result.SellProceeds, 1e-9)
}

func TestStore_Save_UploadErrorIsConnectionError(t *testing.T) {
	up := &fakeUploader{err: assertErr{}}
	store := NewStoreWithUploader(up, "my-bucket", "runs")

	_, err := store.Save(context.Background(), Record{RunAt: time.Now()})
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "upload failed" }
