package state

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/picklr-io/provprobe/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	getErr  error
	lastPut *s3.PutObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[*in.Key] = data
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

type fakeDynamo struct {
	held    bool
	deletes int
}

func (f *fakeDynamo) PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.held {
		return nil, &dbtypes.ConditionalCheckFailedException{Message: stringPtr("condition failed")}
	}
	f.held = true
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.held = false
	f.deletes++
	return &dynamodb.DeleteItemOutput{}, nil
}

func stringPtr(s string) *string { return &s }

func testS3Backend(t *testing.T, cfg *ir.LedgerConfig, loader LedgerLoader) (*s3Backend, *fakeS3) {
	t.Helper()
	b, err := s3BackendFromConfig(cfg, loader)
	require.NoError(t, err)
	fake := &fakeS3{}
	b.s3Client = fake
	return b, fake
}

func TestS3BackendFromConfig_Defaults(t *testing.T) {
	b, err := s3BackendFromConfig(&ir.LedgerConfig{Bucket: "my-bucket"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", b.bucket)
	assert.Equal(t, "provprobe/ledger.pkl", b.key)
	assert.Equal(t, "us-east-1", b.region)
	assert.Empty(t, b.dynamoDBTable)
	assert.False(t, b.encrypt)
}

func TestS3BackendFromConfig_Custom(t *testing.T) {
	b, err := s3BackendFromConfig(&ir.LedgerConfig{
		Bucket:        "custom-bucket",
		Key:           "probes/ledger.pkl",
		Region:        "eu-west-1",
		DynamoDBTable: "provprobe-locks",
		Encrypt:       true,
		Profile:       "staging",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "probes/ledger.pkl", b.key)
	assert.Equal(t, "eu-west-1", b.region)
	assert.Equal(t, "provprobe-locks", b.dynamoDBTable)
	assert.Equal(t, "staging", b.profile)
	assert.True(t, b.encrypt)
}

func TestS3Backend_ReadMissing(t *testing.T) {
	b, _ := testS3Backend(t, &ir.LedgerConfig{Bucket: "b"}, &fakeLoader{})

	l, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, l.Version)
	assert.Empty(t, l.Resources)
}

func TestS3Backend_ReadNotFoundAPIError(t *testing.T) {
	b, fake := testS3Backend(t, &ir.LedgerConfig{Bucket: "b"}, &fakeLoader{})
	fake.getErr = &smithy.GenericAPIError{Code: "NotFound"}

	l, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, l.Resources)
}

func TestS3Backend_ReadError(t *testing.T) {
	b, fake := testS3Backend(t, &ir.LedgerConfig{Bucket: "b"}, &fakeLoader{})
	fake.getErr = errors.New("access denied")

	_, err := b.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b/provprobe/ledger.pkl")
}

func TestS3Backend_WriteRead(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	want := ir.NewLedger()
	loader := &fakeLoader{ledger: want}
	b, fake := testS3Backend(t, &ir.LedgerConfig{Bucket: "b", Encrypt: true}, loader)
	ctx := context.Background()

	ledger := ir.NewLedger()
	ledger.Resources = []*ir.LedgerEntry{{Kind: "instance", Handle: "i-0123"}}
	require.NoError(t, b.Write(ctx, ledger))
	assert.Equal(t, s3types.ServerSideEncryptionAes256, fake.lastPut.ServerSideEncryption)
	assert.Contains(t, string(fake.objects["provprobe/ledger.pkl"]), `handle = "i-0123"`)

	got, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Contains(t, loader.content, `handle = "i-0123"`)
}

func TestS3Backend_Lock(t *testing.T) {
	b, _ := testS3Backend(t, &ir.LedgerConfig{Bucket: "b", DynamoDBTable: "locks"}, nil)
	db := &fakeDynamo{}
	b.dbClient = db

	require.NoError(t, b.Lock())
	err := b.Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another process")

	require.NoError(t, b.Unlock())
	assert.Equal(t, 1, db.deletes)
	require.NoError(t, b.Lock())
}

func TestS3Backend_NoLockTable(t *testing.T) {
	b, _ := testS3Backend(t, &ir.LedgerConfig{Bucket: "b"}, nil)
	require.NoError(t, b.Lock())
	require.NoError(t, b.Unlock())
}
