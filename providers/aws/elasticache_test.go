package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/elasticache/types"
	"github.com/aws/smithy-go"
	"github.com/picklr-io/provprobe/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeElastiCache struct {
	createInput *elasticache.CreateCacheClusterInput
	createErr   error

	describeOut *elasticache.DescribeCacheClustersOutput
	describeErr error

	deleteInput *elasticache.DeleteCacheClusterInput
	deleteErr   error
}

func (f *fakeElastiCache) CreateCacheCluster(ctx context.Context, in *elasticache.CreateCacheClusterInput, optFns ...func(*elasticache.Options)) (*elasticache.CreateCacheClusterOutput, error) {
	f.createInput = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &elasticache.CreateCacheClusterOutput{
		CacheCluster: &types.CacheCluster{CacheClusterId: in.CacheClusterId},
	}, nil
}

func (f *fakeElastiCache) DescribeCacheClusters(ctx context.Context, in *elasticache.DescribeCacheClustersInput, optFns ...func(*elasticache.Options)) (*elasticache.DescribeCacheClustersOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return f.describeOut, nil
}

func (f *fakeElastiCache) DeleteCacheCluster(ctx context.Context, in *elasticache.DeleteCacheClusterInput, optFns ...func(*elasticache.Options)) (*elasticache.DeleteCacheClusterOutput, error) {
	f.deleteInput = in
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &elasticache.DeleteCacheClusterOutput{}, nil
}

func TestCacheCluster_Create(t *testing.T) {
	api := &fakeElastiCache{}
	c := NewCacheClusterClient(api)

	spec := DefaultCacheClusterSpec()
	spec.Tags = map[string]string{"owner": "probe"}

	handle, err := c.Create(context.Background(), engine.CreateRequest{Name: "test-1000", Spec: spec})
	require.NoError(t, err)
	assert.Equal(t, engine.Handle("test-1000"), handle)

	in := api.createInput
	require.NotNil(t, in)
	assert.Equal(t, "test-1000", *in.CacheClusterId)
	assert.Equal(t, "cache.t3.micro", *in.CacheNodeType)
	assert.Equal(t, "memcached", *in.Engine)
	assert.Equal(t, "1.6.6", *in.EngineVersion)
	assert.Equal(t, int32(2), *in.NumCacheNodes)
	assert.Nil(t, in.Port)
	require.Len(t, in.Tags, 1)
	assert.Equal(t, "owner", *in.Tags[0].Key)
}

func TestCacheCluster_CreateRejectsForeignSpec(t *testing.T) {
	api := &fakeElastiCache{}
	_, err := NewCacheClusterClient(api).Create(context.Background(), engine.CreateRequest{Name: "x", Spec: DefaultInstanceSpec()})
	require.Error(t, err)
	assert.Nil(t, api.createInput)
}

func TestCacheCluster_CreateError(t *testing.T) {
	api := &fakeElastiCache{createErr: &smithy.GenericAPIError{Code: "CacheClusterAlreadyExists", Message: "exists"}}
	_, err := NewCacheClusterClient(api).Create(context.Background(), engine.CreateRequest{Name: "test-1", Spec: DefaultCacheClusterSpec()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create cache cluster")
}

func TestCacheCluster_Describe(t *testing.T) {
	tests := []struct {
		name     string
		out      *elasticache.DescribeCacheClustersOutput
		err      error
		expected engine.Status
		wantErr  bool
	}{
		{
			name:     "available",
			out:      &elasticache.DescribeCacheClustersOutput{CacheClusters: []types.CacheCluster{{CacheClusterStatus: strPtr("available")}}},
			expected: engine.Status{State: "available", Found: true},
		},
		{
			name:     "empty listing",
			out:      &elasticache.DescribeCacheClustersOutput{},
			expected: engine.Status{},
		},
		{
			name:     "nil status field",
			out:      &elasticache.DescribeCacheClustersOutput{CacheClusters: []types.CacheCluster{{}}},
			expected: engine.Status{Found: true},
		},
		{
			name:     "not found",
			err:      &smithy.GenericAPIError{Code: "CacheClusterNotFound", Message: "gone"},
			expected: engine.Status{},
		},
		{
			name:    "transport error",
			err:     errors.New("dial tcp: i/o timeout"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCacheClusterClient(&fakeElastiCache{describeOut: tt.out, describeErr: tt.err})
			status, err := c.Describe(context.Background(), "test-1000")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, status)
		})
	}
}

func TestCacheCluster_Delete(t *testing.T) {
	api := &fakeElastiCache{}
	require.NoError(t, NewCacheClusterClient(api).Delete(context.Background(), "test-1000"))
	assert.Equal(t, "test-1000", *api.deleteInput.CacheClusterId)

	api = &fakeElastiCache{deleteErr: &smithy.GenericAPIError{Code: "CacheClusterNotFound"}}
	err := NewCacheClusterClient(api).Delete(context.Background(), "test-1000")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	api = &fakeElastiCache{deleteErr: &smithy.GenericAPIError{Code: "InvalidCacheClusterState"}}
	err = NewCacheClusterClient(api).Delete(context.Background(), "test-1000")
	require.Error(t, err)
	assert.NotErrorIs(t, err, engine.ErrNotFound)
}

func TestCacheCluster_Lifecycle(t *testing.T) {
	api := &fakeElastiCache{
		describeOut: &elasticache.DescribeCacheClustersOutput{
			CacheClusters: []types.CacheCluster{{CacheClusterStatus: strPtr("available")}},
		},
	}
	policy := engine.DefaultPolicy()
	policy.Interval = 0
	policy.Namer = func() string { return "test-1000" }

	res, err := engine.NewController(NewCacheClusterClient(api)).Run(context.Background(), DefaultCacheClusterSpec(), policy)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeReady, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	require.NotNil(t, api.deleteInput)
	assert.Equal(t, "test-1000", *api.deleteInput.CacheClusterId)
}
