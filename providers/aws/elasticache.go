package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/elasticache/types"
	"github.com/picklr-io/provprobe/internal/engine"
)

// KindCacheCluster is the resource kind for ElastiCache cache clusters.
const KindCacheCluster = "cache-cluster"

// elasticacheAPI is the subset of the ElastiCache client a cache cluster lifecycle uses.
type elasticacheAPI interface {
	CreateCacheCluster(ctx context.Context, in *elasticache.CreateCacheClusterInput, optFns ...func(*elasticache.Options)) (*elasticache.CreateCacheClusterOutput, error)
	DescribeCacheClusters(ctx context.Context, in *elasticache.DescribeCacheClustersInput, optFns ...func(*elasticache.Options)) (*elasticache.DescribeCacheClustersOutput, error)
	DeleteCacheCluster(ctx context.Context, in *elasticache.DeleteCacheClusterInput, optFns ...func(*elasticache.Options)) (*elasticache.DeleteCacheClusterOutput, error)
}

// CacheClusterSpec describes the cache cluster to create.
type CacheClusterSpec struct {
	NodeType         string            `json:"node_type"`
	Engine           string            `json:"engine"`
	EngineVersion    string            `json:"engine_version"`
	NumCacheNodes    int32             `json:"num_cache_nodes"`
	Port             int32             `json:"port"`
	SubnetGroupName  string            `json:"subnet_group_name"`
	SecurityGroupIds []string          `json:"security_group_ids"`
	Tags             map[string]string `json:"tags"`
}

// DefaultCacheClusterSpec is a two node memcached cluster on the smallest node type.
func DefaultCacheClusterSpec() CacheClusterSpec {
	return CacheClusterSpec{
		NodeType:      "cache.t3.micro",
		Engine:        "memcached",
		EngineVersion: "1.6.6",
		NumCacheNodes: 2,
	}
}

func (CacheClusterSpec) Kind() string {
	return KindCacheCluster
}

// CacheClusterClient implements engine.ControlPlane for cache clusters. The
// handle is the cache cluster id.
type CacheClusterClient struct {
	api elasticacheAPI
}

var _ engine.ControlPlane = (*CacheClusterClient)(nil)

func NewCacheClusterClient(api elasticacheAPI) *CacheClusterClient {
	return &CacheClusterClient{api: api}
}

func (c *CacheClusterClient) Create(ctx context.Context, req engine.CreateRequest) (engine.Handle, error) {
	spec, ok := req.Spec.(CacheClusterSpec)
	if !ok {
		return "", fmt.Errorf("cache cluster client cannot create %T", req.Spec)
	}
	if req.Name == "" {
		return "", fmt.Errorf("cache cluster id is required")
	}

	input := &elasticache.CreateCacheClusterInput{
		CacheClusterId: strPtr(req.Name),
		CacheNodeType:  strPtr(spec.NodeType),
		Engine:         strPtr(spec.Engine),
		NumCacheNodes:  int32Ptr(spec.NumCacheNodes),
	}
	if spec.EngineVersion != "" {
		input.EngineVersion = strPtr(spec.EngineVersion)
	}
	if spec.Port != 0 {
		input.Port = int32Ptr(spec.Port)
	}
	if spec.SubnetGroupName != "" {
		input.CacheSubnetGroupName = strPtr(spec.SubnetGroupName)
	}
	if len(spec.SecurityGroupIds) > 0 {
		input.SecurityGroupIds = spec.SecurityGroupIds
	}
	if len(spec.Tags) > 0 {
		var tags []types.Tag
		for k, v := range spec.Tags {
			tags = append(tags, types.Tag{Key: strPtr(k), Value: strPtr(v)})
		}
		input.Tags = tags
	}

	resp, err := c.api.CreateCacheCluster(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create cache cluster: %w", err)
	}

	if resp.CacheCluster != nil && resp.CacheCluster.CacheClusterId != nil {
		return engine.Handle(*resp.CacheCluster.CacheClusterId), nil
	}
	return engine.Handle(req.Name), nil
}

// Describe returns the cluster status. An empty listing or a not-found answer
// is reported as Status{Found: false}.
func (c *CacheClusterClient) Describe(ctx context.Context, handle engine.Handle) (engine.Status, error) {
	resp, err := c.api.DescribeCacheClusters(ctx, &elasticache.DescribeCacheClustersInput{
		CacheClusterId: strPtr(handle.String()),
	})
	if err != nil {
		if hasErrorCode(err, codeCacheClusterNotFound) {
			return engine.Status{}, nil
		}
		return engine.Status{}, fmt.Errorf("failed to describe cache cluster: %w", err)
	}

	if resp == nil || len(resp.CacheClusters) == 0 {
		return engine.Status{}, nil
	}

	cluster := resp.CacheClusters[0]
	status := engine.Status{Found: true}
	if cluster.CacheClusterStatus != nil {
		status.State = *cluster.CacheClusterStatus
	}
	return status, nil
}

func (c *CacheClusterClient) Delete(ctx context.Context, handle engine.Handle) error {
	_, err := c.api.DeleteCacheCluster(ctx, &elasticache.DeleteCacheClusterInput{
		CacheClusterId: strPtr(handle.String()),
	})
	if err != nil {
		if hasErrorCode(err, codeCacheClusterNotFound) {
			return notFound("delete cache cluster", err)
		}
		return fmt.Errorf("failed to delete cache cluster: %w", err)
	}
	return nil
}
