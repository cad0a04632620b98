package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/rds"
)

// DefaultRegion is used when neither a flag nor the environment names one.
const DefaultRegion = "us-east-1"

// Provider lazily builds the AWS service clients the resource kinds need.
type Provider struct {
	region  string
	profile string

	mu                sync.Mutex
	elasticacheClient *elasticache.Client
	ec2Client         *ec2.Client
	rdsClient         *rds.Client
}

func New(region, profile string) *Provider {
	if region == "" {
		region = DefaultRegion
	}
	return &Provider{region: region, profile: profile}
}

// Region returns the region clients are built for.
func (p *Provider) Region() string {
	return p.region
}

func (p *Provider) ensureClient(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.elasticacheClient != nil {
		return nil
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(p.region)}
	if p.profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(p.profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to load SDK config, %w", err)
	}

	p.elasticacheClient = elasticache.NewFromConfig(cfg)
	p.ec2Client = ec2.NewFromConfig(cfg)
	p.rdsClient = rds.NewFromConfig(cfg)
	return nil
}

// CacheClusters returns the control plane for ElastiCache cache clusters.
func (p *Provider) CacheClusters(ctx context.Context) (*CacheClusterClient, error) {
	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}
	return NewCacheClusterClient(p.elasticacheClient), nil
}

// Instances returns the control plane for EC2 instances.
func (p *Provider) Instances(ctx context.Context) (*InstanceClient, error) {
	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}
	return NewInstanceClient(p.ec2Client), nil
}

// DBInstances returns the control plane for RDS database instances.
func (p *Provider) DBInstances(ctx context.Context) (*DBInstanceClient, error) {
	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}
	return NewDBInstanceClient(p.rdsClient), nil
}

func strPtr(s string) *string {
	return &s
}

func int32Ptr(i int32) *int32 {
	return &i
}
