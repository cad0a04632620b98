package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/picklr-io/provprobe/internal/engine"
	"github.com/picklr-io/provprobe/internal/ir"
	"github.com/picklr-io/provprobe/providers/aws"
	"github.com/picklr-io/provprobe/providers/null"
)

// Kind describes one resource kind the probe can drive.
type Kind struct {
	Name string
	// ReadyState is the default status that counts as ready.
	ReadyState string
	// ExactMatch selects StatusEquals rather than StatusContains by default.
	ExactMatch bool
	// Spec builds the resource spec from configuration. cfg may be nil.
	Spec func(cfg *ir.ProbeConfig) engine.ResourceSpec
	open func(ctx context.Context, r *Registry) (engine.ControlPlane, error)
}

// Registry builds and caches control planes per kind.
type Registry struct {
	region  string
	profile string

	mu            sync.Mutex
	awsProvider   *aws.Provider
	controlPlanes map[string]engine.ControlPlane
}

func NewRegistry(region, profile string) *Registry {
	return &Registry{
		region:        region,
		profile:       profile,
		controlPlanes: make(map[string]engine.ControlPlane),
	}
}

var kinds = map[string]Kind{
	aws.KindCacheCluster: {
		Name:       aws.KindCacheCluster,
		ReadyState: engine.DefaultReadyState,
		Spec:       cacheClusterSpec,
		open: func(ctx context.Context, r *Registry) (engine.ControlPlane, error) {
			return r.aws().CacheClusters(ctx)
		},
	},
	aws.KindInstance: {
		Name:       aws.KindInstance,
		ReadyState: aws.ReadyInstanceState,
		ExactMatch: true,
		Spec:       instanceSpec,
		open: func(ctx context.Context, r *Registry) (engine.ControlPlane, error) {
			return r.aws().Instances(ctx)
		},
	},
	aws.KindDBInstance: {
		Name:       aws.KindDBInstance,
		ReadyState: engine.DefaultReadyState,
		Spec:       dbInstanceSpec,
		open: func(ctx context.Context, r *Registry) (engine.ControlPlane, error) {
			return r.aws().DBInstances(ctx)
		},
	},
	null.Kind: {
		Name:       null.Kind,
		ReadyState: engine.DefaultReadyState,
		Spec:       nullSpec,
		open: func(context.Context, *Registry) (engine.ControlPlane, error) {
			return null.New(), nil
		},
	},
}

// Kinds lists the supported kind names in order.
func Kinds() []string {
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the kind definition for name.
func Lookup(name string) (Kind, error) {
	k, ok := kinds[name]
	if !ok {
		return Kind{}, fmt.Errorf("unknown resource kind %q (supported: %v)", name, Kinds())
	}
	return k, nil
}

// ControlPlane returns the control plane for a kind, building it on first use.
func (r *Registry) ControlPlane(ctx context.Context, kind string) (engine.ControlPlane, error) {
	k, err := Lookup(kind)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cp, ok := r.controlPlanes[kind]; ok {
		return cp, nil
	}
	cp, err := k.open(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise %s control plane: %w", kind, err)
	}
	r.controlPlanes[kind] = cp
	return cp, nil
}

// Region returns the region AWS kinds operate in.
func (r *Registry) Region() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aws().Region()
}

// Register overrides the control plane used for kind. Tests use it to swap
// in fakes.
func (r *Registry) Register(kind string, cp engine.ControlPlane) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controlPlanes[kind] = cp
}

// aws must be called with r.mu held.
func (r *Registry) aws() *aws.Provider {
	if r.awsProvider == nil {
		r.awsProvider = aws.New(r.region, r.profile)
	}
	return r.awsProvider
}

// Readiness returns the ready predicate for kind, honouring overrides from
// config. match is "contains", "equals" or empty for the kind default.
func (k Kind) Readiness(state, match string) (engine.ReadinessFunc, error) {
	if state == "" {
		state = k.ReadyState
	}
	switch match {
	case "":
		if k.ExactMatch {
			return engine.StatusEquals(state), nil
		}
		return engine.StatusContains(state), nil
	case "contains":
		return engine.StatusContains(state), nil
	case "equals":
		return engine.StatusEquals(state), nil
	default:
		return nil, fmt.Errorf("unknown ready match %q (expected contains or equals)", match)
	}
}

func cacheClusterSpec(cfg *ir.ProbeConfig) engine.ResourceSpec {
	spec := aws.DefaultCacheClusterSpec()
	if cfg == nil || cfg.CacheCluster == nil {
		return spec
	}
	c := cfg.CacheCluster
	if c.NodeType != "" {
		spec.NodeType = c.NodeType
	}
	if c.Engine != "" {
		spec.Engine = c.Engine
	}
	if c.EngineVersion != "" {
		spec.EngineVersion = c.EngineVersion
	}
	if c.NumCacheNodes > 0 {
		spec.NumCacheNodes = int32(c.NumCacheNodes)
	}
	if c.Port > 0 {
		spec.Port = int32(c.Port)
	}
	spec.SubnetGroupName = c.SubnetGroupName
	spec.SecurityGroupIds = c.SecurityGroupIds
	spec.Tags = c.Tags
	return spec
}

func instanceSpec(cfg *ir.ProbeConfig) engine.ResourceSpec {
	spec := aws.DefaultInstanceSpec()
	if cfg == nil || cfg.Instance == nil {
		return spec
	}
	c := cfg.Instance
	if c.AMI != "" {
		spec.ImageID = c.AMI
	}
	if c.InstanceType != "" {
		spec.InstanceType = c.InstanceType
	}
	spec.SubnetID = c.SubnetID
	spec.Tags = c.Tags
	return spec
}

func dbInstanceSpec(cfg *ir.ProbeConfig) engine.ResourceSpec {
	spec := aws.DefaultDBInstanceSpec()
	if cfg == nil || cfg.DBInstance == nil {
		return spec
	}
	c := cfg.DBInstance
	if c.InstanceClass != "" {
		spec.InstanceClass = c.InstanceClass
	}
	if c.Engine != "" {
		spec.Engine = c.Engine
	}
	if c.AllocatedStorage > 0 {
		spec.AllocatedStorage = int32(c.AllocatedStorage)
	}
	if c.MasterUsername != "" {
		spec.MasterUsername = c.MasterUsername
	}
	spec.EngineVersion = c.EngineVersion
	spec.MasterUserPassword = c.MasterUserPassword
	spec.SubnetGroupName = c.SubnetGroupName
	spec.SecurityGroupIds = c.SecurityGroupIds
	spec.Tags = c.Tags
	return spec
}

func nullSpec(cfg *ir.ProbeConfig) engine.ResourceSpec {
	spec := null.DefaultSpec()
	if cfg == nil || cfg.Null == nil {
		return spec
	}
	if len(cfg.Null.Statuses) > 0 {
		spec.Statuses = cfg.Null.Statuses
	}
	spec.FailDescribeAt = cfg.Null.FailDescribeAt
	return spec
}
