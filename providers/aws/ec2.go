package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/picklr-io/provprobe/internal/engine"
)

// KindInstance is the resource kind for EC2 instances.
const KindInstance = "instance"

// ReadyInstanceState is the instance state that ends polling.
const ReadyInstanceState = string(types.InstanceStateNameRunning)

type ec2API interface {
	RunInstances(ctx context.Context, in *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, in *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// InstanceSpec describes the instance to launch.
type InstanceSpec struct {
	ImageID      string            `json:"ami"`
	InstanceType string            `json:"instance_type"`
	SubnetID     string            `json:"subnet_id"`
	Tags         map[string]string `json:"tags"`
}

func DefaultInstanceSpec() InstanceSpec {
	return InstanceSpec{
		ImageID:      "ami-03d79d440297083e3",
		InstanceType: string(types.InstanceTypeT3Micro),
	}
}

func (InstanceSpec) Kind() string {
	return KindInstance
}

// InstanceClient implements engine.ControlPlane for EC2 instances. The handle
// is the instance id assigned at launch; the requested name becomes the Name tag.
type InstanceClient struct {
	api ec2API
}

var _ engine.ControlPlane = (*InstanceClient)(nil)

func NewInstanceClient(api ec2API) *InstanceClient {
	return &InstanceClient{api: api}
}

func (c *InstanceClient) Create(ctx context.Context, req engine.CreateRequest) (engine.Handle, error) {
	spec, ok := req.Spec.(InstanceSpec)
	if !ok {
		return "", fmt.Errorf("instance client cannot create %T", req.Spec)
	}

	runInput := &ec2.RunInstancesInput{
		ImageId:      strPtr(spec.ImageID),
		InstanceType: types.InstanceType(spec.InstanceType),
		MinCount:     int32Ptr(1),
		MaxCount:     int32Ptr(1),
	}
	if spec.SubnetID != "" {
		runInput.SubnetId = strPtr(spec.SubnetID)
	}
	if tags := instanceTags(req.Name, spec.Tags); len(tags) > 0 {
		runInput.TagSpecifications = []types.TagSpecification{
			{ResourceType: types.ResourceTypeInstance, Tags: tags},
		}
	}

	resp, err := c.api.RunInstances(ctx, runInput)
	if err != nil {
		return "", fmt.Errorf("failed to run instance: %w", err)
	}

	if len(resp.Instances) == 0 || resp.Instances[0].InstanceId == nil {
		return "", fmt.Errorf("no instances created")
	}
	return engine.Handle(*resp.Instances[0].InstanceId), nil
}

// Describe returns the instance state name. A missing reservation or instance
// is reported as Status{Found: false}.
func (c *InstanceClient) Describe(ctx context.Context, handle engine.Handle) (engine.Status, error) {
	resp, err := c.api.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{handle.String()},
	})
	if err != nil {
		// Freshly launched ids can be invisible for a short while.
		if hasErrorCode(err, codeInstanceNotFound) {
			return engine.Status{}, nil
		}
		return engine.Status{}, fmt.Errorf("failed to describe instance: %w", err)
	}

	if resp == nil || len(resp.Reservations) == 0 || len(resp.Reservations[0].Instances) == 0 {
		return engine.Status{}, nil
	}

	instance := resp.Reservations[0].Instances[0]
	status := engine.Status{Found: true}
	if instance.State != nil {
		status.State = string(instance.State.Name)
	}
	return status, nil
}

func (c *InstanceClient) Delete(ctx context.Context, handle engine.Handle) error {
	_, err := c.api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{handle.String()},
	})
	if err != nil {
		if hasErrorCode(err, codeInstanceNotFound) {
			return notFound("terminate instance", err)
		}
		return fmt.Errorf("failed to terminate instance: %w", err)
	}
	return nil
}

// instanceTags builds a deterministic tag list with name as the Name tag.
func instanceTags(name string, extra map[string]string) []types.Tag {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if k == "Name" && name != "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var tags []types.Tag
	if name != "" {
		tags = append(tags, types.Tag{Key: strPtr("Name"), Value: strPtr(name)})
	}
	for _, k := range keys {
		tags = append(tags, types.Tag{Key: strPtr(k), Value: strPtr(extra[k])})
	}
	return tags
}
