package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/picklr-io/provprobe/internal/engine"
)

// KindDBInstance is the resource kind for RDS database instances.
const KindDBInstance = "db-instance"

type rdsAPI interface {
	CreateDBInstance(ctx context.Context, in *rds.CreateDBInstanceInput, optFns ...func(*rds.Options)) (*rds.CreateDBInstanceOutput, error)
	DescribeDBInstances(ctx context.Context, in *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	DeleteDBInstance(ctx context.Context, in *rds.DeleteDBInstanceInput, optFns ...func(*rds.Options)) (*rds.DeleteDBInstanceOutput, error)
}

// DBInstanceSpec describes the database instance to create. Without a master
// password RDS generates one and keeps it in Secrets Manager.
type DBInstanceSpec struct {
	InstanceClass      string            `json:"instance_class"`
	Engine             string            `json:"engine"`
	EngineVersion      string            `json:"engine_version"`
	AllocatedStorage   int32             `json:"allocated_storage"`
	MasterUsername     string            `json:"master_username"`
	MasterUserPassword string            `json:"master_user_password"`
	SubnetGroupName    string            `json:"subnet_group_name"`
	SecurityGroupIds   []string          `json:"security_group_ids"`
	Tags               map[string]string `json:"tags"`
}

func DefaultDBInstanceSpec() DBInstanceSpec {
	return DBInstanceSpec{
		InstanceClass:    "db.t3.micro",
		Engine:           "postgres",
		AllocatedStorage: 20,
		MasterUsername:   "probe",
	}
}

func (DBInstanceSpec) Kind() string {
	return KindDBInstance
}

// DBInstanceClient implements engine.ControlPlane for RDS instances. The handle
// is the DB instance identifier.
type DBInstanceClient struct {
	api rdsAPI
}

var _ engine.ControlPlane = (*DBInstanceClient)(nil)

func NewDBInstanceClient(api rdsAPI) *DBInstanceClient {
	return &DBInstanceClient{api: api}
}

func (c *DBInstanceClient) Create(ctx context.Context, req engine.CreateRequest) (engine.Handle, error) {
	spec, ok := req.Spec.(DBInstanceSpec)
	if !ok {
		return "", fmt.Errorf("db instance client cannot create %T", req.Spec)
	}
	if req.Name == "" {
		return "", fmt.Errorf("db instance identifier is required")
	}

	input := &rds.CreateDBInstanceInput{
		DBInstanceIdentifier: strPtr(req.Name),
		DBInstanceClass:      strPtr(spec.InstanceClass),
		Engine:               strPtr(spec.Engine),
		AllocatedStorage:     int32Ptr(spec.AllocatedStorage),
		MasterUsername:       strPtr(spec.MasterUsername),
	}
	if spec.MasterUserPassword != "" {
		input.MasterUserPassword = strPtr(spec.MasterUserPassword)
	} else {
		manage := true
		input.ManageMasterUserPassword = &manage
	}
	if spec.EngineVersion != "" {
		input.EngineVersion = strPtr(spec.EngineVersion)
	}
	if spec.SubnetGroupName != "" {
		input.DBSubnetGroupName = strPtr(spec.SubnetGroupName)
	}
	if len(spec.SecurityGroupIds) > 0 {
		input.VpcSecurityGroupIds = spec.SecurityGroupIds
	}
	if len(spec.Tags) > 0 {
		keys := make([]string, 0, len(spec.Tags))
		for k := range spec.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			input.Tags = append(input.Tags, types.Tag{Key: strPtr(k), Value: strPtr(spec.Tags[k])})
		}
	}

	resp, err := c.api.CreateDBInstance(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create db instance: %w", err)
	}

	if resp.DBInstance != nil && resp.DBInstance.DBInstanceIdentifier != nil {
		return engine.Handle(*resp.DBInstance.DBInstanceIdentifier), nil
	}
	return engine.Handle(req.Name), nil
}

func (c *DBInstanceClient) Describe(ctx context.Context, handle engine.Handle) (engine.Status, error) {
	resp, err := c.api.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: strPtr(handle.String()),
	})
	if err != nil {
		if hasErrorCode(err, codeDBInstanceNotFound) {
			return engine.Status{}, nil
		}
		return engine.Status{}, fmt.Errorf("failed to describe db instance: %w", err)
	}

	if resp == nil || len(resp.DBInstances) == 0 {
		return engine.Status{}, nil
	}

	status := engine.Status{Found: true}
	if s := resp.DBInstances[0].DBInstanceStatus; s != nil {
		status.State = *s
	}
	return status, nil
}

// Delete skips the final snapshot and drops automated backups.
func (c *DBInstanceClient) Delete(ctx context.Context, handle engine.Handle) error {
	skip := true
	_, err := c.api.DeleteDBInstance(ctx, &rds.DeleteDBInstanceInput{
		DBInstanceIdentifier:   strPtr(handle.String()),
		SkipFinalSnapshot:      &skip,
		DeleteAutomatedBackups: &skip,
	})
	if err != nil {
		if hasErrorCode(err, codeDBInstanceNotFound) {
			return notFound("delete db instance", err)
		}
		return fmt.Errorf("failed to delete db instance: %w", err)
	}
	return nil
}
