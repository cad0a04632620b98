package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/smithy-go"
	"github.com/picklr-io/provprobe/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRDS struct {
	createInput *rds.CreateDBInstanceInput
	createErr   error

	statuses    []string
	describes   int
	describeErr error

	deleteInput *rds.DeleteDBInstanceInput
	deleteErr   error
}

func (f *fakeRDS) CreateDBInstance(ctx context.Context, in *rds.CreateDBInstanceInput, optFns ...func(*rds.Options)) (*rds.CreateDBInstanceOutput, error) {
	f.createInput = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &rds.CreateDBInstanceOutput{DBInstance: &types.DBInstance{DBInstanceIdentifier: in.DBInstanceIdentifier}}, nil
}

func (f *fakeRDS) DescribeDBInstances(ctx context.Context, in *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if len(f.statuses) == 0 {
		return &rds.DescribeDBInstancesOutput{}, nil
	}
	idx := f.describes
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.describes++
	return &rds.DescribeDBInstancesOutput{DBInstances: []types.DBInstance{{DBInstanceStatus: strPtr(f.statuses[idx])}}}, nil
}

func (f *fakeRDS) DeleteDBInstance(ctx context.Context, in *rds.DeleteDBInstanceInput, optFns ...func(*rds.Options)) (*rds.DeleteDBInstanceOutput, error) {
	f.deleteInput = in
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &rds.DeleteDBInstanceOutput{}, nil
}

func TestDBInstance_Create(t *testing.T) {
	api := &fakeRDS{}
	spec := DefaultDBInstanceSpec()
	spec.Tags = map[string]string{"team": "infra", "env": "probe"}

	handle, err := NewDBInstanceClient(api).Create(context.Background(), engine.CreateRequest{Name: "test-1000", Spec: spec})
	require.NoError(t, err)
	assert.Equal(t, engine.Handle("test-1000"), handle)

	in := api.createInput
	require.NotNil(t, in)
	assert.Equal(t, "db.t3.micro", *in.DBInstanceClass)
	assert.Equal(t, "postgres", *in.Engine)
	assert.Equal(t, int32(20), *in.AllocatedStorage)
	assert.Nil(t, in.MasterUserPassword)
	require.NotNil(t, in.ManageMasterUserPassword)
	assert.True(t, *in.ManageMasterUserPassword)
	require.Len(t, in.Tags, 2)
	assert.Equal(t, "env", *in.Tags[0].Key)
}

func TestDBInstance_CreateWithPassword(t *testing.T) {
	api := &fakeRDS{}
	spec := DefaultDBInstanceSpec()
	spec.MasterUserPassword = "hunter22"

	_, err := NewDBInstanceClient(api).Create(context.Background(), engine.CreateRequest{Name: "test-1000", Spec: spec})
	require.NoError(t, err)
	assert.Equal(t, "hunter22", *api.createInput.MasterUserPassword)
	assert.Nil(t, api.createInput.ManageMasterUserPassword)
}

func TestDBInstance_CreateRejectsForeignSpec(t *testing.T) {
	api := &fakeRDS{}
	_, err := NewDBInstanceClient(api).Create(context.Background(), engine.CreateRequest{Name: "x", Spec: DefaultCacheClusterSpec()})
	require.Error(t, err)
	assert.Nil(t, api.createInput)
}

func TestDBInstance_Describe(t *testing.T) {
	c := NewDBInstanceClient(&fakeRDS{statuses: []string{"creating"}})
	status, err := c.Describe(context.Background(), "test-1000")
	require.NoError(t, err)
	assert.Equal(t, engine.Status{State: "creating", Found: true}, status)

	c = NewDBInstanceClient(&fakeRDS{})
	status, err = c.Describe(context.Background(), "test-1000")
	require.NoError(t, err)
	assert.False(t, status.Found)

	c = NewDBInstanceClient(&fakeRDS{describeErr: &smithy.GenericAPIError{Code: "DBInstanceNotFound"}})
	status, err = c.Describe(context.Background(), "test-1000")
	require.NoError(t, err)
	assert.False(t, status.Found)

	c = NewDBInstanceClient(&fakeRDS{describeErr: &smithy.GenericAPIError{Code: "Throttling"}})
	_, err = c.Describe(context.Background(), "test-1000")
	require.Error(t, err)
}

func TestDBInstance_Delete(t *testing.T) {
	api := &fakeRDS{}
	require.NoError(t, NewDBInstanceClient(api).Delete(context.Background(), "test-1000"))
	require.NotNil(t, api.deleteInput)
	assert.True(t, *api.deleteInput.SkipFinalSnapshot)
	assert.True(t, *api.deleteInput.DeleteAutomatedBackups)

	api = &fakeRDS{deleteErr: &smithy.GenericAPIError{Code: "DBInstanceNotFound"}}
	err := NewDBInstanceClient(api).Delete(context.Background(), "test-1000")
	assert.True(t, errors.Is(err, engine.ErrNotFound))
}

func TestDBInstance_Lifecycle(t *testing.T) {
	api := &fakeRDS{statuses: []string{"creating", "backing-up", "available"}}
	policy := engine.DefaultPolicy()
	policy.Interval = time.Millisecond
	policy.Namer = func() string { return "test-1000" }

	sleeps := 0
	c := engine.NewController(NewDBInstanceClient(api), engine.WithSleepFunc(func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}))

	result, err := c.Run(context.Background(), DefaultDBInstanceSpec(), policy)
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeReady, result.Outcome)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 2, sleeps)
	assert.True(t, result.Deleted)
	assert.Equal(t, "test-1000", *api.deleteInput.DBInstanceIdentifier)
}
