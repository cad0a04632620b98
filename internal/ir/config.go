package ir

import "github.com/apple/pkl-go/pkl"

// ProbeConfig is the top-level probe configuration evaluated from Pkl.
type ProbeConfig struct {
	Kind         string              `pkl:"kind"`
	Region       string              `pkl:"region"`
	Profile      string              `pkl:"profile"`
	Poll         *PollConfig         `pkl:"poll"`
	CacheCluster *CacheClusterConfig `pkl:"cacheCluster"`
	Instance     *InstanceConfig     `pkl:"instance"`
	DBInstance   *DBInstanceConfig   `pkl:"dbInstance"`
	Null         *NullConfig         `pkl:"null"`
	Ledger       *LedgerConfig       `pkl:"ledger"`
}

// PollConfig overrides the default poll policy. Unset fields keep defaults.
type PollConfig struct {
	Interval        *pkl.Duration `pkl:"interval"`
	MaxAttempts     int           `pkl:"maxAttempts"`
	ReadyState      string        `pkl:"readyState"`
	ReadyMatch      string        `pkl:"readyMatch"` // "contains" or "equals"
	NamePrefix      string        `pkl:"namePrefix"`
	StopWhenReady   *bool         `pkl:"stopWhenReady"`
	TeardownTimeout *pkl.Duration `pkl:"teardownTimeout"`
	CallTimeout     *pkl.Duration `pkl:"callTimeout"`
}

type CacheClusterConfig struct {
	NodeType         string            `pkl:"nodeType"`
	Engine           string            `pkl:"engine"`
	EngineVersion    string            `pkl:"engineVersion"`
	NumCacheNodes    int               `pkl:"numCacheNodes"`
	Port             int               `pkl:"port"`
	SubnetGroupName  string            `pkl:"subnetGroupName"`
	SecurityGroupIds []string          `pkl:"securityGroupIds"`
	Tags             map[string]string `pkl:"tags"`
}

type InstanceConfig struct {
	AMI          string            `pkl:"ami"`
	InstanceType string            `pkl:"instanceType"`
	SubnetID     string            `pkl:"subnetId"`
	Tags         map[string]string `pkl:"tags"`
}

type DBInstanceConfig struct {
	InstanceClass      string            `pkl:"instanceClass"`
	Engine             string            `pkl:"engine"`
	EngineVersion      string            `pkl:"engineVersion"`
	AllocatedStorage   int               `pkl:"allocatedStorage"`
	MasterUsername     string            `pkl:"masterUsername"`
	MasterUserPassword string            `pkl:"masterUserPassword"`
	SubnetGroupName    string            `pkl:"subnetGroupName"`
	SecurityGroupIds   []string          `pkl:"securityGroupIds"`
	Tags               map[string]string `pkl:"tags"`
}

type NullConfig struct {
	Statuses       []string `pkl:"statuses"`
	FailDescribeAt int      `pkl:"failDescribeAt"`
}

// LedgerConfig selects where in-flight resources are recorded.
type LedgerConfig struct {
	Backend       string `pkl:"backend"` // "local" or "s3"
	Path          string `pkl:"path"`
	Bucket        string `pkl:"bucket"`
	Key           string `pkl:"key"`
	Region        string `pkl:"region"`
	DynamoDBTable string `pkl:"dynamodbTable"`
	Encrypt       bool   `pkl:"encrypt"`
	Profile       string `pkl:"profile"`
}
