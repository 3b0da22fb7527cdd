// Package cloud builds AWS SDK clients shared by config and lookup.
package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// LoadAWS resolves credentials the standard way (env, shared config, Lambda
// execution role). region overrides the resolved region when non-empty.
func LoadAWS(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

func NewSSM(cfg aws.Config) *ssm.Client {
	return ssm.NewFromConfig(cfg)
}

func NewBedrock(cfg aws.Config) *bedrockruntime.Client {
	return bedrockruntime.NewFromConfig(cfg)
}
