package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmPrefix marks a config value that lives in AWS SSM Parameter Store.
const ssmPrefix = "ssm:"

// SSMClient is the subset of the SSM API used to resolve secrets.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// secretFields returns pointers to every config value that may hold a secret.
func secretFields(cfg *Config) map[string]*string {
	return map[string]*string{
		"slack.botToken":      &cfg.Slack.BotToken,
		"slack.signingSecret": &cfg.Slack.SigningSecret,
		"lookup.http.token":   &cfg.Lookup.HTTP.Token,
	}
}

// NeedsSSM reports whether any secret references an SSM parameter.
func NeedsSSM(cfg *Config) bool {
	for _, v := range secretFields(cfg) {
		if strings.HasPrefix(*v, ssmPrefix) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces every "ssm:/name" secret with the decrypted
// parameter value. Plain values are left alone.
func ResolveSecrets(ctx context.Context, cfg *Config, client SSMClient) error {
	for field, v := range secretFields(cfg) {
		if !strings.HasPrefix(*v, ssmPrefix) {
			continue
		}
		name := strings.TrimPrefix(*v, ssmPrefix)
		out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("resolve %s from ssm %s: %w", field, name, err)
		}
		if out.Parameter == nil || out.Parameter.Value == nil {
			return fmt.Errorf("resolve %s: ssm parameter %s has no value", field, name)
		}
		*v = *out.Parameter.Value
	}
	return nil
}
