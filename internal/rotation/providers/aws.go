package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// stsAPI and iamAPI are the slivers of the aws-sdk-go-v2 clients this
// provider needs; *sts.Client and *iam.Client satisfy them directly, and
// tests substitute fakes without touching the network.
type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

type iamAPI interface {
	CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error)
	DeleteAccessKey(ctx context.Context, params *iam.DeleteAccessKeyInput, optFns ...func(*iam.Options)) (*iam.DeleteAccessKeyOutput, error)
}

// awsKeyPair is the serialized new_value AWS rotation returns (spec
// §4.5: "a serialized pair {accessKeyId, secretAccessKey}").
type awsKeyPair struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
}

// AWSProvider rotates an IAM user's access key pair (spec §4.5).
type AWSProvider struct {
	// PropagationDelay is how long Rotate waits between creating the new
	// key and verifying it, to give IAM's eventual consistency a chance
	// to catch up. Defaults to 10s; tests override it to zero.
	PropagationDelay time.Duration

	// newClients builds the STS/IAM clients for a credential pair.
	// Overridable in tests; defaults to real aws-sdk-go-v2 clients.
	newClients func(ctx context.Context, accessKeyID, secretAccessKey string) (stsAPI, iamAPI, error)
}

func NewAWSProvider() *AWSProvider {
	p := &AWSProvider{PropagationDelay: 10 * time.Second}
	p.newClients = p.defaultClients
	return p
}

func (p *AWSProvider) defaultClients(ctx context.Context, accessKeyID, secretAccessKey string) (stsAPI, iamAPI, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, nil, err
	}
	return sts.NewFromConfig(cfg), iam.NewFromConfig(cfg), nil
}

func (p *AWSProvider) Tag() string         { return "aws" }
func (p *AWSProvider) DisplayName() string { return "AWS IAM access key" }

// ValidateConfig requires the names of the two sibling secrets holding
// the access key id and secret access key (spec §4.5).
func (p *AWSProvider) ValidateConfig(config Config) bool {
	return config["access_key_id_secret"] != "" && config["secret_access_key_secret"] != ""
}

func (p *AWSProvider) resolveCredentials(config Config, resolve SecretResolver) (string, string, error) {
	accessKeyID, err := resolve(config["access_key_id_secret"])
	if err != nil {
		return "", "", wrapf(p.Tag(), err, "resolve %s", config["access_key_id_secret"])
	}
	secretKey, err := resolve(config["secret_access_key_secret"])
	if err != nil {
		return "", "", wrapf(p.Tag(), err, "resolve %s", config["secret_access_key_secret"])
	}
	return accessKeyID, secretKey, nil
}

// iamUserFromARN extracts the IAM user name from a caller-identity ARN
// of the form arn:aws:iam::<account>:user/<name>.
func iamUserFromARN(arn string) (string, error) {
	idx := strings.LastIndex(arn, ":user/")
	if idx < 0 {
		return "", fmt.Errorf("ARN %q is not an IAM user identity", arn)
	}
	return arn[idx+len(":user/"):], nil
}

// Rotate implements the five-step AWS access key rotation (spec §4.5):
// verify current credentials, create a new key pair, wait for
// propagation, verify the new pair, delete the old key. Any failure at
// step 4 deletes the just-created key before returning.
func (p *AWSProvider) Rotate(ctx context.Context, config Config, currentValue string, resolve SecretResolver) (string, error) {
	if !p.ValidateConfig(config) {
		return "", errf(p.Tag(), "access_key_id_secret and secret_access_key_secret are required")
	}

	oldAccessKeyID, oldSecretKey, err := p.resolveCredentials(config, resolve)
	if err != nil {
		return "", err
	}

	stsClient, iamClient, err := p.newClients(ctx, oldAccessKeyID, oldSecretKey)
	if err != nil {
		return "", wrapf(p.Tag(), err, "build AWS clients")
	}

	identity, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", wrapf(p.Tag(), err, "verify current credentials")
	}
	userName, err := iamUserFromARN(awssdk.ToString(identity.Arn))
	if err != nil {
		return "", wrapf(p.Tag(), err, "parse caller identity")
	}

	created, err := iamClient.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{UserName: &userName})
	if err != nil {
		return "", wrapf(p.Tag(), err, "create new access key")
	}
	newAccessKeyID := awssdk.ToString(created.AccessKey.AccessKeyId)
	newSecretKey := awssdk.ToString(created.AccessKey.SecretAccessKey)

	if p.PropagationDelay > 0 {
		select {
		case <-time.After(p.PropagationDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	newSTS, _, err := p.newClients(ctx, newAccessKeyID, newSecretKey)
	if err == nil {
		_, err = newSTS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	}
	if err != nil {
		_, _ = iamClient.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
			UserName:    &userName,
			AccessKeyId: created.AccessKey.AccessKeyId,
		})
		return "", wrapf(p.Tag(), err, "verify new key pair; rolled back")
	}

	if _, err := iamClient.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
		UserName:    &userName,
		AccessKeyId: &oldAccessKeyID,
	}); err != nil {
		return "", wrapf(p.Tag(), err, "delete old access key")
	}

	blob, err := json.Marshal(awsKeyPair{AccessKeyID: newAccessKeyID, SecretAccessKey: newSecretKey})
	if err != nil {
		return "", wrapf(p.Tag(), err, "serialize new key pair")
	}
	return string(blob), nil
}

// TestRotate verifies the current credentials without creating or
// deleting anything.
func (p *AWSProvider) TestRotate(ctx context.Context, config Config, _ string, resolve SecretResolver) bool {
	if !p.ValidateConfig(config) {
		return false
	}
	accessKeyID, secretKey, err := p.resolveCredentials(config, resolve)
	if err != nil {
		return false
	}
	stsClient, _, err := p.newClients(ctx, accessKeyID, secretKey)
	if err != nil {
		return false
	}
	_, err = stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	return err == nil
}
