package providers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSTS struct {
	identity *sts.GetCallerIdentityOutput
	err      error
}

func (f *fakeSTS) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return f.identity, f.err
}

type fakeIAM struct {
	created       *iam.CreateAccessKeyOutput
	createErr     error
	deleteErr     error
	deletedKeyIDs []string
}

func (f *fakeIAM) CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error) {
	return f.created, f.createErr
}

func (f *fakeIAM) DeleteAccessKey(ctx context.Context, params *iam.DeleteAccessKeyInput, optFns ...func(*iam.Options)) (*iam.DeleteAccessKeyOutput, error) {
	f.deletedKeyIDs = append(f.deletedKeyIDs, aws.ToString(params.AccessKeyId))
	return &iam.DeleteAccessKeyOutput{}, f.deleteErr
}

func resolverFor(secrets map[string]string) SecretResolver {
	return func(name string) (string, error) {
		v, ok := secrets[name]
		if !ok {
			return "", errors.New("not found: " + name)
		}
		return v, nil
	}
}

func TestIAMUserFromARN(t *testing.T) {
	t.Parallel()

	name, err := iamUserFromARN("arn:aws:iam::123456789012:user/deploy-bot")
	require.NoError(t, err)
	assert.Equal(t, "deploy-bot", name)

	_, err = iamUserFromARN("arn:aws:sts::123456789012:assumed-role/x/y")
	assert.Error(t, err)
}

func TestAWSProviderValidateConfig(t *testing.T) {
	t.Parallel()

	p := NewAWSProvider()
	assert.False(t, p.ValidateConfig(Config{}))
	assert.True(t, p.ValidateConfig(Config{
		"access_key_id_secret":     "AWS_ACCESS_KEY_ID",
		"secret_access_key_secret": "AWS_SECRET_ACCESS_KEY",
	}))
}

func TestAWSProviderRotateHappyPath(t *testing.T) {
	t.Parallel()

	p := NewAWSProvider()
	p.PropagationDelay = 0

	userARN := "arn:aws:iam::123456789012:user/deploy-bot"
	sts1 := &fakeSTS{identity: &sts.GetCallerIdentityOutput{Arn: aws.String(userARN)}}
	sts2 := &fakeSTS{identity: &sts.GetCallerIdentityOutput{Arn: aws.String(userARN)}}
	iamClient := &fakeIAM{created: &iam.CreateAccessKeyOutput{
		AccessKey: &iamtypes.AccessKey{
			AccessKeyId:     aws.String("AKIANEW"),
			SecretAccessKey: aws.String("new-secret"),
		},
	}}

	calls := 0
	p.newClients = func(ctx context.Context, accessKeyID, secretAccessKey string) (stsAPI, iamAPI, error) {
		calls++
		if calls == 1 {
			return sts1, iamClient, nil
		}
		return sts2, iamClient, nil
	}

	resolve := resolverFor(map[string]string{
		"AWS_ACCESS_KEY_ID":     "AKIAOLD",
		"AWS_SECRET_ACCESS_KEY": "old-secret",
	})

	newValue, err := p.Rotate(context.Background(), Config{
		"access_key_id_secret":     "AWS_ACCESS_KEY_ID",
		"secret_access_key_secret": "AWS_SECRET_ACCESS_KEY",
	}, "", resolve)
	require.NoError(t, err)

	var pair awsKeyPair
	require.NoError(t, json.Unmarshal([]byte(newValue), &pair))
	assert.Equal(t, "AKIANEW", pair.AccessKeyID)
	assert.Equal(t, "new-secret", pair.SecretAccessKey)
	assert.Contains(t, iamClient.deletedKeyIDs, "AKIAOLD")
}

func TestAWSProviderRotateRollsBackOnVerifyFailure(t *testing.T) {
	t.Parallel()

	p := NewAWSProvider()
	p.PropagationDelay = 0

	userARN := "arn:aws:iam::123456789012:user/deploy-bot"
	goodSTS := &fakeSTS{identity: &sts.GetCallerIdentityOutput{Arn: aws.String(userARN)}}
	badSTS := &fakeSTS{err: errors.New("access denied")}
	iamClient := &fakeIAM{created: &iam.CreateAccessKeyOutput{
		AccessKey: &iamtypes.AccessKey{
			AccessKeyId:     aws.String("AKIANEW"),
			SecretAccessKey: aws.String("new-secret"),
		},
	}}

	calls := 0
	p.newClients = func(ctx context.Context, accessKeyID, secretAccessKey string) (stsAPI, iamAPI, error) {
		calls++
		if calls == 1 {
			return goodSTS, iamClient, nil
		}
		return badSTS, iamClient, nil
	}

	resolve := resolverFor(map[string]string{
		"AWS_ACCESS_KEY_ID":     "AKIAOLD",
		"AWS_SECRET_ACCESS_KEY": "old-secret",
	})

	_, err := p.Rotate(context.Background(), Config{
		"access_key_id_secret":     "AWS_ACCESS_KEY_ID",
		"secret_access_key_secret": "AWS_SECRET_ACCESS_KEY",
	}, "", resolve)
	assert.Error(t, err)
	assert.Contains(t, iamClient.deletedKeyIDs, "AKIANEW", "the newly created key must be cleaned up on verify failure")
	assert.NotContains(t, iamClient.deletedKeyIDs, "AKIAOLD", "the old key survives a failed rotation")
}

func TestAWSProviderTestRotateChecksCredentialsOnly(t *testing.T) {
	t.Parallel()

	p := NewAWSProvider()
	p.newClients = func(ctx context.Context, accessKeyID, secretAccessKey string) (stsAPI, iamAPI, error) {
		return &fakeSTS{identity: &sts.GetCallerIdentityOutput{}}, &fakeIAM{}, nil
	}

	resolve := resolverFor(map[string]string{
		"AWS_ACCESS_KEY_ID":     "AKIAOLD",
		"AWS_SECRET_ACCESS_KEY": "old-secret",
	})

	ok := p.TestRotate(context.Background(), Config{
		"access_key_id_secret":     "AWS_ACCESS_KEY_ID",
		"secret_access_key_secret": "AWS_SECRET_ACCESS_KEY",
	}, "", resolve)
	assert.True(t, ok)
}
