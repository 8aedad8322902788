package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
)

// ManagerAPI is the part of the Secrets Manager client used here.
type ManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider reads credentials from AWS Secrets Manager.
type AWSProvider struct {
	api ManagerAPI
}

// NewAWSProvider loads the default AWS configuration for region.
func NewAWSProvider(ctx context.Context, region string) (*AWSProvider, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewAWSProviderWithAPI(secretsmanager.NewFromConfig(cfg)), nil
}

func NewAWSProviderWithAPI(api ManagerAPI) *AWSProvider {
	return &AWSProvider{api: api}
}

// GetCredentials fetches the secret and decodes its JSON payload. String
// secrets are preferred; binary secrets are decoded by the SDK already.
func (p *AWSProvider) GetCredentials(ctx context.Context, secretID string) (Credentials, error) {
	if secretID == "" {
		return Credentials{}, &AccessError{SecretID: secretID, Reason: ReasonInvalidParameter, Err: errors.New("secret id is empty")}
	}

	out, err := p.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return Credentials{}, &AccessError{SecretID: secretID, Reason: classify(err), Err: err}
	}

	switch {
	case out.SecretString != nil && *out.SecretString != "":
		return parseCredentials(secretID, []byte(*out.SecretString))
	case len(out.SecretBinary) > 0:
		return parseCredentials(secretID, out.SecretBinary)
	default:
		return Credentials{}, &AccessError{SecretID: secretID, Reason: ReasonMalformed, Err: errors.New("secret value is empty")}
	}
}

func classify(err error) Reason {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return ReasonUnknown
	}

	switch apiErr.ErrorCode() {
	case "DecryptionFailure", "DecryptionFailureException":
		return ReasonDecryptionFailure
	case "InternalServiceError", "InternalServiceErrorException":
		return ReasonInternalError
	case "InvalidParameterException":
		return ReasonInvalidParameter
	case "InvalidRequestException":
		return ReasonInvalidRequest
	case "ResourceNotFoundException":
		return ReasonNotFound
	case "AccessDeniedException":
		return ReasonAccessDenied
	default:
		return ReasonUnknown
	}
}

var _ Provider = (*AWSProvider)(nil)
