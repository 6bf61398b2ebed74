package sources

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	pm "github.com/scottbrown/aws-pipeline-monitor/pipelinemonitor"
)

// STSClient defines the STS operation used to resolve the caller.
type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// STSIdentity resolves the account the credentials belong to. The profile
// is recorded as given; an empty profile means the default chain.
func STSIdentity(ctx context.Context, client STSClient, profile string) (pm.Identity, error) {
	output, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return pm.Identity{Profile: profile}, fmt.Errorf("get caller identity: %w", classify(err))
	}
	return pm.Identity{AccountID: aws.ToString(output.Account), Profile: profile}, nil
}
