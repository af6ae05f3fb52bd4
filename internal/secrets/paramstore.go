// Package secrets resolves secret values referenced by AWS SSM parameter name.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

//nolint:gochecknoglobals // sentinel error
var ErrSecretNotFound = errors.New("secrets: parameter has no value")

// ssmAPI is the subset of *ssm.Client the resolver needs.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter returns the decrypted value of a named parameter.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ParamStore reads SecureString parameters from SSM Parameter Store.
type ParamStore struct {
	api ssmAPI
}

func NewParamStore(api ssmAPI) (*ParamStore, error) {
	if api == nil {
		return nil, errors.New("secrets.NewParamStore: api must not be nil")
	}
	return &ParamStore{api: api}, nil
}

func (p *ParamStore) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("secrets.ParamStore.GetParameter: name is required")
	}

	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("secrets.ParamStore.GetParameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secrets.ParamStore.GetParameter %q: %w", name, ErrSecretNotFound)
	}
	return *out.Parameter.Value, nil
}

// Ref pairs a parameter name with the field its value is written to.
type Ref struct {
	Param string
	Dest  *string
}

// Resolve fills every Ref whose Param is set. Refs without a parameter name
// keep their current value.
func Resolve(ctx context.Context, g Getter, refs ...Ref) error {
	for _, r := range refs {
		if r.Param == "" {
			continue
		}
		v, err := g.GetParameter(ctx, r.Param)
		if err != nil {
			return fmt.Errorf("secrets.Resolve: %w", err)
		}
		*r.Dest = v
	}
	return nil
}
