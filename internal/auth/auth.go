// Package auth implements the caller-authorization collaborator. The
// production authorizer recovers a secp256k1 signature over the operation
// digest and compares the recovered address with the record's stored owner;
// the static authorizer trusts the claimed actor and backs tests and
// single-operator deployments.
package auth

import (
	"context"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/farsight-markets/farsight/internal/domain"
)

// EthAuthorizer verifies secp256k1 signatures over operation digests.
type EthAuthorizer struct{}

// NewEthAuthorizer returns an EthAuthorizer.
func NewEthAuthorizer() *EthAuthorizer {
	return &EthAuthorizer{}
}

// Authorize recovers the signer address from the claim and requires it to
// match the stored owner. Any recovery failure or mismatch reports
// unauthorized; the caller learns nothing about which check failed.
func (a *EthAuthorizer) Authorize(_ context.Context, claim domain.CallerClaim, owner string) error {
	if len(claim.Signature) != 65 || len(claim.Digest) != 32 {
		return &domain.PreconditionError{Code: domain.CodeUnauthorized, Detail: claim.Actor}
	}

	pub, err := ethcrypto.SigToPub(claim.Digest, claim.Signature)
	if err != nil {
		return &domain.PreconditionError{Code: domain.CodeUnauthorized, Detail: claim.Actor}
	}
	recovered := ethcrypto.PubkeyToAddress(*pub).Hex()
	if !strings.EqualFold(recovered, owner) {
		return &domain.PreconditionError{Code: domain.CodeUnauthorized, Detail: claim.Actor}
	}
	return nil
}

// Static authorizes any claim whose actor equals the stored owner, with no
// cryptographic proof.
type Static struct{}

// NewStatic returns a Static authorizer.
func NewStatic() *Static {
	return &Static{}
}

func (Static) Authorize(_ context.Context, claim domain.CallerClaim, owner string) error {
	if !strings.EqualFold(claim.Actor, owner) {
		return &domain.PreconditionError{Code: domain.CodeUnauthorized, Detail: claim.Actor}
	}
	return nil
}
