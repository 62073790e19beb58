package crypto

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/farsight-markets/farsight/internal/domain"
)

// Digest computes the 32-byte operation digest a caller signs to prove it
// may run a privileged operation. The digest binds the operation name, the
// target record, the acting address, and a caller-chosen nonce so a captured
// signature cannot be replayed against another operation or record.
func Digest(operation, recordID, actor string, nonce uint64) []byte {
	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], nonce)

	var buf []byte
	buf = append(buf, operation...)
	buf = append(buf, 0)
	buf = append(buf, recordID...)
	buf = append(buf, 0)
	buf = append(buf, strings.ToLower(actor)...)
	buf = append(buf, 0)
	buf = append(buf, nb[:]...)

	return ethcrypto.Keccak256(buf)
}

// Signer produces caller claims from a secp256k1 private key. It is the
// counterpart of the engine's signature-recovering authorizer.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded private key, with or without
// the 0x prefix.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	if _, err := hex.DecodeString(keyHex); err != nil {
		return nil, fmt.Errorf("crypto: private key is not valid hex: %w", err)
	}

	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: parsing private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the signer's hex address.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// Claim signs the operation digest and returns a complete caller claim for
// the engine's authorizer.
func (s *Signer) Claim(operation, recordID string, nonce uint64) (domain.CallerClaim, error) {
	digest := Digest(operation, recordID, s.Address(), nonce)

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return domain.CallerClaim{}, fmt.Errorf("crypto: signing digest: %w", err)
	}

	return domain.CallerClaim{
		Actor:     s.Address(),
		Digest:    digest,
		Signature: sig,
	}, nil
}
