// Package address validates and normalizes addresses and transaction ids
// for each supported network family.
package address

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"

	"tip-settlement/internal/domain"
)

const (
	solanaPubkeyLen    = 32
	solanaSignatureLen = 64
	xrpDecodedLen      = 25
	xrpChecksumLen     = 4
	xrpAccountPrefix   = 0x00
)

// RippleAlphabet is the base58 alphabet used by XRP Ledger classic addresses.
var RippleAlphabet = base58.NewAlphabet("rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz")

var (
	evmTxHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	xrpTxHashRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
)

// Normalize validates addr for network n and returns its canonical form:
// base58 unchanged for Solana and XRP, EIP-55 checksum case for EVM.
func Normalize(n domain.Network, addr string) (string, error) {
	info, ok := n.Info()
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedNetwork, n)
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty", domain.ErrInvalidAddress)
	}

	switch info.Family {
	case domain.FamilySolana:
		if _, err := DecodeSolana(addr); err != nil {
			return "", err
		}
		return addr, nil
	case domain.FamilyEVM:
		if !common.IsHexAddress(addr) || !strings.HasPrefix(strings.ToLower(addr), "0x") {
			return "", fmt.Errorf("%w: %q is not a 0x-prefixed 20-byte hex address", domain.ErrInvalidAddress, addr)
		}
		return common.HexToAddress(addr).Hex(), nil
	case domain.FamilyXRP:
		if err := validateXRP(addr); err != nil {
			return "", err
		}
		return addr, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedNetwork, n)
}

// NormalizeSigner is Normalize plus, on Solana, a check that the key is a
// valid ed25519 point. Program-derived addresses are off-curve and cannot sign.
func NormalizeSigner(n domain.Network, addr string) (string, error) {
	norm, err := Normalize(n, addr)
	if err != nil {
		return "", err
	}
	if n != domain.NetworkSolana {
		return norm, nil
	}
	raw, _ := DecodeSolana(norm)
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return "", fmt.Errorf("%w: %q is not on the ed25519 curve", domain.ErrInvalidAddress, addr)
	}
	return norm, nil
}

// DecodeSolana decodes a base58 Solana public key.
func DecodeSolana(addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not base58", domain.ErrInvalidAddress, addr)
	}
	if len(raw) != solanaPubkeyLen {
		return nil, fmt.Errorf("%w: %q decodes to %d bytes, want %d",
			domain.ErrInvalidAddress, addr, len(raw), solanaPubkeyLen)
	}
	return raw, nil
}

// EncodeSolana encodes a 32-byte public key.
func EncodeSolana(raw []byte) string {
	return base58.Encode(raw)
}

func validateXRP(addr string) error {
	if !strings.HasPrefix(addr, "r") {
		return fmt.Errorf("%w: %q does not start with r", domain.ErrInvalidAddress, addr)
	}
	raw, err := base58.DecodeAlphabet(addr, RippleAlphabet)
	if err != nil {
		return fmt.Errorf("%w: %q is not ripple base58", domain.ErrInvalidAddress, addr)
	}
	if len(raw) != xrpDecodedLen || raw[0] != xrpAccountPrefix {
		return fmt.Errorf("%w: %q is not a classic account address", domain.ErrInvalidAddress, addr)
	}
	payload, checksum := raw[:xrpDecodedLen-xrpChecksumLen], raw[xrpDecodedLen-xrpChecksumLen:]
	if !bytes.Equal(xrpChecksum(payload), checksum) {
		return fmt.Errorf("%w: %q checksum mismatch", domain.ErrInvalidAddress, addr)
	}
	return nil
}

// EncodeXRP encodes a 20-byte account id as a classic address.
func EncodeXRP(accountID []byte) string {
	payload := append([]byte{xrpAccountPrefix}, accountID...)
	return base58.EncodeAlphabet(append(payload, xrpChecksum(payload)...), RippleAlphabet)
}

func xrpChecksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	return second[:xrpChecksumLen]
}

// NormalizeTxID validates a transaction identifier for network n.
// EVM hashes are lower-cased, XRP hashes upper-cased, Solana signatures unchanged.
func NormalizeTxID(n domain.Network, txID string) (string, error) {
	info, ok := n.Info()
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedNetwork, n)
	}
	txID = strings.TrimSpace(txID)

	switch info.Family {
	case domain.FamilySolana:
		raw, err := base58.Decode(txID)
		if err != nil || len(raw) != solanaSignatureLen {
			return "", fmt.Errorf("%w: %q is not a base58 64-byte signature", domain.ErrInvalidTxID, txID)
		}
		return txID, nil
	case domain.FamilyEVM:
		if !evmTxHashRe.MatchString(txID) {
			return "", fmt.Errorf("%w: %q is not a 0x-prefixed 32-byte hash", domain.ErrInvalidTxID, txID)
		}
		return strings.ToLower(txID), nil
	case domain.FamilyXRP:
		if !xrpTxHashRe.MatchString(txID) {
			return "", fmt.Errorf("%w: %q is not a 32-byte hex hash", domain.ErrInvalidTxID, txID)
		}
		return strings.ToUpper(txID), nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedNetwork, n)
}
