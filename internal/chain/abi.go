package chain

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

const wordSize = 32

var (
	ErrEmptyResult = errors.New("empty call result")
	ErrShortResult = errors.New("call result shorter than expected")
)

// NullAddress is the zero address as returned by DecodeAddress.
const NullAddress = "0x0000000000000000000000000000000000000000"

// Selector returns the first 4 bytes of keccak256 of a function signature,
// e.g. Selector("balanceOf(address)") = 70a08231.
func Selector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

// EncodeCall builds calldata from a signature and already encoded arguments.
func EncodeCall(signature string, args ...[]byte) []byte {
	data := make([]byte, 0, 4+wordSize*len(args))
	data = append(data, Selector(signature)...)
	for _, a := range args {
		data = append(data, a...)
	}
	return data
}

// EncodeAddress pads a 20-byte Ethereum address to 32 bytes (left-padded with zeros).
func EncodeAddress(addr string) []byte {
	b, _ := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X"))
	padded := make([]byte, wordSize)
	if len(b) > wordSize {
		b = b[len(b)-wordSize:]
	}
	copy(padded[wordSize-len(b):], b)
	return padded
}

// EncodeUint256 encodes a big.Int as a 32-byte left-padded value.
func EncodeUint256(n *big.Int) []byte {
	padded := make([]byte, wordSize)
	if n == nil {
		return padded
	}
	b := n.Bytes()
	copy(padded[wordSize-len(b):], b)
	return padded
}

// EncodeUint64 encodes a uint64 as a 32-byte left-padded value.
func EncodeUint64(n uint64) []byte {
	return EncodeUint256(new(big.Int).SetUint64(n))
}

// Word returns the i-th 32-byte word of data.
func Word(data []byte, i int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyResult
	}
	end := (i + 1) * wordSize
	if i < 0 || len(data) < end {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrShortResult, end, len(data))
	}
	return data[i*wordSize : end], nil
}

// DecodeUint256 decodes the i-th word as an unsigned integer.
func DecodeUint256(data []byte, i int) (*big.Int, error) {
	w, err := Word(data, i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

// DecodeAddress decodes the i-th word as a lowercase 0x-prefixed address.
func DecodeAddress(data []byte, i int) (string, error) {
	w, err := Word(data, i)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(w[wordSize-20:]), nil
}

// DecodeString decodes a dynamic string return value. Legacy tokens that
// return bytes32 are accepted too.
func DecodeString(data []byte) (string, error) {
	if len(data) == wordSize {
		return string(bytes.TrimRight(data, "\x00")), nil
	}
	offset, err := DecodeUint256(data, 0)
	if err != nil {
		return "", err
	}
	if !offset.IsInt64() || offset.Int64()%wordSize != 0 {
		return "", fmt.Errorf("%w: bad string offset %s", ErrShortResult, offset)
	}
	lengthWord := int(offset.Int64() / wordSize)
	length, err := DecodeUint256(data, lengthWord)
	if err != nil {
		return "", err
	}
	start := (lengthWord + 1) * wordSize
	if !length.IsInt64() || int64(len(data)-start) < length.Int64() {
		return "", fmt.Errorf("%w: string length %s exceeds data", ErrShortResult, length)
	}
	return string(data[start : start+int(length.Int64())]), nil
}

// IsNullAddress reports whether address is empty or the zero address.
func IsNullAddress(address string) bool {
	return address == "" || strings.EqualFold(address, NullAddress)
}
