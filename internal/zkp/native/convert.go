package native

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"

	"zkconsent/internal/zkp/snark"
	dErrors "zkconsent/pkg/domain-errors"
)

// gnark's raw (uncompressed) serialization writes BN254 G1 points as
// X||Y and G2 points as X.A1||X.A0||Y.A1||Y.A0, 32 big-endian bytes per
// field element. The conversions below slice those layouts into snarkjs
// decimal coordinates.
const (
	g1RawSize = 64
	g2RawSize = 128
)

// ConvertProof re-encodes a gnark groth16 proof as a snarkjs proof.
func ConvertProof(proof groth16.Proof) (*snark.Proof, error) {
	var buf bytes.Buffer
	if _, err := proof.WriteRawTo(&buf); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "serialize proof")
	}
	raw := buf.Bytes()
	// Ar || Bs || Krs; anything after is commitment data the snarkjs
	// format has no slot for
	if len(raw) < g1RawSize+g2RawSize+g1RawSize {
		return nil, dErrors.New(dErrors.CodeInternal, "proof serialization too short")
	}
	return &snark.Proof{
		PiA:      g1Decimal(raw[0:g1RawSize]),
		PiB:      g2Decimal(raw[g1RawSize : g1RawSize+g2RawSize]),
		PiC:      g1Decimal(raw[g1RawSize+g2RawSize : g1RawSize+g2RawSize+g1RawSize]),
		Protocol: "groth16",
		Curve:    "bn128",
	}, nil
}

// ConvertVerifyingKey re-encodes a gnark groth16 verification key as a
// snarkjs verification key.
func ConvertVerifyingKey(vk groth16.VerifyingKey) (*snark.VerifyingKey, error) {
	var buf bytes.Buffer
	if _, err := vk.WriteRawTo(&buf); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "serialize verification key")
	}
	raw := buf.Bytes()

	// alpha(G1) || beta(G1) || beta(G2) || gamma(G2) || delta(G1) ||
	// delta(G2) || len(K) || K... ; beta(G1) and delta(G1) have no
	// snarkjs counterpart, the trailing commitment metadata is skipped
	const (
		alphaOff  = 0
		beta2Off  = alphaOff + g1RawSize + g1RawSize
		gamma2Off = beta2Off + g2RawSize
		delta2Off = gamma2Off + g2RawSize + g1RawSize
		kLenOff   = delta2Off + g2RawSize
		kOff      = kLenOff + 4
	)
	if len(raw) < kOff {
		return nil, dErrors.New(dErrors.CodeInternal, "verification key serialization too short")
	}
	kLen := int(binary.BigEndian.Uint32(raw[kLenOff:kOff]))
	if kLen == 0 || len(raw) < kOff+kLen*g1RawSize {
		return nil, dErrors.New(dErrors.CodeInternal, "verification key serialization truncated")
	}

	ic := make([][]string, kLen)
	for i := 0; i < kLen; i++ {
		off := kOff + i*g1RawSize
		ic[i] = g1Decimal(raw[off : off+g1RawSize])
	}

	return &snark.VerifyingKey{
		Protocol: "groth16",
		Curve:    "bn128",
		NPublic:  kLen - 1,
		Alpha1:   g1Decimal(raw[alphaOff : alphaOff+g1RawSize]),
		Beta2:    g2Decimal(raw[beta2Off : beta2Off+g2RawSize]),
		Gamma2:   g2Decimal(raw[gamma2Off : gamma2Off+g2RawSize]),
		Delta2:   g2Decimal(raw[delta2Off : delta2Off+g2RawSize]),
		IC:       ic,
	}, nil
}

// PublicSignals renders the public witness as snarkjs decimal strings.
func PublicSignals(pub witness.Witness) ([]string, error) {
	vec, ok := pub.Vector().(fr.Vector)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "unexpected witness vector type")
	}
	signals := make([]string, len(vec))
	for i := range vec {
		signals[i] = vec[i].String()
	}
	return signals, nil
}

func g1Decimal(raw []byte) []string {
	x := new(big.Int).SetBytes(raw[:32])
	y := new(big.Int).SetBytes(raw[32:64])
	if x.Sign() == 0 && y.Sign() == 0 {
		return []string{"0", "1", "0"}
	}
	return []string{x.String(), y.String(), "1"}
}

func g2Decimal(raw []byte) [][]string {
	xA1 := new(big.Int).SetBytes(raw[0:32])
	xA0 := new(big.Int).SetBytes(raw[32:64])
	yA1 := new(big.Int).SetBytes(raw[64:96])
	yA0 := new(big.Int).SetBytes(raw[96:128])
	if xA0.Sign() == 0 && xA1.Sign() == 0 && yA0.Sign() == 0 && yA1.Sign() == 0 {
		return [][]string{{"0", "0"}, {"1", "0"}, {"0", "0"}}
	}
	return [][]string{
		{xA0.String(), xA1.String()},
		{yA0.String(), yA1.String()},
		{"1", "0"},
	}
}
