// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import "fmt"

// Gate identifies a boolean gate in the closed catalogue. The set is an
// enumeration rather than name-based dispatch so unsupported gates are
// rejected at validation, not discovered at call time.
type Gate uint8

const (
	GateNAND Gate = iota
	GateAND
	GateOR
	GateNOR
	GateXOR
	GateXNOR
	GateANDNY // AND(NOT a, b)
	GateANDYN // AND(a, NOT b)
	GateORNY  // OR(NOT a, b)
	GateORYN  // OR(a, NOT b)
	GateNOT
	GateCOPY
	GateCONSTANT
	GateMUX

	gateCount
)

var gateNames = [gateCount]string{
	"NAND", "AND", "OR", "NOR", "XOR", "XNOR",
	"ANDNY", "ANDYN", "ORNY", "ORYN",
	"NOT", "COPY", "CONSTANT", "MUX",
}

func (g Gate) String() string {
	if g < gateCount {
		return gateNames[g]
	}
	return fmt.Sprintf("Gate(%d)", uint8(g))
}

// ParseGate maps a gate name (as used by the service layer) back into
// the enumeration.
func ParseGate(name string) (Gate, error) {
	for g, n := range gateNames {
		if n == name {
			return Gate(g), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownGate, name)
}

// Arity returns how many ciphertext inputs the gate consumes.
func (g Gate) Arity() int {
	switch g {
	case GateNOT, GateCOPY:
		return 1
	case GateCONSTANT:
		return 0
	case GateMUX:
		return 3
	default:
		return 2
	}
}

// gateRecipe is the public linear pre-combination of a two-input
// bootstrapped gate: offset + ca*x + cb*y, followed by the standard
// sign-selecting bootstrap. The constants are the published TFHE gate
// table; the +-1/8 and +-1/4 offsets position the four input phase
// combinations on the correct side of the test vector's threshold.
type gateRecipe struct {
	offset Torus32
	ca, cb int32
}

// Negated torus constants, written in two's complement since Torus32 is
// an unsigned type.
const (
	encodingMuNeg  = ^encodingMu + 1
	encodingMu2    = 2 * encodingMu
	encodingMu2Neg = ^encodingMu2 + 1
)

var gateRecipes = map[Gate]gateRecipe{
	GateNAND:  {offset: encodingMu, ca: -1, cb: -1},
	GateAND:   {offset: encodingMuNeg, ca: 1, cb: 1},
	GateOR:    {offset: encodingMu, ca: 1, cb: 1},
	GateNOR:   {offset: encodingMuNeg, ca: -1, cb: -1},
	GateXOR:   {offset: encodingMu2, ca: 2, cb: 2},
	GateXNOR:  {offset: encodingMu2Neg, ca: -2, cb: -2},
	GateANDNY: {offset: encodingMuNeg, ca: -1, cb: 1},
	GateANDYN: {offset: encodingMuNeg, ca: 1, cb: -1},
	GateORNY:  {offset: encodingMu, ca: -1, cb: 1},
	GateORYN:  {offset: encodingMu, ca: 1, cb: -1},
}
