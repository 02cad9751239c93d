// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package corevm

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
	"github.com/vulcan-evm/vulcan/vulcan"
)

const (
	set2BitsMask = uint16(0b11)
	set3BitsMask = uint16(0b111)
	set4BitsMask = uint16(0b1111)
	set5BitsMask = uint16(0b1_1111)
	set6BitsMask = uint16(0b11_1111)
	set7BitsMask = uint16(0b111_1111)
)

// bitvec is a bit vector which maps bytes in a program.
// An unset bit means the byte is an opcode, a set bit means
// it's data (i.e. argument of PUSHxx).
type bitvec []byte

func (bits bitvec) set1(pos uint64) {
	bits[pos/8] |= 1 << (pos % 8)
}

func (bits bitvec) setN(flag uint16, pos uint64) {
	a := flag << (pos % 8)
	bits[pos/8] |= byte(a)
	if b := byte(a >> 8); b != 0 {
		bits[pos/8+1] = b
	}
}

func (bits bitvec) set8(pos uint64) {
	a := byte(0xFF << (pos % 8))
	bits[pos/8] |= a
	bits[pos/8+1] = ^a
}

func (bits bitvec) set16(pos uint64) {
	a := byte(0xFF << (pos % 8))
	bits[pos/8] |= a
	bits[pos/8+1] = 0xFF
	bits[pos/8+2] = ^a
}

// codeSegment checks if the position is in a code segment.
func (bits *bitvec) codeSegment(pos uint64) bool {
	return (((*bits)[pos/8] >> (pos % 8)) & 1) == 0
}

// codeBitmap collects data locations in code.
func codeBitmap(code []byte) bitvec {
	// The bitmap is 4 bytes longer than necessary, in case the code
	// ends with a PUSH32, the algorithm will set bits on the
	// bitvector outside the bounds of the actual code.
	bits := make(bitvec, len(code)/8+1+4)
	for pc := uint64(0); pc < uint64(len(code)); {
		op := OpCode(code[pc])
		pc++
		if !isPush(op) {
			continue
		}
		numbits := uint64(pushSize(op))
		if numbits >= 8 {
			for ; numbits >= 16; numbits -= 16 {
				bits.set16(pc)
				pc += 16
			}
			for ; numbits >= 8; numbits -= 8 {
				bits.set8(pc)
				pc += 8
			}
		}
		switch numbits {
		case 1:
			bits.set1(pc)
		case 2:
			bits.setN(set2BitsMask, pc)
		case 3:
			bits.setN(set3BitsMask, pc)
		case 4:
			bits.setN(set4BitsMask, pc)
		case 5:
			bits.setN(set5BitsMask, pc)
		case 6:
			bits.setN(set6BitsMask, pc)
		case 7:
			bits.setN(set7BitsMask, pc)
		}
		pc += numbits
	}
	return bits
}

// isValidJumpdest reports whether dest is a valid jump destination in the
// given code: an offset inside the code that holds a JUMPDEST opcode and is
// not part of the immediate data of a PUSH instruction.
func (bits *bitvec) isValidJumpdest(dest *uint256.Int, code []byte) bool {
	udest, overflow := dest.Uint64WithOverflow()
	// PC cannot go beyond len(code) and certainly can't be bigger than 2^63.
	// Don't bother checking for JUMPDEST in that case.
	if overflow || udest >= uint64(len(code)) {
		return false
	}
	if OpCode(code[udest]) != JUMPDEST {
		return false
	}
	return bits.codeSegment(udest)
}

// AnalysisConfig configures the jump-destination analysis cache.
type AnalysisConfig struct {
	// CacheSize is the maximum number of analysis results retained, keyed
	// by code hash. A negative value disables the cache, zero selects the
	// default capacity.
	CacheSize int
}

const defaultAnalysisCacheCapacity = 1 << 14

// analyzer computes jump-destination bitmaps for contract code, caching the
// results of recent analyses keyed by code hash. Codes without a known hash
// are analyzed on every run. The analyzer is thread-safe.
type analyzer struct {
	cache *lru.Cache[vulcan.Hash, bitvec]
}

func newAnalyzer(config AnalysisConfig) (*analyzer, error) {
	if config.CacheSize < 0 {
		return &analyzer{}, nil
	}
	capacity := config.CacheSize
	if capacity == 0 {
		capacity = defaultAnalysisCacheCapacity
	}
	cache, err := lru.New[vulcan.Hash, bitvec](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis cache: %v", err)
	}
	return &analyzer{cache: cache}, nil
}

// analyze obtains the jump-destination bitmap for the given code, either from
// the cache or by running the analysis.
func (a *analyzer) analyze(code []byte, codeHash *vulcan.Hash) bitvec {
	if a.cache == nil || codeHash == nil {
		return codeBitmap(code)
	}
	if bits, found := a.cache.Get(*codeHash); found {
		return bits
	}
	bits := codeBitmap(code)
	a.cache.Add(*codeHash, bits)
	return bits
}
