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
	"math"

	"github.com/holiman/uint256"
)

// Memory is the byte-addressable volatile memory of a single execution frame.
// It is implicitly zero-initialized, grows in 32-byte words, and is released
// when the frame exits.
type Memory struct {
	store []byte
}

func NewMemory() *Memory {
	return &Memory{}
}

// maxMemoryExpansionSize bounds the memory a single frame may allocate.
// Without gas accounting there is no economic limit on expansion, so
// exceeding this size fails the frame instead.
const maxMemoryExpansionSize = 0x1FFFFFFFE0

// toValidMemorySize rounds the given size up to the next full 32-byte word.
func toValidMemorySize(size uint64) uint64 {
	fullWordsSize := sizeInWords(size) * 32
	if size != 0 && fullWordsSize < size {
		return math.MaxUint64
	}
	return fullWordsSize
}

// sizeInWords returns the number of 32-byte words required to store the given
// number of bytes, checking that size+31 does not overflow uint64.
func sizeInWords(size uint64) uint64 {
	if size > math.MaxUint64-31 {
		return math.MaxUint64/32 + 1
	}
	return (size + 31) / 32
}

// expandMemory grows the memory to hold size bytes starting at offset.
// If the memory is already large enough or size is 0, it does nothing.
// Returns an error if offset+size overflows or exceeds the expansion limit.
func (m *Memory) expandMemory(offset, size uint64) error {
	if size == 0 {
		return nil
	}
	needed := offset + size
	// check overflow
	if needed < offset {
		return errOverflow
	}
	needed = toValidMemorySize(needed)
	if needed > maxMemoryExpansionSize {
		return errMemoryLimitExceeded
	}
	if m.length() < needed {
		m.store = append(m.store, make([]byte, needed-m.length())...)
	}
	return nil
}

// length returns the current memory size in bytes, always a multiple of 32.
func (m *Memory) length() uint64 {
	return uint64(len(m.store))
}

// set writes the given bytes at the given offset, expanding memory as needed.
func (m *Memory) set(offset uint64, value []byte) error {
	if err := m.expandMemory(offset, uint64(len(value))); err != nil {
		return err
	}
	copy(m.store[offset:offset+uint64(len(value))], value)
	return nil
}

// setWord writes the 32-byte big-endian representation of the given value at
// the given offset, expanding memory as needed.
func (m *Memory) setWord(offset uint64, value *uint256.Int) error {
	if err := m.expandMemory(offset, 32); err != nil {
		return err
	}
	data := value.Bytes32()
	copy(m.store[offset:offset+32], data[:])
	return nil
}

// getSlice obtains a slice of size bytes from the memory at the given offset,
// expanding memory as needed. The returned slice is backed by the memory's
// internal data. Updates to the slice will thus affect the memory state. This
// connection is invalidated by any subsequent memory operation that may
// change the size of the memory.
func (m *Memory) getSlice(offset, size uint64) ([]byte, error) {
	if err := m.expandMemory(offset, size); err != nil {
		return nil, err
	}
	// since memory does not expand on size 0 independently of the offset,
	// we need to prevent out of bounds access
	if size == 0 {
		return nil, nil
	}
	return m.store[offset : offset+size], nil
}

// readWord reads a 32-byte big-endian word from the memory at the given
// offset and stores it in the provided target, expanding memory as needed.
func (m *Memory) readWord(offset uint64, target *uint256.Int) error {
	data, err := m.getSlice(offset, 32)
	if err != nil {
		return err
	}
	target.SetBytes32(data)
	return nil
}

// copyData copies data from the memory, starting at the given offset, to the
// target slice, padding with zeros if offset+(target length) is greater than
// the memory size. If offset is beyond the memory size, the target slice is
// filled with zeros.
func (m *Memory) copyData(offset uint64, target []byte) {
	if m.length() < offset {
		copy(target, make([]byte, len(target)))
		return
	}

	// Copy what is available.
	covered := copy(target, m.store[offset:])

	// Pad the rest
	if covered < len(target) {
		copy(target[covered:], make([]byte, len(target)-covered))
	}
}
