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

import "github.com/vulcan-evm/vulcan/vulcan"

const (
	errInvalidInstruction    = vulcan.ConstError("invalid instruction")
	errInvalidJump           = vulcan.ConstError("invalid jump destination")
	errMemoryLimitExceeded   = vulcan.ConstError("memory limit exceeded")
	errOverflow              = vulcan.ConstError("uint64 overflow")
	errReturnDataOutOfBounds = vulcan.ConstError("return data out of bounds")
	errStackOverflow         = vulcan.ConstError("stack overflow")
	errStackUnderflow        = vulcan.ConstError("stack underflow")
	errWriteProtection       = vulcan.ConstError("write protection")
)
