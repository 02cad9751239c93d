// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package anvil

import (
	"bytes"
	"slices"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vulcan-evm/vulcan/vulcan"
)

// transactionState implements the vulcan.TransactionContext interface on top
// of an in-memory WorldState. All mutations are journaled in an undo list so
// that any prefix of the transaction's effects can be rolled back when a
// nested call frame fails.
type transactionState struct {
	original WorldState
	current  WorldState
	logs     []vulcan.Log
	undo     []func()
}

// NewTransactionState creates a transaction context over a copy of the given
// initial world state. The initial state is not modified by the transaction;
// the updated state can be obtained with Current().
func NewTransactionState(initial WorldState) *transactionState {
	if initial == nil {
		initial = WorldState{}
	}
	return &transactionState{
		original: initial,
		current:  initial.Clone(),
	}
}

// Current returns the world state including all modifications applied so far.
func (c *transactionState) Current() WorldState {
	return c.current
}

func (c *transactionState) AccountExists(addr vulcan.Address) bool {
	return c.GetBalance(addr) != vulcan.Value{} || c.GetNonce(addr) != 0 || c.GetCodeSize(addr) != 0
}

func (c *transactionState) GetBalance(addr vulcan.Address) vulcan.Value {
	return c.current[addr].Balance
}

func (c *transactionState) SetBalance(addr vulcan.Address, value vulcan.Value) {
	original := c.current[addr]
	modified := original
	modified.Balance = value
	c.current[addr] = modified
	c.undo = append(c.undo, func() { c.current[addr] = original })
}

func (c *transactionState) GetNonce(addr vulcan.Address) uint64 {
	return c.current[addr].Nonce
}

func (c *transactionState) SetNonce(addr vulcan.Address, value uint64) {
	original := c.current[addr]
	modified := original
	modified.Nonce = value
	c.current[addr] = modified
	c.undo = append(c.undo, func() { c.current[addr] = original })
}

func (c *transactionState) GetCode(addr vulcan.Address) vulcan.Code {
	return vulcan.Code(bytes.Clone(c.current[addr].Code))
}

func (c *transactionState) GetCodeHash(addr vulcan.Address) vulcan.Hash {
	return vulcan.Hash(crypto.Keccak256(c.current[addr].Code))
}

func (c *transactionState) GetCodeSize(addr vulcan.Address) int {
	return len(c.current[addr].Code)
}

func (c *transactionState) SetCode(addr vulcan.Address, code vulcan.Code) {
	original := c.current[addr]
	modified := original
	modified.Code = vulcan.Code(bytes.Clone(code))
	c.current[addr] = modified
	c.undo = append(c.undo, func() { c.current[addr] = original })
}

func (c *transactionState) GetStorage(addr vulcan.Address, key vulcan.Key) vulcan.Word {
	return c.current[addr].Storage[key]
}

func (c *transactionState) SetStorage(addr vulcan.Address, key vulcan.Key, value vulcan.Word) {
	current := c.current[addr].Storage[key]

	account := c.current[addr]
	if account.Storage == nil {
		account.Storage = Storage{}
		c.current[addr] = account
	}

	c.current[addr].Storage[key] = value
	c.undo = append(c.undo, func() { c.current[addr].Storage[key] = current })
}

func (c *transactionState) SelfDestruct(addr vulcan.Address, beneficiary vulcan.Address) {
	if beneficiary != addr {
		balance := vulcan.Add(c.GetBalance(beneficiary), c.GetBalance(addr))
		c.SetBalance(beneficiary, balance)
	}
	original, existed := c.current[addr]
	delete(c.current, addr)
	c.undo = append(c.undo, func() {
		if existed {
			c.current[addr] = original
		} else {
			delete(c.current, addr)
		}
	})
}

func (c *transactionState) CreateSnapshot() vulcan.Snapshot {
	return vulcan.Snapshot(len(c.undo))
}

func (c *transactionState) RestoreSnapshot(snapshot vulcan.Snapshot) {
	for len(c.undo) > int(snapshot) {
		c.undo[len(c.undo)-1]()
		c.undo = c.undo[:len(c.undo)-1]
	}
}

func (c *transactionState) EmitLog(log vulcan.Log) {
	len := len(c.logs)
	c.logs = append(c.logs, log)
	c.undo = append(c.undo, func() { c.logs = c.logs[:len] })
}

func (c *transactionState) GetLogs() []vulcan.Log {
	return slices.Clone(c.logs)
}
