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
	"fmt"

	"github.com/vulcan-evm/vulcan/vulcan"

	// geth dependencies
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MaxRecursiveDepth is the maximum number of nested call frames.
const MaxRecursiveDepth = 1024

// maxCodeSize is the maximum byte-code size permitted for a deployed contract.
const maxCodeSize = 24576

var emptyCodeHash = vulcan.Hash(crypto.Keccak256(nil))

// runContext implements the vulcan.RunContext interface: it resolves the
// CALL-family and CREATE-family operations issued by the interpreter into
// recursive interpreter invocations, snapshotting the transaction state
// before each sub-frame and rolling it back when the sub-frame fails.
type runContext struct {
	vulcan.TransactionContext
	interpreter           vulcan.Interpreter
	blockParameters       vulcan.BlockParameters
	transactionParameters vulcan.TransactionParameters
	depth                 int
	static                bool
}

func (r runContext) Call(kind vulcan.CallKind, parameters vulcan.CallParameters) (vulcan.CallResult, error) {
	if kind == vulcan.Create || kind == vulcan.Create2 {
		return r.executeCreate(kind, parameters)
	}
	return r.executeCall(kind, parameters)
}

func (r runContext) executeCall(kind vulcan.CallKind, parameters vulcan.CallParameters) (vulcan.CallResult, error) {
	if r.depth >= MaxRecursiveDepth {
		return vulcan.CallResult{}, nil
	}
	r.depth++

	if kind == vulcan.Call || kind == vulcan.CallCode {
		if !canTransferValue(r, parameters.Value, parameters.Sender, &parameters.Recipient) {
			return vulcan.CallResult{}, nil
		}
	}
	snapshot := r.CreateSnapshot()
	recipient := parameters.Recipient

	if kind == vulcan.StaticCall {
		r.static = true
	}

	if kind == vulcan.Call || kind == vulcan.CallCode {
		transferValue(r, parameters.Value, parameters.Sender, recipient)
	}

	var codeHash vulcan.Hash
	var code vulcan.Code
	if kind == vulcan.Call || kind == vulcan.StaticCall {
		codeHash = r.GetCodeHash(recipient)
		code = r.GetCode(recipient)
	} else {
		code = r.GetCode(parameters.CodeAddress)
		codeHash = r.GetCodeHash(parameters.CodeAddress)
	}

	interpreterParameters := vulcan.Parameters{
		BlockParameters:       r.blockParameters,
		TransactionParameters: r.transactionParameters,
		Context:               r,
		Kind:                  kind,
		Static:                r.static,
		Depth:                 r.depth - 1, // depth has already been incremented
		Recipient:             recipient,
		Sender:                parameters.Sender,
		Input:                 parameters.Input,
		Value:                 parameters.Value,
		CodeHash:              &codeHash,
		Code:                  code,
	}

	result, err := r.interpreter.Run(interpreterParameters)
	if err != nil || !result.Success {
		r.RestoreSnapshot(snapshot)
	}

	return vulcan.CallResult{
		Output:  result.Output,
		Success: result.Success,
	}, err
}

func (r runContext) executeCreate(kind vulcan.CallKind, parameters vulcan.CallParameters) (vulcan.CallResult, error) {
	if r.depth >= MaxRecursiveDepth {
		return vulcan.CallResult{}, nil
	}
	r.depth++

	if !canTransferValue(r, parameters.Value, parameters.Sender, nil) {
		return vulcan.CallResult{}, nil
	}
	if err := incrementNonce(r, parameters.Sender); err != nil {
		return vulcan.CallResult{}, nil
	}

	code := vulcan.Code(parameters.Input)
	codeHash := hashCode(code)

	createdAddress := createAddress(kind, parameters.Sender, r.GetNonce(parameters.Sender)-1,
		parameters.Salt, codeHash)

	if r.GetNonce(createdAddress) != 0 ||
		(r.GetCodeHash(createdAddress) != (vulcan.Hash{}) &&
			r.GetCodeHash(createdAddress) != emptyCodeHash) {
		return vulcan.CallResult{}, nil
	}
	snapshot := r.CreateSnapshot()
	r.SetNonce(createdAddress, 1)

	transferValue(r, parameters.Value, parameters.Sender, createdAddress)

	interpreterParameters := vulcan.Parameters{
		BlockParameters:       r.blockParameters,
		TransactionParameters: r.transactionParameters,
		Context:               r,
		Kind:                  kind,
		Static:                r.static,
		Depth:                 r.depth - 1, // depth has already been incremented
		Recipient:             createdAddress,
		Sender:                parameters.Sender,
		Input:                 nil,
		Value:                 parameters.Value,
		CodeHash:              &codeHash,
		Code:                  code,
	}

	result, err := r.interpreter.Run(interpreterParameters)
	if err != nil || !result.Success {
		r.RestoreSnapshot(snapshot)

		if !isRevert(result, err) {
			return vulcan.CallResult{}, err
		}
		// a reverted create still exposes its output to the creator
		return vulcan.CallResult{Output: result.Output, CreatedAddress: createdAddress}, nil
	}

	outCode := result.Output
	if len(outCode) > maxCodeSize {
		result.Success = false
	}

	if result.Success {
		r.SetCode(createdAddress, vulcan.Code(outCode))
	} else {
		r.RestoreSnapshot(snapshot)
		result.Output = nil
	}

	return vulcan.CallResult{
		Output:         result.Output,
		Success:        result.Success,
		CreatedAddress: createdAddress,
	}, nil
}

func isRevert(result vulcan.Result, err error) bool {
	return err == nil && !result.Success && len(result.Output) > 0
}

func hashCode(code vulcan.Code) vulcan.Hash {
	return vulcan.Hash(crypto.Keccak256(code))
}

// createAddress derives the address of a contract created by the given
// sender: from the creator's nonce for CREATE, and from the salt and the
// hash of the init code for CREATE2.
func createAddress(
	kind vulcan.CallKind,
	sender vulcan.Address,
	nonce uint64,
	salt vulcan.Hash,
	initHash vulcan.Hash,
) vulcan.Address {
	if kind == vulcan.Create {
		return vulcan.Address(crypto.CreateAddress(common.Address(sender), nonce))
	}
	return vulcan.Address(crypto.CreateAddress2(common.Address(sender), common.Hash(salt), initHash[:]))
}

func canTransferValue(
	context vulcan.TransactionContext,
	value vulcan.Value,
	sender vulcan.Address,
	recipient *vulcan.Address,
) bool {
	if value == (vulcan.Value{}) {
		return true
	}

	senderBalance := context.GetBalance(sender)
	if senderBalance.Cmp(value) < 0 {
		return false
	}

	if recipient == nil || sender == *recipient {
		return true
	}

	receiverBalance := context.GetBalance(*recipient)
	updatedBalance := vulcan.Add(receiverBalance, value)
	if updatedBalance.Cmp(receiverBalance) < 0 || updatedBalance.Cmp(value) < 0 {
		return false
	}

	return true
}

func incrementNonce(context vulcan.TransactionContext, address vulcan.Address) error {
	nonce := context.GetNonce(address)
	if nonce+1 < nonce {
		return fmt.Errorf("nonce overflow")
	}
	context.SetNonce(address, nonce+1)
	return nil
}

// Only to be called after canTransferValue
func transferValue(
	context vulcan.TransactionContext,
	value vulcan.Value,
	sender vulcan.Address,
	recipient vulcan.Address,
) {
	if value == (vulcan.Value{}) {
		return
	}
	if sender == recipient {
		return
	}

	senderBalance := context.GetBalance(sender)
	receiverBalance := context.GetBalance(recipient)
	updatedBalance := vulcan.Add(receiverBalance, value)

	senderBalance = vulcan.Sub(senderBalance, value)
	context.SetBalance(sender, senderBalance)
	context.SetBalance(recipient, updatedBalance)
}
