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
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vulcan-evm/vulcan/vulcan"
)

func init() {
	vulcan.RegisterProcessorFactory("anvil", newProcessor)
}

func newProcessor(interpreter vulcan.Interpreter) vulcan.Processor {
	return &processor{
		interpreter: interpreter,
	}
}

type processor struct {
	interpreter vulcan.Interpreter
}

// Execute runs the given code as the top-level frame of a transaction. The
// code is executed on behalf of the transaction's recipient; nested calls
// and contract creations are resolved recursively against the state
// reachable through the given transaction context. When writable is false
// the whole execution runs in a static context.
func (p *processor) Execute(
	code vulcan.Code,
	transaction vulcan.Transaction,
	block vulcan.BlockParameters,
	context vulcan.TransactionContext,
	writable bool,
) (vulcan.ExecutionResult, error) {
	transactionParameters := vulcan.TransactionParameters{
		Origin:   transaction.Origin,
		GasPrice: transaction.GasPrice,
	}

	callContext := runContext{
		TransactionContext:    context,
		interpreter:           p.interpreter,
		blockParameters:       block,
		transactionParameters: transactionParameters,
		static:                !writable,
	}

	codeHash := vulcan.Hash(crypto.Keccak256(code))

	params := vulcan.Parameters{
		BlockParameters:       block,
		TransactionParameters: transactionParameters,
		Context:               callContext,
		Kind:                  vulcan.Call,
		Static:                !writable,
		Depth:                 0,
		Recipient:             transaction.Recipient,
		Sender:                transaction.Sender,
		Input:                 transaction.Input,
		Value:                 transaction.Value,
		CodeHash:              &codeHash,
		Code:                  code,
	}

	snapshot := context.CreateSnapshot()
	result, err := p.interpreter.Run(params)
	if err != nil {
		return vulcan.ExecutionResult{}, err
	}
	if !result.Success {
		context.RestoreSnapshot(snapshot)
	}

	return vulcan.ExecutionResult{
		Success: result.Success,
		Stack:   result.Stack,
		Output:  result.Output,
		Logs:    context.GetLogs(),
	}, nil
}
