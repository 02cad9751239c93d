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

	"github.com/vulcan-evm/vulcan/vulcan"
)

// status is an enumeration of the execution state of an interpreter run.
type status byte

const (
	statusRunning        status = iota // < all fine, ops are processed
	statusStopped                      // < execution stopped with a STOP
	statusReverted                     // < execution stopped with a REVERT
	statusReturned                     // < execution stopped with a RETURN
	statusSelfDestructed               // < execution stopped with a SELF-DESTRUCT
	statusFailed                       // < execution stopped with a logic error
)

// context is the execution environment of an interpreter run. It contains all
// the necessary state to execute a contract, including input parameters, the
// contract code, and internal execution state such as the program counter,
// stack, and memory. For each contract execution, a new context is created.
type context struct {
	// Inputs
	params    vulcan.Parameters
	context   vulcan.RunContext
	code      []byte
	jumpDests bitvec // valid jump destinations, computed before execution

	// Execution state
	pc     int32
	stack  *stack
	memory *Memory

	// Intermediate data
	returnData []byte // < the result of the last nested contract call

	// Configuration flags
	withShaCache bool
}

// isWritable returns true if the current frame may mutate state. Frames in a
// static context, entered through a STATICCALL, are not writable.
func (c *context) isWritable() bool {
	return !c.params.Static
}

// --- Interpreter ---

type runner interface {
	// run executes the contract code in the given context.
	// It returns the status of the execution:
	// - Any logical error in the contract execution shall return statusFailed.
	// - error is reserved to return runtime errors, which are not valid states
	// and may not be recoverable.
	run(*context) (status, error)
}

type interpreterConfig struct {
	withShaCache bool
	runner       runner
}

func run(
	config interpreterConfig,
	params vulcan.Parameters,
	code []byte,
	jumpDests bitvec,
) (vulcan.Result, error) {
	// Don't bother with the execution if there's no code.
	if len(code) == 0 {
		return vulcan.Result{
			Output:  nil,
			Success: true,
		}, nil
	}

	// Set up execution context.
	var ctxt = context{
		params:       params,
		context:      params.Context,
		stack:        NewStack(),
		memory:       NewMemory(),
		code:         code,
		jumpDests:    jumpDests,
		withShaCache: config.withShaCache,
	}
	defer ReturnStack(ctxt.stack)

	if config.runner == nil {
		config.runner = vanillaRunner{}
	}
	status, err := config.runner.run(&ctxt)
	if err != nil {
		return vulcan.Result{}, err
	}

	return generateResult(status, &ctxt)
}

func generateResult(status status, ctxt *context) (vulcan.Result, error) {
	switch status {
	case statusStopped, statusSelfDestructed:
		return vulcan.Result{
			Success: true,
			Stack:   exportStack(ctxt.stack),
		}, nil
	case statusReturned:
		return vulcan.Result{
			Success: true,
			Output:  ctxt.returnData,
			Stack:   exportStack(ctxt.stack),
		}, nil
	case statusReverted:
		return vulcan.Result{
			Success: false,
			Output:  ctxt.returnData,
		}, nil
	case statusFailed:
		return vulcan.Result{
			Success: false,
		}, nil
	default:
		return vulcan.Result{}, fmt.Errorf("unexpected error in interpreter, unknown status: %v", status)
	}
}

// exportStack copies the stack content into a result slice, ordered top of
// stack first.
func exportStack(s *stack) []vulcan.Word {
	res := make([]vulcan.Word, s.len())
	for i := 0; i < s.len(); i++ {
		res[i] = vulcan.Word(s.peekN(i).Bytes32())
	}
	return res
}

// --- Runners ---

// vanillaRunner is the default runner that executes the contract code without
// any additional features.
type vanillaRunner struct{}

func (r vanillaRunner) run(c *context) (status, error) {
	return execute(c, false), nil
}

// --- Execution ---

// execute runs the contract code in the given context. If oneStepOnly is
// true, only the instruction pointed to by the program counter will be
// executed. If the contract execution yields any execution violation (i.e.
// stack underflow, invalid jump, etc), the function returns statusFailed.
func execute(c *context, oneStepOnly bool) status {
	status, err := steps(c, oneStepOnly)
	if err != nil {
		return statusFailed
	}
	return status
}

// step executes the single instruction pointed to by the program counter.
func step(c *context) (status, error) {
	return steps(c, true)
}

// steps executes the contract code in the given context. If oneStepOnly is
// true, only the instruction pointed to by the program counter will be
// executed. steps returns the status of the execution and an error if the
// contract execution yields any execution violation (i.e. stack underflow,
// invalid jump, etc).
func steps(c *context, oneStepOnly bool) (status, error) {
	status := statusRunning
	for status == statusRunning {
		if int(c.pc) >= len(c.code) {
			return statusStopped, nil
		}

		op := OpCode(c.code[c.pc])

		// Check stack boundary for every instruction
		if err := checkStackLimits(c.stack.len(), op); err != nil {
			return status, err
		}

		var err error

		// Execute instruction
		switch op {
		case POP:
			opPop(c)
		case PUSH1:
			opPush(c, 1)
		case PUSH2:
			opPush(c, 2)
		case PUSH3:
			opPush(c, 3)
		case PUSH4:
			opPush(c, 4)
		case PUSH5:
			opPush(c, 5)
		case PUSH6:
			opPush(c, 6)
		case PUSH7:
			opPush(c, 7)
		case PUSH8:
			opPush(c, 8)
		case PUSH9:
			opPush(c, 9)
		case PUSH10:
			opPush(c, 10)
		case PUSH11:
			opPush(c, 11)
		case PUSH12:
			opPush(c, 12)
		case PUSH13:
			opPush(c, 13)
		case PUSH14:
			opPush(c, 14)
		case PUSH15:
			opPush(c, 15)
		case PUSH16:
			opPush(c, 16)
		case PUSH17:
			opPush(c, 17)
		case PUSH18:
			opPush(c, 18)
		case PUSH19:
			opPush(c, 19)
		case PUSH20:
			opPush(c, 20)
		case PUSH21:
			opPush(c, 21)
		case PUSH22:
			opPush(c, 22)
		case PUSH23:
			opPush(c, 23)
		case PUSH24:
			opPush(c, 24)
		case PUSH25:
			opPush(c, 25)
		case PUSH26:
			opPush(c, 26)
		case PUSH27:
			opPush(c, 27)
		case PUSH28:
			opPush(c, 28)
		case PUSH29:
			opPush(c, 29)
		case PUSH30:
			opPush(c, 30)
		case PUSH31:
			opPush(c, 31)
		case PUSH32:
			opPush(c, 32)
		case JUMP:
			err = opJump(c)
		case JUMPI:
			err = opJumpi(c)
		case JUMPDEST:
			// nothing
		case DUP1:
			opDup(c, 1)
		case DUP2:
			opDup(c, 2)
		case DUP3:
			opDup(c, 3)
		case DUP4:
			opDup(c, 4)
		case DUP5:
			opDup(c, 5)
		case DUP6:
			opDup(c, 6)
		case DUP7:
			opDup(c, 7)
		case DUP8:
			opDup(c, 8)
		case DUP9:
			opDup(c, 9)
		case DUP10:
			opDup(c, 10)
		case DUP11:
			opDup(c, 11)
		case DUP12:
			opDup(c, 12)
		case DUP13:
			opDup(c, 13)
		case DUP14:
			opDup(c, 14)
		case DUP15:
			opDup(c, 15)
		case DUP16:
			opDup(c, 16)
		case SWAP1:
			opSwap(c, 1)
		case SWAP2:
			opSwap(c, 2)
		case SWAP3:
			opSwap(c, 3)
		case SWAP4:
			opSwap(c, 4)
		case SWAP5:
			opSwap(c, 5)
		case SWAP6:
			opSwap(c, 6)
		case SWAP7:
			opSwap(c, 7)
		case SWAP8:
			opSwap(c, 8)
		case SWAP9:
			opSwap(c, 9)
		case SWAP10:
			opSwap(c, 10)
		case SWAP11:
			opSwap(c, 11)
		case SWAP12:
			opSwap(c, 12)
		case SWAP13:
			opSwap(c, 13)
		case SWAP14:
			opSwap(c, 14)
		case SWAP15:
			opSwap(c, 15)
		case SWAP16:
			opSwap(c, 16)
		case ADD:
			opAdd(c)
		case SUB:
			opSub(c)
		case MUL:
			opMul(c)
		case DIV:
			opDiv(c)
		case SDIV:
			opSDiv(c)
		case MOD:
			opMod(c)
		case SMOD:
			opSMod(c)
		case ADDMOD:
			opAddMod(c)
		case MULMOD:
			opMulMod(c)
		case EXP:
			opExp(c)
		case SIGNEXTEND:
			opSignExtend(c)
		case LT:
			opLt(c)
		case GT:
			opGt(c)
		case SLT:
			opSlt(c)
		case SGT:
			opSgt(c)
		case EQ:
			opEq(c)
		case ISZERO:
			opIszero(c)
		case AND:
			opAnd(c)
		case OR:
			opOr(c)
		case XOR:
			opXor(c)
		case NOT:
			opNot(c)
		case BYTE:
			opByte(c)
		case SHL:
			opShl(c)
		case SHR:
			opShr(c)
		case SAR:
			opSar(c)
		case SHA3:
			err = opSha3(c)
		case MLOAD:
			err = opMload(c)
		case MSTORE:
			err = opMstore(c)
		case MSTORE8:
			err = opMstore8(c)
		case MSIZE:
			opMsize(c)
		case SLOAD:
			opSload(c)
		case SSTORE:
			err = opSstore(c)
		case ADDRESS:
			opAddress(c)
		case BALANCE:
			opBalance(c)
		case SELFBALANCE:
			opSelfbalance(c)
		case ORIGIN:
			opOrigin(c)
		case CALLER:
			opCaller(c)
		case CALLVALUE:
			opCallvalue(c)
		case CALLDATALOAD:
			opCallDataload(c)
		case CALLDATASIZE:
			opCallDatasize(c)
		case CALLDATACOPY:
			err = genericDataCopy(c, c.params.Input)
		case CODESIZE:
			opCodeSize(c)
		case CODECOPY:
			err = genericDataCopy(c, c.params.Code)
		case GASPRICE:
			opGasPrice(c)
		case EXTCODESIZE:
			opExtcodesize(c)
		case EXTCODECOPY:
			err = opExtCodeCopy(c)
		case EXTCODEHASH:
			opExtcodehash(c)
		case RETURNDATASIZE:
			opReturnDataSize(c)
		case RETURNDATACOPY:
			err = opReturnDataCopy(c)
		case BLOCKHASH:
			opBlockhash(c)
		case COINBASE:
			opCoinbase(c)
		case TIMESTAMP:
			opTimestamp(c)
		case NUMBER:
			opNumber(c)
		case DIFFICULTY:
			opDifficulty(c)
		case GASLIMIT:
			opGasLimit(c)
		case CHAINID:
			opChainId(c)
		case BASEFEE:
			opBaseFee(c)
		case PC:
			opPc(c)
		case GAS:
			opGas(c)
		case LOG0:
			err = opLog(c, 0)
		case LOG1:
			err = opLog(c, 1)
		case LOG2:
			err = opLog(c, 2)
		case LOG3:
			err = opLog(c, 3)
		case LOG4:
			err = opLog(c, 4)
		case CALL:
			err = opCall(c)
		case CALLCODE:
			err = opCallCode(c)
		case STATICCALL:
			err = opStaticCall(c)
		case DELEGATECALL:
			err = opDelegateCall(c)
		case CREATE:
			err = genericCreate(c, vulcan.Create)
		case CREATE2:
			err = genericCreate(c, vulcan.Create2)
		case RETURN:
			err = opEndWithResult(c)
			status = statusReturned
		case REVERT:
			err = opEndWithResult(c)
			status = statusReverted
		case STOP:
			status = opStop()
		case SELFDESTRUCT:
			status, err = opSelfdestruct(c)
		case INVALID:
			err = errInvalidInstruction
		default:
			// Unassigned opcodes are silent no-ops; only INVALID fails.
		}

		if err != nil {
			return status, err
		}

		c.pc++

		if oneStepOnly {
			return status, nil
		}
	}
	return status, nil
}

// checkStackLimits checks that the opCode will not make an out of bounds
// access with the current stack size.
func checkStackLimits(stackLen int, op OpCode) error {
	limits := staticStackBoundary[op]
	if stackLen < limits.stackMin {
		return errStackUnderflow
	}
	if stackLen > limits.stackMax {
		return errStackOverflow
	}
	return nil
}
