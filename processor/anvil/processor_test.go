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
	"testing"

	"github.com/vulcan-evm/vulcan/vulcan"

	// Run the scenarios on the provided interpreter implementation.
	_ "github.com/vulcan-evm/vulcan/interpreter/corevm"
)

var (
	addrA       = vulcan.Address{0xaa}
	addrB       = vulcan.Address{0xbb}
	sender      = vulcan.Address{0x51}
	keyZero     = vulcan.Key{}
	storedSeven = vulcan.Word{31: 0x07}
)

func newTestProcessor(t *testing.T) vulcan.Processor {
	t.Helper()
	interpreter, err := vulcan.NewInterpreter("corevm")
	if err != nil {
		t.Fatalf("failed to create interpreter: %v", err)
	}
	processor, err := vulcan.NewProcessor("anvil", interpreter)
	if err != nil {
		t.Fatalf("failed to create processor: %v", err)
	}
	return processor
}

func push1(value byte) []byte {
	return []byte{0x60, value}
}

func pushAddress(addr vulcan.Address) []byte {
	return append([]byte{0x73}, addr[:]...)
}

// callTo builds the 7-operand CALL sequence with zero-sized argument and
// return areas and the given value.
func callTo(addr vulcan.Address, value byte) []byte {
	var code []byte
	code = append(code, push1(0)...) // retSize
	code = append(code, push1(0)...) // retOffset
	code = append(code, push1(0)...) // inSize
	code = append(code, push1(0)...) // inOffset
	code = append(code, push1(value)...)
	code = append(code, pushAddress(addr)...)
	code = append(code, push1(0)...) // gas, ignored
	code = append(code, 0xf1)
	return code
}

// staticCallTo builds the 6-operand STATICCALL sequence with zero-sized
// argument and return areas.
func staticCallTo(addr vulcan.Address, op byte) []byte {
	var code []byte
	for i := 0; i < 4; i++ {
		code = append(code, push1(0)...)
	}
	code = append(code, pushAddress(addr)...)
	code = append(code, push1(0)...) // gas, ignored
	code = append(code, op)
	return code
}

var storeSevenCode = vulcan.Code{0x60, 0x07, 0x60, 0x00, 0x55, 0x00}

func TestProcessor_StorageWritesOfCalleesAreVisibleToTheCaller(t *testing.T) {
	processor := newTestProcessor(t)

	codeA := append(callTo(addrB, 0), 0x00)
	state := NewTransactionState(WorldState{
		addrB: Account{Code: storeSevenCode},
	})

	result, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful execution")
	}
	if len(result.Stack) != 1 || result.Stack[0] != (vulcan.Word{31: 1}) {
		t.Errorf("expected CALL to report success, stack %v", result.Stack)
	}
	if want, got := storedSeven, state.GetStorage(addrB, keyZero); want != got {
		t.Errorf("callee storage write not visible, wanted %v, got %v", want, got)
	}
}

func TestProcessor_FailedSubCallIsRolledBack(t *testing.T) {
	processor := newTestProcessor(t)

	// the callee stores a value and then reverts
	codeB := vulcan.Code{0x60, 0x07, 0x60, 0x00, 0x55, 0x60, 0x00, 0x60, 0x00, 0xfd}
	codeA := append(callTo(addrB, 0), 0x00)
	state := NewTransactionState(WorldState{
		addrB: Account{Code: codeB},
	})

	result, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("a failed sub-call must not fail the caller")
	}
	if len(result.Stack) != 1 || result.Stack[0] != (vulcan.Word{}) {
		t.Errorf("expected CALL to report failure, stack %v", result.Stack)
	}
	if got := state.GetStorage(addrB, keyZero); got != (vulcan.Word{}) {
		t.Errorf("storage effects of reverted sub-call not rolled back, got %v", got)
	}
}

func TestProcessor_StaticCallPreventsStorageWrites(t *testing.T) {
	processor := newTestProcessor(t)

	codeA := append(staticCallTo(addrB, 0xfa), 0x00)
	state := NewTransactionState(WorldState{
		addrB: Account{Code: storeSevenCode},
	})

	result, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful execution")
	}
	if len(result.Stack) != 1 || result.Stack[0] != (vulcan.Word{}) {
		t.Errorf("expected STATICCALL to report failure, stack %v", result.Stack)
	}
	if got := state.GetStorage(addrB, keyZero); got != (vulcan.Word{}) {
		t.Errorf("storage written under static context, got %v", got)
	}
}

func TestProcessor_DelegateCallWritesToTheCallersStorage(t *testing.T) {
	processor := newTestProcessor(t)

	codeA := append(staticCallTo(addrB, 0xf4), 0x00)
	state := NewTransactionState(WorldState{
		addrB: Account{Code: storeSevenCode},
	})

	result, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful execution")
	}
	if want, got := storedSeven, state.GetStorage(addrA, keyZero); want != got {
		t.Errorf("delegate call did not write to caller storage, got %v", got)
	}
	if got := state.GetStorage(addrB, keyZero); got != (vulcan.Word{}) {
		t.Errorf("delegate call wrote to callee storage, got %v", got)
	}
}

func TestProcessor_CallTransfersValue(t *testing.T) {
	processor := newTestProcessor(t)

	codeA := append(callTo(addrB, 5), 0x00)
	state := NewTransactionState(WorldState{
		addrA: Account{Balance: vulcan.NewValue(10)},
	})

	result, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful execution")
	}
	if want, got := vulcan.NewValue(5), state.GetBalance(addrA); want != got {
		t.Errorf("unexpected caller balance, wanted %v, got %v", want, got)
	}
	if want, got := vulcan.NewValue(5), state.GetBalance(addrB); want != got {
		t.Errorf("unexpected callee balance, wanted %v, got %v", want, got)
	}
}

func TestProcessor_CallWithInsufficientBalanceReportsFailure(t *testing.T) {
	processor := newTestProcessor(t)

	codeA := append(callTo(addrB, 5), 0x00)
	state := NewTransactionState(WorldState{
		addrA: Account{Balance: vulcan.NewValue(1)},
	})

	result, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful execution")
	}
	if len(result.Stack) != 1 || result.Stack[0] != (vulcan.Word{}) {
		t.Errorf("expected CALL to report failure, stack %v", result.Stack)
	}
	if got := state.GetBalance(addrB); got != (vulcan.Value{}) {
		t.Errorf("value transferred despite insufficient balance, got %v", got)
	}
}

func TestProcessor_GasPriceIsPreservedInSubCalls(t *testing.T) {
	processor := newTestProcessor(t)

	// the callee stores the observed gas price
	codeB := vulcan.Code{0x3a, 0x60, 0x00, 0x55, 0x00}
	codeA := append(callTo(addrB, 0), 0x00)
	state := NewTransactionState(WorldState{
		addrB: Account{Code: codeB},
	})

	_, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
		GasPrice:  vulcan.NewValue(12),
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if want, got := (vulcan.Word{31: 12}), state.GetStorage(addrB, keyZero); want != got {
		t.Errorf("gas price not preserved in sub-call, wanted %v, got %v", want, got)
	}
}

func TestProcessor_CreateDeploysContractAtDerivedAddress(t *testing.T) {
	processor := newTestProcessor(t)

	// init code producing the single-byte contract {0xfe}
	initCode := []byte{0x60, 0xfe, 0x60, 0x00, 0x53, 0x60, 0x01, 0x60, 0x00, 0xf3}

	var codeA []byte
	codeA = append(codeA, 0x69) // PUSH10
	codeA = append(codeA, initCode...)
	codeA = append(codeA, push1(0)...)  // memory offset for MSTORE
	codeA = append(codeA, 0x52)         // MSTORE
	codeA = append(codeA, push1(10)...) // size
	codeA = append(codeA, push1(22)...) // offset of the init code in memory
	codeA = append(codeA, push1(0)...)  // value
	codeA = append(codeA, 0xf0, 0x00)   // CREATE, STOP

	state := NewTransactionState(WorldState{
		addrA: Account{},
	})

	result, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful execution")
	}

	created := createAddress(vulcan.Create, addrA, 0, vulcan.Hash{}, vulcan.Hash{})
	if len(result.Stack) != 1 {
		t.Fatalf("unexpected stack size %d", len(result.Stack))
	}
	var wantWord vulcan.Word
	copy(wantWord[12:], created[:])
	if result.Stack[0] != wantWord {
		t.Errorf("unexpected created address on stack, wanted %v, got %v", wantWord, result.Stack[0])
	}
	if want, got := (vulcan.Code{0xfe}), state.GetCode(created); !bytes.Equal(want, got) {
		t.Errorf("unexpected deployed code, wanted %x, got %x", want, got)
	}
	if want, got := uint64(1), state.GetNonce(addrA); want != got {
		t.Errorf("creator nonce not incremented, wanted %d, got %d", want, got)
	}
	if want, got := uint64(1), state.GetNonce(created); want != got {
		t.Errorf("unexpected nonce of created contract, wanted %d, got %d", want, got)
	}
}

func TestProcessor_FailedCreatePushesZero(t *testing.T) {
	processor := newTestProcessor(t)

	// CREATE whose init code reverts: the init code is a single REVERT
	// with an empty payload
	initCode := []byte{0x60, 0x00, 0x60, 0x00, 0xfd}

	var codeA []byte
	codeA = append(codeA, 0x64) // PUSH5
	codeA = append(codeA, initCode...)
	codeA = append(codeA, push1(0)...)  // memory offset for MSTORE
	codeA = append(codeA, 0x52)         // MSTORE
	codeA = append(codeA, push1(5)...)  // size
	codeA = append(codeA, push1(27)...) // offset of the init code in memory
	codeA = append(codeA, push1(0)...)  // value
	codeA = append(codeA, 0xf0, 0x00)   // CREATE, STOP

	state := NewTransactionState(WorldState{})
	result, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful execution")
	}
	if len(result.Stack) != 1 || result.Stack[0] != (vulcan.Word{}) {
		t.Errorf("expected CREATE to push 0, stack %v", result.Stack)
	}
}

func TestProcessor_SelfDestructTransfersBalanceAndRemovesAccount(t *testing.T) {
	processor := newTestProcessor(t)

	beneficiary := vulcan.Address{0xcc}
	codeA := append(pushAddress(beneficiary), 0xff)
	state := NewTransactionState(WorldState{
		addrA: Account{Balance: vulcan.NewValue(100), Code: codeA},
	})

	result, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful execution")
	}
	if state.AccountExists(addrA) {
		t.Errorf("destructed account still present")
	}
	if want, got := vulcan.NewValue(100), state.GetBalance(beneficiary); want != got {
		t.Errorf("unexpected beneficiary balance, wanted %v, got %v", want, got)
	}
}

func TestProcessor_NonWritableExecutionRejectsStores(t *testing.T) {
	processor := newTestProcessor(t)

	state := NewTransactionState(WorldState{})
	result, err := processor.Execute(storeSevenCode, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, false)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if result.Success {
		t.Errorf("expected store in non-writable execution to fail")
	}
	if len(result.Stack) != 0 {
		t.Errorf("stack of failed execution should be empty, got %v", result.Stack)
	}
}

func TestProcessor_ReturnDataSizeReflectsLastSubReturn(t *testing.T) {
	processor := newTestProcessor(t)

	// the callee returns the single byte 0xaa
	codeB := vulcan.Code{0x60, 0xaa, 0x60, 0x00, 0x53, 0x60, 0x01, 0x60, 0x00, 0xf3}
	codeA := append(callTo(addrB, 0), 0x3d, 0x00) // ... RETURNDATASIZE, STOP
	state := NewTransactionState(WorldState{
		addrB: Account{Code: codeB},
	})

	result, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful execution")
	}
	if len(result.Stack) != 2 {
		t.Fatalf("unexpected stack size %d", len(result.Stack))
	}
	if want, got := (vulcan.Word{31: 1}), result.Stack[0]; want != got {
		t.Errorf("unexpected return data size, wanted %v, got %v", want, got)
	}
}

func TestProcessor_LogsOfNestedFramesAreOrderedDepthFirst(t *testing.T) {
	processor := newTestProcessor(t)

	// the callee emits a log with a single byte of data
	codeB := vulcan.Code{0x60, 0x01, 0x60, 0x1f, 0x53, 0x60, 0x01, 0x60, 0x1f, 0xa0, 0x00}
	// the caller emits an empty log after the call
	codeA := append(callTo(addrB, 0), 0x60, 0x00, 0x60, 0x00, 0xa0, 0x00)
	state := NewTransactionState(WorldState{
		addrB: Account{Code: codeB},
	})

	result, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected successful execution")
	}
	if len(result.Logs) != 2 {
		t.Fatalf("unexpected number of logs: %d", len(result.Logs))
	}
	if result.Logs[0].Address != addrB {
		t.Errorf("expected callee log first, got %v", result.Logs[0].Address)
	}
	if result.Logs[1].Address != addrA {
		t.Errorf("expected caller log second, got %v", result.Logs[1].Address)
	}
}

func TestProcessor_RecursiveCallsTerminateAtDepthLimit(t *testing.T) {
	processor := newTestProcessor(t)

	// a contract that calls itself and stops
	codeA := append(callTo(addrA, 0), 0x00)
	state := NewTransactionState(WorldState{
		addrA: Account{Code: codeA},
	})

	result, err := processor.Execute(codeA, vulcan.Transaction{
		Recipient: addrA,
		Sender:    sender,
	}, vulcan.BlockParameters{}, state, true)
	if err != nil {
		t.Fatalf("execution failed: %v", err)
	}
	if !result.Success {
		t.Errorf("expected recursion to terminate successfully")
	}
}
