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
)

func TestTransactionState_InitialStateIsNotModified(t *testing.T) {
	addr := vulcan.Address{0x01}
	initial := WorldState{addr: Account{Balance: vulcan.NewValue(100)}}

	state := NewTransactionState(initial)
	state.SetBalance(addr, vulcan.NewValue(50))

	if want, got := vulcan.NewValue(100), initial[addr].Balance; want != got {
		t.Errorf("initial state was modified, balance is %v", got)
	}
	if want, got := vulcan.NewValue(50), state.GetBalance(addr); want != got {
		t.Errorf("unexpected balance, wanted %v, got %v", want, got)
	}
}

func TestTransactionState_MissingAccountsReadAsZero(t *testing.T) {
	state := NewTransactionState(nil)
	addr := vulcan.Address{0x01}

	if state.AccountExists(addr) {
		t.Errorf("missing account should not exist")
	}
	if state.GetBalance(addr) != (vulcan.Value{}) {
		t.Errorf("missing account should have zero balance")
	}
	if state.GetNonce(addr) != 0 {
		t.Errorf("missing account should have zero nonce")
	}
	if state.GetCodeSize(addr) != 0 {
		t.Errorf("missing account should have no code")
	}
	if state.GetStorage(addr, vulcan.Key{}) != (vulcan.Word{}) {
		t.Errorf("missing storage slot should read as zero")
	}
}

func TestTransactionState_StorageRoundTrip(t *testing.T) {
	state := NewTransactionState(nil)
	addr := vulcan.Address{0x01}
	key := vulcan.Key{31: 0x01}
	value := vulcan.Word{31: 0x07}

	state.SetStorage(addr, key, value)

	if want, got := value, state.GetStorage(addr, key); want != got {
		t.Errorf("unexpected storage value, wanted %v, got %v", want, got)
	}
}

func TestTransactionState_SnapshotRestoreRevertsAllMutations(t *testing.T) {
	addr := vulcan.Address{0x01}
	other := vulcan.Address{0x02}
	key := vulcan.Key{31: 0x01}
	initial := WorldState{addr: Account{
		Balance: vulcan.NewValue(100),
		Nonce:   1,
		Code:    vulcan.Code{0x00},
		Storage: Storage{key: vulcan.Word{31: 0x07}},
	}}

	state := NewTransactionState(initial)
	snapshot := state.CreateSnapshot()

	state.SetBalance(addr, vulcan.NewValue(0))
	state.SetNonce(addr, 42)
	state.SetCode(addr, vulcan.Code{0x01, 0x02})
	state.SetStorage(addr, key, vulcan.Word{31: 0x08})
	state.SetBalance(other, vulcan.NewValue(12))
	state.EmitLog(vulcan.Log{Address: addr})

	state.RestoreSnapshot(snapshot)

	if want, got := vulcan.NewValue(100), state.GetBalance(addr); want != got {
		t.Errorf("balance not restored, wanted %v, got %v", want, got)
	}
	if want, got := uint64(1), state.GetNonce(addr); want != got {
		t.Errorf("nonce not restored, wanted %d, got %d", want, got)
	}
	if want, got := (vulcan.Code{0x00}), state.GetCode(addr); !bytes.Equal(want, got) {
		t.Errorf("code not restored, wanted %x, got %x", want, got)
	}
	if want, got := (vulcan.Word{31: 0x07}), state.GetStorage(addr, key); want != got {
		t.Errorf("storage not restored, wanted %v, got %v", want, got)
	}
	if got := state.GetBalance(other); got != (vulcan.Value{}) {
		t.Errorf("balance of other account not restored, got %v", got)
	}
	if got := state.GetLogs(); len(got) != 0 {
		t.Errorf("logs not restored, got %v", got)
	}
}

func TestTransactionState_SnapshotsCanBeNested(t *testing.T) {
	addr := vulcan.Address{0x01}
	state := NewTransactionState(nil)

	state.SetBalance(addr, vulcan.NewValue(1))
	outer := state.CreateSnapshot()
	state.SetBalance(addr, vulcan.NewValue(2))
	inner := state.CreateSnapshot()
	state.SetBalance(addr, vulcan.NewValue(3))

	state.RestoreSnapshot(inner)
	if want, got := vulcan.NewValue(2), state.GetBalance(addr); want != got {
		t.Errorf("inner snapshot not restored, wanted %v, got %v", want, got)
	}

	state.RestoreSnapshot(outer)
	if want, got := vulcan.NewValue(1), state.GetBalance(addr); want != got {
		t.Errorf("outer snapshot not restored, wanted %v, got %v", want, got)
	}
}

func TestTransactionState_SelfDestructTransfersBalance(t *testing.T) {
	addr := vulcan.Address{0x01}
	beneficiary := vulcan.Address{0x02}
	state := NewTransactionState(WorldState{
		addr:        Account{Balance: vulcan.NewValue(100), Code: vulcan.Code{0x00}},
		beneficiary: Account{Balance: vulcan.NewValue(5)},
	})

	state.SelfDestruct(addr, beneficiary)

	if state.AccountExists(addr) {
		t.Errorf("destructed account still exists")
	}
	if want, got := vulcan.NewValue(105), state.GetBalance(beneficiary); want != got {
		t.Errorf("unexpected beneficiary balance, wanted %v, got %v", want, got)
	}
}

func TestTransactionState_SelfDestructToSelfBurnsBalance(t *testing.T) {
	addr := vulcan.Address{0x01}
	state := NewTransactionState(WorldState{
		addr: Account{Balance: vulcan.NewValue(100)},
	})

	state.SelfDestruct(addr, addr)

	if got := state.GetBalance(addr); got != (vulcan.Value{}) {
		t.Errorf("expected balance to be deleted, got %v", got)
	}
}

func TestTransactionState_SelfDestructCanBeRolledBack(t *testing.T) {
	addr := vulcan.Address{0x01}
	beneficiary := vulcan.Address{0x02}
	state := NewTransactionState(WorldState{
		addr: Account{Balance: vulcan.NewValue(100), Nonce: 3},
	})

	snapshot := state.CreateSnapshot()
	state.SelfDestruct(addr, beneficiary)
	state.RestoreSnapshot(snapshot)

	if want, got := vulcan.NewValue(100), state.GetBalance(addr); want != got {
		t.Errorf("balance not restored, wanted %v, got %v", want, got)
	}
	if want, got := uint64(3), state.GetNonce(addr); want != got {
		t.Errorf("nonce not restored, wanted %d, got %d", want, got)
	}
	if got := state.GetBalance(beneficiary); got != (vulcan.Value{}) {
		t.Errorf("beneficiary balance not restored, got %v", got)
	}
}

func TestTransactionState_LogsAreAppendOnlyAndOrdered(t *testing.T) {
	state := NewTransactionState(nil)
	state.EmitLog(vulcan.Log{Data: vulcan.Data{1}})
	state.EmitLog(vulcan.Log{Data: vulcan.Data{2}})

	logs := state.GetLogs()
	if len(logs) != 2 {
		t.Fatalf("unexpected number of logs: %d", len(logs))
	}
	if logs[0].Data[0] != 1 || logs[1].Data[0] != 2 {
		t.Errorf("unexpected log order: %v", logs)
	}
}

func TestWorldState_CloneIsIndependent(t *testing.T) {
	addr := vulcan.Address{0x01}
	key := vulcan.Key{31: 0x01}
	state := WorldState{addr: Account{
		Balance: vulcan.NewValue(1),
		Storage: Storage{key: vulcan.Word{31: 0x01}},
	}}

	clone := state.Clone()
	clone[addr].Storage[key] = vulcan.Word{31: 0x02}

	if want, got := (vulcan.Word{31: 0x01}), state[addr].Storage[key]; want != got {
		t.Errorf("clone is not independent, storage changed to %v", got)
	}
}

func TestWorldState_EqualIgnoresZeroEntries(t *testing.T) {
	a := WorldState{}
	b := WorldState{vulcan.Address{0x01}: Account{}}
	if !a.Equal(b) {
		t.Errorf("world states differing only in empty accounts should be equal")
	}
}

func TestWorldState_DiffReportsDifferences(t *testing.T) {
	addr := vulcan.Address{0x01}
	a := WorldState{addr: Account{Balance: vulcan.NewValue(1)}}
	b := WorldState{addr: Account{Balance: vulcan.NewValue(2)}}
	if diffs := a.Diff(b); len(diffs) == 0 {
		t.Errorf("expected differences to be reported")
	}
	if diffs := a.Diff(a); len(diffs) != 0 {
		t.Errorf("unexpected differences: %v", diffs)
	}
}
