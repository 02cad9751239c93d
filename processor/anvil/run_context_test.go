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
	"testing"

	"github.com/vulcan-evm/vulcan/vulcan"
)

func TestCreateAddress_CreateDependsOnSenderAndNonce(t *testing.T) {
	sender := vulcan.Address{0x01}
	other := vulcan.Address{0x02}
	salt := vulcan.Hash{}
	initHash := vulcan.Hash{}

	base := createAddress(vulcan.Create, sender, 0, salt, initHash)

	if got := createAddress(vulcan.Create, sender, 1, salt, initHash); got == base {
		t.Errorf("expected different address for different nonce")
	}
	if got := createAddress(vulcan.Create, other, 0, salt, initHash); got == base {
		t.Errorf("expected different address for different sender")
	}
	if got := createAddress(vulcan.Create, sender, 0, vulcan.Hash{31: 1}, initHash); got != base {
		t.Errorf("CREATE address must not depend on the salt")
	}
	if got := createAddress(vulcan.Create, sender, 0, salt, vulcan.Hash{31: 1}); got != base {
		t.Errorf("CREATE address must not depend on the init code")
	}
}

func TestCreateAddress_Create2DependsOnSaltAndInitCode(t *testing.T) {
	sender := vulcan.Address{0x01}
	salt := vulcan.Hash{31: 0x07}
	initHash := vulcan.Hash{31: 0x09}

	base := createAddress(vulcan.Create2, sender, 0, salt, initHash)

	if got := createAddress(vulcan.Create2, sender, 42, salt, initHash); got != base {
		t.Errorf("CREATE2 address must not depend on the nonce")
	}
	if got := createAddress(vulcan.Create2, sender, 0, vulcan.Hash{31: 0x08}, initHash); got == base {
		t.Errorf("expected different address for different salt")
	}
	if got := createAddress(vulcan.Create2, sender, 0, salt, vulcan.Hash{31: 0x0a}); got == base {
		t.Errorf("expected different address for different init code")
	}
}

func TestCanTransferValue(t *testing.T) {
	rich := vulcan.Address{0x01}
	poor := vulcan.Address{0x02}
	target := vulcan.Address{0x03}
	state := NewTransactionState(WorldState{
		rich: Account{Balance: vulcan.NewValue(100)},
	})

	if !canTransferValue(state, vulcan.NewValue(0), poor, &target) {
		t.Errorf("zero transfers must always be possible")
	}
	if !canTransferValue(state, vulcan.NewValue(100), rich, &target) {
		t.Errorf("transfer within the balance must be possible")
	}
	if canTransferValue(state, vulcan.NewValue(101), rich, &target) {
		t.Errorf("transfer exceeding the balance must be rejected")
	}
	if !canTransferValue(state, vulcan.NewValue(100), rich, &rich) {
		t.Errorf("self transfers within the balance must be possible")
	}
}

func TestTransferValue_MovesBalance(t *testing.T) {
	from := vulcan.Address{0x01}
	to := vulcan.Address{0x02}
	state := NewTransactionState(WorldState{
		from: Account{Balance: vulcan.NewValue(100)},
	})

	transferValue(state, vulcan.NewValue(30), from, to)

	if want, got := vulcan.NewValue(70), state.GetBalance(from); want != got {
		t.Errorf("unexpected sender balance, wanted %v, got %v", want, got)
	}
	if want, got := vulcan.NewValue(30), state.GetBalance(to); want != got {
		t.Errorf("unexpected receiver balance, wanted %v, got %v", want, got)
	}
}

func TestTransferValue_SelfTransferIsANoOp(t *testing.T) {
	addr := vulcan.Address{0x01}
	state := NewTransactionState(WorldState{
		addr: Account{Balance: vulcan.NewValue(100)},
	})

	transferValue(state, vulcan.NewValue(30), addr, addr)

	if want, got := vulcan.NewValue(100), state.GetBalance(addr); want != got {
		t.Errorf("unexpected balance, wanted %v, got %v", want, got)
	}
}

func TestIncrementNonce_DetectsOverflow(t *testing.T) {
	addr := vulcan.Address{0x01}
	state := NewTransactionState(WorldState{
		addr: Account{Nonce: ^uint64(0)},
	})

	if err := incrementNonce(state, addr); err == nil {
		t.Errorf("expected nonce overflow to be detected")
	}
}
