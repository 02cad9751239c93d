// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package fixture

import (
	"bytes"
	"fmt"

	"github.com/vulcan-evm/vulcan/processor/anvil"
	"github.com/vulcan-evm/vulcan/vulcan"
)

// Run executes the test on the interpreter registered under the given name
// and returns a list of mismatches between the observed and the expected
// outcome. An empty list means the test passed. The returned error reports
// malformed fixtures and interpreter failures, not test mismatches.
func (t *Test) Run(interpreterName string) ([]string, error) {
	interpreter, err := vulcan.NewInterpreter(interpreterName)
	if err != nil {
		return nil, err
	}
	processor, err := vulcan.NewProcessor("anvil", interpreter)
	if err != nil {
		return nil, err
	}

	code, transaction, block, state, err := t.Fixture.decode()
	if err != nil {
		return nil, fmt.Errorf("malformed fixture %s: %w", t.Name, err)
	}

	context := anvil.NewTransactionState(state)
	result, err := processor.Execute(code, transaction, block, context, true)
	if err != nil {
		return nil, err
	}

	return t.Fixture.Expect.diff(result)
}

// decode converts the on-disk representation into execution inputs.
func (f *Fixture) decode() (vulcan.Code, vulcan.Transaction, vulcan.BlockParameters, anvil.WorldState, error) {
	var transaction vulcan.Transaction
	var block vulcan.BlockParameters

	code, err := parseBytes(f.Code.Bin)
	if err != nil {
		return nil, transaction, block, nil, fmt.Errorf("invalid code: %w", err)
	}

	if f.Tx != nil {
		transaction.Recipient = parseAddress(f.Tx.To)
		transaction.Sender = parseAddress(f.Tx.From)
		transaction.Origin = parseAddress(f.Tx.Origin)
		if transaction.Origin == (vulcan.Address{}) {
			transaction.Origin = transaction.Sender
		}
		if transaction.GasPrice, err = parseQuantity(f.Tx.GasPrice); err != nil {
			return nil, transaction, block, nil, fmt.Errorf("invalid gas price: %w", err)
		}
		if transaction.Value, err = parseQuantity(f.Tx.Value); err != nil {
			return nil, transaction, block, nil, fmt.Errorf("invalid value: %w", err)
		}
		data, err := parseBytes(f.Tx.Data)
		if err != nil {
			return nil, transaction, block, nil, fmt.Errorf("invalid call data: %w", err)
		}
		transaction.Input = data
	}

	if f.Block != nil {
		block.Coinbase = parseAddress(f.Block.Coinbase)
		if block.BaseFee, err = parseQuantity(f.Block.BaseFee); err != nil {
			return nil, transaction, block, nil, fmt.Errorf("invalid base fee: %w", err)
		}
		if block.Timestamp, err = parseInt64(f.Block.Timestamp); err != nil {
			return nil, transaction, block, nil, fmt.Errorf("invalid timestamp: %w", err)
		}
		if block.BlockNumber, err = parseInt64(f.Block.Number); err != nil {
			return nil, transaction, block, nil, fmt.Errorf("invalid block number: %w", err)
		}
		if block.Difficulty, err = parseQuantity(f.Block.Difficulty); err != nil {
			return nil, transaction, block, nil, fmt.Errorf("invalid difficulty: %w", err)
		}
		if block.GasLimit, err = parseInt64(f.Block.GasLimit); err != nil {
			return nil, transaction, block, nil, fmt.Errorf("invalid gas limit: %w", err)
		}
		chainID, err := parseQuantity(f.Block.ChainID)
		if err != nil {
			return nil, transaction, block, nil, fmt.Errorf("invalid chain id: %w", err)
		}
		block.ChainID = vulcan.Word(chainID)
	}

	state := anvil.WorldState{}
	for addr, account := range f.State {
		decoded, err := decodeAccount(account)
		if err != nil {
			return nil, transaction, block, nil, fmt.Errorf("invalid account %s: %w", addr, err)
		}
		state[parseAddress(addr)] = decoded
	}

	return code, transaction, block, state, nil
}

func decodeAccount(account AccountSection) (Account, error) {
	res := Account{}
	var err error
	if res.Balance, err = parseQuantity(account.Balance); err != nil {
		return res, fmt.Errorf("invalid balance: %w", err)
	}
	if res.Nonce, err = parseUint64(account.Nonce); err != nil {
		return res, fmt.Errorf("invalid nonce: %w", err)
	}
	if account.Code != nil {
		if res.Code, err = parseBytes(account.Code.Bin); err != nil {
			return res, fmt.Errorf("invalid code: %w", err)
		}
	}
	if len(account.Storage) > 0 {
		res.Storage = anvil.Storage{}
		for key, value := range account.Storage {
			decodedKey, err := parseWord(key)
			if err != nil {
				return res, fmt.Errorf("invalid storage key %s: %w", key, err)
			}
			decodedValue, err := parseWord(value)
			if err != nil {
				return res, fmt.Errorf("invalid storage value %s: %w", value, err)
			}
			res.Storage[vulcan.Key(decodedKey)] = decodedValue
		}
	}
	return res, nil
}

// Account is an alias easing the construction of world states from fixtures.
type Account = anvil.Account

// diff compares the observed execution result against the expectations and
// returns a description of every mismatch.
func (e *ExpectSection) diff(result vulcan.ExecutionResult) ([]string, error) {
	var issues []string

	if want, got := e.Success, result.Success; want != got {
		issues = append(issues, fmt.Sprintf("unexpected success, want %t, got %t", want, got))
	}

	if e.Stack != nil {
		if want, got := len(e.Stack), len(result.Stack); want != got {
			issues = append(issues, fmt.Sprintf("unexpected stack size, want %d, got %d", want, got))
		} else {
			for i, entry := range e.Stack {
				want, err := parseWord(entry)
				if err != nil {
					return nil, fmt.Errorf("invalid expected stack entry %s: %w", entry, err)
				}
				if got := result.Stack[i]; want != got {
					issues = append(issues, fmt.Sprintf("unexpected stack entry %d, want %v, got %v", i, want, got))
				}
			}
		}
	}

	if e.Return != nil {
		want, err := parseBytes(*e.Return)
		if err != nil {
			return nil, fmt.Errorf("invalid expected return data: %w", err)
		}
		if got := result.Output; !bytes.Equal(want, got) {
			issues = append(issues, fmt.Sprintf("unexpected return data, want 0x%x, got 0x%x", want, got))
		}
	}

	if e.Logs != nil {
		if want, got := len(e.Logs), len(result.Logs); want != got {
			issues = append(issues, fmt.Sprintf("unexpected number of logs, want %d, got %d", want, got))
		} else {
			for i, entry := range e.Logs {
				issue, err := diffLog(i, entry, result.Logs[i])
				if err != nil {
					return nil, err
				}
				issues = append(issues, issue...)
			}
		}
	}

	return issues, nil
}

func diffLog(index int, want LogSection, got vulcan.Log) ([]string, error) {
	var issues []string
	if address := parseAddress(want.Address); address != got.Address {
		issues = append(issues, fmt.Sprintf("log %d: unexpected address, want %v, got %v", index, address, got.Address))
	}
	data, err := parseBytes(want.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid expected log data: %w", err)
	}
	if !bytes.Equal(data, got.Data) {
		issues = append(issues, fmt.Sprintf("log %d: unexpected data, want 0x%x, got 0x%x", index, data, got.Data))
	}
	if len(want.Topics) != len(got.Topics) {
		issues = append(issues, fmt.Sprintf("log %d: unexpected number of topics, want %d, got %d", index, len(want.Topics), len(got.Topics)))
		return issues, nil
	}
	for i, topic := range want.Topics {
		wantTopic, err := parseWord(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid expected log topic: %w", err)
		}
		if vulcan.Hash(wantTopic) != got.Topics[i] {
			issues = append(issues, fmt.Sprintf("log %d: unexpected topic %d, want %v, got %v", index, i, wantTopic, vulcan.Word(got.Topics[i])))
		}
	}
	return issues, nil
}
