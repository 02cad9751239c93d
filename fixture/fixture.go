// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package fixture provides a loader and runner for JSON-encoded interpreter
// test cases. Each test case names a byte-code to execute, an optional
// transaction envelope, block context, and world state, and the expected
// outcome of the execution.
package fixture

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vulcan-evm/vulcan/vulcan"
)

// Fixture is a single test case in the on-disk format.
type Fixture struct {
	Code   CodeSection               `json:"code"`
	Tx     *TxSection                `json:"tx"`
	Block  *BlockSection             `json:"block"`
	State  map[string]AccountSection `json:"state"`
	Expect ExpectSection             `json:"expect"`
}

type CodeSection struct {
	Bin string `json:"bin"`
}

type TxSection struct {
	To       string `json:"to"`
	From     string `json:"from"`
	Origin   string `json:"origin"`
	GasPrice string `json:"gasprice"`
	Value    string `json:"value"`
	Data     string `json:"data"`
}

type BlockSection struct {
	Coinbase   string `json:"coinbase"`
	BaseFee    string `json:"basefee"`
	Timestamp  string `json:"timestamp"`
	Number     string `json:"number"`
	Difficulty string `json:"difficulty"`
	GasLimit   string `json:"gaslimit"`
	ChainID    string `json:"chainid"`
}

type AccountSection struct {
	Balance string            `json:"balance"`
	Nonce   string            `json:"nonce"`
	Code    *CodeSection      `json:"code"`
	Storage map[string]string `json:"storage"`
}

type ExpectSection struct {
	Success bool         `json:"success"`
	Stack   []string     `json:"stack"`
	Return  *string      `json:"return"`
	Logs    []LogSection `json:"logs"`
}

type LogSection struct {
	Address string   `json:"address"`
	Data    string   `json:"data"`
	Topics  []string `json:"topics"`
}

// Test is a named fixture ready to be executed.
type Test struct {
	Name    string
	Fixture Fixture
}

// Load reads the given file and returns the test cases it contains. A file
// holds either a single fixture object or a map from test name to fixture.
func Load(path string) ([]Test, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// Parse decodes the given JSON document into a list of named test cases.
func Parse(name string, data []byte) ([]Test, error) {
	var single Fixture
	if err := json.Unmarshal(data, &single); err == nil && single.Code.Bin != "" {
		return []Test{{Name: name, Fixture: single}}, nil
	}
	var many map[string]Fixture
	if err := json.Unmarshal(data, &many); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", name, err)
	}
	tests := make([]Test, 0, len(many))
	for testName, fixture := range many {
		tests = append(tests, Test{Name: testName, Fixture: fixture})
	}
	return tests, nil
}

// ----------------------------------------------------------------------------
// Hex decoding helpers
// ----------------------------------------------------------------------------

// parseBytes decodes a hex string, with or without 0x prefix, into bytes.
// Spaces are ignored, so byte codes may be grouped for readability. The
// empty string decodes to an empty byte slice.
func parseBytes(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// parseQuantity decodes a hex quantity of up to 256 bits into a Value.
// Odd-length digit strings are accepted.
func parseQuantity(s string) (vulcan.Value, error) {
	var res vulcan.Value
	if s == "" {
		return res, nil
	}
	digits := strings.TrimPrefix(s, "0x")
	value, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return res, fmt.Errorf("invalid hex quantity: %s", s)
	}
	if value.BitLen() > 256 {
		return res, fmt.Errorf("hex quantity exceeds 256 bits: %s", s)
	}
	value.FillBytes(res[:])
	return res, nil
}

// parseWord decodes a hex quantity into a storage/stack word.
func parseWord(s string) (vulcan.Word, error) {
	value, err := parseQuantity(s)
	return vulcan.Word(value), err
}

// parseUint64 decodes a hex quantity into a uint64.
func parseUint64(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}

// parseInt64 decodes a hex quantity into an int64.
func parseInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(strings.TrimPrefix(s, "0x"), 16, 64)
}

// parseAddress decodes a hex string into an address, padding short inputs
// with leading zeros.
func parseAddress(s string) vulcan.Address {
	return vulcan.Address(common.HexToAddress(s))
}
