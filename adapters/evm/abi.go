package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// htlcABIJSON is the contract surface of the EVM-style lock: a payable
// createLock keyed by lockId, claim by secret, refund after the deadline,
// and the three lifecycle events. The secret travels as bytes32; this
// ledger does not enforce a separate secret length.
const htlcABIJSON = `[
  {"type":"function","name":"createLock","stateMutability":"payable","inputs":[
    {"name":"lockId","type":"bytes32"},
    {"name":"recipient","type":"address"},
    {"name":"secretHash","type":"bytes32"},
    {"name":"durationSeconds","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[
    {"name":"lockId","type":"bytes32"},
    {"name":"secret","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[
    {"name":"lockId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"getLock","stateMutability":"view","inputs":[
    {"name":"lockId","type":"bytes32"}],"outputs":[
    {"name":"depositor","type":"address"},
    {"name":"recipient","type":"address"},
    {"name":"amount","type":"uint256"},
    {"name":"secretHash","type":"bytes32"},
    {"name":"deadline","type":"uint256"},
    {"name":"claimed","type":"bool"},
    {"name":"refunded","type":"bool"}]},
  {"type":"event","name":"Locked","inputs":[
    {"name":"lockId","type":"bytes32","indexed":true},
    {"name":"depositor","type":"address","indexed":false},
    {"name":"recipient","type":"address","indexed":false},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"secretHash","type":"bytes32","indexed":false},
    {"name":"deadline","type":"uint256","indexed":false}]},
  {"type":"event","name":"Claimed","inputs":[
    {"name":"lockId","type":"bytes32","indexed":true},
    {"name":"secret","type":"bytes32","indexed":false}]},
  {"type":"event","name":"Refunded","inputs":[
    {"name":"lockId","type":"bytes32","indexed":true}]}
]`

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(htlcABIJSON))
	if err != nil {
		panic("evm: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

var htlcABI = mustParseABI()
