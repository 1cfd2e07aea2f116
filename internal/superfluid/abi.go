package superfluid

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const cfaABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "contract ISuperfluidToken", "name": "token", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "receiver", "type": "address"},
      {"indexed": false, "internalType": "int96", "name": "flowRate", "type": "int96"},
      {"indexed": false, "internalType": "int256", "name": "totalSenderFlowRate", "type": "int256"},
      {"indexed": false, "internalType": "int256", "name": "totalReceiverFlowRate", "type": "int256"},
      {"indexed": false, "internalType": "bytes", "name": "userData", "type": "bytes"}
    ],
    "name": "FlowUpdated",
    "type": "event"
  },
  {
    "inputs": [
      {"internalType": "contract ISuperfluidToken", "name": "token", "type": "address"},
      {"internalType": "address", "name": "sender", "type": "address"},
      {"internalType": "address", "name": "receiver", "type": "address"}
    ],
    "name": "getFlow",
    "outputs": [
      {"internalType": "uint256", "name": "timestamp", "type": "uint256"},
      {"internalType": "int96", "name": "flowRate", "type": "int96"},
      {"internalType": "uint256", "name": "deposit", "type": "uint256"},
      {"internalType": "uint256", "name": "owedDeposit", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	cfaABI     abi.ABI
	cfaABIOnce sync.Once
	cfaABIErr  error
)

// CFAABI returns the parsed constant flow agreement ABI.
func CFAABI() (abi.ABI, error) {
	cfaABIOnce.Do(func() {
		cfaABI, cfaABIErr = abi.JSON(strings.NewReader(cfaABIJSON))
	})
	return cfaABI, cfaABIErr
}
