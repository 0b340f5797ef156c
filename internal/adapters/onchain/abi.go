// Package onchain implements the Chain Event Source, the protocol/oracle
// read surfaces, and the liquidation executor against a real Aave v3
// deployment on Base, using go-ethereum's client and ABI packages.
package onchain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Known Base mainnet contract addresses.
const (
	// DefaultPoolAddress is the Aave v3 Pool proxy on Base mainnet.
	DefaultPoolAddress = "0xA238Dd80C259a72e81d7e4664a9801593F98d1c5"

	baselineGasPriceGwei = 20
)

// Contract ABIs, parsed once at package init.
var (
	poolABI     abi.ABI
	oracleABI   abi.ABI
	executorABI abi.ABI
)

func init() {
	var err error

	poolABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getUserAccountData",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "user", "type": "address"}],
			"outputs": [
				{"name": "totalCollateralBase", "type": "uint256"},
				{"name": "totalDebtBase", "type": "uint256"},
				{"name": "availableBorrowsBase", "type": "uint256"},
				{"name": "currentLiquidationThreshold", "type": "uint256"},
				{"name": "ltv", "type": "uint256"},
				{"name": "healthFactor", "type": "uint256"}
			]
		},
		{
			"name": "getUserConfiguration",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "user", "type": "address"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "getReservesList",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "address[]"}]
		},
		{
			"name": "Supply",
			"type": "event",
			"inputs": [
				{"name": "reserve", "type": "address", "indexed": true},
				{"name": "user", "type": "address", "indexed": false},
				{"name": "onBehalfOf", "type": "address", "indexed": true},
				{"name": "amount", "type": "uint256", "indexed": false},
				{"name": "referralCode", "type": "uint16", "indexed": true}
			]
		},
		{
			"name": "Borrow",
			"type": "event",
			"inputs": [
				{"name": "reserve", "type": "address", "indexed": true},
				{"name": "user", "type": "address", "indexed": false},
				{"name": "onBehalfOf", "type": "address", "indexed": true},
				{"name": "amount", "type": "uint256", "indexed": false},
				{"name": "interestRateMode", "type": "uint8", "indexed": false},
				{"name": "borrowRate", "type": "uint256", "indexed": false},
				{"name": "referralCode", "type": "uint16", "indexed": true}
			]
		},
		{
			"name": "Repay",
			"type": "event",
			"inputs": [
				{"name": "reserve", "type": "address", "indexed": true},
				{"name": "user", "type": "address", "indexed": true},
				{"name": "repayer", "type": "address", "indexed": true},
				{"name": "amount", "type": "uint256", "indexed": false},
				{"name": "useATokens", "type": "bool", "indexed": false}
			]
		},
		{
			"name": "Withdraw",
			"type": "event",
			"inputs": [
				{"name": "reserve", "type": "address", "indexed": true},
				{"name": "user", "type": "address", "indexed": true},
				{"name": "to", "type": "address", "indexed": true},
				{"name": "amount", "type": "uint256", "indexed": false}
			]
		},
		{
			"name": "ReserveDataUpdated",
			"type": "event",
			"inputs": [
				{"name": "reserve", "type": "address", "indexed": true},
				{"name": "liquidityRate", "type": "uint256", "indexed": false},
				{"name": "stableBorrowRate", "type": "uint256", "indexed": false},
				{"name": "variableBorrowRate", "type": "uint256", "indexed": false},
				{"name": "liquidityIndex", "type": "uint256", "indexed": false},
				{"name": "variableBorrowIndex", "type": "uint256", "indexed": false}
			]
		},
		{
			"name": "LiquidationCall",
			"type": "event",
			"inputs": [
				{"name": "collateralAsset", "type": "address", "indexed": true},
				{"name": "debtAsset", "type": "address", "indexed": true},
				{"name": "user", "type": "address", "indexed": true},
				{"name": "debtToCover", "type": "uint256", "indexed": false},
				{"name": "liquidatedCollateralAmount", "type": "uint256", "indexed": false},
				{"name": "liquidator", "type": "address", "indexed": false},
				{"name": "receiveAToken", "type": "bool", "indexed": false}
			]
		}
	]`))
	if err != nil {
		panic("onchain: pool abi parse: " + err.Error())
	}

	oracleABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "latestRoundData",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [
				{"name": "roundId", "type": "uint80"},
				{"name": "answer", "type": "int256"},
				{"name": "startedAt", "type": "uint256"},
				{"name": "updatedAt", "type": "uint256"},
				{"name": "answeredInRound", "type": "uint80"}
			]
		},
		{
			"name": "AnswerUpdated",
			"type": "event",
			"inputs": [
				{"name": "current", "type": "int256", "indexed": true},
				{"name": "roundId", "type": "uint256", "indexed": true},
				{"name": "updatedAt", "type": "uint256", "indexed": false}
			]
		}
	]`))
	if err != nil {
		panic("onchain: oracle abi parse: " + err.Error())
	}

	executorABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "liquidate",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "user", "type": "address"},
				{"name": "collateralAsset", "type": "address"},
				{"name": "debtAsset", "type": "address"},
				{"name": "debtToCover", "type": "uint256"},
				{"name": "receiveAToken", "type": "bool"},
				{"name": "collateralAssetId", "type": "uint16"},
				{"name": "debtAssetId", "type": "uint16"}
			],
			"outputs": []
		},
		{
			"name": "getPool",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "address"}]
		}
	]`))
	if err != nil {
		panic("onchain: executor abi parse: " + err.Error())
	}
}
