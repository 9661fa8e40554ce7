package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/mux"
)

// MockChain is a minimal JSON-RPC node backed by fixtures. It answers
// the three methods the indexer issues: eth_getBlockByNumber (headers
// only), eth_getLogs and eth_chainId.
type MockChain struct {
	server *http.Server

	chainID    uint64
	timestamps map[uint64]uint64 // block number -> unix timestamp
	lastBlock  uint64
	logs       []types.Log
}

func NewMockChain(port int, chainID uint64, timestamps map[uint64]uint64, logs []types.Log) *MockChain {
	mc := &MockChain{
		chainID:    chainID,
		timestamps: timestamps,
		logs:       logs,
	}
	for number := range timestamps {
		mc.lastBlock = max(mc.lastBlock, number)
	}

	r := mux.NewRouter()
	r.HandleFunc("/", mc.handleRPC)

	mc.server = &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		Handler:      r,
	}

	return mc
}

func (mc *MockChain) Run() error {
	err := mc.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}

	return err
}

func (mc *MockChain) Stop() error {
	return mc.server.Shutdown(context.Background())
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

func (mc *MockChain) handleRPC(writer http.ResponseWriter, request *http.Request) {
	body, err := io.ReadAll(request.Body)
	if err != nil {
		http.Error(writer, "Invalid request body", http.StatusBadRequest)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(writer, "Invalid json", http.StatusBadRequest)
		return
	}

	var result interface{}
	switch req.Method {
	case "eth_chainId":
		result = hexUint(mc.chainID)
	case "eth_getBlockByNumber":
		result, err = mc.blockByNumber(req.Params)
	case "eth_getLogs":
		result, err = mc.getLogs(req.Params)
	default:
		err = fmt.Errorf("method %s not supported", req.Method)
	}
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	writer.Header().Set("Content-Type", "application/json")
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  result,
	}
	if err := json.NewEncoder(writer).Encode(response); err != nil {
		fmt.Printf("Error writing response: %v\n", err)
	}
}

func (mc *MockChain) blockByNumber(params []json.RawMessage) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("eth_getBlockByNumber: missing params")
	}

	var tag string
	if err := json.Unmarshal(params[0], &tag); err != nil {
		return nil, err
	}

	number := mc.lastBlock
	if tag != "latest" {
		var err error
		number, err = parseHexUint(tag)
		if err != nil {
			return nil, err
		}
	}

	timestamp, ok := mc.timestamps[number]
	if !ok {
		return nil, nil
	}

	header := &types.Header{
		ParentHash: common.Hash{},
		Difficulty: new(big.Int),
		Number:     new(big.Int).SetUint64(number),
		Time:       timestamp,
		Extra:      []byte{},
	}

	return header, nil
}

type logFilter struct {
	FromBlock string           `json:"fromBlock"`
	ToBlock   string           `json:"toBlock"`
	Address   []common.Address `json:"address"`
}

func (mc *MockChain) getLogs(params []json.RawMessage) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("eth_getLogs: missing params")
	}

	var filter logFilter
	if err := json.Unmarshal(params[0], &filter); err != nil {
		return nil, err
	}

	from, err := parseHexUint(filter.FromBlock)
	if err != nil {
		return nil, err
	}
	to, err := parseHexUint(filter.ToBlock)
	if err != nil {
		return nil, err
	}

	matched := []types.Log{}
	for _, log := range mc.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if len(filter.Address) > 0 && !containsAddress(filter.Address, log.Address) {
			continue
		}
		matched = append(matched, log)
	}

	return matched, nil
}

func containsAddress(addresses []common.Address, address common.Address) bool {
	for _, a := range addresses {
		if a == address {
			return true
		}
	}
	return false
}

func hexUint(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

func parseHexUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}
