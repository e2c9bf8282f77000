package core

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/btcsuite/btcd/wire"
	femto "github.com/femtowallet/femtowallet/pkg"
)

// interface guard ensures L1CoreRPC implements femto.L1
var _ femto.L1 = &L1CoreRPC{}

type rpcRequest struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	Id     uint64 `json:"id"`
}
type rpcResponse struct {
	Id     uint64           `json:"id"`
	Result *json.RawMessage `json:"result"`
	Error  any              `json:"error"`
}

// rpcClient is the JSON-RPC plumbing shared by the core node client and the
// bridge client.
type rpcClient struct {
	url  string
	user string
	pass string
	id   uint64
}

func (c *rpcClient) request(method string, params []any, result any) error {
	body := rpcRequest{
		Method: method,
		Params: params,
		Id:     c.id,
	}
	c.id += 1 // each request should use a unique ID
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("json-rpc marshal request: %v", err)
	}
	req, err := http.NewRequest("POST", c.url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("json-rpc request: %v", err)
	}
	req.SetBasicAuth(c.user, c.pass)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("json-rpc transport: %v", err)
	}
	// we MUST read all of res.Body and call res.Close,
	// otherwise the underlying connection cannot be re-used.
	defer res.Body.Close()
	res_bytes, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("json-rpc read response: %v", err)
	}
	if res.StatusCode != 200 {
		return fmt.Errorf("json-rpc status code: %s", res.Status)
	}
	var rpcres rpcResponse
	err = json.Unmarshal(res_bytes, &rpcres)
	if err != nil {
		return fmt.Errorf("json-rpc unmarshal response: %v", err)
	}
	if rpcres.Id != body.Id {
		return fmt.Errorf("json-rpc wrong ID returned: %v vs %v", rpcres.Id, body.Id)
	}
	if rpcres.Error != nil {
		return fmt.Errorf("json-rpc error returned: %v", rpcres.Error)
	}
	if rpcres.Result == nil {
		return fmt.Errorf("json-rpc missing result")
	}
	err = json.Unmarshal(*rpcres.Result, result)
	if err != nil {
		return fmt.Errorf("json-rpc unmarshal result: %v | %v", err, string(*rpcres.Result))
	}
	return nil
}

// NewCoreRPC returns a femto.L1 implementor that uses the full node's
// JSON-RPC interface.
func NewCoreRPC(config femto.Config) (*L1CoreRPC, error) {
	addr := fmt.Sprintf("http://%s:%d", config.Core.RPCHost, config.Core.RPCPort)
	return &L1CoreRPC{rpcClient{url: addr, user: config.Core.RPCUser, pass: config.Core.RPCPass, id: 1}}, nil
}

type L1CoreRPC struct {
	rpc rpcClient
}

func (l *L1CoreRPC) GetBlockCount() (count int64, err error) {
	err = l.rpc.request("getblockcount", []any{}, &count)
	return
}

func (l *L1CoreRPC) GetBestBlockHash() (blockHash string, err error) {
	err = l.rpc.request("getbestblockhash", []any{}, &blockHash)
	return
}

func (l *L1CoreRPC) GetBlockHash(height int64) (hash string, err error) {
	err = l.rpc.request("getblockhash", []any{height}, &hash)
	return
}

// GetBlock fetches a block as raw hex (verbosity 0) and deserializes it.
func (l *L1CoreRPC) GetBlock(blockHash string) (*wire.MsgBlock, error) {
	var blockHex string
	verbosity := 0 // raw hex rather than JSON
	if err := l.rpc.request("getblock", []any{blockHash, verbosity}, &blockHex); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(blockHex)
	if err != nil {
		return nil, fmt.Errorf("getblock: bad block hex: %v", err)
	}
	block := &wire.MsgBlock{}
	if err := block.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("getblock: bad block bytes: %v", err)
	}
	return block, nil
}
