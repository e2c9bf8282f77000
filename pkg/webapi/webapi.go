package webapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	femto "github.com/femtowallet/femtowallet/pkg"
	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
	"github.com/femtowallet/femtowallet/pkg/conductor"
)

// WebAPI exposes the address cache over HTTP: history, balance and proof
// queries for watched scripts, plus admin endpoints to watch new scripts.
type WebAPI struct {
	cache  *femto.AddressCache
	config femto.Config
}

// interface guard ensures WebAPI implements conductor.Service
var _ conductor.Service = WebAPI{}

func NewWebAPI(config femto.Config, cache *femto.AddressCache) (WebAPI, error) {
	return WebAPI{cache: cache, config: config}, nil
}

func (t WebAPI) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		mux := t.createRouter()

		server := &http.Server{Addr: t.config.WebAPI.Bind + ":" + t.config.WebAPI.Port, Handler: mux}
		fmt.Printf("\nAPI listening on %s:%s", t.config.WebAPI.Bind, t.config.WebAPI.Port)
		go func() {
			if err := server.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("HTTP server ListenAndServe: %v", err)
			}
		}()

		started <- true
		ctx := <-stop
		server.Shutdown(ctx)
		stopped <- true
	}()
	return nil
}

func (t WebAPI) createRouter() *httprouter.Router {
	mux := httprouter.New()

	// GET /address/:scripthash/history -> [ { tx_hash, height }, .. ]
	mux.GET("/address/:scripthash/history", t.getAddressHistory)

	// GET /address/:scripthash/balance -> { satoshi, btc }
	mux.GET("/address/:scripthash/balance", t.getAddressBalance)

	// GET /tx/:txid/hex -> { hex } the serialized transaction
	mux.GET("/tx/:txid/hex", t.getTxHex)

	// GET /tx/:txid/height -> { height } confirmation height
	mux.GET("/tx/:txid/height", t.getTxHeight)

	// GET /tx/:txid/proof -> { merkle, pos } merkle branch for the tx
	mux.GET("/tx/:txid/proof", t.getTxProof)

	// GET /status -> cache summary for monitoring
	mux.GET("/status", t.getStatus)

	// POST { script } /admin/watch -> start watching an output script
	mux.POST("/admin/watch", t.watchScript)

	// POST { descriptor } /admin/setup -> initialize a fresh store
	mux.POST("/admin/setup", t.setup)

	return mux
}

// scriptHashParam parses a :scripthash URL segment (display hex, i.e. the
// reversed byte order Electrum clients use).
func scriptHashParam(p httprouter.Params) (*chainhash.Hash, string) {
	raw := p.ByName("scripthash")
	hash, err := chainhash.NewHashFromStr(raw)
	if err != nil {
		return nil, fmt.Sprintf("invalid script hash: %s", raw)
	}
	return hash, ""
}

func txidParam(p httprouter.Params) (*chainhash.Hash, string) {
	raw := p.ByName("txid")
	hash, err := chainhash.NewHashFromStr(raw)
	if err != nil {
		return nil, fmt.Sprintf("invalid txid: %s", raw)
	}
	return hash, ""
}

type historyItem struct {
	TxHash string `json:"tx_hash"`
	Height uint32 `json:"height"`
}

func (t WebAPI) getAddressHistory(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	hash, msg := scriptHashParam(p)
	if hash == nil {
		sendBadRequest(w, msg)
		return
	}
	history := t.cache.GetAddressHistory(hash)
	items := make([]historyItem, 0, len(history))
	for _, tx := range history {
		items = append(items, historyItem{TxHash: tx.TxID.String(), Height: tx.Height})
	}
	sendResponse(w, items)
}

func (t WebAPI) getAddressBalance(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	hash, msg := scriptHashParam(p)
	if hash == nil {
		sendBadRequest(w, msg)
		return
	}
	sats := t.cache.GetAddressBalance(hash)
	sendResponse(w, struct {
		Satoshi uint64          `json:"satoshi"`
		BTC     decimal.Decimal `json:"btc"`
	}{
		Satoshi: sats,
		BTC:     decimal.New(int64(sats), -8),
	})
}

func (t WebAPI) getTxHex(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	txid, msg := txidParam(p)
	if txid == nil {
		sendBadRequest(w, msg)
		return
	}
	txHex, err := t.cache.GetCachedTx(txid)
	if err != nil {
		sendError(w, "GetCachedTx", err)
		return
	}
	sendResponse(w, struct {
		Hex string `json:"hex"`
	}{Hex: txHex})
}

func (t WebAPI) getTxHeight(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	txid, msg := txidParam(p)
	if txid == nil {
		sendBadRequest(w, msg)
		return
	}
	height, err := t.cache.GetHeight(txid)
	if err != nil {
		sendError(w, "GetHeight", err)
		return
	}
	sendResponse(w, struct {
		Height uint32 `json:"height"`
	}{Height: height})
}

func (t WebAPI) getTxProof(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	txid, msg := txidParam(p)
	if txid == nil {
		sendBadRequest(w, msg)
		return
	}
	merkle, pos, err := t.cache.GetMerkleProof(txid)
	if err != nil {
		sendError(w, "GetMerkleProof", err)
		return
	}
	height, err := t.cache.GetHeight(txid)
	if err != nil {
		sendError(w, "GetHeight", err)
		return
	}
	sendResponse(w, struct {
		Merkle []string `json:"merkle"`
		Pos    uint32   `json:"pos"`
		Height uint32   `json:"block_height"`
	}{Merkle: merkle, Pos: pos, Height: height})
}

func (t WebAPI) getStatus(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	stats := t.cache.Stats()
	height, err := t.cache.GetCacheHeight()
	if err != nil && !femto.IsWalletNotInitializedError(err) {
		sendError(w, "GetCacheHeight", err)
		return
	}
	sendResponse(w, struct {
		femto.CacheStats
		Height      uint32 `json:"height"`
		Initialized bool   `json:"initialized"`
	}{
		CacheStats:  stats,
		Height:      height,
		Initialized: err == nil,
	})
}

type watchRequest struct {
	// Script is the raw output script, hex encoded.
	Script string `json:"script"`
}

func (t WebAPI) watchScript(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var o watchRequest
	err := json.NewDecoder(r.Body).Decode(&o)
	if err != nil {
		sendBadRequest(w, fmt.Sprintf("bad request body (expecting JSON): %v", err))
		return
	}
	if o.Script == "" {
		sendBadRequest(w, "missing 'script' in JSON body")
		return
	}
	script, err := hex.DecodeString(o.Script)
	if err != nil {
		sendBadRequest(w, fmt.Sprintf("invalid script hex: %v", err))
		return
	}
	if err := t.cache.WatchScript(script); err != nil {
		sendError(w, "WatchScript", err)
		return
	}
	sendResponse(w, struct {
		ScriptHash string `json:"script_hash"`
	}{ScriptHash: femto.ScriptHash(script).String()})
}

type setupRequest struct {
	Descriptor string `json:"descriptor"`
}

// setup zeroes the cache height and persists the wallet descriptor. Only
// meaningful on a fresh store: on a store that already has a height this
// resets the scan window back to the genesis block.
func (t WebAPI) setup(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var o setupRequest
	err := json.NewDecoder(r.Body).Decode(&o)
	if err != nil {
		sendBadRequest(w, fmt.Sprintf("bad request body (expecting JSON): %v", err))
		return
	}
	if o.Descriptor == "" {
		sendBadRequest(w, "missing 'descriptor' in JSON body")
		return
	}
	if err := t.cache.Setup(o.Descriptor); err != nil {
		sendError(w, "Setup", err)
		return
	}
	sendResponse(w, "Store initialized")
}
