package chaintracker

import (
	"context"
	"log"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	femto "github.com/femtowallet/femtowallet/pkg"
)

const (
	RETRY_DELAY = 5 * time.Second
)

type ChainFollower struct {
	l1               femto.L1
	cache            *femto.AddressCache
	proofs           femto.ProofSource // nil when the accumulator updater needs no local proofs
	bus              femto.MessageBus
	conf             femto.Config
	ReceiveBestBlock chan string
	stop             chan context.Context
	stopped          chan bool
}

/*
 * ChainFollower walks the blockchain, keeping the address cache up with the
 * tip (Best Block).
 *
 * Each pass asks the cache for its sync window [lastCached+1, tip] and scans
 * those blocks in increasing height order, advancing the accumulator snapshot
 * and persisting the new height only after the block's effects are durable.
 *
 * ReceiveBestBlock has capacity 1 because we only need to know that the
 * tip has changed since last time we checked (i.e. dirty flag); we don't
 * care about the actual block hash.
 */
func NewChainFollower(conf femto.Config, bus femto.MessageBus, l1 femto.L1, cache *femto.AddressCache, proofs femto.ProofSource) (*ChainFollower, error) {
	result := &ChainFollower{
		l1:               l1,
		cache:            cache,
		proofs:           proofs,
		bus:              bus,
		conf:             conf,
		ReceiveBestBlock: make(chan string, 1), // signal that tip has changed.
	}
	return result, nil
}

func (c *ChainFollower) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		c.stop, c.stopped = stop, stopped // for helpers.
		started <- true

		// First run: a store with no cache height has never been set up.
		if stopping := c.ensureInitialized(); stopping {
			return // stopped.
		}

		// Startup: catch up to the current Best Block (tip)
		log.Println("ChainFollower: catching up to the chain tip")
		if stopping := c.catchUp(); stopping {
			return // stopped.
		}

		// Main loop: catch up to the current Best Block (tip) each time it changes.
		for {
			// Wait for Core to signal a new Best Block (new block mined)
			select {
			case <-stop:
				stopped <- true
				return
			case <-c.ReceiveBestBlock:
				log.Println("ChainFollower: received new block signal")
			}

			if stopping := c.catchUp(); stopping {
				return // stopped.
			}
		}
	}()

	return nil
}

func (c *ChainFollower) ensureInitialized() bool {
	for {
		_, err := c.cache.GetCacheHeight()
		if err == nil {
			return false
		}
		if femto.IsWalletNotInitializedError(err) {
			log.Println("ChainFollower: fresh store, writing descriptor")
			err = c.cache.Setup(c.conf.Femto.Descriptor)
			if err == nil {
				return false
			}
		}
		log.Println("ChainFollower: cannot initialize store:", err)
		if c.sleepInterrupted(RETRY_DELAY) {
			return true // stopped.
		}
	}
}

// catchUp scans every block between the cache height and the current tip.
// The tip is re-checked after each pass in case new blocks arrived while we
// were scanning.
func (c *ChainFollower) catchUp() bool {
	for {
		count, stopping := c.fetchBlockCount()
		if stopping {
			return true // stopped.
		}
		start, end, err := c.cache.GetSyncLimits(uint32(count))
		if err != nil {
			log.Println("ChainFollower: cannot determine sync window:", err)
			if c.sleepInterrupted(RETRY_DELAY) {
				return true // stopped.
			}
			continue // retry.
		}
		if start > end {
			// Already at (or beyond) the tip.
			log.Println("ChainFollower: in sync with the chain tip:", end)
			c.bus.Send(femto.CHAIN_SYNCED, femto.ChainEvent{Height: end})
			return false
		}
		log.Printf("ChainFollower: scanning blocks %d..%d", start, end)
		for height := start; height <= end; height++ {
			if stopping := c.processHeight(height); stopping {
				return true // stopped.
			}
			// Loops must check for shutdown before looping.
			if c.checkShutdown() {
				return true // stopped.
			}
		}
	}
}

// processHeight applies one block to the cache and makes its effects durable:
// accumulator update + transaction scan, then the accumulator snapshot, then
// the cache height. The height is bumped last so a crash always replays the
// block rather than skipping it.
func (c *ChainFollower) processHeight(height uint32) bool {
	hash, stopping := c.fetchBlockHash(int64(height))
	if stopping {
		return true // stopped.
	}
	block, stopping := c.fetchBlock(hash)
	if stopping {
		return true // stopped.
	}
	var proof femto.UtreexoProof
	var delHashes []chainhash.Hash
	if c.proofs != nil {
		proof, delHashes, stopping = c.fetchProof(hash)
		if stopping {
			return true // stopped.
		}
	}
	matches, stopping := c.applyBlock(block, height, proof, delHashes)
	if stopping {
		return true // stopped.
	}
	for {
		if err := c.cache.SaveAcc(); err != nil {
			log.Println("ChainFollower: cannot save accumulator:", err)
			if c.sleepInterrupted(RETRY_DELAY) {
				return true // stopped.
			}
			continue // retry.
		}
		break
	}
	for {
		if err := c.cache.BumpHeight(height); err != nil {
			log.Println("ChainFollower: cannot bump cache height:", err)
			if c.sleepInterrupted(RETRY_DELAY) {
				return true // stopped.
			}
			continue // retry.
		}
		break
	}
	for _, m := range matches {
		c.bus.Send(femto.TX_FOUND, femto.TxFoundEvent{
			TxID:       m.Tx.TxHash().String(),
			ScriptHash: femto.ScriptHash(m.Out.PkScript).String(),
			Height:     height,
			Value:      m.Out.Value,
		})
	}
	c.bus.Send(femto.CHAIN_BLOCK, femto.ChainEvent{Height: height, Hash: hash})
	return false
}

// applyBlock retries BlockProcess until it succeeds. Retrying a partially
// applied block is safe because the bridge updater derives the snapshot from
// the block hash and cached transactions reject duplicates.
func (c *ChainFollower) applyBlock(block *wire.MsgBlock, height uint32, proof femto.UtreexoProof, delHashes []chainhash.Hash) ([]femto.TxMatch, bool) {
	for {
		matches, err := c.cache.BlockProcess(block, height, proof, delHashes)
		if err != nil {
			log.Printf("ChainFollower: cannot process block at height %d: %v", height, err)
			c.bus.Send(femto.SYS_ERR, err.Error())
			if c.sleepInterrupted(RETRY_DELAY) {
				return nil, true // stopped.
			}
			continue // retry.
		}
		return matches, false
	}
}

func (c *ChainFollower) fetchBlockCount() (int64, bool) {
	for {
		count, err := c.l1.GetBlockCount()
		if err != nil {
			log.Println("ChainFollower: error retrieving block count:", err)
			if c.sleepInterrupted(RETRY_DELAY) {
				return 0, true // stopped.
			}
		} else {
			return count, false
		}
	}
}

func (c *ChainFollower) fetchBlockHash(height int64) (string, bool) {
	for {
		hash, err := c.l1.GetBlockHash(height)
		if err != nil {
			log.Println("ChainFollower: error retrieving block hash:", err)
			if c.sleepInterrupted(RETRY_DELAY) {
				return "", true // stopped.
			}
		} else {
			return hash, false
		}
	}
}

func (c *ChainFollower) fetchBlock(blockHash string) (*wire.MsgBlock, bool) {
	for {
		block, err := c.l1.GetBlock(blockHash)
		if err != nil {
			log.Println("ChainFollower: error retrieving block:", err)
			if c.sleepInterrupted(RETRY_DELAY) {
				return nil, true // stopped.
			}
		} else {
			return block, false
		}
	}
}

func (c *ChainFollower) fetchProof(blockHash string) (femto.UtreexoProof, []chainhash.Hash, bool) {
	for {
		proof, delHashes, err := c.proofs.GetBlockProof(blockHash)
		if err != nil {
			log.Println("ChainFollower: error retrieving block proof:", err)
			if c.sleepInterrupted(RETRY_DELAY) {
				return femto.UtreexoProof{}, nil, true // stopped.
			}
		} else {
			return proof, delHashes, false
		}
	}
}

func (c *ChainFollower) sleepInterrupted(d time.Duration) bool {
	select {
	case <-c.stop:
		// no work to do, just shut down.
		c.stopped <- true
		return true
	case <-time.After(d):
		return false
	}
}

func (c *ChainFollower) checkShutdown() bool {
	select {
	case <-c.stop:
		// no work to do, just shut down.
		c.stopped <- true
		return true
	default:
		return false
	}
}
