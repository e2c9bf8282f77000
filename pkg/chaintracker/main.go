package chaintracker

import (
	femto "github.com/femtowallet/femtowallet/pkg"
	"github.com/femtowallet/femtowallet/pkg/conductor"
)

func StartChainTracker(c *conductor.Conductor, conf femto.Config, bus femto.MessageBus, l1 femto.L1, cache *femto.AddressCache, proofs femto.ProofSource) (*TipChaser, error) {
	// Start the TipChaser service
	tc, err := NewTipChaser(conf, bus, l1)
	if err != nil {
		return nil, err
	}
	c.Service("TipChaser", tc)

	// Start the ChainFollower service
	cf, err := NewChainFollower(conf, bus, l1, cache, proofs)
	if err != nil {
		return nil, err
	}
	tc.Subscribe(cf.ReceiveBestBlock, false) // non-blocking.
	c.Service("ChainFollower", cf)

	return tc, nil
}
