package main

import (
	"fmt"

	femto "github.com/femtowallet/femtowallet/pkg"
	"github.com/femtowallet/femtowallet/pkg/chaintracker"
	"github.com/femtowallet/femtowallet/pkg/core"
	"github.com/femtowallet/femtowallet/pkg/messages"
	"github.com/femtowallet/femtowallet/pkg/store"
	"github.com/femtowallet/femtowallet/pkg/webapi"
	"github.com/femtowallet/femtowallet/pkg/conductor"
)

func Server(conf femto.Config) {

	c := conductor.NewConductor(
		conductor.HookSignals(),
		conductor.Noisy(),
	)

	// Start the MessageBus Service
	bus := femto.NewMessageBus()
	c.Service("MessageBus", bus)

	// Log all bus events to the rotated event log
	logger := messages.NewMessageLogger(conf)
	bus.Register(logger, femto.EVENT_ALL("ALL"))
	c.Service("MessageLogger", logger)

	// Set up the L1 interface to Core
	l1, err := core.NewCoreRPC(conf)
	if err != nil {
		panic(err)
	}

	// The bridge node maintains the full forest and serves our
	// accumulator roots after each block.
	bridge, err := core.NewBridgeUpdater(conf)
	if err != nil {
		panic(err)
	}

	// Setup a Store
	db, err := openStore(conf)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	// Load the cache engine from the store
	cache, err := femto.NewAddressCache(db, db, bridge)
	if err != nil {
		panic(err)
	}

	// Start the Chain Tracker. No separate proof source: the bridge
	// updater derives the post-block roots from the block hash itself.
	chaser, err := chaintracker.StartChainTracker(c, conf, bus, l1, cache, nil)
	if err != nil {
		panic(err)
	}

	// Start the Core listener service (ZMQ)
	corez, err := core.NewCoreReceiver(bus, conf)
	if err != nil {
		panic(err)
	}
	corez.Subscribe(chaser.ReceiveFromCore)
	c.Service("ZMQ Listener", corez)

	// Start the query API
	api, err := webapi.NewWebAPI(conf, cache)
	if err != nil {
		panic(err)
	}
	c.Service("Web API", api)

	<-c.Start()
}

// kvStore is what the cache engine needs from a storage backend.
type kvStore interface {
	femto.AddressStore
	femto.ChainStore
}

func openStore(conf femto.Config) (kvStore, error) {
	switch conf.Store.Driver {
	case "bolt":
		return store.NewBoltStore(conf.Store.DBFile)
	case "sqlite", "":
		return store.NewSQLiteStore(conf.Store.DBFile)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", conf.Store.Driver)
	}
}
