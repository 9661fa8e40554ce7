package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flowpay-indexer/chain"
	"flowpay-indexer/config"
	"flowpay-indexer/database"
	"flowpay-indexer/indexer"
	"flowpay-indexer/logger"
)

func main() {
	flag.Parse()

	cfg, err := config.BuildConfig()
	if err != nil {
		fmt.Println("Config error: ", err)
		return
	}
	config.GlobalConfigCallback.Call(cfg)
	logger.Info("Running with configuration: chain: %s, database: %s", cfg.Chain.NodeURL, cfg.DB.Database)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := database.ConnectAndInitialize(&cfg.DB)
	if err != nil {
		logger.Fatal("Database connect and initialize error: %s", err)
	}

	nodeURL, err := cfg.Chain.FullNodeURL()
	if err != nil {
		logger.Fatal("Invalid node URL in config: %s", err)
	}

	ethClient, err := chain.DialRPCNode(nodeURL)
	if err != nil {
		logger.Fatal("Could not connect to the Ethereum node: %s", err)
	}

	cIndexer := indexer.CreateBlockIndexer(cfg, db, ethClient)
	_, err = cIndexer.IndexHistory(ctx)
	if err != nil {
		logger.Fatal("History run error: %s", err)
	}

	err = cIndexer.IndexContinuous(ctx)
	if err != nil {
		logger.Fatal("Run error: %s", err)
	}
}
