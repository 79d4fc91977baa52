package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gluwa/creditcoin-pow-consensus/config"
	"github.com/gluwa/creditcoin-pow-consensus/consensus"
	"github.com/gluwa/creditcoin-pow-consensus/core"
	"github.com/gluwa/creditcoin-pow-consensus/database"
	"github.com/gluwa/creditcoin-pow-consensus/health"
	"github.com/gluwa/creditcoin-pow-consensus/interfaces"
	"github.com/gluwa/creditcoin-pow-consensus/logger"
	"github.com/gluwa/creditcoin-pow-consensus/rpc"
	"github.com/gluwa/creditcoin-pow-consensus/security"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// chainTipSettingKey persists the last accepted block's id so the demo
// mining loop can resume the real chain tip across a restart instead of
// forking from genesis every time.
const chainTipSettingKey = "chain.tip_id"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the consensus engine host",
	Long:  `Run the consensus engine host: block store, publisher, and status RPC.`,
	RunE:  runConsensusHost,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("enable-metrics", true, "enable metrics collection")
	runCmd.Flags().Bool("enable-health", true, "enable health check endpoints")
}

func runConsensusHost(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig("")
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}

	logger.SetLevel(logger.LogLevel(cfg.GetLogLevel()))
	logger.Info("starting consensus host")
	logger.Infof("configuration loaded: DataDir=%s, RPCPort=%d, SolverPath=%s", cfg.DataDir, cfg.RPCPort, cfg.SolverPath)

	securityManager := security.NewSecurityManager()

	chaindataDir := cfg.GetDataSubDir("chaindata")
	ldb, err := database.NewLevelDB(chaindataDir)
	if err != nil {
		logger.Fatalf("failed to open block store: %v", err)
		return err
	}
	defer func() {
		if err := ldb.Close(); err != nil {
			logger.Errorf("failed to close block store: %v", err)
		}
	}()
	store := database.NewBlockStore(ldb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.GetLogger().WithFields(logrus.Fields{"component": "publisher"})
	publisher := consensus.NewBlockPublisher(ctx, store, store, cfg.SolverPath, log)
	defer publisher.Shutdown()

	// verifier and forkResolver are invoked by the host's own block-
	// validation pipeline on each received block; wiring them here
	// keeps them alive for that pipeline to call into.
	verifier := consensus.NewBlockVerifier(store, store)
	forkLog := logger.GetLogger().WithFields(logrus.Fields{"component": "forkresolver"})
	forkResolver := consensus.NewForkResolver(store, store, forkLog)
	logger.Infof("block verifier and fork resolver ready: %T, %T", verifier, forkResolver)

	var healthChecker *health.HealthChecker
	if cfg.EnableMetrics {
		healthChecker = health.NewHealthChecker(publisher, ldb)
	}

	pubKey := []byte(cfg.PublisherPublicKey)
	if len(pubKey) == 0 {
		pubKey = []byte("powconsensusd-demo-publisher")
	}

	var wg sync.WaitGroup

	miningLog := logger.GetLogger().WithFields(logrus.Fields{"component": "mining-loop"})
	wg.Add(1)
	go func() {
		defer wg.Done()
		runMiningLoop(ctx, publisher, store, pubKey, miningLog)
	}()

	rpcServer := rpc.NewServer(&rpc.Config{Host: cfg.RPCAddr, Port: cfg.RPCPort}, publisher, store, securityManager)
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Infof("starting status RPC on %s:%d", cfg.RPCAddr, cfg.RPCPort)
		if err := rpcServer.Start(); err != nil {
			logger.Errorf("RPC server error: %v", err)
		}
	}()
	defer rpcServer.Stop()

	if cfg.EnableMetrics && healthChecker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			healthPort := cfg.RPCPort + 1000

			mux := http.NewServeMux()
			mux.HandleFunc("/health", healthChecker.HealthHandler)
			mux.HandleFunc("/ready", healthChecker.ReadinessHandler)

			server := &http.Server{
				Addr:    fmt.Sprintf(":%d", healthPort),
				Handler: mux,
			}

			logger.Infof("starting health check server on port %d", healthPort)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("health server error: %v", err)
			}
		}()
	}

	logger.Info("consensus host started")
	logger.Info("press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("received shutdown signal, stopping consensus host")

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all services stopped gracefully")
	case <-time.After(30 * time.Second):
		logger.Warning("timeout waiting for services to stop")
	}

	logger.Info("consensus host stopped")
	return nil
}

// runMiningLoop drives the publisher against the block store: initialize
// the next candidate, poll check_publish_block until it resolves, then
// persist the winning block and call on_accepted. It is a toy driver
// standing in for the host validator's own publishing loop, not a
// reimplementation of one.
func runMiningLoop(ctx context.Context, publisher *consensus.BlockPublisher, store *database.BlockStore, pubKey []byte, log *logrus.Entry) {
	tip := bootstrapTip(store, pubKey, log)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		header := core.NewBlock(tip.HeaderSignature(), tip.BlockNum()+1, pubKey)
		if !publisher.InitializeBlock(header) {
			log.Debug("initialize_block declined, retrying")
			if !sleepOrDone(ctx, time.Second) {
				return
			}
			continue
		}

		updateDone := make(chan struct{})
		go runUpdateBlockPoller(ctx, publisher, header, updateDone)

		accepted, ok := pollCheckPublishBlock(ctx, publisher, header, log)
		close(updateDone)
		if !ok {
			return
		}
		if !accepted {
			continue
		}

		if !publisher.FinalizeBlock(header) {
			log.Warning("finalize_block rejected the candidate")
			continue
		}

		blockID := header.Freeze()
		if err := store.PutBlock(header); err != nil {
			log.WithError(err).Error("failed to persist accepted block")
			continue
		}
		if err := store.PutSetting(chainTipSettingKey, blockID); err != nil {
			log.WithError(err).Warning("failed to persist chain tip setting")
		}
		publisher.OnAccepted()

		log.WithFields(logrus.Fields{
			"block_num": header.BlockNum(),
			"block_id":  blockID,
		}).Info("block accepted")
		tip = header
	}
}

// pollCheckPublishBlock calls check_publish_block until it succeeds, fails
// with a protocol error, or the context is cancelled. The second return
// value is false only when the caller should stop the whole mining loop
// (context cancellation); the first is whether a block was published.
func pollCheckPublishBlock(ctx context.Context, publisher *consensus.BlockPublisher, header *core.Block, log *logrus.Entry) (published bool, keepRunning bool) {
	for {
		select {
		case <-ctx.Done():
			publisher.OnCancelPublishBlock()
			return false, false
		default:
		}

		ok, err := publisher.CheckPublishBlock(header)
		if err != nil {
			log.WithError(err).Warning("check_publish_block failed, abandoning candidate")
			publisher.OnCancelPublishBlock()
			return false, true
		}
		if ok {
			return true, true
		}
		if !sleepOrDone(ctx, 100*time.Millisecond) {
			publisher.OnCancelPublishBlock()
			return false, false
		}
	}
}

// runUpdateBlockPoller is the auxiliary thread update_block's own doc
// comment calls for: while the main loop polls check_publish_block, this
// goroutine periodically asks the PERFORMANCE solver whether it has beaten
// the committed consensus field and, if so, writes the improvement in.
// It exits as soon as done is closed, which happens the moment the
// candidate is resolved one way or another.
func runUpdateBlockPoller(ctx context.Context, publisher *consensus.BlockPublisher, header *core.Block, done <-chan struct{}) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			publisher.UpdateBlock(header)
		}
	}
}

// sleepOrDone waits for d, returning false early if ctx is cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// bootstrapTip resumes the chain tip persisted from a prior run, or mints
// and persists a genesis block if the store is empty.
func bootstrapTip(store *database.BlockStore, pubKey []byte, log *logrus.Entry) interfaces.Block {
	if raw, err := store.Setting("", chainTipSettingKey, ""); err == nil {
		if tipID, ok := raw.(string); ok && tipID != "" {
			if tip, err := store.Block(tipID); err == nil {
				log.WithField("block_id", tipID).Info("resuming chain from the persisted tip")
				return tip
			}
			log.WithField("block_id", tipID).Warning("persisted chain tip not found in the block store, restarting from genesis")
		}
	}

	genesis := core.NewBlock("", 0, pubKey)
	genesis.Freeze()
	if err := store.PutBlock(genesis); err != nil {
		log.WithError(err).Error("failed to persist genesis block")
	}
	return genesis
}
