// ====================================
// File: cmd/engine/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/uponlylabs/uponly-engine/internal/config"
	"github.com/uponlylabs/uponly-engine/internal/cranker"
	"github.com/uponlylabs/uponly-engine/internal/engine"
	"github.com/uponlylabs/uponly-engine/internal/ledger"
	"github.com/uponlylabs/uponly-engine/internal/logger"
	"github.com/uponlylabs/uponly-engine/internal/storage"
	"github.com/uponlylabs/uponly-engine/internal/storage/postgres"
	"github.com/uponlylabs/uponly-engine/internal/wallet"
)

const (
	paymentDecimals = 6
	saleDecimals    = 9

	// Deployer treasury minted at bootstrap, payment base units.
	deployerFloat = 1_000_000 * 1_000_000
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to engine configuration")
	walletsPath := flag.String("wallets", "configs/wallets.csv", "path to wallets CSV")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("Failed to load config", zap.Error(err))
	}

	log, err := logger.Init(cfg.DebugLogging, cfg.LogFile)
	if err != nil {
		zap.NewExample().Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer log.Sync()

	log.Info("Starting sale engine")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log, *walletsPath); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("Engine execution error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, walletsPath string) error {
	deployer, crankWallet := loadIdentities(log, walletsPath)

	var journal storage.Storage
	if cfg.PostgresURL != "" {
		var err error
		journal, err = postgres.NewStorage(cfg.PostgresURL, log)
		if err != nil {
			return err
		}
		defer journal.Close()
		if err := journal.RunMigrations(); err != nil {
			return err
		}
	}

	lgr := ledger.New(solana.NewWallet().PublicKey(), log)

	paymentMint, err := lgr.CreateMint(deployer.PublicKey, paymentDecimals)
	if err != nil {
		return err
	}
	saleMint, err := lgr.CreateMint(deployer.PublicKey, saleDecimals)
	if err != nil {
		return err
	}
	if err := fundDeployer(ctx, lgr, deployer.PublicKey, paymentMint, saleMint); err != nil {
		return err
	}

	eng, err := engine.New(engine.Options{
		Config:  cfg,
		Ledger:  lgr,
		Logger:  log,
		Journal: journal,
	})
	if err != nil {
		return err
	}
	if err := eng.Initialize(ctx, deployer.PublicKey, saleMint, paymentMint); err != nil {
		return err
	}
	if err := eng.InitializeFoundersPool(ctx, deployer.PublicKey); err != nil {
		return err
	}
	log.Info("Sale initialized",
		zap.String("deployer", logger.ShortAddress(deployer.PublicKey.String())),
		zap.String("payment_mint", logger.ShortAddress(paymentMint.String())),
		zap.String("sale_mint", logger.ShortAddress(saleMint.String())))

	crank, err := cranker.New(cranker.Config{
		Engine:   eng,
		Identity: crankWallet.PublicKey,
		Interval: cfg.CrankInterval,
		Workers:  cfg.CrankWorkers,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	return crank.Run(ctx)
}

// loadIdentities reads the deployer and cranker wallets from the CSV, falling
// back to fresh keys when the file or a named wallet is missing.
func loadIdentities(log *zap.Logger, path string) (*wallet.Wallet, *wallet.Wallet) {
	wallets, err := wallet.LoadWallets(path)
	if err != nil {
		log.Warn("No wallet file, generating ephemeral identities", zap.Error(err))
		return wallet.Generate(), wallet.Generate()
	}
	deployer, ok := wallets["deployer"]
	if !ok {
		deployer = wallet.Generate()
	}
	crank, ok := wallets["cranker"]
	if !ok {
		crank = wallet.Generate()
	}
	return deployer, crank
}

// fundDeployer issues the deployer's payment float and the bootstrap sale
// deposit while the deployer still holds both mint authorities.
func fundDeployer(ctx context.Context, lgr *ledger.Ledger, deployer, paymentMint, saleMint solana.PublicKey) error {
	if _, err := lgr.CreateAccount(deployer, paymentMint); err != nil {
		return err
	}
	if _, err := lgr.CreateAccount(deployer, saleMint); err != nil {
		return err
	}
	return lgr.Execute(ctx, []solana.PublicKey{deployer}, func(tx *ledger.Tx) error {
		if err := tx.MintTo(paymentMint, deployer, deployerFloat, deployer); err != nil {
			return err
		}
		return tx.MintTo(saleMint, deployer, 1_000_000_000, deployer)
	})
}
