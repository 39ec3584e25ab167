package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/discretgraph/graphauth/internal/authservice"
	"github.com/discretgraph/graphauth/internal/authservice/peerapi"
	"github.com/discretgraph/graphauth/internal/config"
	"github.com/discretgraph/graphauth/internal/crypto"
	"github.com/discretgraph/graphauth/internal/logging"
	"github.com/discretgraph/graphauth/internal/metrics"
	"github.com/discretgraph/graphauth/internal/store"
	"github.com/discretgraph/graphauth/internal/store/sqlitelog"
	"github.com/discretgraph/graphauth/internal/writer"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "graphauthd",
		Short:   "graphauthd - the authorisation engine for a local, encrypted, graph-structured P2P database",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authorisation service and its peer HTTP surface",
		RunE:  runServe,
	}
	serveCmd.Flags().StringP("config", "c", "", "Configuration file path")
	serveCmd.Flags().StringP("data-dir", "d", "", "Data directory path")
	serveCmd.Flags().StringP("listen", "l", ":8443", "Peer API listen address")
	serveCmd.Flags().StringP("log-level", "", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringP("tls-cert", "", "", "TLS certificate file (stored in the configuration; the peer API listener serves plain HTTP)")
	serveCmd.Flags().StringP("tls-key", "", "", "TLS private key file (stored in the configuration; the peer API listener serves plain HTTP)")
	serveCmd.Flags().StringP("store-backend", "", "badger", "Row store backend (badger, pebble)")

	initKeypairCmd := &cobra.Command{
		Use:   "init-keypair",
		Short: "Generate a new Ed25519 node keypair and write its seed to --out",
		RunE:  runInitKeypair,
	}
	initKeypairCmd.Flags().StringP("out", "o", "node.key", "Path to write the 32-byte signing seed")

	issueTokenCmd := &cobra.Command{
		Use:   "issue-peer-token",
		Short: "Mint a bearer token a peer can use to authenticate to this node's peer API",
		RunE:  runIssueToken,
	}
	issueTokenCmd.Flags().StringP("secret", "", "", "JWT signing secret (or set GRAPHAUTHD_PEER_JWT_SECRET)")
	issueTokenCmd.Flags().StringP("node-id", "", "", "Identifier of the peer being issued a token")
	issueTokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")

	rootCmd.AddCommand(serveCmd, initKeypairCmd, issueTokenCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.Configure(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	logrus.SetFormatter(logger.Formatter)
	logrus.SetLevel(logger.GetLevel())

	logrus.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"date":    date,
	}).Info("starting graphauthd")

	rec := metrics.NewRecorder()

	rows, err := openRowStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open row store: %w", err)
	}
	defer rows.Close()

	dellog, err := sqlitelog.Open(filepath.Join(cfg.DataDir, "deletions.db"))
	if err != nil {
		return fmt.Errorf("failed to open deletion log: %w", err)
	}
	defer dellog.Close()

	bw := writer.NewBatchedWriter(rows, dellog, writer.Options{
		MaxBatch: cfg.Store.WriterBatchSize,
		Interval: time.Duration(cfg.Store.WriterIntervalMS) * time.Millisecond,
		Recorder: rec,
	})

	svc := authservice.NewService(bw, rows, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go bw.Run(ctx)
	go svc.Run(ctx)

	peerSecret := []byte(cfg.Peer.JWTSecret)
	peerSrv := peerapi.NewServer(svc, cfg.Listen, peerSecret, rec, cfg.Metrics.Enable)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logrus.Info("received shutdown signal")
		cancel()
	}()

	if err := peerSrv.Start(ctx); err != nil {
		return fmt.Errorf("peer API server error: %w", err)
	}

	logrus.Info("graphauthd stopped")
	return nil
}

func openRowStore(cfg *config.Config) (store.RowStore, error) {
	switch cfg.Store.Backend {
	case "pebble":
		return store.NewPebbleStore(store.PebbleOptions{DataDir: cfg.DataDir})
	default:
		return store.NewBadgerStore(store.BadgerOptions{DataDir: cfg.DataDir, SyncWrites: cfg.Store.SyncWrites})
	}
}

func runInitKeypair(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("failed to generate seed: %w", err)
	}

	signer, err := crypto.NewSigner(seed)
	if err != nil {
		return fmt.Errorf("failed to derive keypair from seed: %w", err)
	}

	if err := os.WriteFile(out, seed, 0o600); err != nil {
		return fmt.Errorf("failed to write seed file: %w", err)
	}

	fmt.Printf("wrote signing seed to %s\nverifying key: %x\n", out, signer.VerifyingKey())
	return nil
}

func runIssueToken(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		secret = os.Getenv("GRAPHAUTHD_PEER_JWT_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("a JWT signing secret is required: --secret or GRAPHAUTHD_PEER_JWT_SECRET")
	}
	nodeID, _ := cmd.Flags().GetString("node-id")
	if nodeID == "" {
		return fmt.Errorf("--node-id is required")
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")

	token, err := peerapi.GenerateToken([]byte(secret), nodeID, ttl)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}
