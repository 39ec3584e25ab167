package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discretgraph/graphauth/internal/config"
	"github.com/discretgraph/graphauth/internal/crypto"
)

func testConfig(dataDir, backend string) *config.Config {
	return &config.Config{
		DataDir: dataDir,
		Store:   config.StoreConfig{Backend: backend, SyncWrites: false},
	}
}

func newInitKeypairCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "init-keypair", RunE: runInitKeypair}
	cmd.Flags().StringP("out", "o", "node.key", "")
	return cmd
}

func TestRunInitKeypairWritesA32ByteSeed(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "node.key")

	cmd := newInitKeypairCmd()
	require.NoError(t, cmd.Flags().Set("out", out))
	require.NoError(t, runInitKeypair(cmd, nil))

	seed, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Len(t, seed, 32)

	_, err = crypto.NewSigner(seed)
	assert.NoError(t, err)
}

func newIssueTokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "issue-peer-token", RunE: runIssueToken}
	cmd.Flags().StringP("secret", "", "", "")
	cmd.Flags().StringP("node-id", "", "", "")
	cmd.Flags().Duration("ttl", 0, "")
	return cmd
}

func TestRunIssueTokenRequiresSecretAndNodeID(t *testing.T) {
	cmd := newIssueTokenCmd()
	err := runIssueToken(cmd, nil)
	assert.Error(t, err)

	require.NoError(t, cmd.Flags().Set("secret", "s"))
	err = runIssueToken(cmd, nil)
	assert.Error(t, err, "node-id is still missing")
}

func TestRunIssueTokenSucceedsWithBothFlags(t *testing.T) {
	cmd := newIssueTokenCmd()
	require.NoError(t, cmd.Flags().Set("secret", "shared-secret"))
	require.NoError(t, cmd.Flags().Set("node-id", "peer-a"))
	require.NoError(t, cmd.Flags().Set("ttl", "1h"))

	assert.NoError(t, runIssueToken(cmd, nil))
}

func TestOpenRowStoreSelectsBackendByConfig(t *testing.T) {
	cfg := testConfig(t.TempDir(), "badger")
	rows, err := openRowStore(cfg)
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	cfg = testConfig(t.TempDir(), "pebble")
	rows, err = openRowStore(cfg)
	require.NoError(t, err)
	require.NoError(t, rows.Close())
}
