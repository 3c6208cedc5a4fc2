package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bitpond/appkit/core/ledger/http"
	"github.com/bitpond/appkit/core/txn"
	"github.com/stretchr/testify/require"
)

func TestLedgerd_Scenario(t *testing.T) {
	dir := t.TempDir()
	sigs := make(chan os.Signal)
	done := make(chan error, 1)

	go func() {
		done <- runWithCfg([]string{name, "--config", dir, "start",
			"--listen", "127.0.0.1:0", "--round", "20ms", "--token", "secret"},
			config{Channel: sigs, Writer: new(bytes.Buffer)})
	}()

	waitDaemon(t, dir)

	addr := txn.Address{7}

	out := new(bytes.Buffer)
	err := runWithCfg([]string{name, "--config", dir, "ledger", "fund",
		"--address", addr.String(), "--amount", "5000"}, config{Writer: out})
	require.NoError(t, err)
	require.Equal(t, "credited 5000 to "+addr.String()+"\n", out.String())

	out.Reset()
	err = runWithCfg([]string{name, "--config", dir, "ledger", "info"}, config{Writer: out})
	require.NoError(t, err)
	require.Contains(t, out.String(), "genesis: appkit-dev\n")

	url := ""
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "address: ") {
			url = strings.TrimPrefix(line, "address: ")
		}
	}

	client, err := http.NewClient(url, http.WithClientToken("secret"))
	require.NoError(t, err)

	acct, err := client.GetAccount(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, uint64(5000), acct.Balance)

	err = runWithCfg([]string{name, "--config", dir, "ledger", "fund",
		"--address", "abc", "--amount", "1"}, config{Writer: out})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid address")

	// Simulate a Ctrl+C
	close(sigs)
	require.NoError(t, <-done)

	_, err = os.Stat(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
}

func TestLedgerd_BadCommand(t *testing.T) {
	err := runWithCfg([]string{name, "ledger", "fund"}, config{Writer: new(bytes.Buffer)})
	require.EqualError(t, err, `Required flags "address, amount" not set`)
}

// -----------------------------------------------------------------------------
// Utility functions

func waitDaemon(t *testing.T, dir string) {
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "daemon.sock"))
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)
}
