package cli

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sompi/internal/balance"
	"github.com/mrz1836/sompi/internal/config"
	"github.com/mrz1836/sompi/internal/keys"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// withMockPrompts replaces prompt functions for testing and restores on cleanup.
func withMockPrompts(t *testing.T, password []byte) {
	t.Helper()
	origPW := promptPasswordFn
	origNewPW := promptNewPasswordFn
	origPassphrase := promptPassphraseFn
	origMnemonic := promptMnemonicFn
	t.Cleanup(func() {
		promptPasswordFn = origPW
		promptNewPasswordFn = origNewPW
		promptPassphraseFn = origPassphrase
		promptMnemonicFn = origMnemonic
	})
	promptPasswordFn = func(_ string) ([]byte, error) {
		cp := make([]byte, len(password))
		copy(cp, password)
		return cp, nil
	}
	promptNewPasswordFn = func() ([]byte, error) {
		cp := make([]byte, len(password))
		copy(cp, password)
		return cp, nil
	}
	promptPassphraseFn = func() (string, error) { return "", nil }
	promptMnemonicFn = func() (string, error) { return testMnemonic, nil }
}

// fakeQueryService serves balances and UTXOs from memory.
type fakeQueryService struct {
	mu       sync.Mutex
	balances map[string]uint64
	utxos    map[string][]balance.UTXO
}

func newFakeQueryService() *fakeQueryService {
	return &fakeQueryService{
		balances: make(map[string]uint64),
		utxos:    make(map[string][]balance.UTXO),
	}
}

func (f *fakeQueryService) fund(address string, amounts ...uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range amounts {
		f.balances[address] += a
		f.utxos[address] = append(f.utxos[address], balance.UTXO{
			Address:       address,
			TransactionID: "tx-" + address[len(address)-6:],
			OutputIndex:   uint32(i), //nolint:gosec // test data
			Amount:        a,
		})
	}
}

func (f *fakeQueryService) Connect(context.Context) error { return nil }
func (f *fakeQueryService) Disconnect() error             { return nil }

func (f *fakeQueryService) GetBalance(_ context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[address], nil
}

func (f *fakeQueryService) GetBalances(_ context.Context, addresses []string) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(addresses))
	for i, a := range addresses {
		out[i] = f.balances[a]
	}
	return out, nil
}

func (f *fakeQueryService) GetUTXOs(_ context.Context, addresses []string) (map[string][]balance.UTXO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]balance.UTXO, len(addresses))
	for _, a := range addresses {
		out[a] = f.utxos[a]
	}
	return out, nil
}

// withQueryService routes every command's oracle to svc.
func withQueryService(t *testing.T, svc balance.QueryService) {
	t.Helper()
	orig := newQueryService
	t.Cleanup(func() { newQueryService = orig })
	newQueryService = func(*config.Config, zerolog.Logger) balance.QueryService { return svc }
}

// resetCommandState restores every flag variable to its default. Cobra
// commands are package globals, so values would otherwise leak between runs.
func resetCommandState() {
	homeDir, outputFormat, verbose, networkName = "", "auto", false, ""
	scanWallet = walletFlags{name: "main"}
	receiveWallet = walletFlags{name: "main"}
	changeWallet = walletFlags{name: "main"}
	locateWallet = walletFlags{name: "main"}
	scanGapLimit, scanMaxIndex = 0, 0
	scanComprehensive, scanNoChange, scanErrorsAsEmpty = false, false, false
	locateMaxSearch, locateShowKey = 0, false
	balanceVerify = false
	sufficiencyAmount, sufficiencyFee = "", "0"
	sealGenerate, sealWords = false, 24
	mnemonicWords = 24
	configForce = false
}

// testHome prepares an isolated sompi home and environment.
func testHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	t.Setenv(config.EnvLogLevel, "off")
	for _, env := range []string{
		config.EnvNetwork, config.EnvAPIURL, config.EnvGapLimit,
		config.EnvOutputFormat, config.EnvVerbose, config.EnvStorage,
	} {
		t.Setenv(env, "")
	}

	orig := vaultWorkFactor
	vaultWorkFactor = 10
	t.Cleanup(func() { vaultWorkFactor = orig })
	return home
}

// execute runs the root command with args and captures its output.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetCommandState()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// deriveAddress returns the test mnemonic's mainnet address at chain/index.
func deriveAddress(t *testing.T, chain keys.Chain, index uint32) string {
	t.Helper()
	root, err := keys.NewRootKeyFromMnemonic(testMnemonic, "", keys.Mainnet, 0)
	require.NoError(t, err)
	defer root.Zero()
	address, err := root.DeriveAddress(chain, index)
	require.NoError(t, err)
	return address
}

// sealTestVault creates the "main" vault for testMnemonic.
func sealTestVault(t *testing.T) {
	t.Helper()
	_, _, err := execute(t, "vault", "seal", "main", "-o", "json")
	require.NoError(t, err)
}
