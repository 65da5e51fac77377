package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sompi/internal/balance"
	"github.com/mrz1836/sompi/internal/keys"
	"github.com/mrz1836/sompi/internal/ledger"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// mockDeriver produces deterministic placeholder addresses.
type mockDeriver struct {
	failAt int // fail with invalid key material at this index; -1 disables
}

func newMockDeriver() *mockDeriver {
	return &mockDeriver{failAt: -1}
}

func addr(chain keys.Chain, index uint32) string {
	return fmt.Sprintf("kaspa:mock-%d-%d", chain, index)
}

func (d *mockDeriver) DeriveAddress(chain keys.Chain, index uint32) (string, error) {
	if d.failAt >= 0 && int(index) >= d.failAt {
		return "", fmt.Errorf("%w: corrupted", sompierr.ErrInvalidKeyMaterial)
	}
	return addr(chain, index), nil
}

func (d *mockDeriver) DerivePrivateKey(keys.Chain, uint32) (*keys.PrivateKey, error) {
	return nil, sompierr.ErrInvalidKeyMaterial
}

func (d *mockDeriver) PathFor(chain keys.Chain, index uint32) keys.Path {
	return keys.NewPath(0, chain, index)
}

func (d *mockDeriver) Network() keys.Network {
	return keys.Mainnet
}

// mockOracle is a test double for BalanceSource.
type mockOracle struct {
	mu          sync.Mutex
	balances    map[string]uint64
	utxos       map[string][]balance.UTXO
	failing     map[string]bool
	failAll     bool
	utxoErr     error
	connectErr  error
	probed      []string
	connects    int
	disconnects int
}

func newMockOracle() *mockOracle {
	return &mockOracle{
		balances: make(map[string]uint64),
		utxos:    make(map[string][]balance.UTXO),
		failing:  make(map[string]bool),
	}
}

// fund sets a balance backed by a single matching UTXO.
func (m *mockOracle) fund(address string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[address] = amount
	m.utxos[address] = []balance.UTXO{{Address: address, TransactionID: "tx-" + address, Amount: amount}}
}

func (m *mockOracle) fail(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing[address] = true
}

func (m *mockOracle) WithConnection(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	if m.connectErr != nil {
		m.mu.Unlock()
		return m.connectErr
	}
	m.connects++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.disconnects++
		m.mu.Unlock()
	}()
	return fn(ctx)
}

func (m *mockOracle) BalanceByAddress(ctx context.Context, address string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probed = append(m.probed, address)
	if m.failAll || m.failing[address] {
		return 0, sompierr.ErrNetworkUnavailable
	}
	return m.balances[address], nil
}

func (m *mockOracle) UTXOsByAddresses(_ context.Context, addresses []string) (map[string][]balance.UTXO, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.utxoErr != nil {
		return nil, m.utxoErr
	}
	out := make(map[string][]balance.UTXO, len(addresses))
	for _, a := range addresses {
		out[a] = m.utxos[a]
	}
	return out, nil
}

func (m *mockOracle) probedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.probed)
}

func (m *mockOracle) connections() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects, m.disconnects
}

func testOptions(gap int) *Options {
	opts := DefaultOptions()
	opts.GapLimit = gap
	return opts
}

func TestScanner_GapLimitScenario(t *testing.T) {
	t.Parallel()
	oracle := newMockOracle()
	oracle.fund(addr(keys.Receive, 0), 10_00000000)
	oracle.fund(addr(keys.Receive, 3), 20_00000000)

	deriver := newMockDeriver()
	led := ledger.New(deriver, ledger.Options{})
	opts := testOptions(5)
	opts.ScanChange = false

	result, err := NewScanner(deriver, oracle, led, opts).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.AddressesFound)
	assert.Equal(t, uint64(30_00000000), result.TotalBalance)
	assert.Zero(t, result.NetworkErrorCount)

	receive, ok := result.ByChain(keys.Receive)
	require.True(t, ok)
	assert.Equal(t, uint32(8), receive.LastIndex, "halts after index 8")
	assert.Equal(t, 9, receive.AddressesScanned)
	assert.Equal(t, StateCompleted, receive.State)
	require.Len(t, receive.Addresses, 2)
	assert.Equal(t, uint32(0), receive.Addresses[0].Index)
	assert.Equal(t, uint32(3), receive.Addresses[1].Index)
	assert.Equal(t, "m/44'/111111'/0'/0/3", receive.Addresses[1].Path)
	assert.True(t, receive.Addresses[1].Reconciled)

	assert.Equal(t, uint64(30_00000000), led.AggregateBalance())
	assert.Equal(t, uint32(4), led.NextIndex(keys.Receive))
	rec, ok := led.Lookup(addr(keys.Receive, 3))
	require.True(t, ok)
	assert.True(t, rec.Used)
	assert.Len(t, rec.UTXOs, 1)
}

func TestScanner_GapTermination(t *testing.T) {
	t.Parallel()
	oracle := newMockOracle()
	opts := testOptions(5)
	opts.MaxIndexBound = 1000

	result, err := NewScanner(newMockDeriver(), oracle, nil, opts).Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Chains, 2)
	for _, c := range result.Chains {
		assert.Equal(t, 5, c.AddressesScanned, c.Chain.String())
		assert.Equal(t, uint32(4), c.LastIndex)
	}

	want := make([]string, 0, 10)
	for _, chain := range keys.Chains() {
		for i := uint32(0); i < 5; i++ {
			want = append(want, addr(chain, i))
		}
	}
	assert.Equal(t, want, oracle.probed)
	assert.False(t, result.HasFunds())
}

func TestScanner_IndexBound(t *testing.T) {
	t.Parallel()

	t.Run("explicit bound below gap limit", func(t *testing.T) {
		t.Parallel()
		opts := testOptions(5)
		opts.MaxIndexBound = 3
		opts.ScanChange = false

		result, err := NewScanner(newMockDeriver(), newMockOracle(), nil, opts).Scan(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, result.AddressesScanned)
	})

	t.Run("comprehensive bound is twice the gap limit", func(t *testing.T) {
		t.Parallel()
		oracle := newMockOracle()
		for i := uint32(0); i < 20; i += 2 {
			oracle.fund(addr(keys.Receive, i), 1)
		}
		opts := testOptions(5)
		opts.Comprehensive = true
		opts.ScanChange = false
		assert.Equal(t, uint32(10), opts.IndexBound())

		result, err := NewScanner(newMockDeriver(), oracle, nil, opts).Scan(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 10, result.AddressesScanned)
		assert.Equal(t, 5, result.AddressesFound)
	})

	t.Run("default bound", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, uint32(DefaultMaxIndexBound), testOptions(5).IndexBound())
	})
}

func TestScanner_NetworkErrorsDoNotAdvanceGap(t *testing.T) {
	t.Parallel()
	oracle := newMockOracle()
	oracle.fund(addr(keys.Receive, 0), 500)
	oracle.fail(addr(keys.Receive, 1))
	oracle.fail(addr(keys.Receive, 2))

	opts := testOptions(3)
	opts.ScanChange = false

	result, err := NewScanner(newMockDeriver(), oracle, nil, opts).Scan(context.Background())
	require.NoError(t, err, "network errors never abort the scan")

	receive, _ := result.ByChain(keys.Receive)
	assert.Equal(t, 6, receive.AddressesScanned, "0 funded, 1-2 failed, 3-5 empty")
	assert.Equal(t, 2, receive.NetworkErrorCount)
	assert.Equal(t, []uint32{1, 2}, receive.FailedIndices)
	assert.False(t, receive.Incomplete)
	assert.Equal(t, 2, result.NetworkErrorCount)
}

func TestScanner_NetworkErrorsCountedAsEmpty(t *testing.T) {
	t.Parallel()
	oracle := newMockOracle()
	oracle.fund(addr(keys.Receive, 0), 500)
	oracle.fail(addr(keys.Receive, 1))
	oracle.fail(addr(keys.Receive, 2))

	opts := testOptions(3)
	opts.ScanChange = false
	opts.CountNetworkErrorsAsEmpty = true

	result, err := NewScanner(newMockDeriver(), oracle, nil, opts).Scan(context.Background())
	require.NoError(t, err)

	receive, _ := result.ByChain(keys.Receive)
	assert.Equal(t, 4, receive.AddressesScanned)
	assert.Equal(t, 2, receive.NetworkErrorCount, "still reported separately from empty addresses")
}

func TestScanner_NetworkErrorBound(t *testing.T) {
	t.Parallel()
	oracle := newMockOracle()
	oracle.failAll = true

	opts := testOptions(20)
	opts.ScanChange = false
	opts.MaxConsecutiveNetworkErrors = 4

	result, err := NewScanner(newMockDeriver(), oracle, nil, opts).Scan(context.Background())
	require.NoError(t, err)

	receive, _ := result.ByChain(keys.Receive)
	assert.Equal(t, 4, receive.AddressesScanned)
	assert.True(t, receive.Incomplete)
	assert.Equal(t, StateCompleted, receive.State)
	assert.True(t, result.Incomplete)
}

func TestScanner_Cancellation(t *testing.T) {
	t.Parallel()
	oracle := newMockOracle()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOptions(20)
	opts.ProgressCallback = func(u ProgressUpdate) {
		if u.Chain == keys.Receive && u.Index == 2 {
			cancel()
		}
	}

	result, err := NewScanner(newMockDeriver(), oracle, nil, opts).Scan(ctx)
	require.ErrorIs(t, err, sompierr.ErrScanCanceled)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	assert.Equal(t, 3, oracle.probedCount(), "no probes after cancellation")
	receive, ok := result.ByChain(keys.Receive)
	require.True(t, ok)
	assert.Equal(t, StateAborted, receive.State)
	_, ok = result.ByChain(keys.Change)
	assert.False(t, ok)

	connects, disconnects := oracle.connections()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, disconnects, "connection released on cancellation")
}

func TestScanner_InvalidKeyMaterialAborts(t *testing.T) {
	t.Parallel()
	oracle := newMockOracle()
	oracle.fund(addr(keys.Receive, 0), 7)
	deriver := newMockDeriver()
	deriver.failAt = 2

	result, err := NewScanner(deriver, oracle, nil, testOptions(5)).Scan(context.Background())
	require.ErrorIs(t, err, sompierr.ErrInvalidKeyMaterial)

	receive, _ := result.ByChain(keys.Receive)
	assert.Equal(t, StateAborted, receive.State)
	assert.Equal(t, uint64(7), result.TotalBalance, "partial results survive")

	_, disconnects := oracle.connections()
	assert.Equal(t, 1, disconnects)
}

func TestScanner_ZeroedRootAborts(t *testing.T) {
	t.Parallel()
	root, err := keys.NewRootKeyFromMnemonic(
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
		"", keys.Mainnet, 0)
	require.NoError(t, err)
	root.Zero()

	_, err = NewScanner(root, newMockOracle(), nil, testOptions(5)).Scan(context.Background())
	require.ErrorIs(t, err, sompierr.ErrInvalidKeyMaterial)

	_, err = NewScanner(nil, newMockOracle(), nil, testOptions(5)).Scan(context.Background())
	require.ErrorIs(t, err, sompierr.ErrInvalidKeyMaterial)
}

func TestScanner_OneConnectionPerScan(t *testing.T) {
	t.Parallel()
	oracle := newMockOracle()
	oracle.fund(addr(keys.Change, 1), 9)

	_, err := NewScanner(newMockDeriver(), oracle, nil, testOptions(5)).Scan(context.Background())
	require.NoError(t, err)

	connects, disconnects := oracle.connections()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, disconnects)
	assert.Equal(t, 5+7, oracle.probedCount())
}

func TestScanner_ConnectFailure(t *testing.T) {
	t.Parallel()
	oracle := newMockOracle()
	oracle.connectErr = sompierr.ErrNetworkUnavailable

	result, err := NewScanner(newMockDeriver(), oracle, nil, testOptions(5)).Scan(context.Background())
	require.ErrorIs(t, err, sompierr.ErrNetworkUnavailable)
	assert.Zero(t, result.AddressesScanned)
}

func TestScanner_ReconciliationMismatch(t *testing.T) {
	t.Parallel()
	oracle := newMockOracle()
	a := addr(keys.Receive, 0)
	oracle.fund(a, 1000)
	oracle.utxos[a] = []balance.UTXO{{Address: a, Amount: 400}}

	deriver := newMockDeriver()
	led := ledger.New(deriver, ledger.Options{})
	opts := testOptions(2)
	opts.ScanChange = false

	result, err := NewScanner(deriver, oracle, led, opts).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Mismatches)
	found := result.AllAddresses()
	require.Len(t, found, 1)
	assert.False(t, found[0].Reconciled)
	assert.Equal(t, uint64(400), found[0].UTXOSum)
	assert.Equal(t, uint64(1000), led.AggregateBalance(), "authoritative balance wins")
}

func TestScanner_UTXODetailUnavailable(t *testing.T) {
	t.Parallel()
	oracle := newMockOracle()
	oracle.fund(addr(keys.Receive, 0), 1000)
	oracle.utxoErr = sompierr.ErrNetworkUnavailable

	opts := testOptions(2)
	opts.ScanChange = false

	result, err := NewScanner(newMockDeriver(), oracle, nil, opts).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), result.TotalBalance)
	found := result.AllAddresses()
	require.Len(t, found, 1)
	assert.True(t, found[0].UTXOsUnavailable)
	assert.Equal(t, 1, result.NetworkErrorCount)
	assert.Zero(t, result.Mismatches)
}

func TestScanner_RealDerivation(t *testing.T) {
	t.Parallel()
	root, err := keys.NewRootKeyFromMnemonic(
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
		"", keys.Mainnet, 0)
	require.NoError(t, err)
	defer root.Zero()

	target, err := root.DeriveAddress(keys.Change, 4)
	require.NoError(t, err)

	oracle := newMockOracle()
	oracle.fund(target, 42)

	var updates []ProgressUpdate
	opts := testOptions(5)
	opts.ProgressCallback = func(u ProgressUpdate) { updates = append(updates, u) }

	result, err := NewScanner(root, oracle, nil, opts).Scan(context.Background())
	require.NoError(t, err)

	found := result.AllAddresses()
	require.Len(t, found, 1)
	assert.Equal(t, target, found[0].Address)
	assert.Equal(t, keys.Change, found[0].Chain)
	assert.Equal(t, "m/44'/111111'/0'/1/4", found[0].Path)

	var phases []string
	for _, u := range updates {
		if u.Phase == PhaseFound || u.Phase == PhaseComplete {
			phases = append(phases, u.Phase)
		}
	}
	assert.Equal(t, []string{PhaseComplete, PhaseFound, PhaseComplete}, phases)
}

func TestOptions_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultOptions().Validate())

	err := (&Options{GapLimit: 0}).Validate()
	require.ErrorIs(t, err, ErrInvalidGapLimit)

	err = (&Options{GapLimit: 5, MaxIndexBound: keys.MaxIndex + 1}).Validate()
	require.ErrorIs(t, err, ErrInvalidIndexBound)

	err = (&Options{GapLimit: 5, MaxConsecutiveNetworkErrors: -1}).Validate()
	require.ErrorIs(t, err, sompierr.ErrInvalidInput)

	_, err = NewScanner(newMockDeriver(), newMockOracle(), nil, &Options{}).Scan(context.Background())
	require.ErrorIs(t, err, ErrInvalidGapLimit)
}

func TestScanSession_StateMachine(t *testing.T) {
	t.Parallel()
	sess := newScanSession(keys.Receive, &Options{GapLimit: 2, MaxIndexBound: 10, MaxConsecutiveNetworkErrors: 2})
	assert.Equal(t, StateIdle, sess.State)
	assert.False(t, sess.shouldProbe(0), "idle sessions do not probe")

	sess.begin()
	assert.True(t, sess.shouldProbe(0))
	sess.recordNetworkError()
	assert.Zero(t, sess.ConsecutiveEmpty)
	sess.recordEmpty()
	assert.Zero(t, sess.ConsecutiveNetworkErrors)
	sess.recordEmpty()
	assert.False(t, sess.shouldProbe(3))

	sess.complete()
	assert.Equal(t, StateCompleted, sess.State)

	aborted := newScanSession(keys.Change, DefaultOptions())
	aborted.begin()
	boom := errors.New("boom")
	aborted.abort(boom)
	aborted.complete()
	assert.Equal(t, StateAborted, aborted.State)
	assert.Equal(t, boom, aborted.Err)
}
