package balance

import (
	"context"
	"errors"
	"sync"
)

var errTransport = errors.New("connection reset by peer")

type mockService struct {
	mu          sync.Mutex
	balances    map[string]uint64
	utxos       map[string][]UTXO
	connectErr  error
	balanceErr  error
	block       bool
	short       bool
	connects    int
	disconnects int
	calls       int
	batchSizes  []int
}

func newMockService() *mockService {
	return &mockService{
		balances: make(map[string]uint64),
		utxos:    make(map[string][]UTXO),
	}
}

func (m *mockService) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connects++
	return nil
}

func (m *mockService) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	return nil
}

func (m *mockService) GetBalance(ctx context.Context, address string) (uint64, error) {
	m.mu.Lock()
	m.calls++
	block, err := m.block, m.balanceErr
	balance := m.balances[address]
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (m *mockService) GetBalances(_ context.Context, addresses []string) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.batchSizes = append(m.batchSizes, len(addresses))
	out := make([]uint64, 0, len(addresses))
	for _, a := range addresses {
		out = append(out, m.balances[a])
	}
	if m.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (m *mockService) GetUTXOs(_ context.Context, addresses []string) (map[string][]UTXO, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	out := make(map[string][]UTXO)
	for _, a := range addresses {
		if u, ok := m.utxos[a]; ok {
			out[a] = u
		}
	}
	return out, nil
}

func (m *mockService) counts() (connects, disconnects, calls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects, m.disconnects, m.calls
}
