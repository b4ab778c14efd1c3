package chain

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vulpemventures/go-bitcoin/address"
	"github.com/vulpemventures/go-bitcoin/network"
	"github.com/vulpemventures/go-bitcoin/transaction"
)

type memUTXO struct {
	UTXO
	seq     int
	spent   bool
	spentBy string
}

type memTx struct {
	TxInfo
	seq       int
	addresses map[string]bool
	inputs    []string
	outputs   int
	rbf       bool
}

// MemoryService is a Service backed by an in memory chain. Coins enter it
// through Fund, blocks are produced by Mine and broadcast transactions are
// script-verified against the outputs they spend before being accepted in
// the mempool. Mempool transactions signaling BIP-125 can be replaced by
// conflicting ones paying a higher fee. It is safe for concurrent use.
type MemoryService struct {
	lock sync.RWMutex

	net     *network.Network
	height  uint32
	seq     int
	fees    map[int]uint64
	utxos   map[string]*memUTXO
	txs     map[string]*memTx
	mempool []string
	now     func() time.Time
}

// NewMemoryService returns an empty chain for net, at height 0.
func NewMemoryService(net *network.Network) *MemoryService {
	if net == nil {
		net = network.Bitcoin
	}
	return &MemoryService{
		net:   net,
		fees:  make(map[int]uint64),
		utxos: make(map[string]*memUTXO),
		txs:   make(map[string]*memTx),
		now:   time.Now,
	}
}

// SetFeeEstimate sets the fee rate returned for confirmation within
// blocks. Requests for more blocks fall back to the closest lower target.
func (s *MemoryService) SetFeeEstimate(blocks int, satPerKB uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.fees[blocks] = satPerKB
}

// Fund adds to the mempool a transaction paying value to addr and returns
// its only output.
func (s *MemoryService) Fund(addr string, value uint64) (UTXO, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	tx := transaction.NewTx(2)
	tx.Network = s.net

	var counter [8]byte
	binary.LittleEndian.PutUint64(counter[:], uint64(s.seq))
	hash := sha256.Sum256(append([]byte("funding"), counter[:]...))
	in := transaction.NewTxInput(hash[:], 0xffffffff)
	in.Script = append([]byte{byte(len(counter))}, counter[:]...)
	tx.AddInput(in)
	if _, err := tx.AddOutputToAddress(addr, value); err != nil {
		return UTXO{}, err
	}

	raw, err := tx.Serialize()
	if err != nil {
		return UTXO{}, err
	}
	s.accept(tx, raw, 0)
	return s.utxos[fmt.Sprintf("%s:%d", tx.TxID(), 0)].UTXO, nil
}

// Mine confirms the mempool in the next block and appends n-1 empty
// blocks.
func (s *MemoryService) Mine(n int) uint32 {
	s.lock.Lock()
	defer s.lock.Unlock()

	if n <= 0 {
		return s.height
	}
	next := s.height + 1
	for _, txid := range s.mempool {
		tx := s.txs[txid]
		tx.BlockHeight = next
		tx.Confirmed = true
	}
	for _, u := range s.utxos {
		if u.BlockHeight == 0 {
			if tx, ok := s.txs[u.TxID]; ok && tx.Confirmed {
				u.BlockHeight = tx.BlockHeight
			}
		}
	}
	s.mempool = nil
	s.height += uint32(n)
	return s.height
}

// Mempool returns the ids of the unconfirmed transactions.
func (s *MemoryService) Mempool() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]string{}, s.mempool...)
}

func (s *MemoryService) GetUTXOs(
	_ context.Context, addr, afterTxID string, limit int,
) ([]UTXO, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	list := make([]*memUTXO, 0)
	for _, u := range s.utxos {
		if !u.spent && u.Address == addr {
			list = append(list, u)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	out := make([]UTXO, 0, len(list))
	skipping := afterTxID != ""
	for _, u := range list {
		if skipping {
			if u.TxID == afterTxID {
				skipping = false
			}
			continue
		}
		if afterTxID != "" && u.TxID == afterTxID {
			continue
		}
		utxo := u.UTXO
		utxo.Confirmations = s.confirmations(u.BlockHeight)
		out = append(out, utxo)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryService) GetTransaction(_ context.Context, txid string) (*TxInfo, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	tx, ok := s.txs[txid]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", txid, ErrNotFound)
	}
	info := tx.TxInfo
	info.Raw = append([]byte{}, tx.Raw...)
	return &info, nil
}

func (s *MemoryService) GetTransactions(
	_ context.Context, addr, afterTxID string, limit int,
) ([]TxInfo, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	list := make([]*memTx, 0)
	for _, tx := range s.txs {
		if tx.addresses[addr] {
			list = append(list, tx)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	out := make([]TxInfo, 0, len(list))
	skipping := afterTxID != ""
	for _, tx := range list {
		if skipping {
			if tx.TxID == afterTxID {
				skipping = false
			}
			continue
		}
		info := tx.TxInfo
		info.Raw = append([]byte{}, tx.Raw...)
		out = append(out, info)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SendRawTransaction accepts a transaction spending known unspent outputs
// with valid scripts. Re-sending a known transaction returns its id.
func (s *MemoryService) SendRawTransaction(_ context.Context, raw []byte) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := transaction.NewTxFromBytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrRejected, err)
	}
	tx.Network = s.net
	txid := tx.TxID()
	if _, ok := s.txs[txid]; ok {
		return txid, nil
	}

	seen := make(map[string]bool)
	conflicts := make(map[string]bool)
	for _, in := range tx.Inputs {
		outpoint := in.Outpoint()
		u, ok := s.utxos[outpoint]
		if !ok || seen[outpoint] {
			return "", fmt.Errorf("%w: missing input %s", ErrRejected, outpoint)
		}
		if u.spent {
			spender, ok := s.txs[u.spentBy]
			if !ok || spender.Confirmed || !spender.rbf {
				return "", fmt.Errorf("%w: input %s already spent", ErrRejected, outpoint)
			}
			conflicts[u.spentBy] = true
		}
		seen[outpoint] = true
		in.Value = u.Value
		in.LockingScript = u.Script
	}
	if tx.OutputTotal() > tx.InputTotal() {
		return "", fmt.Errorf("%w: outputs exceed inputs", ErrRejected)
	}
	fee := tx.InputTotal() - tx.OutputTotal()
	var replaced uint64
	for txid := range conflicts {
		replaced += s.txs[txid].Fee
	}
	if len(conflicts) > 0 && fee <= replaced {
		return "", fmt.Errorf(
			"%w: replacement fee %d must exceed %d", ErrRejected, fee, replaced,
		)
	}
	if err := tx.Verify(); err != nil {
		return "", fmt.Errorf("%w: %s", ErrRejected, err)
	}

	for txid := range conflicts {
		s.evict(txid)
	}
	s.accept(tx, raw, fee)
	return txid, nil
}

func (s *MemoryService) EstimateFee(_ context.Context, blocks int) (uint64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	best, fee := -1, s.net.FeeDefault
	for target, rate := range s.fees {
		if target <= blocks && target > best {
			best, fee = target, rate
		}
	}
	return fee, nil
}

func (s *MemoryService) BlockCount(context.Context) (uint32, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.height, nil
}

// accept records tx in the mempool, spends its inputs and indexes its
// outputs. Callers hold the write lock.
func (s *MemoryService) accept(tx *transaction.Transaction, raw []byte, fee uint64) {
	s.seq++
	txid := tx.TxID()
	mtx := &memTx{
		TxInfo: TxInfo{
			TxID: txid,
			Raw:  append([]byte{}, raw...),
			Date: s.now(),
			Fee:  fee,
		},
		seq:       s.seq,
		addresses: make(map[string]bool),
		outputs:   len(tx.Outputs),
		rbf:       tx.SignalsRBF(),
	}

	for _, in := range tx.Inputs {
		outpoint := in.Outpoint()
		mtx.inputs = append(mtx.inputs, outpoint)
		if u, ok := s.utxos[outpoint]; ok {
			u.spent = true
			u.spentBy = txid
			if u.Address != "" {
				mtx.addresses[u.Address] = true
			}
		}
	}
	for i, out := range tx.Outputs {
		u := &memUTXO{
			UTXO: UTXO{
				TxID:       txid,
				OutputN:    uint32(i),
				Value:      out.Value,
				Script:     append([]byte{}, out.Script...),
				ScriptType: out.Type,
			},
			seq: s.seq,
		}
		if a, err := address.FromScript(out.Script, s.net); err == nil {
			u.Address = a.String()
			mtx.addresses[u.Address] = true
		}
		s.utxos[u.Outpoint()] = u
	}
	s.txs[txid] = mtx
	s.mempool = append(s.mempool, txid)
}

// evict drops a mempool transaction and its descendants, giving back the
// outputs it spent. Callers hold the write lock.
func (s *MemoryService) evict(txid string) {
	mtx, ok := s.txs[txid]
	if !ok || mtx.Confirmed {
		return
	}
	for i := 0; i < mtx.outputs; i++ {
		outpoint := fmt.Sprintf("%s:%d", txid, i)
		if u, ok := s.utxos[outpoint]; ok && u.spent {
			s.evict(u.spentBy)
		}
		delete(s.utxos, outpoint)
	}
	for _, outpoint := range mtx.inputs {
		if u, ok := s.utxos[outpoint]; ok && u.spentBy == txid {
			u.spent = false
			u.spentBy = ""
		}
	}
	delete(s.txs, txid)
	for i, id := range s.mempool {
		if id == txid {
			s.mempool = append(s.mempool[:i], s.mempool[i+1:]...)
			break
		}
	}
}

func (s *MemoryService) confirmations(blockHeight uint32) uint32 {
	if blockHeight == 0 || blockHeight > s.height {
		return 0
	}
	return s.height - blockHeight + 1
}
