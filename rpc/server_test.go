package rpc

import (
	"context"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gluwa/creditcoin-pow-consensus/consensus"
	"github.com/gluwa/creditcoin-pow-consensus/core"
	"github.com/gluwa/creditcoin-pow-consensus/database"
	"github.com/sirupsen/logrus"
)

// memDB is a minimal in-memory database.Database for RPC handler tests.
type memDB struct {
	data map[string][]byte
}

func newMemDB() *memDB { return &memDB{data: make(map[string][]byte)} }

func (m *memDB) Get(key []byte) ([]byte, error) {
	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	return v, nil
}
func (m *memDB) Put(key []byte, value []byte) error { m.data[string(key)] = value; return nil }
func (m *memDB) Delete(key []byte) error             { delete(m.data, string(key)); return nil }
func (m *memDB) Close() error                        { return nil }

func newTestServer(t *testing.T) (*Server, *database.BlockStore) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := log.WithField("component", "test")

	store := database.NewBlockStore(newMemDB())
	publisher := consensus.NewBlockPublisher(context.Background(), store, store, "/bin/true", entry)

	s := NewServer(&Config{Host: "127.0.0.1", Port: 0}, publisher, store, nil)
	return s, store
}

func TestHandleMethod_Web3ClientVersion(t *testing.T) {
	s, _ := newTestServer(t)
	result, err := s.handleMethod("web3_clientVersion", nil)
	if err != nil {
		t.Fatalf("handleMethod: %v", err)
	}
	if result != "powconsensusd/1.0.0" {
		t.Fatalf("web3_clientVersion = %v, want powconsensusd/1.0.0", result)
	}
}

func TestHandleMethod_UnknownMethod(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.handleMethod("no_such_method", nil); err == nil {
		t.Fatal("handleMethod(unknown method): want error, got nil")
	}
}

func TestHandleMethod_GetRemainingTime(t *testing.T) {
	s, _ := newTestServer(t)
	result, err := s.handleMethod("pow_getRemainingTime", nil)
	if err != nil {
		t.Fatalf("handleMethod: %v", err)
	}
	if _, ok := result.(float64); !ok {
		t.Fatalf("pow_getRemainingTime result type = %T, want float64", result)
	}
}

func TestPowGetTipDifficulty_MissingParam(t *testing.T) {
	s, _ := newTestServer(t)
	if _, err := s.handleMethod("pow_getTipDifficulty", nil); err == nil {
		t.Fatal("pow_getTipDifficulty with no params: want error, got nil")
	}
}

func TestPowGetTipDifficulty_ReturnsDifficultyOfStoredBlock(t *testing.T) {
	s, store := newTestServer(t)
	b := core.NewBlock("prev", 1, []byte("pub"))
	b.SetConsensus(consensus.SerializeFields(12, consensus.EncodeNonce(1), 1000))
	if err := store.PutBlock(b); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	result, err := s.handleMethod("pow_getTipDifficulty", []interface{}{b.HeaderSignature()})
	if err != nil {
		t.Fatalf("handleMethod: %v", err)
	}
	if result != hexutil.Uint(12) {
		t.Fatalf("pow_getTipDifficulty = %v, want 12", result)
	}
}

func TestPowGetBlock_UnknownReturnsNilNoError(t *testing.T) {
	s, _ := newTestServer(t)
	result, err := s.handleMethod("pow_getBlock", []interface{}{"nonexistent"})
	if err != nil {
		t.Fatalf("pow_getBlock(unknown): unexpected error %v", err)
	}
	if result != nil {
		t.Fatalf("pow_getBlock(unknown) = %v, want nil", result)
	}
}

func TestPowGetBlock_ReturnsStoredFields(t *testing.T) {
	s, store := newTestServer(t)
	b := core.NewBlock("prev", 3, []byte("pub"))
	b.SetConsensus(consensus.SerializeFields(5, consensus.EncodeNonce(2), 2000))
	if err := store.PutBlock(b); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	result, err := s.handleMethod("pow_getBlock", []interface{}{b.HeaderSignature()})
	if err != nil {
		t.Fatalf("handleMethod: %v", err)
	}
	fields, ok := result.(map[string]interface{})
	if !ok {
		t.Fatalf("pow_getBlock result type = %T, want map[string]interface{}", result)
	}
	if fields["number"] != uint64(3) {
		t.Fatalf("pow_getBlock[number] = %v, want 3", fields["number"])
	}
}
