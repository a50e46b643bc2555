package airdroptesting

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Account is an account served by a SolanaRPC.
type Account struct {
	Owner solana.PublicKey
	Data  []byte
}

// SolanaRPC is an in-memory JSON-RPC server that answers account reads from a
// fixed account set and records submitted transactions.
type SolanaRPC struct {
	Server *httptest.Server

	mu       sync.RWMutex
	accounts map[solana.PublicKey]Account
	fail     atomic.Bool
	calls    atomic.Int64

	sent      [][]byte
	rejectMsg string
}

// NewSolanaRPC starts a fake RPC server that is closed with the test.
func NewSolanaRPC(t *testing.T) *SolanaRPC {
	t.Helper()
	s := &SolanaRPC{accounts: make(map[solana.PublicKey]Account)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Server.Close)
	return s
}

// URL returns the endpoint to pass to rpc.New.
func (s *SolanaRPC) URL() string { return s.Server.URL }

// Set stores or replaces an account.
func (s *SolanaRPC) Set(key solana.PublicKey, acct Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[key] = acct
}

// Delete removes an account.
func (s *SolanaRPC) Delete(key solana.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, key)
}

// FailRequests makes every subsequent request return HTTP 503.
func (s *SolanaRPC) FailRequests(fail bool) { s.fail.Store(fail) }

// Calls returns the number of JSON-RPC requests received.
func (s *SolanaRPC) Calls() int64 { return s.calls.Load() }

// RejectTransactions makes sendTransaction fail with msg. An empty msg accepts again.
func (s *SolanaRPC) RejectTransactions(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectMsg = msg
}

// Sent returns the wire bytes of every accepted transaction.
func (s *SolanaRPC) Sent() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([][]byte(nil), s.sent...)
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcFilter struct {
	Memcmp *struct {
		Offset uint64 `json:"offset"`
		Bytes  string `json:"bytes"`
	} `json:"memcmp,omitempty"`
	DataSize *uint64 `json:"dataSize,omitempty"`
}

type programAccountsOpts struct {
	Filters []rpcFilter `json:"filters"`
}

func (s *SolanaRPC) handle(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	if s.fail.Load() {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result any
	switch req.Method {
	case "getAccountInfo":
		key, ok := s.parseKey(req.Params, 0)
		if !ok {
			s.writeError(w, req.ID, "invalid params")
			return
		}
		result = map[string]any{"context": map[string]any{"slot": 1}, "value": s.encode(key)}
	case "getMultipleAccounts":
		var keys []string
		if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &keys) != nil {
			s.writeError(w, req.ID, "invalid params")
			return
		}
		values := make([]any, 0, len(keys))
		for _, k := range keys {
			pk, err := solana.PublicKeyFromBase58(k)
			if err != nil {
				s.writeError(w, req.ID, "invalid key")
				return
			}
			values = append(values, s.encode(pk))
		}
		result = map[string]any{"context": map[string]any{"slot": 1}, "value": values}
	case "getProgramAccounts":
		program, ok := s.parseKey(req.Params, 0)
		if !ok {
			s.writeError(w, req.ID, "invalid params")
			return
		}
		var opts programAccountsOpts
		if len(req.Params) > 1 {
			_ = json.Unmarshal(req.Params[1], &opts)
		}
		result = s.programAccounts(program, opts.Filters)
	case "getLatestBlockhash":
		result = map[string]any{
			"context": map[string]any{"slot": 1},
			"value": map[string]any{
				"blockhash":            solana.HashFromBytes(bytes.Repeat([]byte{7}, 32)).String(),
				"lastValidBlockHeight": 100,
			},
		}
	case "sendTransaction":
		sig, err := s.send(req.Params)
		if err != nil {
			s.writeError(w, req.ID, err.Error())
			return
		}
		result = sig
	default:
		s.writeError(w, req.ID, "method not found: "+req.Method)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func (s *SolanaRPC) send(params []json.RawMessage) (string, error) {
	var encoded string
	if len(params) == 0 || json.Unmarshal(params[0], &encoded) != nil {
		return "", errors.New("invalid params")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectMsg != "" {
		return "", errors.New(s.rejectMsg)
	}
	s.sent = append(s.sent, raw)

	// The first signature follows the compact-u16 signature count.
	if len(raw) < 1+64 {
		return "", errors.New("transaction too short")
	}
	return base58.Encode(raw[1:65]), nil
}

func (s *SolanaRPC) parseKey(params []json.RawMessage, i int) (solana.PublicKey, bool) {
	if len(params) <= i {
		return solana.PublicKey{}, false
	}
	var str string
	if err := json.Unmarshal(params[i], &str); err != nil {
		return solana.PublicKey{}, false
	}
	pk, err := solana.PublicKeyFromBase58(str)
	return pk, err == nil
}

func (s *SolanaRPC) encode(key solana.PublicKey) any {
	s.mu.RLock()
	acct, ok := s.accounts[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return encodeAccount(acct)
}

func encodeAccount(acct Account) map[string]any {
	return map[string]any{
		"data":       []string{base64.StdEncoding.EncodeToString(acct.Data), "base64"},
		"executable": false,
		"lamports":   1_000_000,
		"owner":      acct.Owner.String(),
		"rentEpoch":  0,
		"space":      len(acct.Data),
	}
}

func (s *SolanaRPC) programAccounts(program solana.PublicKey, filters []rpcFilter) []any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []any{}
	for key, acct := range s.accounts {
		if acct.Owner != program || !matches(acct.Data, filters) {
			continue
		}
		out = append(out, map[string]any{"pubkey": key.String(), "account": encodeAccount(acct)})
	}
	return out
}

func matches(data []byte, filters []rpcFilter) bool {
	for _, f := range filters {
		if f.DataSize != nil && uint64(len(data)) != *f.DataSize {
			return false
		}
		if f.Memcmp != nil {
			want, err := base58.Decode(f.Memcmp.Bytes)
			if err != nil {
				return false
			}
			end := f.Memcmp.Offset + uint64(len(want))
			if end > uint64(len(data)) || !bytes.Equal(data[f.Memcmp.Offset:end], want) {
				return false
			}
		}
	}
	return true
}

func (s *SolanaRPC) writeError(w http.ResponseWriter, id json.RawMessage, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": -32602, "message": msg},
	})
}
