package distributor

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/malbeclabs/airdrop/utils/pkg/retry"
	airdroptesting "github.com/malbeclabs/airdrop/utils/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(t *testing.T, srv *airdroptesting.SolanaRPC) *Sender {
	t.Helper()
	s, err := NewSender(SenderConfig{
		Logger: airdroptesting.NewLogger(),
		RPC:    solanarpc.New(srv.URL()),
		Retry:  retry.Config{MaxAttempts: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	require.NoError(t, err)
	return s
}

func decodeSent(t *testing.T, raw []byte) *solana.Transaction {
	t.Helper()
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	require.NoError(t, err)
	return tx
}

func TestAirdrop_Distributor_SubmitFirstClaim(t *testing.T) {
	t.Parallel()

	srv := airdroptesting.NewSolanaRPC(t)
	sender := newTestSender(t, srv)

	d := testDistributor(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	d.Address = solana.NewWallet().PublicKey()
	signer := solana.NewWallet().PrivateKey

	sig, err := sender.SubmitClaim(context.Background(), ClaimRequest{
		Distributor:    d,
		Signer:         signer,
		AmountUnlocked: 100,
		AmountLocked:   900,
		Proof:          [][32]byte{{1}, {2}, {3}},
		FirstClaim:     true,
	})
	require.NoError(t, err)

	sent := srv.Sent()
	require.Len(t, sent, 1)
	tx := decodeSent(t, sent[0])
	require.Len(t, tx.Signatures, 1)
	assert.Equal(t, tx.Signatures[0], sig)
	assert.Equal(t, signer.PublicKey(), tx.Message.AccountKeys[0], "claimant pays")

	// The claimant has no token account yet, so one is created first.
	require.Len(t, tx.Message.Instructions, 2)
	ataProgram, err := tx.Message.Program(tx.Message.Instructions[0].ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, ataProgram)

	claim := tx.Message.Instructions[1]
	program, err := tx.Message.Program(claim.ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, DefaultProgramID, program)
	assert.Len(t, claim.Accounts, 8)

	data := []byte(claim.Data)
	require.Len(t, data, 8+8+8+4+3*32)
	assert.Equal(t, newClaimDiscriminator[:], data[:8])
	assert.Equal(t, uint64(100), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(900), binary.LittleEndian.Uint64(data[16:24]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, byte(2), data[28+32])
}

func TestAirdrop_Distributor_SubmitLaterClaim(t *testing.T) {
	t.Parallel()

	srv := airdroptesting.NewSolanaRPC(t)
	sender := newTestSender(t, srv)

	d := testDistributor(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	d.Address = solana.NewWallet().PublicKey()
	signer := solana.NewWallet().PrivateKey

	ata, _, err := solana.FindAssociatedTokenAddress(signer.PublicKey(), d.Mint)
	require.NoError(t, err)
	srv.Set(ata, airdroptesting.Account{Owner: solana.TokenProgramID, Data: make([]byte, 165)})

	_, err = sender.SubmitClaim(context.Background(), ClaimRequest{Distributor: d, Signer: signer})
	require.NoError(t, err)

	tx := decodeSent(t, srv.Sent()[0])
	require.Len(t, tx.Message.Instructions, 1, "existing token account is reused")
	claim := tx.Message.Instructions[0]
	assert.Equal(t, claimLockedDiscriminator[:], []byte(claim.Data))
	assert.Len(t, claim.Accounts, 7)
}

func TestAirdrop_Distributor_SubmitRejected(t *testing.T) {
	t.Parallel()

	srv := airdroptesting.NewSolanaRPC(t)
	srv.RejectTransactions("custom program error: 0x1771")
	sender := newTestSender(t, srv)

	d := testDistributor(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	d.Address = solana.NewWallet().PublicKey()

	_, err := sender.SubmitClaim(context.Background(), ClaimRequest{Distributor: d, Signer: solana.NewWallet().PrivateKey, FirstClaim: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0x1771")
	assert.Empty(t, srv.Sent())
}

func TestAirdrop_Distributor_SubmitValidatesRequest(t *testing.T) {
	t.Parallel()

	srv := airdroptesting.NewSolanaRPC(t)
	sender := newTestSender(t, srv)

	_, err := sender.SubmitClaim(context.Background(), ClaimRequest{Signer: solana.NewWallet().PrivateKey})
	require.EqualError(t, err, "distributor is required")

	_, err = sender.SubmitClaim(context.Background(), ClaimRequest{Distributor: &Distributor{}})
	require.EqualError(t, err, "signer is required")
	assert.Equal(t, int64(0), srv.Calls())
}
