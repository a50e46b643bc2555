package distributor

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// EncodeDistributor serializes d in account layout, discriminator included.
// It is the inverse of DecodeDistributor and is used to seed fixtures.
func EncodeDistributor(d *Distributor) []byte {
	w := newFieldWriter(merkleDistributorDiscriminator)
	w.u8(d.Bump)
	w.u64(d.Version)
	w.raw(d.Root[:])
	w.pubkey(d.Mint)
	w.pubkey(d.TokenVault)
	w.u64(d.MaxTotalClaim)
	w.u64(d.MaxNumNodes)
	w.u64(d.UnlockPeriod)
	w.u64(d.TotalAmountClaimed)
	w.u64(d.NumNodesClaimed)
	w.u64(d.StartTs)
	w.u64(d.EndTs)
	w.u64(d.ClawbackStartTs)
	w.pubkey(d.ClawbackReceiver)
	w.pubkey(d.Admin)
	w.boolean(d.ClawedBack)
	w.boolean(d.ClaimsClosableByAdmin)
	w.boolean(d.CanUpdateDuration)
	w.u64(d.TotalAmountUnlocked)
	w.u64(d.TotalAmountLocked)
	w.boolean(d.ClaimsClosableByClaimant)
	w.u16(d.ClaimsLimit)
	return w.buf.Bytes()
}

// EncodeClaimStatus serializes cs in account layout, discriminator included.
func EncodeClaimStatus(cs *ClaimStatus) []byte {
	w := newFieldWriter(claimStatusDiscriminator)
	w.pubkey(cs.Claimant)
	w.u64(cs.LockedAmount)
	w.u64(cs.LockedAmountWithdrawn)
	w.u64(cs.UnlockedAmount)
	w.u64(cs.LastClaimTs)
	w.u64(cs.LastAmountPerUnlock)
	w.boolean(cs.Closed)
	w.pubkey(cs.Distributor)
	w.u16(cs.ClaimsCount)
	w.u64(cs.ClosedTs)
	return w.buf.Bytes()
}

// EncodeCompressedClaimStatus serializes a CompressedClaimStatus account.
func EncodeCompressedClaimStatus() []byte {
	w := newFieldWriter(compressedClaimStatusDiscriminator)
	w.u8(1)
	return w.buf.Bytes()
}

// fieldWriter writes into an in-memory buffer, so encoder errors cannot occur.
type fieldWriter struct {
	buf *bytes.Buffer
	enc *bin.Encoder
}

func newFieldWriter(discriminator [8]byte) *fieldWriter {
	buf := new(bytes.Buffer)
	buf.Write(discriminator[:])
	return &fieldWriter{buf: buf, enc: bin.NewBorshEncoder(buf)}
}

func (w *fieldWriter) u8(v uint8)                { _ = w.enc.WriteUint8(v) }
func (w *fieldWriter) u16(v uint16)              { _ = w.enc.WriteUint16(v, bin.LE) }
func (w *fieldWriter) u64(v uint64)              { _ = w.enc.WriteUint64(v, bin.LE) }
func (w *fieldWriter) boolean(v bool)            { _ = w.enc.WriteBool(v) }
func (w *fieldWriter) raw(b []byte)              { _ = w.enc.WriteBytes(b, false) }
func (w *fieldWriter) pubkey(k solana.PublicKey) { w.raw(k.Bytes()) }
