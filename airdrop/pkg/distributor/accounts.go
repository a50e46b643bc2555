package distributor

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/airdrop/airdrop/pkg/vesting"
)

// DefaultProgramID is the Merkle distributor program on mainnet-beta and devnet.
var DefaultProgramID = solana.MustPublicKeyFromBase58("MErKy6nZVoVAkryxAejJz2juifQ4ArgLgHmaJCQkU7N")

var (
	merkleDistributorDiscriminator     = accountDiscriminator("MerkleDistributor")
	claimStatusDiscriminator           = accountDiscriminator("ClaimStatus")
	compressedClaimStatusDiscriminator = accountDiscriminator("CompressedClaimStatus")
)

// Byte offsets of MerkleDistributor fields, including the discriminator.
const (
	mintOffset        = 8 + 1 + 8 + 32
	adminOffset       = mintOffset + 32 + 32 + 8*8 + 32
	claimsLimitOffset = adminOffset + 32 + 3 + 8 + 8 + 1
	// distributorSize is the smallest valid account. Longer accounts carry
	// trailing reserved space.
	distributorSize = claimsLimitOffset + 2
)

var errInvalidDiscriminator = errors.New("invalid account discriminator")

// accountDiscriminator returns the 8-byte Anchor account discriminator.
func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// Distributor is a decoded MerkleDistributor account.
type Distributor struct {
	Address solana.PublicKey `json:"address"`

	Bump                     uint8            `json:"bump"`
	Version                  uint64           `json:"version"`
	Root                     [32]byte         `json:"-"`
	Mint                     solana.PublicKey `json:"mint"`
	TokenVault               solana.PublicKey `json:"tokenVault"`
	MaxTotalClaim            uint64           `json:"maxTotalClaim"`
	MaxNumNodes              uint64           `json:"maxNumNodes"`
	UnlockPeriod             uint64           `json:"unlockPeriod"`
	TotalAmountClaimed       uint64           `json:"totalAmountClaimed"`
	NumNodesClaimed          uint64           `json:"numNodesClaimed"`
	StartTs                  uint64           `json:"startTs"`
	EndTs                    uint64           `json:"endTs"`
	ClawbackStartTs          uint64           `json:"clawbackStartTs"`
	ClawbackReceiver         solana.PublicKey `json:"clawbackReceiver"`
	Admin                    solana.PublicKey `json:"admin"`
	ClawedBack               bool             `json:"clawedBack"`
	ClaimsClosableByAdmin    bool             `json:"claimsClosableByAdmin"`
	CanUpdateDuration        bool             `json:"canUpdateDuration"`
	TotalAmountUnlocked      uint64           `json:"totalAmountUnlocked"`
	TotalAmountLocked        uint64           `json:"totalAmountLocked"`
	ClaimsClosableByClaimant bool             `json:"claimsClosableByClaimant"`
	ClaimsLimit              uint16           `json:"claimsLimit"`
}

// Schedule returns the vesting schedule of the distributor.
func (d *Distributor) Schedule() vesting.Schedule {
	return vesting.Schedule{
		StartTs:      int64(d.StartTs),
		EndTs:        int64(d.EndTs),
		UnlockPeriod: int64(d.UnlockPeriod),
		ClaimsLimit:  d.ClaimsLimit,
		ClawedBack:   d.ClawedBack,
	}
}

// Kind returns Instant when start equals end, Vested otherwise.
func (d *Distributor) Kind() vesting.Kind {
	return d.Schedule().Kind()
}

// DecodeDistributor decodes a MerkleDistributor account.
func DecodeDistributor(data []byte) (*Distributor, error) {
	dec, err := newAccountDecoder(data, merkleDistributorDiscriminator)
	if err != nil {
		return nil, err
	}
	if len(data) < distributorSize {
		return nil, fmt.Errorf("merkle distributor account too short: %d bytes, want at least %d", len(data), distributorSize)
	}

	d := &Distributor{}
	r := fieldReader{dec: dec}
	d.Bump = r.u8()
	d.Version = r.u64()
	copy(d.Root[:], r.bytes(32))
	d.Mint = r.pubkey()
	d.TokenVault = r.pubkey()
	d.MaxTotalClaim = r.u64()
	d.MaxNumNodes = r.u64()
	d.UnlockPeriod = r.u64()
	d.TotalAmountClaimed = r.u64()
	d.NumNodesClaimed = r.u64()
	d.StartTs = r.u64()
	d.EndTs = r.u64()
	d.ClawbackStartTs = r.u64()
	d.ClawbackReceiver = r.pubkey()
	d.Admin = r.pubkey()
	d.ClawedBack = r.boolean()
	d.ClaimsClosableByAdmin = r.boolean()
	d.CanUpdateDuration = r.boolean()
	d.TotalAmountUnlocked = r.u64()
	d.TotalAmountLocked = r.u64()
	d.ClaimsClosableByClaimant = r.boolean()
	d.ClaimsLimit = r.u16()
	if r.err != nil {
		return nil, fmt.Errorf("failed to decode merkle distributor: %w", r.err)
	}
	return d, nil
}

// ClaimStatus is a decoded, open ClaimStatus account.
type ClaimStatus struct {
	Claimant              solana.PublicKey
	LockedAmount          uint64
	LockedAmountWithdrawn uint64
	UnlockedAmount        uint64
	LastClaimTs           uint64
	LastAmountPerUnlock   uint64
	Closed                bool
	Distributor           solana.PublicKey
	ClaimsCount           uint16
	ClosedTs              uint64
}

// DecodeClaimStatus decodes a ClaimStatus account.
func DecodeClaimStatus(data []byte) (*ClaimStatus, error) {
	dec, err := newAccountDecoder(data, claimStatusDiscriminator)
	if err != nil {
		return nil, err
	}

	cs := &ClaimStatus{}
	r := fieldReader{dec: dec}
	cs.Claimant = r.pubkey()
	cs.LockedAmount = r.u64()
	cs.LockedAmountWithdrawn = r.u64()
	cs.UnlockedAmount = r.u64()
	cs.LastClaimTs = r.u64()
	cs.LastAmountPerUnlock = r.u64()
	cs.Closed = r.boolean()
	cs.Distributor = r.pubkey()
	cs.ClaimsCount = r.u16()
	cs.ClosedTs = r.u64()
	if r.err != nil {
		return nil, fmt.Errorf("failed to decode claim status: %w", r.err)
	}
	return cs, nil
}

// ClaimState maps the account onto the vesting claim-state union. An account
// that is flagged closed or carries a close timestamp is a compressed claim;
// only open accounts become VestedClaim.
func (cs *ClaimStatus) ClaimState() vesting.ClaimState {
	if cs.Closed || cs.ClosedTs > 0 {
		return vesting.CompressedClaim{ClosedTs: int64(cs.ClosedTs)}
	}
	return vesting.VestedClaim{Status: vesting.ClaimStatus{
		UnlockedAmount:        new(big.Int).SetUint64(cs.UnlockedAmount),
		LockedAmount:          new(big.Int).SetUint64(cs.LockedAmount),
		LockedAmountWithdrawn: new(big.Int).SetUint64(cs.LockedAmountWithdrawn),
		LastClaimTs:           int64(cs.LastClaimTs),
		LastAmountPerUnlock:   new(big.Int).SetUint64(cs.LastAmountPerUnlock),
		ClaimsCount:           cs.ClaimsCount,
	}}
}

// isCompressedClaimStatus reports whether data is a CompressedClaimStatus account.
func isCompressedClaimStatus(data []byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:8], compressedClaimStatusDiscriminator[:])
}

func newAccountDecoder(data []byte, discriminator [8]byte) (*bin.Decoder, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], discriminator[:]) {
		return nil, errInvalidDiscriminator
	}
	return bin.NewBorshDecoder(data[8:]), nil
}

// fieldReader reads borsh fields in order and keeps the first error.
type fieldReader struct {
	dec *bin.Decoder
	err error
}

func (r *fieldReader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint8()
	r.err = err
	return v
}

func (r *fieldReader) u16() uint16 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint16(bin.LE)
	r.err = err
	return v
}

func (r *fieldReader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(bin.LE)
	r.err = err
	return v
}

func (r *fieldReader) boolean() bool {
	if r.err != nil {
		return false
	}
	v, err := r.dec.ReadBool()
	r.err = err
	return v
}

func (r *fieldReader) bytes(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	v, err := r.dec.ReadNBytes(n)
	if err != nil {
		r.err = err
		return make([]byte, n)
	}
	return v
}

func (r *fieldReader) pubkey() solana.PublicKey {
	return solana.PublicKeyFromBytes(r.bytes(solana.PublicKeyLength))
}
