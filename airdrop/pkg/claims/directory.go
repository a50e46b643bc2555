package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/airdrop/airdrop/pkg/distributor"
	"github.com/malbeclabs/airdrop/airdrop/pkg/metrics"
)

const DefaultRefreshInterval = 5 * time.Minute

// TokenPrefetcher warms token info for the mints in the directory.
type TokenPrefetcher interface {
	Prefetch(ctx context.Context, mints []solana.PublicKey) error
}

type DirectoryConfig struct {
	Logger          *slog.Logger
	Clock           clockwork.Clock
	Distributors    DistributorReader
	Filter          distributor.Filter
	RefreshInterval time.Duration
	Tokens          TokenPrefetcher // optional
}

func (cfg *DirectoryConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Distributors == nil {
		return errors.New("distributor reader is required")
	}
	if cfg.RefreshInterval < 0 {
		return errors.New("refresh interval must not be negative")
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Progress is a claimed/total pair as decimal strings.
type Progress struct {
	Claimed string `json:"claimed"`
	Total   string `json:"total"`
}

// Row is one distributor in the directory.
type Row struct {
	Distributor string   `json:"distributor"`
	Type        string   `json:"type"`
	Recipients  Progress `json:"recipients"`
	Tokens      Progress `json:"tokens"`
	Mint        string   `json:"mint"`
	Version     uint64   `json:"version"`
}

// NewRow summarizes a distributor for listing.
func NewRow(d *distributor.Distributor) Row {
	return Row{
		Distributor: d.Address.String(),
		Type:        d.Kind().String(),
		Recipients: Progress{
			Claimed: strconv.FormatUint(d.NumNodesClaimed, 10),
			Total:   strconv.FormatUint(d.MaxNumNodes, 10),
		},
		Tokens: Progress{
			Claimed: strconv.FormatUint(d.TotalAmountClaimed, 10),
			Total:   strconv.FormatUint(d.MaxTotalClaim, 10),
		},
		Mint:    d.Mint.String(),
		Version: d.Version,
	}
}

// Page is a slice of the directory.
type Page struct {
	Total int   `json:"total"`
	Items []Row `json:"items"`
}

// Directory is a periodically refreshed, in-memory list of every distributor.
type Directory struct {
	log       *slog.Logger
	cfg       DirectoryConfig
	refreshMu sync.Mutex

	mu          sync.RWMutex
	rows        []Row
	lastRefresh time.Time

	readyOnce sync.Once
	readyCh   chan struct{}
}

func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Directory{
		log:     cfg.Logger,
		cfg:     cfg,
		readyCh: make(chan struct{}),
	}, nil
}

// Ready reports whether the first refresh has completed.
func (d *Directory) Ready() bool {
	select {
	case <-d.readyCh:
		return true
	default:
		return false
	}
}

func (d *Directory) WaitReady(ctx context.Context) error {
	select {
	case <-d.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for directory: %w", ctx.Err())
	}
}

func (d *Directory) Start(ctx context.Context) {
	go func() {
		d.log.Info("directory: starting refresh loop", "interval", d.cfg.RefreshInterval)

		d.safeRefresh(ctx)

		ticker := d.cfg.Clock.NewTicker(d.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				d.safeRefresh(ctx)
			}
		}
	}()
}

func (d *Directory) safeRefresh(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("directory: refresh panicked", "panic", r)
			metrics.DirectoryRefreshTotal.WithLabelValues("panic").Inc()
		}
	}()

	if err := d.Refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		d.log.Error("directory: refresh failed", "error", err)
	}
}

// Refresh reloads every distributor. On failure the previous rows are kept.
func (d *Directory) Refresh(ctx context.Context) error {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	refreshStart := d.cfg.Clock.Now()
	d.log.Debug("directory: refresh started")
	defer func() {
		duration := d.cfg.Clock.Since(refreshStart)
		metrics.DirectoryRefreshDuration.Observe(duration.Seconds())
	}()

	dists, err := d.cfg.Distributors.SearchDistributors(ctx, d.cfg.Filter)
	if err != nil {
		metrics.DirectoryRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to search distributors: %w", err)
	}

	sort.SliceStable(dists, func(i, j int) bool {
		if dists[i].Version != dists[j].Version {
			return dists[i].Version > dists[j].Version
		}
		return dists[i].Address.String() < dists[j].Address.String()
	})

	rows := make([]Row, 0, len(dists))
	mints := make([]solana.PublicKey, 0, len(dists))
	for _, dist := range dists {
		rows = append(rows, NewRow(dist))
		mints = append(mints, dist.Mint)
	}

	d.mu.Lock()
	d.rows = rows
	d.lastRefresh = d.cfg.Clock.Now()
	d.mu.Unlock()

	metrics.DirectoryDistributors.Set(float64(len(rows)))
	metrics.DirectoryRefreshTotal.WithLabelValues("success").Inc()
	d.log.Info("directory: refresh completed", "distributors", len(rows), "duration", d.cfg.Clock.Since(refreshStart).String())

	d.readyOnce.Do(func() {
		close(d.readyCh)
	})

	if d.cfg.Tokens != nil && len(mints) > 0 {
		if err := d.cfg.Tokens.Prefetch(ctx, mints); err != nil {
			d.log.Warn("directory: token prefetch failed", "error", err)
		}
	}
	return nil
}

// List returns rows whose distributor address contains search, ignoring
// case, in version-descending order.
func (d *Directory) List(search string, limit, offset int) Page {
	d.mu.RLock()
	defer d.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	matched := make([]Row, 0, len(d.rows))
	for _, r := range d.rows {
		if search == "" || strings.Contains(strings.ToLower(r.Distributor), search) {
			matched = append(matched, r)
		}
	}

	page := Page{Total: len(matched), Items: []Row{}}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return page
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page.Items = append(page.Items, matched[offset:end]...)
	return page
}

// LastRefresh returns the time of the last successful refresh.
func (d *Directory) LastRefresh() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastRefresh
}
