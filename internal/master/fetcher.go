// Package master downloads and ingests the exchange instrument master
// files: one zipped fixed-width file per market board, encoded in the
// legacy regional encoding.
package master

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"krx-collector/internal/domain"
	"krx-collector/internal/storage"
)

// Default master file locations and tuning.
const (
	DefaultKOSPIURL  = "https://new.real.download.dws.co.kr/common/master/kospi_code.mst.zip"
	DefaultKOSDAQURL = "https://new.real.download.dws.co.kr/common/master/kosdaq_code.mst.zip"
	DefaultTimeout   = 60 * time.Second

	upsertBatchSize = 1000
)

// Fetcher synchronizes the instruments table from the exchange master files.
type Fetcher struct {
	store      storage.InstrumentStore
	httpClient *http.Client
	logger     *zap.Logger
	urls       map[domain.MarketType]string
}

// FetcherOption configures the fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithMarketURL overrides the archive URL for one market.
func WithMarketURL(market domain.MarketType, url string) FetcherOption {
	return func(f *Fetcher) {
		f.urls[market] = url
	}
}

// NewFetcher creates a new master data fetcher.
func NewFetcher(store storage.InstrumentStore, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		store:      store,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
		urls: map[domain.MarketType]string{
			domain.MarketKOSPI:  DefaultKOSPIURL,
			domain.MarketKOSDAQ: DefaultKOSDAQURL,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SyncResult aggregates one SyncAll invocation.
type SyncResult struct {
	Counts map[domain.MarketType]int
	Errors map[domain.MarketType]error
	Total  int
}

// SyncAll synchronizes every market. One market's failure does not block
// the others; per-market errors are reported in the result.
func (f *Fetcher) SyncAll(ctx context.Context) *SyncResult {
	result := &SyncResult{
		Counts: make(map[domain.MarketType]int),
		Errors: make(map[domain.MarketType]error),
	}

	for _, market := range domain.AllMarkets {
		count, err := f.SyncMarket(ctx, market)
		if err != nil {
			f.logger.Error("master sync failed",
				zap.String("market", string(market)), zap.Error(err))
			result.Errors[market] = err
			continue
		}
		result.Counts[market] = count
		result.Total += count
	}

	f.logger.Info("master sync completed", zap.Int("total", result.Total),
		zap.Int("failed_markets", len(result.Errors)))
	return result
}

// SyncMarket downloads, decodes and upserts one market's master file.
// Returns the number of parsed instruments.
func (f *Fetcher) SyncMarket(ctx context.Context, market domain.MarketType) (int, error) {
	if !market.Valid() {
		return 0, fmt.Errorf("unknown market %q", market)
	}

	f.logger.Info("master download starting", zap.String("market", string(market)))

	content, err := f.downloadMaster(ctx, market)
	if err != nil {
		return 0, err
	}

	instruments := parseMaster(content, market)
	if len(instruments) == 0 {
		f.logger.Warn("master file yielded no instruments", zap.String("market", string(market)))
		return 0, nil
	}

	for start := 0; start < len(instruments); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(instruments) {
			end = len(instruments)
		}
		if err := f.store.UpsertBulk(ctx, instruments[start:end]); err != nil {
			return 0, fmt.Errorf("upsert master batch: %w", err)
		}
	}

	f.logger.Info("master sync completed",
		zap.String("market", string(market)), zap.Int("count", len(instruments)))
	return len(instruments), nil
}

// downloadMaster fetches the zip archive, extracts the single .mst entry
// and decodes it from EUC-KR to UTF-8.
func (f *Fetcher) downloadMaster(ctx context.Context, market domain.MarketType) (string, error) {
	url := f.urls[market]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create master request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download master archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download master archive: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read master archive: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open master archive: %w", err)
	}

	var entry *zip.File
	for _, file := range zr.File {
		if strings.HasSuffix(file.Name, ".mst") {
			entry = file
			break
		}
	}
	if entry == nil {
		return "", fmt.Errorf("master archive has no .mst entry")
	}

	rc, err := entry.Open()
	if err != nil {
		return "", fmt.Errorf("open archive entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	decoded, err := io.ReadAll(transform.NewReader(rc, korean.EUCKR.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("decode master file: %w", err)
	}

	return string(decoded), nil
}
