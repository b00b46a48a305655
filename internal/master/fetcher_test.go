package master

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"krx-collector/internal/domain"
	"krx-collector/internal/storage/memory"
)

// masterZip builds an archive holding one EUC-KR encoded .mst entry.
func masterZip(t *testing.T, entryName, content string) []byte {
	t.Helper()

	encoded, _, err := transform.String(korean.EUCKR.NewEncoder(), content)
	if err != nil {
		t.Fatalf("encode master content: %v", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(entryName)
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(encoded)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func serveBytes(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcher_SyncMarket(t *testing.T) {
	content := strings.Join([]string{
		masterLine("005930", "삼성전자"),
		masterLine("000660", "SK하이닉스"),
		"short garbage line",
	}, "\n")
	srv := serveBytes(t, masterZip(t, "kospi_code.mst", content))

	store := memory.NewInstrumentStore()
	fetcher := NewFetcher(store, WithMarketURL(domain.MarketKOSPI, srv.URL))

	count, err := fetcher.SyncMarket(context.Background(), domain.MarketKOSPI)
	if err != nil {
		t.Fatalf("SyncMarket failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 instruments, got %d", count)
	}

	in, err := store.GetByName(context.Background(), "삼성전자")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if in.Code != "005930" {
		t.Errorf("Code mismatch: got %q", in.Code)
	}
	if in.MarketType != domain.MarketKOSPI {
		t.Errorf("MarketType mismatch: got %q", in.MarketType)
	}
}

func TestFetcher_SyncMarket_UnknownMarket(t *testing.T) {
	fetcher := NewFetcher(memory.NewInstrumentStore())
	if _, err := fetcher.SyncMarket(context.Background(), domain.MarketType("NYSE")); err == nil {
		t.Error("expected error for unknown market")
	}
}

func TestFetcher_SyncMarket_NoMstEntry(t *testing.T) {
	srv := serveBytes(t, masterZip(t, "readme.txt", "not a master file"))

	fetcher := NewFetcher(memory.NewInstrumentStore(),
		WithMarketURL(domain.MarketKOSPI, srv.URL))

	if _, err := fetcher.SyncMarket(context.Background(), domain.MarketKOSPI); err == nil {
		t.Error("expected error when the archive has no .mst entry")
	}
}

func TestFetcher_SyncMarket_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	fetcher := NewFetcher(memory.NewInstrumentStore(),
		WithMarketURL(domain.MarketKOSPI, srv.URL))

	if _, err := fetcher.SyncMarket(context.Background(), domain.MarketKOSPI); err == nil {
		t.Error("expected error for non-200 download")
	}
}

func TestFetcher_SyncAll_MarketIsolation(t *testing.T) {
	kospi := serveBytes(t, masterZip(t, "kospi_code.mst", masterLine("005930", "삼성전자")))
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(broken.Close)

	store := memory.NewInstrumentStore()
	fetcher := NewFetcher(store,
		WithMarketURL(domain.MarketKOSPI, kospi.URL),
		WithMarketURL(domain.MarketKOSDAQ, broken.URL))

	result := fetcher.SyncAll(context.Background())

	if result.Total != 1 {
		t.Errorf("Expected total 1, got %d", result.Total)
	}
	if result.Counts[domain.MarketKOSPI] != 1 {
		t.Errorf("Expected 1 KOSPI instrument, got %d", result.Counts[domain.MarketKOSPI])
	}
	if result.Errors[domain.MarketKOSDAQ] == nil {
		t.Error("expected an error for the failed market")
	}

	// The healthy market's rows landed despite the other failing.
	counts, err := store.CountByMarket(context.Background())
	if err != nil {
		t.Fatalf("CountByMarket failed: %v", err)
	}
	if counts[domain.MarketKOSPI] != 1 {
		t.Errorf("Expected 1 stored KOSPI row, got %d", counts[domain.MarketKOSPI])
	}
}
