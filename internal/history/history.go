// Package history backfills kline series from the exchange's public market
// data API and caches them on disk as CSV. The series feed the local
// indicator fallback; nothing here is required for live operation.
package history

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"crypto-dashboard-go/internal/models"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

const pageLimit = 1000 // exchange maximum per klines request

// Backfiller downloads and caches kline history per symbol and interval.
type Backfiller struct {
	dir string
	log *zap.SugaredLogger

	// fetch returns one page of klines starting at startMs. Split out so
	// tests can run without the network.
	fetch func(ctx context.Context, symbol, interval string, startMs int64) ([]models.Kline, error)
}

// NewBackfiller creates a backfiller caching under dir. The public market
// data endpoints need no API key.
func NewBackfiller(dir string, log *zap.SugaredLogger) *Backfiller {
	client := binance.NewClient("", "")
	b := &Backfiller{dir: dir, log: log}
	b.fetch = func(ctx context.Context, symbol, interval string, startMs int64) ([]models.Kline, error) {
		raw, err := client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(startMs).
			Limit(pageLimit).
			Do(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]models.Kline, 0, len(raw))
		for _, k := range raw {
			parsed, err := parseRemoteKline(k)
			if err != nil {
				return nil, err
			}
			out = append(out, parsed)
		}
		return out, nil
	}
	return b
}

func parseRemoteKline(k *binance.Kline) (models.Kline, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return models.Kline{}, fmt.Errorf("parse kline open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return models.Kline{}, fmt.Errorf("parse kline high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return models.Kline{}, fmt.Errorf("parse kline low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return models.Kline{}, fmt.Errorf("parse kline close: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return models.Kline{}, fmt.Errorf("parse kline volume: %w", err)
	}
	return models.Kline{
		OpenTime: k.OpenTime,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
	}, nil
}

func (b *Backfiller) cachePath(symbol, interval string) string {
	return filepath.Join(b.dir, fmt.Sprintf("%s_%s.csv", symbol, interval))
}

// Backfill returns the kline series for [start, end). A previously downloaded
// file is reused as-is; delete it to force a refresh.
func (b *Backfiller) Backfill(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Kline, error) {
	path := b.cachePath(symbol, interval)
	if _, err := os.Stat(path); err == nil {
		b.log.Debugw("loading klines from cache", "symbol", symbol, "file", path)
		return loadCSV(path)
	}

	b.log.Infow("downloading klines", "symbol", symbol, "interval", interval,
		"start", start.Format("2006-01-02"), "end", end.Format("2006-01-02"))

	var all []models.Kline
	startMs := start.UnixMilli()
	endMs := end.UnixMilli()
	for startMs < endMs {
		page, err := b.fetch(ctx, symbol, interval, startMs)
		if err != nil {
			return nil, fmt.Errorf("download klines for %s: %w", symbol, err)
		}
		if len(page) == 0 {
			break
		}
		for _, k := range page {
			if k.OpenTime >= endMs {
				break
			}
			all = append(all, k)
		}
		next := page[len(page)-1].OpenTime + 1
		if next <= startMs {
			break
		}
		startMs = next
		if len(page) < pageLimit {
			break
		}
	}

	if err := saveCSV(path, all); err != nil {
		// Cache write failures are not fatal; the data is still usable.
		b.log.Warnw("failed to cache klines", "file", path, "error", err)
	}
	return all, nil
}

func saveCSV(path string, klines []models.Kline) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write([]string{"open_time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, k := range klines {
		record := []string{
			strconv.FormatInt(k.OpenTime, 10),
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func loadCSV(path string) ([]models.Kline, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) <= 1 {
		return nil, nil
	}

	out := make([]models.Kline, 0, len(records)-1)
	for _, rec := range records[1:] { // skip header
		if len(rec) < 6 {
			return nil, fmt.Errorf("malformed kline record in %s", path)
		}
		openTime, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, err
		}
		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			if vals[i], err = strconv.ParseFloat(rec[i+1], 64); err != nil {
				return nil, err
			}
		}
		out = append(out, models.Kline{
			OpenTime: openTime,
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	return out, nil
}
