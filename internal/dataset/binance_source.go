package dataset

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"quantbt/internal/market"
)

const binancePageLimit = 1500

// BinanceConfig 配置 Binance 合约行情源。
type BinanceConfig struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = "https://fapi.binance.com"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	return c
}

// BinanceSource 基于 go-binance SDK 拉取合约 K 线，仅使用公开接口。
type BinanceSource struct {
	client *futures.Client
}

func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = strings.TrimSpace(final.BaseURL)
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &BinanceSource{client: client}
}

func (s *BinanceSource) Name() string { return "binance" }

func (s *BinanceSource) Fetch(ctx context.Context, symbol string, tf Timeframe, start, end int64) ([]market.Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	// Binance 合约代码不含分隔符（BTC/USDT -> BTCUSDT）
	cleanSymbol := strings.NewReplacer("/", "", "-", "", "_", "").Replace(symbol)

	svc := s.client.NewKlinesService().
		Symbol(cleanSymbol).
		Interval(tf.SourceInterval).
		Limit(binancePageLimit)
	if start > 0 {
		svc = svc.StartTime(start)
	}
	if end > 0 {
		svc = svc.EndTime(end - 1)
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("拉取 %s %s K线失败: %w", symbol, tf.Key, err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
		})
	}
	return dropUnclosed(out, tf), nil
}

// dropUnclosed 丢弃尚未收盘的最后一根 K 线。
func dropUnclosed(candles []market.Candle, tf Timeframe) []market.Candle {
	if len(candles) == 0 {
		return candles
	}
	now := time.Now().UnixMilli()
	last := candles[len(candles)-1]
	if last.OpenTime+tf.durationMillis() > now {
		return candles[:len(candles)-1]
	}
	return candles
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
