package models

import "encoding/json"

// 后端各接口对同一概念使用的字段名并不统一：资产名可能是 asset/currency/coin，
// 美元估值可能是 usd_value/market_value。统一在反序列化时归一到规范字段，
// 下游合并逻辑不再需要关心来源形态。

type rawBalance struct {
	Asset       string  `json:"asset"`
	Currency    string  `json:"currency"`
	Coin        string  `json:"coin"`
	Free        float64 `json:"free"`
	Available   float64 `json:"available"`
	Locked      float64 `json:"locked"`
	Frozen      float64 `json:"frozen"`
	USDValue    float64 `json:"usd_value"`
	MarketValue float64 `json:"market_value"`
}

// UnmarshalJSON 将后端的异构余额形态归一为规范形态
func (b *Balance) UnmarshalJSON(data []byte) error {
	var raw rawBalance
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Asset = firstNonEmpty(raw.Asset, raw.Currency, raw.Coin)
	b.Free = firstNonZero(raw.Free, raw.Available)
	b.Locked = firstNonZero(raw.Locked, raw.Frozen)
	b.USDValue = firstNonZero(raw.USDValue, raw.MarketValue)
	return nil
}

type rawPortfolioAsset struct {
	Asset       string  `json:"asset"`
	Currency    string  `json:"currency"`
	Coin        string  `json:"coin"`
	Amount      float64 `json:"amount"`
	Quantity    float64 `json:"quantity"`
	USDValue    float64 `json:"usd_value"`
	MarketValue float64 `json:"market_value"`
}

// UnmarshalJSON 将后端的异构持仓形态归一为规范形态
func (a *PortfolioAsset) UnmarshalJSON(data []byte) error {
	var raw rawPortfolioAsset
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Asset = firstNonEmpty(raw.Asset, raw.Currency, raw.Coin)
	a.Amount = firstNonZero(raw.Amount, raw.Quantity)
	a.USDValue = firstNonZero(raw.USDValue, raw.MarketValue)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
