package uniswapv3

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Config is the immutable identifying data of a Uniswap V3 position,
// persisted on every ledger event.
type Config struct {
	ChainID       uint64 `json:"chainId"`
	NFTID         string `json:"nftId"`
	Pool          string `json:"pool"`
	Token0        string `json:"token0"`
	Token1        string `json:"token1"`
	Decimals0     uint8  `json:"decimals0"`
	Decimals1     uint8  `json:"decimals1"`
	QuoteIsToken0 bool   `json:"quoteIsToken0"`
	TickLower     int32  `json:"tickLower"`
	TickUpper     int32  `json:"tickUpper"`
}

// State is the point-in-time on-chain snapshot after an event. Big
// integers cross the JSON boundary as decimal strings; this file is the
// only place that conversion happens.
type State struct {
	Liquidity                *big.Int
	FeeGrowthInside0LastX128 *big.Int
	FeeGrowthInside1LastX128 *big.Int
	TokensOwed0              *big.Int
	TokensOwed1              *big.Int
	UncollectedPrincipal0    *big.Int
	UncollectedPrincipal1    *big.Int
}

type stateJSON struct {
	Liquidity                string `json:"liquidity"`
	FeeGrowthInside0LastX128 string `json:"feeGrowthInside0LastX128"`
	FeeGrowthInside1LastX128 string `json:"feeGrowthInside1LastX128"`
	TokensOwed0              string `json:"tokensOwed0"`
	TokensOwed1              string `json:"tokensOwed1"`
	UncollectedPrincipal0    string `json:"uncollectedPrincipal0"`
	UncollectedPrincipal1    string `json:"uncollectedPrincipal1"`
}

func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse uniswapv3 config: %w", err)
	}
	return cfg, nil
}

func SerializeConfig(cfg Config) ([]byte, error) {
	return json.Marshal(cfg)
}

func ParseState(data []byte) (State, error) {
	var j stateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return State{}, fmt.Errorf("parse uniswapv3 state: %w", err)
	}

	st := State{}
	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"liquidity", j.Liquidity, &st.Liquidity},
		{"feeGrowthInside0LastX128", j.FeeGrowthInside0LastX128, &st.FeeGrowthInside0LastX128},
		{"feeGrowthInside1LastX128", j.FeeGrowthInside1LastX128, &st.FeeGrowthInside1LastX128},
		{"tokensOwed0", j.TokensOwed0, &st.TokensOwed0},
		{"tokensOwed1", j.TokensOwed1, &st.TokensOwed1},
		{"uncollectedPrincipal0", j.UncollectedPrincipal0, &st.UncollectedPrincipal0},
		{"uncollectedPrincipal1", j.UncollectedPrincipal1, &st.UncollectedPrincipal1},
	}
	for _, f := range fields {
		v, err := parseBig(f.raw)
		if err != nil {
			return State{}, fmt.Errorf("parse uniswapv3 state %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return st, nil
}

func SerializeState(st State) ([]byte, error) {
	return json.Marshal(stateJSON{
		Liquidity:                formatBig(st.Liquidity),
		FeeGrowthInside0LastX128: formatBig(st.FeeGrowthInside0LastX128),
		FeeGrowthInside1LastX128: formatBig(st.FeeGrowthInside1LastX128),
		TokensOwed0:              formatBig(st.TokensOwed0),
		TokensOwed1:              formatBig(st.TokensOwed1),
		UncollectedPrincipal0:    formatBig(st.UncollectedPrincipal0),
		UncollectedPrincipal1:    formatBig(st.UncollectedPrincipal1),
	})
}

func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not a decimal integer: %q", s)
	}
	return v, nil
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
