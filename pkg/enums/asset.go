package enums

import "fmt"

// Asset is a crypto asset accepted by the payment gateway.
type Asset string

const (
	AssetUSDT Asset = "USDT"
	AssetTON  Asset = "TON"
	AssetBTC  Asset = "BTC"
	AssetETH  Asset = "ETH"
	AssetUSDC Asset = "USDC"
)

var validAssets = []Asset{
	AssetUSDT,
	AssetTON,
	AssetBTC,
	AssetETH,
	AssetUSDC,
}

// String implements fmt.Stringer.
func (a Asset) String() string {
	return string(a)
}

// IsValid reports whether the value is a known Asset.
func (a Asset) IsValid() bool {
	for _, candidate := range validAssets {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAsset converts raw input into a Asset.
func ParseAsset(value string) (Asset, error) {
	for _, candidate := range validAssets {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid asset %q", value)
}
