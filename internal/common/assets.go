package common

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

type AssetConfig struct {
	Symbol    string `yaml:"symbol"`
	Network   string `yaml:"network"`
	Precision int    `yaml:"precision"`
}

type AssetsConfig struct {
	Assets []AssetConfig `yaml:"assets"`
}

func LoadAssetConfig(assetsFile string) ([]AssetConfig, error) {
	var assetsPath string
	if filepath.IsAbs(assetsFile) {
		assetsPath = assetsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		assetsPath = filepath.Join(wd, assetsFile)
	}

	data, err := os.ReadFile(assetsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", assetsFile, err)
	}

	var config AssetsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", assetsFile, err)
	}

	for i, asset := range config.Assets {
		if asset.Symbol == "" {
			return nil, fmt.Errorf("asset at index %d missing symbol", i)
		}
		if asset.Network == "" {
			return nil, fmt.Errorf("asset at index %d missing network", i)
		}
		if asset.Precision < 0 {
			return nil, fmt.Errorf("asset %s has negative precision", asset.Symbol)
		}
	}

	return config.Assets, nil
}

// AssetPrecisions returns the symbol -> precision mapping used when formatting
// ledger asset identifiers (e.g. USDC with precision 6 becomes "USDC/6").
func AssetPrecisions(assetsFile string) (map[string]int, error) {
	assets, err := LoadAssetConfig(assetsFile)
	if err != nil {
		return nil, err
	}

	precisions := make(map[string]int, len(assets))
	for _, asset := range assets {
		precisions[asset.Symbol] = asset.Precision
	}
	return precisions, nil
}

// KnownAssetSymbols lists the symbols declared in the asset config, used to
// warn rule authors about assets the ledger has no precision mapping for.
func KnownAssetSymbols(assetsFile string) ([]string, error) {
	assets, err := LoadAssetConfig(assetsFile)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, len(assets))
	for i, asset := range assets {
		symbols[i] = asset.Symbol
	}

	return symbols, nil
}
