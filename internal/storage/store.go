package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Common errors
var ErrNotFound = errors.New("not found")

// Fixed keys for persisted local state. The values behind them are opaque
// to everything outside this process.
const (
	KeyEmail          = "EMAIL"
	KeyPassword       = "PASSWORD"
	KeyAccessToken    = "ACCESS_TOKEN"
	KeyRefreshToken   = "REFRESH_TOKEN"
	KeyAssetDeviceMap = "ASSET_DEVICE_MAP"
)

// Store defines the credential store interface.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// GetOrEmpty reads a key, treating absence as the empty string.
func GetOrEmpty(s Store, key string) string {
	v, err := s.Get(key)
	if err != nil {
		return ""
	}
	return v
}

// AssetDeviceMap reads the persisted asset-to-device-id mapping. An absent
// key yields an empty map.
func AssetDeviceMap(s Store) (map[string][]string, error) {
	raw, err := s.Get(KeyAssetDeviceMap)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return map[string][]string{}, nil
		}
		return nil, err
	}

	m := map[string][]string{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode asset device map: %w", err)
	}
	return m, nil
}

// SetAssetDeviceMap persists the asset-to-device-id mapping.
func SetAssetDeviceMap(s Store, m map[string][]string) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode asset device map: %w", err)
	}
	return s.Set(KeyAssetDeviceMap, string(raw))
}
