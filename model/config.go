package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// DefaultProvider is the multi-search provider used when none is stored.
const DefaultProvider = "opgg"

// ErrInvalidConfig is wrapped by every decoding and validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete set of user configurable behaviors. It is always
// exchanged as a whole; there is no partial update.
type Config struct {
	AutoOpen      bool   `json:"autoOpen" yaml:"autoOpen"`           // Open the provider page when champion select starts
	AutoAccept    bool   `json:"autoAccept" yaml:"autoAccept"`       // Accept ready checks without confirmation
	AcceptDelay   uint32 `json:"acceptDelay" yaml:"acceptDelay"`     // Milliseconds to wait before auto-accepting
	MultiProvider string `json:"multiProvider" yaml:"multiProvider"` // Provider handling multi-source lookups
	AutoReport    bool   `json:"autoReport" yaml:"autoReport"`       // Send end-of-game reports automatically
}

// Default returns the configuration written on first start.
func Default() Config {
	return Config{
		AutoOpen:      true,
		AutoAccept:    true,
		AcceptDelay:   2000,
		MultiProvider: DefaultProvider,
		AutoReport:    false,
	}
}

// requiredKeys lists the JSON keys a wire snapshot must carry.
var requiredKeys = []string{"autoOpen", "autoAccept", "acceptDelay", "multiProvider", "autoReport"}

// AcceptWait is how long to wait before accepting a ready check. The ready
// check popup already consumes one second, so that much is taken off the
// configured delay.
func (c Config) AcceptWait() time.Duration {
	delay := time.Duration(c.AcceptDelay) * time.Millisecond
	if delay <= time.Second {
		return 0
	}
	return delay - time.Second
}

// Unmarshal decodes a snapshot received over the wire. All five keys must be
// present and no other key is accepted.
func Unmarshal(data []byte) (Config, error) {
	return decode(data, Config{}, requiredKeys, true)
}

// UnmarshalStored decodes a persisted snapshot. Files written by older
// versions may lack multiProvider and autoReport; absent keys fall back to
// their defaults while stored values, empty strings included, are kept.
// Unknown keys are ignored.
func UnmarshalStored(data []byte) (Config, error) {
	return decode(data, Config{MultiProvider: DefaultProvider}, requiredKeys[:3], false)
}

// decode fills base with the keys present in data.
func decode(data []byte, base Config, required []string, strict bool) (Config, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if fields == nil {
		return Config{}, fmt.Errorf("%w: expected an object", ErrInvalidConfig)
	}

	var missing []string
	for _, key := range required {
		raw, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, fmt.Errorf("%w: missing %v", ErrInvalidConfig, missing)
	}

	cfg := base
	dec := json.NewDecoder(bytes.NewReader(data))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}
