// Package settings persists the bridge credentials and options record.
package settings

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// DefaultScanInterval is the poll interval in seconds when none is stored.
const DefaultScanInterval = 120

var ErrNotFound = errors.New("settings record not found")

// Record is the persisted credentials and options.
type Record struct {
	APIKey          string     `json:"api_key"`
	AccessToken     string     `json:"access_token"`
	RefreshToken    string     `json:"refresh_token"`
	TokenExpiration *time.Time `json:"token_expiration_date,omitempty"`
	ScanInterval    int        `json:"scan_interval,omitempty"`
}

// Store loads and saves the record. Load returns ErrNotFound when nothing
// has been stored yet.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, record Record) error
}

// HasCredentials reports whether the record can authenticate a client.
func (r Record) HasCredentials() bool {
	return r.APIKey != "" && r.RefreshToken != ""
}

// Interval returns the poll interval, falling back to the default.
func (r Record) Interval() time.Duration {
	seconds := r.ScanInterval
	if seconds <= 0 {
		seconds = DefaultScanInterval
	}
	return time.Duration(seconds) * time.Second
}

// Expiration returns the stored token expiration or the zero time.
func (r Record) Expiration() time.Time {
	if r.TokenExpiration == nil {
		return time.Time{}
	}
	return *r.TokenExpiration
}

func (r Record) Validate() error {
	if r.ScanInterval < 0 {
		return errors.Errorf("scan_interval must not be negative: %d", r.ScanInterval)
	}
	if r.AccessToken != "" && r.RefreshToken == "" {
		return errors.New("record has access_token without refresh_token")
	}
	return nil
}

func Decode(data []byte) (Record, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, errors.Wrap(err, "decode settings")
	}
	if err := record.Validate(); err != nil {
		return Record{}, err
	}
	return record, nil
}

func Encode(record Record) ([]byte, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode settings")
	}
	return data, nil
}
