// Package directory talks to the user/device directory service: the source
// of truth for device ownership, tier, quota and device settings.
package directory

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when a session token does not resolve to a
// known user/device pairing.
var ErrUnauthorized = errors.New("directory: unauthorized token")

// Tier quota defaults, in connected seconds per billing period.
const (
	FreeQuotaSeconds    = 30 * 60
	PremiumQuotaSeconds = 8 * 60 * 60
)

// DeviceRecord is the directory's view of one device.
type DeviceRecord struct {
	DeviceID string `json:"device_id"`

	// Volume is the device speaker volume, 0-100.
	Volume int `json:"volume"`

	// OTAPending signals the device should fetch a firmware update
	// after this session ends.
	OTAPending bool `json:"ota_pending"`

	// ResetRequested signals the device should factory reset.
	ResetRequested bool `json:"reset_requested"`

	// PitchFactor adjusts playback pitch, 1.0 is unmodified.
	PitchFactor float64 `json:"pitch_factor"`

	// SelectedAssetID is the asset the owner picked for offline playback.
	SelectedAssetID string `json:"selected_asset_id"`

	// ProviderTag selects the voice backend for this device.
	ProviderTag string `json:"provider_tag"`

	// PlaybackStatus is the last reported playback state.
	PlaybackStatus string `json:"playback_status"`
}

// UserRecord is the directory's view of the user owning a device.
type UserRecord struct {
	UserID  string `json:"user_id"`
	Premium bool   `json:"premium"`

	// QuotaSeconds is the connected-seconds allowance for the current
	// billing period; UsedSeconds is how much is already consumed.
	QuotaSeconds int64 `json:"quota_seconds"`
	UsedSeconds  int64 `json:"used_seconds"`

	// SystemPrompt is the persona configured for this user's assistant.
	SystemPrompt string `json:"system_prompt"`

	Device DeviceRecord `json:"device"`
}

// RemainingSeconds returns the unconsumed allowance, never negative.
func (u *UserRecord) RemainingSeconds() int64 {
	if u.UsedSeconds >= u.QuotaSeconds {
		return 0
	}
	return u.QuotaSeconds - u.UsedSeconds
}

// Directory resolves session tokens and persists usage.
type Directory interface {
	// ResolveUser validates a device session token and returns the user
	// and device it belongs to. Returns ErrUnauthorized for unknown or
	// expired tokens.
	ResolveUser(ctx context.Context, token string) (*UserRecord, error)

	// PersistUsageSeconds records the cumulative connected seconds for the
	// user's current billing period.
	PersistUsageSeconds(ctx context.Context, userID string, seconds int64) error
}
