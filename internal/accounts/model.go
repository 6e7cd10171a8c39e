// Package accounts implements the account directory: an authoritative
// relational store fronted by a write-through Redis cache, with a live
// shadow migration to a DynamoDB-backed store.
package accounts

import (
	"github.com/google/uuid"
)

// MasterDeviceID is the distinguished device slot whose signed pre-key and
// push timestamp participate in migration comparison.
const MasterDeviceID = 1

// SignedPreKey is the prekey published by a device.
type SignedPreKey struct {
	KeyID     int64  `json:"keyId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature"`
}

// Device is a sub-entity owned by exactly one account. LastSeen changes on
// every fetch and is excluded from migration comparison.
type Device struct {
	ID            uint32        `json:"id"`
	Name          string        `json:"name,omitempty"`
	Registration  string        `json:"registrationId,omitempty"`
	SignedPreKey  *SignedPreKey `json:"signedPreKey,omitempty"`
	PushTimestamp int64         `json:"pushTimestamp"`
	LastSeen      int64         `json:"lastSeen"`
}

// Account is the authoritative directory record. The UUID is never part of
// the cache serialisation; the cache layer restores it from the entity key
// after decoding.
type Account struct {
	UUID                           uuid.UUID `json:"-"`
	Number                         string    `json:"number"`
	IdentityKey                    string    `json:"identityKey,omitempty"`
	CurrentProfileVersion          *string   `json:"currentProfileVersion,omitempty"`
	ProfileName                    string    `json:"profileName,omitempty"`
	Avatar                         string    `json:"avatar,omitempty"`
	UnidentifiedAccessKey          []byte    `json:"unidentifiedAccessKey,omitempty"`
	UnrestrictedUnidentifiedAccess bool      `json:"unrestrictedUnidentifiedAccess"`
	DiscoverableByPhoneNumber      bool      `json:"discoverableByPhoneNumber"`
	Devices                        []Device  `json:"devices"`
	MigrationVersion               int       `json:"migrationVersion"`
}

// MasterDevice returns the device at the master slot, or nil.
func (a *Account) MasterDevice() *Device {
	for i := range a.Devices {
		if a.Devices[i].ID == MasterDeviceID {
			return &a.Devices[i]
		}
	}
	return nil
}

// Clone returns a deep copy. Shadow operations work on copies so the
// caller-visible account is never mutated off the authoritative path.
func (a *Account) Clone() *Account {
	c := *a

	if a.UnidentifiedAccessKey != nil {
		c.UnidentifiedAccessKey = make([]byte, len(a.UnidentifiedAccessKey))
		copy(c.UnidentifiedAccessKey, a.UnidentifiedAccessKey)
	}

	if a.CurrentProfileVersion != nil {
		v := *a.CurrentProfileVersion
		c.CurrentProfileVersion = &v
	}

	if a.Devices != nil {
		c.Devices = make([]Device, len(a.Devices))
		copy(c.Devices, a.Devices)
		for i := range a.Devices {
			if a.Devices[i].SignedPreKey != nil {
				k := *a.Devices[i].SignedPreKey
				c.Devices[i].SignedPreKey = &k
			}
		}
	}

	return &c
}
