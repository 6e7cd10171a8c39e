package accounts

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Two serialisers live side by side on purpose. The cache serialiser carries
// every field except the UUID, which is restored from the entity key after
// decoding. The comparison serialiser is the canonical encoding used by the
// comparator: deterministic field order with migrationVersion and
// Device.lastSeen statically excluded, rather than toggled off at run time.

func marshalForCache(a *Account) ([]byte, error) {
	return json.Marshal(a)
}

func unmarshalFromCache(data []byte, id uuid.UUID) (*Account, error) {
	a := &Account{}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, err
	}
	a.UUID = id
	return a, nil
}

// comparisonDevice mirrors Device without lastSeen.
type comparisonDevice struct {
	ID            uint32        `json:"id"`
	Name          string        `json:"name,omitempty"`
	Registration  string        `json:"registrationId,omitempty"`
	SignedPreKey  *SignedPreKey `json:"signedPreKey,omitempty"`
	PushTimestamp int64         `json:"pushTimestamp"`
}

// comparisonAccount mirrors Account without migrationVersion, and with the
// UUID made explicit so canonical equality covers both logical keys.
type comparisonAccount struct {
	UUID                           string             `json:"uuid"`
	Number                         string             `json:"number"`
	IdentityKey                    string             `json:"identityKey,omitempty"`
	CurrentProfileVersion          *string            `json:"currentProfileVersion,omitempty"`
	ProfileName                    string             `json:"profileName,omitempty"`
	Avatar                         string             `json:"avatar,omitempty"`
	UnidentifiedAccessKey          []byte             `json:"unidentifiedAccessKey,omitempty"`
	UnrestrictedUnidentifiedAccess bool               `json:"unrestrictedUnidentifiedAccess"`
	DiscoverableByPhoneNumber      bool               `json:"discoverableByPhoneNumber"`
	Devices                        []comparisonDevice `json:"devices"`
}

func comparisonDevices(devices []Device) []comparisonDevice {
	out := make([]comparisonDevice, len(devices))
	for i, d := range devices {
		out[i] = comparisonDevice{
			ID:            d.ID,
			Name:          d.Name,
			Registration:  d.Registration,
			SignedPreKey:  d.SignedPreKey,
			PushTimestamp: d.PushTimestamp,
		}
	}
	return out
}

func marshalForComparison(a *Account) ([]byte, error) {
	return json.Marshal(comparisonAccount{
		UUID:                           a.UUID.String(),
		Number:                         a.Number,
		IdentityKey:                    a.IdentityKey,
		CurrentProfileVersion:          a.CurrentProfileVersion,
		ProfileName:                    a.ProfileName,
		Avatar:                         a.Avatar,
		UnidentifiedAccessKey:          a.UnidentifiedAccessKey,
		UnrestrictedUnidentifiedAccess: a.UnrestrictedUnidentifiedAccess,
		DiscoverableByPhoneNumber:      a.DiscoverableByPhoneNumber,
		Devices:                        comparisonDevices(a.Devices),
	})
}

func marshalDevicesForComparison(devices []Device) ([]byte, error) {
	return json.Marshal(comparisonDevices(devices))
}
