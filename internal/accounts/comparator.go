package accounts

import "bytes"

// Mismatch tags produced by CompareAccounts, in evaluation order. Keeping
// the checks in a table means adding a field is a one-line change.
const (
	MismatchDBMissing     = "dbMissing"
	MismatchDynamoMissing = "dynamoMissing"
)

type mismatchCheck struct {
	name    string
	differs func(db, dynamo *Account) bool
}

var mismatchChecks = []mismatchCheck{
	{"uuid", func(db, dynamo *Account) bool {
		return db.UUID != dynamo.UUID
	}},
	{"number", func(db, dynamo *Account) bool {
		return db.Number != dynamo.Number
	}},
	{"identityKey", func(db, dynamo *Account) bool {
		return db.IdentityKey != dynamo.IdentityKey
	}},
	{"currentProfileVersion", func(db, dynamo *Account) bool {
		return !equalStringPtr(db.CurrentProfileVersion, dynamo.CurrentProfileVersion)
	}},
	{"profileName", func(db, dynamo *Account) bool {
		return db.ProfileName != dynamo.ProfileName
	}},
	{"avatar", func(db, dynamo *Account) bool {
		return db.Avatar != dynamo.Avatar
	}},
	{"unidentifiedAccessKey", func(db, dynamo *Account) bool {
		a, b := db.UnidentifiedAccessKey, dynamo.UnidentifiedAccessKey
		if (len(a) > 0) != (len(b) > 0) {
			return true
		}
		return len(a) > 0 && !bytes.Equal(a, b)
	}},
	{"unrestrictedUnidentifiedAccess", func(db, dynamo *Account) bool {
		return db.UnrestrictedUnidentifiedAccess != dynamo.UnrestrictedUnidentifiedAccess
	}},
	{"discoverableByPhoneNumber", func(db, dynamo *Account) bool {
		return db.DiscoverableByPhoneNumber != dynamo.DiscoverableByPhoneNumber
	}},
	{"masterDeviceSignedPreKey", func(db, dynamo *Account) bool {
		a, b := db.MasterDevice(), dynamo.MasterDevice()
		if a == nil || b == nil {
			return false
		}
		return !equalSignedPreKey(a.SignedPreKey, b.SignedPreKey)
	}},
	{"masterDevicePushTimestamp", func(db, dynamo *Account) bool {
		a, b := db.MasterDevice(), dynamo.MasterDevice()
		if a == nil || b == nil {
			return false
		}
		return a.PushTimestamp != b.PushTimestamp
	}},
	{"devices", func(db, dynamo *Account) bool {
		a, errA := marshalDevicesForComparison(db.Devices)
		b, errB := marshalDevicesForComparison(dynamo.Devices)
		if errA != nil || errB != nil {
			return true
		}
		return !bytes.Equal(a, b)
	}},
	{"serialization", func(db, dynamo *Account) bool {
		a, errA := marshalForComparison(db)
		b, errB := marshalForComparison(dynamo)
		if errA != nil || errB != nil {
			return true
		}
		return !bytes.Equal(a, b)
	}},
}

// CompareAccounts classifies a (legacy, target) result pair. It returns the
// first mismatch tag whose check fires, or ok=false when the accounts agree.
// A nil account means the store reported it absent. migrationVersion and
// Device.lastSeen never participate.
func CompareAccounts(db, dynamo *Account) (tag string, mismatch bool) {
	if db == nil && dynamo == nil {
		return "", false
	}
	if db == nil {
		return MismatchDBMissing, true
	}
	if dynamo == nil {
		return MismatchDynamoMissing, true
	}

	for _, check := range mismatchChecks {
		if check.differs(db, dynamo) {
			return check.name, true
		}
	}

	return "", false
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalSignedPreKey(a, b *SignedPreKey) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
