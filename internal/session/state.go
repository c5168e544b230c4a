package session

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/brocaar/ttn-sensor-node/internal/storage"
)

// Field names of the persisted session record.
const (
	fieldNetID   = "netId"
	fieldDevAddr = "devAddr"
	fieldNwkSKey = "nwkKey"
	fieldAppSKey = "artKey"
)

// State defines the session state.
type State int

// Possible session states.
const (
	NoSession State = iota
	Joining
	Joined
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "NoSession"
	case Joining:
		return "Joining"
	case Joined:
		return "Joined"
	default:
		return "Unknown"
	}
}

// SessionState holds the session negotiated with the network.
type SessionState struct {
	NetID   uint32
	DevAddr uint32
	NwkSKey [16]byte
	AppSKey [16]byte
}

// Fields returns the preferences fields of the session.
func (s SessionState) Fields() map[string][]byte {
	netID := make([]byte, 4)
	binary.LittleEndian.PutUint32(netID, s.NetID)
	devAddr := make([]byte, 4)
	binary.LittleEndian.PutUint32(devAddr, s.DevAddr)

	nwkSKey := make([]byte, len(s.NwkSKey))
	copy(nwkSKey, s.NwkSKey[:])
	appSKey := make([]byte, len(s.AppSKey))
	copy(appSKey, s.AppSKey[:])

	return map[string][]byte{
		fieldNetID:   netID,
		fieldDevAddr: devAddr,
		fieldNwkSKey: nwkSKey,
		fieldAppSKey: appSKey,
	}
}

// UnmarshalFields decodes the session from the given preferences fields.
// A missing or wrong-sized field returns ErrInvalidPersistedState and leaves
// s untouched.
func (s *SessionState) UnmarshalFields(fields map[string][]byte) error {
	sizes := []struct {
		name string
		size int
	}{
		{fieldNetID, 4},
		{fieldDevAddr, 4},
		{fieldNwkSKey, 16},
		{fieldAppSKey, 16},
	}

	for _, f := range sizes {
		b, ok := fields[f.name]
		if !ok {
			return errors.Wrapf(ErrInvalidPersistedState, "field %s is missing", f.name)
		}
		if len(b) != f.size {
			return errors.Wrapf(ErrInvalidPersistedState, "field %s has %d bytes, expected %d", f.name, len(b), f.size)
		}
	}

	s.NetID = binary.LittleEndian.Uint32(fields[fieldNetID])
	s.DevAddr = binary.LittleEndian.Uint32(fields[fieldDevAddr])
	copy(s.NwkSKey[:], fields[fieldNwkSKey])
	copy(s.AppSKey[:], fields[fieldAppSKey])

	return nil
}

// LoadState reads the session from the given namespace. It returns
// ErrInvalidPersistedState when the namespace is absent or incomplete.
func LoadState(ctx context.Context, prefs storage.Preferences, namespace string) (SessionState, error) {
	var s SessionState

	fields, err := prefs.Get(ctx, namespace)
	if err != nil {
		return s, errors.Wrap(err, "get preferences error")
	}

	if err := s.UnmarshalFields(fields); err != nil {
		return s, err
	}

	return s, nil
}

// EraseState removes the session from the given namespace.
func EraseState(ctx context.Context, prefs storage.Preferences, namespace string) error {
	if err := prefs.Clear(ctx, namespace); err != nil {
		return errors.Wrap(err, "clear preferences error")
	}
	return nil
}
