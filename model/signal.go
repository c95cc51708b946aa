package model

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Signal is a "something changed" event. It carries no data beyond the scope,
// receivers always re-hydrate the family.
type Signal struct {
	SignalType SignalType `json:"signalType"`
	// Empty for SignalTypeReactionsChanged, which concerns every family.
	FamilyID string `json:"familyId,omitempty"`
}

type SignalType string

const (
	SignalTypeFamilyPostsChanged SignalType = "FAMILY_POSTS_CHANGED"
	SignalTypeReactionsChanged   SignalType = "REACTIONS_CHANGED"
)

var AllSignalType = []SignalType{
	SignalTypeFamilyPostsChanged,
	SignalTypeReactionsChanged,
}

func (e SignalType) IsValid() bool {
	switch e {
	case SignalTypeFamilyPostsChanged, SignalTypeReactionsChanged:
		return true
	}
	return false
}

func (e SignalType) String() string {
	return string(e)
}

// NewFamilySignal builds the signal for a change scoped to one family's posts.
// An empty family id means a reaction changed somewhere.
func NewFamilySignal(familyID string) *Signal {
	if familyID == "" {
		return &Signal{SignalType: SignalTypeReactionsChanged}
	}
	return &Signal{SignalType: SignalTypeFamilyPostsChanged, FamilyID: familyID}
}

func (s *Signal) Marshal() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func UnmarshalSignal(payload string) (*Signal, error) {
	var s Signal
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, errors.Wrapf(err, "invalid signal payload: %s", payload)
	}
	if !s.SignalType.IsValid() {
		return nil, errors.Errorf("%s is not a valid SignalType", s.SignalType)
	}
	if s.SignalType == SignalTypeFamilyPostsChanged && s.FamilyID == "" {
		return nil, errors.Errorf("signal %s without family id", s.SignalType)
	}
	return &s, nil
}
