package domain

// ServerIdentity is the identity and descriptive attributes of one relay
// server. Name is the identity key; ID is assigned by the persistence layer
// (0 = not persisted yet).
type ServerIdentity struct {
	ID               int64
	Name             string
	CountryCode      string
	CountryName      string
	Address          Address
	LogType          string
	OperatorName     string
	OperatorMessage  string
	OvpnConfigBase64 string
}

// HasID reports whether the identity has been persisted.
func (s *ServerIdentity) HasID() bool {
	return s.ID != 0
}

// MergeInto updates s in place from a same-named, later-observed identity.
// It reports whether any field changed. On error s is left untouched.
func (s *ServerIdentity) MergeInto(other *ServerIdentity) (bool, error) {
	if s.Name != other.Name {
		return false, &IdentityMismatchError{Expected: s.Name, Got: other.Name}
	}

	id := s.ID
	if other.HasID() {
		switch {
		case !s.HasID():
			id = other.ID
		case s.ID != other.ID:
			return false, &IdConflictError{Current: s.ID, Other: other.ID}
		}
	}

	merged := *other
	merged.ID = id
	merged.Name = s.Name

	changed := !s.Equal(&merged)
	*s = merged
	return changed, nil
}

// Equal compares every field, including ID.
func (s *ServerIdentity) Equal(other *ServerIdentity) bool {
	return s.ID == other.ID &&
		s.Name == other.Name &&
		s.CountryCode == other.CountryCode &&
		s.CountryName == other.CountryName &&
		AddressEqual(s.Address, other.Address) &&
		s.LogType == other.LogType &&
		s.OperatorName == other.OperatorName &&
		s.OperatorMessage == other.OperatorMessage &&
		s.OvpnConfigBase64 == other.OvpnConfigBase64
}
