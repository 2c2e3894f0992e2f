package domain

// UserIdentifier carries the external identifiers a caller may know for a
// vehicle. The first non-empty field, in declaration order, is used as the
// (source_type, source_value) pair for identity resolution.
type UserIdentifier struct {
	VID           string `json:"vid,omitempty"`
	MAC           string `json:"mac,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	Phone         string `json:"phone,omitempty"`
	AppID         string `json:"app_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	QRID          string `json:"qr_id,omitempty"`
}

// Source returns the highest-priority populated identifier as a
// (source_type, source_value) pair. ok is false when every field is empty.
func (u UserIdentifier) Source() (sourceType, sourceValue string, ok bool) {
	switch {
	case u.VID != "":
		return "vid", u.VID, true
	case u.MAC != "":
		return "mac", u.MAC, true
	case u.UserID != "":
		return "user_id", u.UserID, true
	case u.Phone != "":
		return "phone", u.Phone, true
	case u.AppID != "":
		return "app_id", u.AppID, true
	case u.TransactionID != "":
		return "transaction_id", u.TransactionID, true
	case u.QRID != "":
		return "qr_id", u.QRID, true
	}
	return "", "", false
}

// IdentityPair is one forward entry of the identity table, used by the
// console map view and the identify endpoint.
type IdentityPair struct {
	SourceType  string `json:"source_type"`
	SourceValue string `json:"source_value"`
	VID         string `json:"vid"`
}
