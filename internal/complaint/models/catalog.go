package models

// ComplaintType is a catalog entry owned by configuration.
type ComplaintType struct {
	ID             string  `json:"id" yaml:"id"`
	Name           string  `json:"name" yaml:"name"`
	SeverityWeight float64 `json:"severity_weight" yaml:"severity_weight"`
}

// MunicipalUnit is the organizational entity that resolves some complaint types.
type MunicipalUnit struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	AcceptedTypes []string `json:"accepted_types" yaml:"accepted_types"`
}

// Accepts reports whether the unit handles typeID.
func (u *MunicipalUnit) Accepts(typeID string) bool {
	for _, t := range u.AcceptedTypes {
		if t == typeID {
			return true
		}
	}
	return false
}
