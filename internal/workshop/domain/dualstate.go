package domain

// DualState holds the two physical copies a locally edited record can have:
// the backend-confirmed value and the local draft. The backend copy wins
// whenever it exists and carries data; the draft is only a fallback.
type DualState[T any] struct {
	Confirmed *T `json:"confirmed,omitempty"`
	Draft     T  `json:"draft"`
}

// Resolve implements the precedence rule in one place. hasData reports
// whether a confirmed value actually carries content (e.g. a reception
// record with a non-empty materials list); an empty confirmed record does
// not shadow the draft.
func (d DualState[T]) Resolve(hasData func(T) bool) T {
	if d.Confirmed != nil && hasData(*d.Confirmed) {
		return *d.Confirmed
	}
	return d.Draft
}

// FromServer reports whether Resolve would return the confirmed copy.
func (d DualState[T]) FromServer(hasData func(T) bool) bool {
	return d.Confirmed != nil && hasData(*d.Confirmed)
}
