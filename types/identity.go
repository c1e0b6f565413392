package types

// Identity is the authorization principal used for every owner check.
// It is an opaque account string (for example a wallet address); the
// library never interprets its contents, it only compares for equality.
type Identity string

// Anonymous is the zero-value Identity.
const Anonymous Identity = ""

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool { return i == Anonymous }

// String implements fmt.Stringer.
func (i Identity) String() string { return string(i) }

// Short returns a truncated form suitable for log fields. Long principals
// (addresses, public keys) keep their first and last four characters.
func (i Identity) Short() string {
	s := string(i)
	if len(s) <= 12 {
		return s
	}
	return s[:6] + ".." + s[len(s)-4:]
}
