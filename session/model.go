package session

// Session is the server-side record behind one opaque session token.
// SecretHash is the SHA-256 of the token's secret half; the plaintext
// secret lives only in the token handed to the client at login. IP and
// UserAgent are audit metadata, never enforcement inputs.
type Session struct {
	SessionID  string // assigned on read; not part of the encoded blob
	UserID     string
	SecretHash [32]byte
	CreatedAt  int64 // unix seconds
	ExpiresAt  int64 // unix seconds
	IP         string
	UserAgent  string
}
