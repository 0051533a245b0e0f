package constants

// Handler constants
const (
	// DefaultNearestK is the number of identities returned by a nearest lookup
	DefaultNearestK = 5

	// MaxRequestBody bounds JSON request bodies; probes arrive base64 encoded
	MaxRequestBody = 20 << 20
)
