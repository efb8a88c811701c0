package config

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// IdentityTableJSON is a JSON object mapping bearer tokens to
	// identities, consumed by the static token provider. Deployments that
	// front authentication elsewhere populate this with per-user tokens.
	IdentityTableJSON string `env:"IDENTITY_TABLE_JSON" envDefault:""`
}
