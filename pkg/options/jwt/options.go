// Package jwt provides JWT configuration options for the docqa API.
//
// Configuration Example (YAML):
//
//	jwt:
//	  key: "your-secret-key-min-32-chars-long"
//	  signing-method: "HS256"
//	  expired: "2h"
//	  issuer: "docqa"
package jwt

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docqa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

const (
	// DefaultSigningMethod is the default JWT signing algorithm.
	DefaultSigningMethod = "HS256"

	// DefaultExpired is the default token expiration time.
	DefaultExpired = 2 * time.Hour

	// DefaultIssuer is the default token issuer.
	DefaultIssuer = "docqa"

	// MinKeyLength is the minimum required key length for security.
	MinKeyLength = 32

	// MaxKeyLength is the maximum allowed key length.
	MaxKeyLength = 256
)

// SupportedSigningMethods contains all supported JWT signing algorithms.
var SupportedSigningMethods = map[string]bool{
	"HS256": true,
	"HS384": true,
	"HS512": true,
}

// Options contains JWT configuration.
type Options struct {
	// DisableAuth disables JWT authentication. Requests then act as DevOwner.
	// Default: false
	DisableAuth bool `json:"disable-auth" mapstructure:"disable-auth"`

	// DevOwner is the owner id used when authentication is disabled.
	DevOwner string `json:"dev-owner" mapstructure:"dev-owner"`

	// Key is the secret key used to sign tokens.
	// Minimum length: 32 characters.
	Key string `json:"-" mapstructure:"key"`

	// SigningMethod is the JWT signing algorithm (HS256, HS384, HS512).
	SigningMethod string `json:"signing-method" mapstructure:"signing-method"`

	// Expired is the lifetime of tokens issued by the service.
	Expired time.Duration `json:"expired" mapstructure:"expired"`

	// Issuer is the token issuer (iss claim). Empty disables the issuer check.
	Issuer string `json:"issuer" mapstructure:"issuer"`
}

// NewOptions creates a new Options with default values.
func NewOptions() *Options {
	return &Options{
		DisableAuth:   false,
		DevOwner:      "dev",
		SigningMethod: DefaultSigningMethod,
		Expired:       DefaultExpired,
		Issuer:        DefaultIssuer,
	}
}

// Validate validates the JWT options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	if o.DisableAuth {
		if o.DevOwner == "" {
			return []error{fmt.Errorf("jwt.dev-owner is required when authentication is disabled")}
		}
		return nil
	}

	var errs []error
	if !SupportedSigningMethods[o.SigningMethod] {
		errs = append(errs, fmt.Errorf("unsupported signing method: %s", o.SigningMethod))
	}

	switch {
	case o.Key == "":
		errs = append(errs, fmt.Errorf("jwt key is required"))
	case len(o.Key) < MinKeyLength:
		errs = append(errs, fmt.Errorf("jwt key must be at least %d characters, got: %d", MinKeyLength, len(o.Key)))
	case len(o.Key) > MaxKeyLength:
		errs = append(errs, fmt.Errorf("jwt key must be at most %d characters, got: %d", MaxKeyLength, len(o.Key)))
	}

	if o.Expired <= 0 {
		errs = append(errs, fmt.Errorf("expired must be positive, got: %v", o.Expired))
	}

	return errs
}

// Complete fills in default values for unset fields.
func (o *Options) Complete() error {
	if o.SigningMethod == "" {
		o.SigningMethod = DefaultSigningMethod
	}
	if o.Expired == 0 {
		o.Expired = DefaultExpired
	}
	return nil
}

// AddFlags adds flags for JWT options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "jwt."
	fs.BoolVar(&o.DisableAuth, p+"disable-auth", o.DisableAuth,
		"Disable JWT authentication (all requests act as jwt.dev-owner)")
	fs.StringVar(&o.DevOwner, p+"dev-owner", o.DevOwner,
		"Owner id used when authentication is disabled")
	fs.StringVar(&o.Key, p+"key", o.Key,
		"JWT signing key (min 32 chars)")
	fs.StringVar(&o.SigningMethod, p+"signing-method", o.SigningMethod,
		"JWT signing algorithm (HS256, HS384, HS512)")
	fs.DurationVar(&o.Expired, p+"expired", o.Expired,
		"JWT token expiration duration")
	fs.StringVar(&o.Issuer, p+"issuer", o.Issuer,
		"JWT token issuer (iss claim)")
}
