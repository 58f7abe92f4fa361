package daemon

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/lestrrat-go/jwx/jws"
	"github.com/lestrrat-go/jwx/jwt"
	"github.com/rs/zerolog/log"
)

// LoadJWTKey reads a PEM encoded public key used to verify bearer JWTs.
func LoadJWTKey(path string) (jwk.Key, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT public key: %w", err)
	}
	key, err := jwk.ParseKey(b, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
	}
	return key, nil
}

func (s *Server) authEnabled() bool {
	return s.opts.Token != "" || s.opts.JWTKey != nil
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authEnabled() {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !s.validToken(token) {
			writeError(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validToken(token string) bool {
	if s.opts.Token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.Token)) == 1 {
		return true
	}
	if s.opts.JWTKey == nil {
		return false
	}
	var raw any
	if err := s.opts.JWTKey.Raw(&raw); err != nil {
		log.Error().Err(err).Msg("unusable JWT key")
		return false
	}
	alg, err := tokenAlgorithm(token, raw)
	if err != nil {
		log.Debug().Err(err).Msg("rejected bearer token")
		return false
	}
	if _, err := jwt.Parse([]byte(token), jwt.WithVerify(alg, raw), jwt.WithValidate(true)); err != nil {
		log.Debug().Err(err).Msg("rejected bearer token")
		return false
	}
	return true
}

// tokenAlgorithm returns the algorithm named in the token header if the
// key can verify it.
func tokenAlgorithm(token string, key any) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.Parse([]byte(token))
	if err != nil {
		return "", err
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return "", fmt.Errorf("expected one signature, got %d", len(sigs))
	}
	alg := sigs[0].ProtectedHeaders().Algorithm()
	allowed, err := keyAlgorithms(key)
	if err != nil {
		return "", err
	}
	if !slices.Contains(allowed, alg) {
		return "", fmt.Errorf("algorithm %q does not match the %T key", alg, key)
	}
	return alg, nil
}

// keyAlgorithms lists the signature algorithms a public key can verify.
func keyAlgorithms(key any) ([]jwa.SignatureAlgorithm, error) {
	switch k := key.(type) {
	case *rsa.PublicKey:
		return []jwa.SignatureAlgorithm{jwa.RS256, jwa.RS384, jwa.RS512, jwa.PS256, jwa.PS384, jwa.PS512}, nil
	case *ecdsa.PublicKey:
		switch k.Curve.Params().Name {
		case elliptic.P256().Params().Name:
			return []jwa.SignatureAlgorithm{jwa.ES256}, nil
		case elliptic.P384().Params().Name:
			return []jwa.SignatureAlgorithm{jwa.ES384}, nil
		case elliptic.P521().Params().Name:
			return []jwa.SignatureAlgorithm{jwa.ES512}, nil
		}
		return nil, fmt.Errorf("unsupported curve %s", k.Curve.Params().Name)
	case ed25519.PublicKey:
		return []jwa.SignatureAlgorithm{jwa.EdDSA}, nil
	}
	return nil, fmt.Errorf("unsupported key type %T", key)
}
