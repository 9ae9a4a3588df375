// Mints a signed development token for exercising credential flows locally
// without a live issuer. Pairs with scripts/jwt-generate-keys, which writes
// the signing key this script reads.
package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	subjectDefault := "user-1"
	if current, err := user.Current(); err == nil {
		subjectDefault = current.Username
	}

	keyPath := flag.String("key", ".auth/jwt_private.pem", "Path to the RSA signing key (PEM)")
	issuer := flag.String("issuer", "https://localhost:9000", "Token issuer")
	audience := flag.String("audience", "gridbase", "Token audience")
	subject := flag.String("subject", subjectDefault, "Token subject")
	tenantDB := flag.String("tenant_db", "", "tenant_db claim, the tenant database the token is scoped to (optional)")
	roles := flag.String("roles", "", "roles claim, comma-separated (optional)")
	kid := flag.String("kid", "local-key", "Key ID header")
	expires := flag.Duration("expires", time.Hour, "Token lifetime (e.g. 1h)")
	flag.Parse()

	signingKey, err := loadSigningKey(*keyPath)
	if err != nil {
		fatal(err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": *issuer,
		"sub": *subject,
		"aud": splitList(*audience),
		"iat": now.Unix(),
		"exp": now.Add(*expires).Unix(),
		"nbf": now.Add(-1 * time.Minute).Unix(),
	}
	if *tenantDB != "" {
		claims["tenant_db"] = *tenantDB
	}
	if *roles != "" {
		claims["roles"] = splitList(*roles)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = *kid
	signed, err := token.SignedString(signingKey)
	if err != nil {
		fatal(err)
	}

	fmt.Println(signed)
}

// loadSigningKey accepts both PKCS#1 and PKCS#8 encodings so keys from other
// tooling work too.
func loadSigningKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode signing key pem")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported signing key type")
	}
	return rsaKey, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

func splitList(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
