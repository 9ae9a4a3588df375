// Generates an RSA key pair for signing local development tokens. The
// private key feeds scripts/jwt-mint; the public key is what a verifier
// would be handed.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

func main() {
	dir := flag.String("dir", ".auth", "Directory for the generated key pair")
	bits := flag.Int("bits", 2048, "RSA key size")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0o700); err != nil {
		fatal(fmt.Errorf("failed to create %s: %w", *dir, err))
	}

	key, err := rsa.GenerateKey(rand.Reader, *bits)
	if err != nil {
		fatal(fmt.Errorf("failed to generate key: %w", err))
	}

	publicBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		fatal(fmt.Errorf("failed to marshal public key: %w", err))
	}

	privatePath := filepath.Join(*dir, "jwt_private.pem")
	publicPath := filepath.Join(*dir, "jwt_public.pem")

	if err := writePEM(privatePath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), 0o600); err != nil {
		fatal(err)
	}
	if err := writePEM(publicPath, "PUBLIC KEY", publicBytes, 0o644); err != nil {
		fatal(err)
	}

	fmt.Printf("generated %s and %s\n", privatePath, publicPath)
}

func writePEM(path, pemType string, der []byte, perm os.FileMode) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	if err := pem.Encode(file, &pem.Block{Type: pemType, Bytes: der}); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
