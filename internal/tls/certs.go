// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package tls issues and loads the certificates the API serves HTTPS with.
//
// A certs directory holds a local root CA (root-ca.crt, root-ca.key) and one
// server certificate signed by it (server.crt, server.key). Clients trust
// root-ca.crt; the server only ever loads the server pair.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io/fs"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// File names inside a certs directory.
const (
	CACertFile     = "root-ca.crt"
	CAKeyFile      = "root-ca.key"
	ServerCertFile = "server.crt"
	ServerKeyFile  = "server.key"
)

const (
	caValidity     = 10 * 365 * 24 * time.Hour
	serverValidity = 365 * 24 * time.Hour
)

// CA holds a certificate authority certificate and private key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// ServerCert holds a server certificate and private key.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// GenerateCA creates a root CA whose common name is "gatekeep CA {name}".
func GenerateCA(name string) (*CA, error) {
	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"gatekeep"},
			CommonName:   "gatekeep CA " + name,
		},
		NotBefore:             now,
		NotAfter:              now.Add(caValidity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	cert, err := sign(template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServerCert creates a server certificate signed by ca. Each host
// becomes an IP SAN when it parses as an address and a DNS SAN otherwise.
// At least one host is required.
func GenerateServerCert(ca *CA, hosts []string) (*ServerCert, error) {
	if ca == nil {
		return nil, oops.Code("TLS_INVALID_CA").Errorf("ca is required")
	}
	if len(hosts) == 0 {
		return nil, oops.Code("TLS_NO_HOSTS").Errorf("at least one host is required")
	}

	key, serial, err := newKeyAndSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"gatekeep"},
			CommonName:   hosts[0],
		},
		NotBefore:   now,
		NotAfter:    now.Add(serverValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	cert, err := sign(template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

func newKeyAndSerial() (*ecdsa.PrivateKey, *big.Int, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, oops.Code("TLS_KEYGEN_FAILED").Wrap(err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, oops.Code("TLS_KEYGEN_FAILED").With("part", "serial").Wrap(err)
	}
	return key, serial, nil
}

func sign(template, parent *x509.Certificate, pub *ecdsa.PublicKey, priv *ecdsa.PrivateKey) (*x509.Certificate, error) {
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, priv)
	if err != nil {
		return nil, oops.Code("TLS_SIGN_FAILED").With("subject", template.Subject.CommonName).Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("TLS_SIGN_FAILED").With("subject", template.Subject.CommonName).Wrap(err)
	}
	return cert, nil
}

// Save writes ca and, when non-nil, server into dir, creating it with 0700
// permissions. Every file is written 0600.
func Save(dir string, ca *CA, server *ServerCert) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", dir).Wrap(err)
	}
	if err := saveCert(filepath.Join(dir, CACertFile), ca.Certificate); err != nil {
		return err
	}
	if err := saveKey(filepath.Join(dir, CAKeyFile), ca.PrivateKey); err != nil {
		return err
	}
	if server == nil {
		return nil
	}
	if err := saveCert(filepath.Join(dir, ServerCertFile), server.Certificate); err != nil {
		return err
	}
	return saveKey(filepath.Join(dir, ServerKeyFile), server.PrivateKey)
}

// LoadCA reads the CA from dir. A missing CA matches fs.ErrNotExist.
func LoadCA(dir string) (*CA, error) {
	certPath := filepath.Join(dir, CACertFile)
	cert, err := readPEM(certPath, "CERTIFICATE")
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParseCertificate(cert)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", certPath).Wrap(err)
	}

	keyPath := filepath.Join(dir, CAKeyFile)
	keyDER, err := readPEM(keyPath, "EC PRIVATE KEY")
	if err != nil {
		return nil, err
	}
	key, err := x509.ParseECPrivateKey(keyDER)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", keyPath).Wrap(err)
	}
	return &CA{Certificate: parsed, PrivateKey: key}, nil
}

// LoadOrGenerateCA returns the CA in dir, creating one named name if dir
// has none. The boolean reports whether a new CA was generated.
func LoadOrGenerateCA(dir, name string) (*CA, bool, error) {
	ca, err := LoadCA(dir)
	if err == nil {
		return ca, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	ca, err = GenerateCA(name)
	if err != nil {
		return nil, false, err
	}
	return ca, true, nil
}

// ServerConfig loads the server pair from dir for serving.
func ServerConfig(dir string) (*tls.Config, error) {
	certPath := filepath.Join(dir, ServerCertFile)
	pair, err := tls.LoadX509KeyPair(certPath, filepath.Join(dir, ServerKeyFile))
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", certPath).Wrap(err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func readPEM(path, blockType string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", path).Wrap(err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != blockType {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", path).Errorf("no %s PEM block", blockType)
	}
	return block.Bytes, nil
}

func saveCert(path string, cert *x509.Certificate) error {
	return writePEM(path, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func saveKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return writePEM(path, &pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

func writePEM(path string, block *pem.Block) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := pem.Encode(f, block); err != nil {
		_ = f.Close()
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
