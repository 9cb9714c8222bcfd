package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
)

const vaultKeyLen = 32

// Vault encrypts single-use delivery secrets with AES-256-GCM. Each card
// carries its own key material which is mixed into the master key, so one
// stored ciphertext never decrypts with another card's row.
type Vault struct {
	master []byte
}

// NewVault validates the configured base64 master key. A missing or invalid
// key is replaced with a freshly generated one, which is logged so the
// operator can pin it in the environment; the vault never runs unencrypted.
func NewVault(encodedKey string) (*Vault, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err == nil && len(key) == vaultKeyLen {
		log.Println("card encryption key validated")
		return &Vault{master: key}, nil
	}

	key = make([]byte, vaultKeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate vault key: %w", err)
	}
	log.Printf("invalid or missing CARD_ENCRYPTION_KEY, generated a new one: %s", base64.StdEncoding.EncodeToString(key))
	log.Println("copy this key to CARD_ENCRYPTION_KEY or existing cards will not decrypt after restart")
	return &Vault{master: key}, nil
}

// NewCardSecret returns fresh per-card key material.
func (v *Vault) NewCardSecret() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate card secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// cardKey derives the AES key for one card from the master key and the
// card's own key material.
func (v *Vault) cardKey(cardSecret string) []byte {
	h := sha256.New()
	h.Write(v.master)
	h.Write([]byte(cardSecret))
	return h.Sum(nil)
}

func (v *Vault) Encrypt(content, cardSecret string) (string, error) {
	block, err := aes.NewCipher(v.cardKey(cardSecret))
	if err != nil {
		return "", fmt.Errorf("vault cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(content), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *Vault) Decrypt(encryptedContent, cardSecret string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encryptedContent)
	if err != nil {
		return "", fmt.Errorf("vault decode: %w", err)
	}
	block, err := aes.NewCipher(v.cardKey(cardSecret))
	if err != nil {
		return "", fmt.Errorf("vault cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault gcm: %w", err)
	}
	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("vault: ciphertext too short")
	}
	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("vault open: %w", err)
	}
	return string(plain), nil
}
