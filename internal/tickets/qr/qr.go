package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/skip2/go-qrcode"

	"ms-booking/internal/models"
)

var ErrInvalidPass = errors.New("invalid booking pass")

// Pass is the payload sealed into a booking QR code.
type Pass struct {
	BookingID string    `json:"bookingId"`
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	IssuedAt  time.Time `json:"issuedAt"`
}

type Generator struct {
	secret []byte
	now    func() time.Time
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:], now: time.Now}
}

// Render returns a 256px PNG encoding the sealed pass for b.
func (g *Generator) Render(b *models.Booking) ([]byte, error) {
	payload, err := g.Seal(Pass{
		BookingID: b.ID,
		EventID:   b.EventID,
		UserID:    b.UserID,
		IssuedAt:  g.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(payload, qrcode.Medium, 256)
}

// Seal encrypts p with AES-GCM and returns it URL-safe base64 encoded.
func (g *Generator) Seal(p Pass) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	gcm, err := g.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, data, nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Tampered or foreign payloads yield ErrInvalidPass.
func (g *Generator) Open(payload string) (Pass, error) {
	var p Pass
	raw, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return p, ErrInvalidPass
	}

	gcm, err := g.aead()
	if err != nil {
		return p, err
	}
	if len(raw) < gcm.NonceSize() {
		return p, ErrInvalidPass
	}

	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return p, ErrInvalidPass
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPass, err)
	}
	return p, nil
}

func (g *Generator) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
