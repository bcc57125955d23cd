package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

// Admission codes are long opaque tokens with a distinct prefix, so a code can
// never be guessed from a ticket number and the two are distinguishable on
// sight at the door.
const (
	admissionCodePrefix = "adm_"
	ticketNumberPrefix  = "TKT-"
)

var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewAdmissionCode returns a fresh opaque scan token.
func NewAdmissionCode() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return admissionCodePrefix + codeEncoding.EncodeToString(raw), nil
}

// NewTicketNumber returns a short human-presentable code for receipts and
// support conversations. Uniqueness is enforced by the tickets table.
func NewTicketNumber() (string, error) {
	raw := make([]byte, 5)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return ticketNumberPrefix + codeEncoding.EncodeToString(raw), nil
}

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

type payload struct {
	TicketID      string    `json:"ticket_id"`
	EventID       string    `json:"event_id"`
	AdmissionCode string    `json:"admission_code"`
	IssuedAt      time.Time `json:"issued_at"`
}

// EncodePNG renders the encrypted admission payload as a QR image.
func (g *Generator) EncodePNG(ticketID, eventID, admissionCode string, issuedAt time.Time) ([]byte, error) {
	data, err := json.Marshal(payload{
		TicketID:      ticketID,
		EventID:       eventID,
		AdmissionCode: admissionCode,
		IssuedAt:      issuedAt,
	})
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, g.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
