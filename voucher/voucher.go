// Package voucher encodes redemption vouchers: the payload a merchant
// scans at checkout to honour a discount granted by a token burn.
package voucher

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/xraph/loyalty/transaction"
	"github.com/xraph/loyalty/types"
)

// ErrInvalidPayload is returned by Decode for malformed vouchers.
var ErrInvalidPayload = errors.New("voucher: invalid payload")

// Payload is the content of a redemption voucher.
type Payload struct {
	TransactionID      string    `json:"transaction_id"`
	Customer           string    `json:"customer"`
	BusinessID         string    `json:"business_id"`
	TokensBurned       uint64    `json:"tokens_burned"`
	DiscountPercentage uint8     `json:"discount_percentage"`
	DiscountAmount     uint64    `json:"discount_amount"`
	Currency           string    `json:"currency"`
	Signature          string    `json:"signature"`
	IssuedAt           time.Time `json:"issued_at"`
}

// New builds the voucher for a redeem record.
func New(rec *transaction.Record, discount types.Money) Payload {
	return Payload{
		TransactionID:      rec.ID.String(),
		Customer:           rec.Customer,
		BusinessID:         rec.BusinessID.String(),
		TokensBurned:       rec.TokensAmount,
		DiscountPercentage: rec.DiscountPercentage,
		DiscountAmount:     uint64(discount.Amount), //nolint:gosec // discounts are never negative
		Currency:           discount.Currency,
		Signature:          rec.Signature,
		IssuedAt:           rec.Timestamp,
	}
}

// Discount returns the granted discount as Money.
func (p Payload) Discount() types.Money {
	return types.FromMinor(p.DiscountAmount, p.Currency)
}

// Encode renders p as compact JSON.
func (p Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("voucher: encode: %w", err)
	}
	return string(data), nil
}

// Decode parses a payload produced by Encode.
func Decode(s string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if p.TransactionID == "" || p.Signature == "" {
		return Payload{}, fmt.Errorf("%w: missing transaction id or signature", ErrInvalidPayload)
	}
	return p, nil
}

// ──────────────────────────────────────────────────
// QR rendering
// ──────────────────────────────────────────────────

// DefaultSize is the default PNG edge length in pixels.
const DefaultSize = 256

// Renderer draws vouchers as QR code images.
type Renderer struct {
	level qrcode.RecoveryLevel
	size  int
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithRecoveryLevel sets the QR error correction level.
func WithRecoveryLevel(level qrcode.RecoveryLevel) Option {
	return func(r *Renderer) { r.level = level }
}

// WithSize sets the PNG edge length in pixels.
func WithSize(px int) Option {
	return func(r *Renderer) {
		if px > 0 {
			r.size = px
		}
	}
}

// NewRenderer creates a Renderer with medium error correction.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{level: qrcode.Medium, size: DefaultSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PNG renders p as a PNG-encoded QR code.
func (r *Renderer) PNG(p Payload) ([]byte, error) {
	data, err := p.Encode()
	if err != nil {
		return nil, err
	}
	return r.EncodedPNG(data)
}

// EncodedPNG renders an already encoded payload, such as
// loyalty.Redemption.Voucher.
func (r *Renderer) EncodedPNG(data string) ([]byte, error) {
	q, err := qrcode.New(data, r.level)
	if err != nil {
		return nil, fmt.Errorf("voucher: qr: %w", err)
	}
	png, err := q.PNG(r.size)
	if err != nil {
		return nil, fmt.Errorf("voucher: png: %w", err)
	}
	return png, nil
}
