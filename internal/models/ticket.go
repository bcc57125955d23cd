package models

import (
	"time"

	"github.com/uptrace/bun"

	"ticket-inventory/internal/engine"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID            string `bun:"id,pk"`
	EventID       string `bun:"event_id,notnull"`
	TicketNumber  string `bun:"ticket_number,notnull,unique"`
	AdmissionCode string `bun:"admission_code,notnull,unique"`

	// Holder is either a registered user or an embedded guest identity.
	HolderUserID string `bun:"holder_user_id"`
	GuestName    string `bun:"guest_name"`
	GuestEmail   string `bun:"guest_email"`
	GuestPhone   string `bun:"guest_phone"`

	// PriceSnapshot is the amount in minor currency units captured at
	// issuance. It never changes afterwards.
	PriceSnapshot int64 `bun:"price_snapshot,notnull"`

	State      engine.TicketState `bun:"state,notnull"`
	AdmittedAt time.Time          `bun:"admitted_at,nullzero"`
	AdmittedBy string             `bun:"admitted_by"`

	QRCode []byte `bun:"qr_code"`

	IssuedAt  time.Time `bun:"issued_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (t *Ticket) Holder() engine.HolderRef {
	return engine.HolderRef{
		UserID:     t.HolderUserID,
		GuestName:  t.GuestName,
		GuestEmail: t.GuestEmail,
		GuestPhone: t.GuestPhone,
	}
}
