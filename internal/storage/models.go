package storage

import (
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sample is a specimen registered by a user.
type Sample struct {
	bun.BaseModel `bun:"table:samples,alias:s" json:"-"`

	ID          string    `bun:"id,pk" json:"id"`
	OwnerID     string    `bun:"owner_id,notnull" json:"owner_id"`
	Name        string    `bun:"name,notnull" json:"name"`
	Description string    `bun:"description" json:"description"`
	Status      string    `bun:"status,notnull" json:"status"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (s *Sample) GetID() string      { return s.ID }
func (s *Sample) GetOwnerID() string { return s.OwnerID }

// Report is an analysis result attached to a user.
type Report struct {
	bun.BaseModel `bun:"table:reports,alias:rp" json:"-"`

	ID        string    `bun:"id,pk" json:"id"`
	OwnerID   string    `bun:"owner_id,notnull" json:"owner_id"`
	SampleID  string    `bun:"sample_id" json:"sample_id,omitempty"`
	Title     string    `bun:"title,notnull" json:"title"`
	Body      string    `bun:"body" json:"body"`
	Status    string    `bun:"status,notnull" json:"status"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (r *Report) GetID() string      { return r.ID }
func (r *Report) GetOwnerID() string { return r.OwnerID }

// Notification is a message for one user. Status is "unread" or "read".
type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n" json:"-"`

	ID            string    `bun:"id,pk" json:"id"`
	OwnerID       string    `bun:"owner_id,notnull" json:"owner_id"`
	ReservationID string    `bun:"reservation_id" json:"reservation_id,omitempty"`
	Title         string    `bun:"title,notnull" json:"title"`
	Message       string    `bun:"message,notnull" json:"message"`
	Status        string    `bun:"status,notnull" json:"status"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

const (
	NotificationUnread = "unread"
	NotificationRead   = "read"
)

func (n *Notification) GetID() string      { return n.ID }
func (n *Notification) GetOwnerID() string { return n.OwnerID }

// Profile is the account data of a user. Its id is the user id.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:p" json:"-"`

	ID          string    `bun:"id,pk" json:"id"`
	DisplayName string    `bun:"display_name,notnull" json:"display_name"`
	Email       string    `bun:"email,notnull,unique" json:"email"`
	Role        string    `bun:"role,notnull" json:"role"`
	Status      string    `bun:"status,notnull" json:"status"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (p *Profile) GetID() string      { return p.ID }
func (p *Profile) GetOwnerID() string { return p.ID }

func parseID(id string) uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

func NewSampleRepository(db *bun.DB) repository.Repository[*Sample] {
	return repository.NewRepository[*Sample](db, repository.ModelHandlers[*Sample]{
		NewRecord:     func() *Sample { return &Sample{} },
		GetID:         func(s *Sample) uuid.UUID { return parseID(s.ID) },
		SetID:         func(s *Sample, id uuid.UUID) { s.ID = id.String() },
		GetIdentifier: func() string { return "name" },
	})
}

func NewReportRepository(db *bun.DB) repository.Repository[*Report] {
	return repository.NewRepository[*Report](db, repository.ModelHandlers[*Report]{
		NewRecord:     func() *Report { return &Report{} },
		GetID:         func(r *Report) uuid.UUID { return parseID(r.ID) },
		SetID:         func(r *Report, id uuid.UUID) { r.ID = id.String() },
		GetIdentifier: func() string { return "title" },
	})
}

func NewNotificationRepository(db *bun.DB) repository.Repository[*Notification] {
	return repository.NewRepository[*Notification](db, repository.ModelHandlers[*Notification]{
		NewRecord:     func() *Notification { return &Notification{} },
		GetID:         func(n *Notification) uuid.UUID { return parseID(n.ID) },
		SetID:         func(n *Notification, id uuid.UUID) { n.ID = id.String() },
		GetIdentifier: func() string { return "id" },
	})
}

func NewProfileRepository(db *bun.DB) repository.Repository[*Profile] {
	return repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord:     func() *Profile { return &Profile{} },
		GetID:         func(p *Profile) uuid.UUID { return parseID(p.ID) },
		SetID:         func(p *Profile, id uuid.UUID) { p.ID = id.String() },
		GetIdentifier: func() string { return "email" },
	})
}
