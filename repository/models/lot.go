package models

import "time"

// LotStatus is the lifecycle state of a lot. Declaration order matches the
// uint8 status codes used by the supply chain contract.
type LotStatus string

const (
	StatusCreated      LotStatus = "CREATED"
	StatusValidated    LotStatus = "VALIDATED"
	StatusInPharmacy   LotStatus = "IN_PHARMACY"
	StatusAdministered LotStatus = "ADMINISTERED"

	// StatusUnknown is returned when the ledger reports a status code this
	// version does not know about.
	StatusUnknown LotStatus = "UNKNOWN"
)

var statusOrder = []LotStatus{
	StatusCreated,
	StatusValidated,
	StatusInPharmacy,
	StatusAdministered,
}

// Ordinal returns the contract status code for the status, or -1 when the
// status is not one of the four lifecycle states.
func (s LotStatus) Ordinal() int {
	for i, status := range statusOrder {
		if status == s {
			return i
		}
	}
	return -1
}

// IsValid reports whether s is one of the four lifecycle states.
func (s LotStatus) IsValid() bool {
	return s.Ordinal() >= 0
}

// StatusFromCode maps a contract status code back to a lifecycle state.
// Unrecognized codes decode to StatusUnknown so that ledger responses using
// future codes remain readable.
func StatusFromCode(code int) LotStatus {
	if code < 0 || code >= len(statusOrder) {
		return StatusUnknown
	}
	return statusOrder[code]
}

// Lot represents a medicine lot tracked through the custody chain
type Lot struct {
	ID        string       `gorm:"column:lot_id;primaryKey;type:varchar(36)" json:"id"`
	MedName   string       `gorm:"column:med_name;type:varchar(100);not null" json:"medName"`
	Quantity  int          `gorm:"column:qty;not null" json:"quantity"`
	Validated bool         `gorm:"column:validated;default:false" json:"validated"`
	Status    LotStatus    `gorm:"column:status;type:varchar(20);not null" json:"status"`
	CreatedBy string       `gorm:"column:created_by;type:varchar(50);index;not null" json:"createdBy"`
	CreatedAt time.Time    `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	History   []LotHistory `gorm:"foreignKey:LotID;constraint:OnDelete:CASCADE" json:"history"`
}

// AddHistory appends an audit entry for the given action and actor.
func (l *Lot) AddHistory(action, actor string) {
	l.History = append(l.History, LotHistory{
		LotID:     l.ID,
		Action:    action,
		Actor:     actor,
		Timestamp: time.Now(),
	})
}

// LotHistory is an append-only audit entry owned by exactly one lot. Entries
// are never updated and are only removed by cascading deletion of the lot.
type LotHistory struct {
	ID        uint      `gorm:"column:history_id;primaryKey;autoIncrement" json:"-"`
	LotID     string    `gorm:"column:lot_id;type:varchar(36);index;not null" json:"-"`
	Action    string    `gorm:"column:action;type:varchar(255);not null" json:"action"`
	Actor     string    `gorm:"column:actor;type:varchar(50);not null" json:"actor"`
	Timestamp time.Time `gorm:"column:timestamp;not null" json:"at"`
}
