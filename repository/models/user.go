package models

// Role is one of the four actor categories of the custody chain. Each role is
// authorized for exactly one lifecycle transition and bound to one ledger
// signing identity.
type Role string

const (
	RoleWholesaler Role = "WHOLESALER"
	RoleHospital   Role = "HOSPITAL"
	RolePharmacist Role = "PHARMACIST"
	RoleNurse      Role = "NURSE"
)

// Roles lists the four actor roles.
func Roles() []Role {
	return []Role{RoleWholesaler, RoleHospital, RolePharmacist, RoleNurse}
}

// User is an authenticated actor account
type User struct {
	ID       string `gorm:"column:user_id;primaryKey;type:varchar(36)" json:"id"`
	Username string `gorm:"column:username;type:varchar(50);uniqueIndex;not null" json:"username"`
	Password string `gorm:"column:password;type:varchar(100);not null" json:"-"`
	Role     Role   `gorm:"column:role;type:varchar(20);not null" json:"role"`
}
