// internal/storage/models/operation.go
package models

// Operation statuses.
const (
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Operation is one committed engine operation. Caller and User differ on
// deployer-driven grants and cranker claims; AmountIn/AmountOut are base
// units in whatever token the operation kind implies.
type Operation struct {
	BaseModel
	Kind      string `gorm:"index;not null;type:varchar(40)"`
	Caller    string `gorm:"index;not null;type:varchar(44)"`
	User      string `gorm:"index;not null;type:varchar(44)"`
	AmountIn  uint64 `gorm:"not null;default:0"`
	AmountOut uint64 `gorm:"not null;default:0"`
	Status    string `gorm:"not null;type:varchar(20)"`
	ErrorKind string `gorm:"type:varchar(60)"`
}
