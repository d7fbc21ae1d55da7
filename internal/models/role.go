package models

import "strconv"

// Role роль, которую подтверждает внешний провайдер идентификации
type Role string

const (
	RoleCustomer Role = "Customer"
	RoleStaff    Role = "Staff"
	RoleAdmin    Role = "Admin"
)

// Valid проверяет, что роль известна ядру
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// IsStaff - сотрудник или администратор
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Identity проверенная личность из запроса. Ядро доверяет ей без проверок
type Identity struct {
	ID   int64 `json:"id"`
	Role Role  `json:"role"`
}

// Actor строковое представление для журналов движений
func (i Identity) Actor() string {
	return string(i.Role) + ":" + strconv.FormatInt(i.ID, 10)
}
