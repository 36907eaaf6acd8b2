// Пакет model — доменные модели dotscan.
package model

import "time"

// AppUser — оператор; идентификатор приходит от провайдера идентификации (sub).
// Создаётся при первом входе и не удаляется.
type AppUser struct {
	UserID    string
	Email     string
	Name      string
	FirstName string
	LastName  string
	IsActive  bool
	CreatedAt time.Time
}

// AppOrg — граница тенанта.
type AppOrg struct {
	OrgID     string
	OrgName   string
	IsActive  bool
	CreatedAt time.Time
}

// Membership — связь пользователя и организации.
type Membership struct {
	UserID   string
	OrgID    string
	IsActive bool
}

// Identity — данные из id_token, достаточные для регистрации членства.
type Identity struct {
	UserID    string
	Email     string
	Name      string
	FirstName string
	LastName  string
	OrgID     string
	OrgName   string
}

// EffectiveOrg возвращает организацию; без org_id от провайдера
// пользователь становится собственной организацией.
func (i Identity) EffectiveOrg() AppOrg {
	org := AppOrg{OrgID: i.OrgID, OrgName: i.OrgName, IsActive: true}
	if org.OrgID == "" {
		org.OrgID = i.UserID
	}
	if org.OrgName == "" {
		org.OrgName = i.Email
	}
	return org
}
