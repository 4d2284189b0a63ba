package jwt

import (
	"support-desk-backend/internal/env"
)

const (
	RoleCustomer Role = iota
	RoleSeller
	RoleAdmin
)

var RoleSecrets = map[Role]string{}

func init() {
	RoleSecrets[RoleCustomer] = env.Get(env.CustomerSecret)
	RoleSecrets[RoleSeller] = env.Get(env.SellerSecret)
	RoleSecrets[RoleAdmin] = env.Get(env.AdminSecret)
}
