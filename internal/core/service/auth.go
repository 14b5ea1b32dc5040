package service

import (
	"errors"
	"slices"

	"github.com/spf13/viper"
)

type Authorizer interface {
	IsAdmin(identity string) bool
}

// AdminAuthorizer grants admin commands to a fixed set of identities.
type AdminAuthorizer struct {
	admins []string
}

func NewAuthorizer(cfg *viper.Viper) (*AdminAuthorizer, error) {
	var list []string

	err := cfg.UnmarshalKey("bot.admins", &list)
	if err != nil {
		return nil, errors.New("failed to load admin identities")
	}

	return &AdminAuthorizer{admins: list}, nil
}

func (a *AdminAuthorizer) IsAdmin(identity string) bool {
	if identity == "" {
		return false
	}

	return slices.Contains(a.admins, identity)
}
