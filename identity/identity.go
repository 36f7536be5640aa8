package identity

import (
	"github.com/samber/lo"

	"tavle/config"
	"tavle/models"
)

// Provider resolves a bearer token to an already-established identity. The
// board only consumes the current user; sign-in, sign-up and sign-out live
// with an external collaborator.
type Provider interface {
	UserForToken(token string) (models.UserProfile, bool)
}

// StaticProvider serves identities from the config's user table.
type StaticProvider struct {
	users map[string]models.UserProfile
}

func NewStaticProvider(users []config.UserConfig) *StaticProvider {
	return &StaticProvider{
		users: lo.Associate(users, func(u config.UserConfig) (string, models.UserProfile) {
			return u.Token, models.UserProfile{
				ID:          u.ID,
				DisplayName: u.DisplayName,
				Email:       u.Email,
			}
		}),
	}
}

func (p *StaticProvider) UserForToken(token string) (models.UserProfile, bool) {
	if token == "" {
		return models.UserProfile{}, false
	}
	user, ok := p.users[token]
	return user, ok
}
