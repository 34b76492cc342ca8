package autho

import (
	"github.com/omnicore/gateway/internal/domain/identity"
	"github.com/omnicore/gateway/internal/domain/user"
	"github.com/omnicore/gateway/internal/gateway/gwerr"
)

// rank orders roles from least to most privileged. Unknown roles rank below
// viewer and fail every check.
var rank = map[string]int{
	user.RoleViewer:     1,
	user.RoleResearcher: 2,
	user.RoleAnalyst:    3,
	user.RoleAdmin:      4,
}

// RequireRole rejects identities below the required role. Anonymous viewers
// can never satisfy anything above viewer.
func RequireRole(id *identity.Identity, required string) error {
	if id == nil {
		return gwerr.AuthRequired()
	}
	need, ok := rank[required]
	if !ok {
		return gwerr.Forbidden(required, id.Role)
	}
	if rank[id.Role] < need {
		return gwerr.Forbidden(required, id.Role)
	}
	return nil
}
