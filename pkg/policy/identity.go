package policy

import "github.com/libstaff/reqflow/pkg/entity"

// ResolveRequester reconciles acting-as-proxy against self. With no proxy
// selected, or with the acting patron picked as their own proxy, the
// acting patron is the requester and no proxy is recorded. Otherwise the
// selected proxy becomes the requester of record and the acting patron is
// recorded as requesting on their behalf.
func ResolveRequester(actingUser entity.User, selectedProxy *entity.User) entity.RequesterIdentity {
	if selectedProxy == nil || selectedProxy.ID == actingUser.ID {
		return entity.RequesterIdentity{RequesterID: actingUser.ID}
	}
	return entity.RequesterIdentity{
		RequesterID: selectedProxy.ID,
		ProxyUserID: actingUser.ID,
	}
}
