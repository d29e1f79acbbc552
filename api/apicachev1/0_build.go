package apicachev1

import (
	"github.com/fulldump/box"

	"github.com/fulldump/offlinestore/service"
)

func BuildV1Cache(v1 *box.R, s service.Servicer) *box.R {

	return v1.Resource("/cache").
		WithActions(
			box.Get(getStatus(s)).WithName("getStatus"),
			box.ActionPost(install(s)).WithName("install"),
			box.ActionPost(activate(s)).WithName("activate"),
		)
}
