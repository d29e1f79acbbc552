package apistorev1

import (
	"github.com/fulldump/box"

	"github.com/fulldump/offlinestore/service"
)

func BuildV1Store(v1 *box.R, s service.Servicer) *box.R {

	stores := v1.Resource("/stores").
		WithActions(
			box.Get(listStores(s)).WithName("listStores"),
		)

	v1.Resource("/stores/{storeName}").
		WithActions(
			box.Get(getStore).WithName("getStore"),
			box.ActionPost(latest).WithName("latest"),
			box.ActionPost(latestByField).WithName("latestByField"),
			box.ActionPost(query).WithName("query"),
			box.ActionPost(evict).WithName("evict"),
			box.ActionPost(dropStore).WithName("drop"),
		)

	v1.Resource("/stores/{storeName}/records/{recordId}").
		WithActions(
			box.Get(getRecord).WithName("getRecord"),
			box.Put(putRecord).WithName("putRecord"),
			box.Delete(removeRecord).WithName("removeRecord"),
		)

	return stores
}
