package service

import (
	"net/http"
	"strings"

	"github.com/fulldump/apitest"
	"github.com/fulldump/biff"
)

type JSON = map[string]interface{}

// Acceptance runs the HTTP scenarios against a freshly built api. The cache
// origin must serve the embedded statics.
func Acceptance(a *biff.A, apiRequest func(method, path string) *apitest.Request) {

	a.Alternative("Put record", func(a *biff.A) {
		resp := apiRequest("PUT", "/v1/stores/transactions/records/tx-1").
			WithBodyJson(JSON{
				"meter":  "0712345678",
				"amount": 50,
				"status": "ok",
				"date":   "2024-03-01T10:00:00Z",
			}).Do()
		Save(resp, "Put record", `
			Stores the body as the record data, replacing any previous record
			with the same id. The store is created on first use.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqualJson(resp.BodyJson(), JSON{
			"id": "tx-1",
			"data": JSON{
				"meter":  "0712345678",
				"amount": 50,
				"status": "ok",
				"date":   "2024-03-01T10:00:00Z",
			},
		})

		a.Alternative("Get record", func(a *biff.A) {
			resp := apiRequest("GET", "/v1/stores/transactions/records/tx-1").Do()
			Save(resp, "Get record", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"id": "tx-1",
				"data": JSON{
					"meter":  "0712345678",
					"amount": 50,
					"status": "ok",
					"date":   "2024-03-01T10:00:00Z",
				},
			})
		})

		a.Alternative("Get missing record", func(a *biff.A) {
			resp := apiRequest("GET", "/v1/stores/transactions/records/tx-404").Do()
			Save(resp, "Get record - not found", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			biff.AssertEqual(resp.BodyJson().(JSON)["error"].(JSON)["description"], "Record not found")
		})

		a.Alternative("Replace record", func(a *biff.A) {
			apiRequest("PUT", "/v1/stores/transactions/records/tx-1").
				WithBodyJson(JSON{"status": "reversed"}).Do()

			resp := apiRequest("GET", "/v1/stores/transactions/records/tx-1").Do()
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"id":   "tx-1",
				"data": JSON{"status": "reversed"},
			})
		})

		a.Alternative("Retrieve store", func(a *biff.A) {
			resp := apiRequest("GET", "/v1/stores/transactions").Do()
			Save(resp, "Retrieve store", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"name":  "transactions",
				"total": 1,
			})
		})

		a.Alternative("List stores", func(a *biff.A) {
			apiRequest("PUT", "/v1/stores/meters/records/0712345678").
				WithBodyJson(JSON{"owner": "Fulanez"}).Do()

			resp := apiRequest("GET", "/v1/stores").Do()
			Save(resp, "List stores", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), []JSON{
				{"name": "meters", "total": 1},
				{"name": "transactions", "total": 1},
			})
		})

		a.Alternative("Remove record", func(a *biff.A) {
			resp := apiRequest("DELETE", "/v1/stores/transactions/records/tx-1").Do()
			Save(resp, "Remove record", `
				Removing an id that does not exist also succeeds.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusNoContent)

			resp = apiRequest("GET", "/v1/stores/transactions/records/tx-1").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusNotFound)

			resp = apiRequest("DELETE", "/v1/stores/transactions/records/tx-1").Do()
			biff.AssertEqual(resp.StatusCode, http.StatusNoContent)
		})

		a.Alternative("Latest record", func(a *biff.A) {
			apiRequest("PUT", "/v1/stores/transactions/records/tx-2").
				WithBodyJson(JSON{"status": "failed"}).Do()

			resp := apiRequest("POST", "/v1/stores/transactions:latest").Do()
			Save(resp, "Latest record", `
				Returns the record with the greatest id.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{
				"id":   "tx-2",
				"data": JSON{"status": "failed"},
			})
		})

		a.Alternative("Query", func(a *biff.A) {
			apiRequest("PUT", "/v1/stores/transactions/records/tx-2").
				WithBodyJson(JSON{"status": "failed", "date": "2024-05-01T10:00:00Z"}).Do()
			apiRequest("PUT", "/v1/stores/transactions/records/tx-3").
				WithBodyJson(JSON{"status": "ok", "date": "2024-06-01T10:00:00Z"}).Do()

			a.Alternative("By field", func(a *biff.A) {
				resp := apiRequest("POST", "/v1/stores/transactions:query").
					WithBodyJson(JSON{
						"criteria": JSON{"status": "ok"},
					}).Do()
				Save(resp, "Query records", `
					Every criteria field must be equal. Results come newest id first.
				`)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				ids := []string{}
				for _, r := range resp.BodyJson().([]interface{}) {
					ids = append(ids, r.(JSON)["id"].(string))
				}
				biff.AssertEqual(ids, []string{"tx-3", "tx-1"})
			})

			a.Alternative("By date range", func(a *biff.A) {
				resp := apiRequest("POST", "/v1/stores/transactions:query").
					WithBodyJson(JSON{
						"criteria": JSON{
							"range": JSON{
								"date": JSON{
									"start": "2024-04-01T00:00:00Z",
									"end":   "2024-05-31T00:00:00Z",
								},
							},
						},
					}).Do()
				Save(resp, "Query records by date range", `
					Range bounds are inclusive, keyed by the date field they
					apply to.
				`)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqualJson(resp.BodyJson(), []JSON{
					{"id": "tx-2", "data": JSON{"status": "failed", "date": "2024-05-01T10:00:00Z"}},
				})
			})

			a.Alternative("With limit", func(a *biff.A) {
				resp := apiRequest("POST", "/v1/stores/transactions:query").
					WithBodyJson(JSON{"limit": 1}).Do()

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqual(len(resp.BodyJson().([]interface{})), 1)
			})

			a.Alternative("Negative limit", func(a *biff.A) {
				resp := apiRequest("POST", "/v1/stores/transactions:query").
					WithBodyJson(JSON{"limit": -1}).Do()

				biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
			})

			a.Alternative("Latest by field", func(a *biff.A) {
				resp := apiRequest("POST", "/v1/stores/transactions:latestByField").
					WithBodyJson(JSON{"field": "status", "value": "ok"}).Do()
				Save(resp, "Latest record by field", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertEqual(resp.BodyJson().(JSON)["id"], "tx-3")
			})

			a.Alternative("Latest by field, no match", func(a *biff.A) {
				resp := apiRequest("POST", "/v1/stores/transactions:latestByField").
					WithBodyJson(JSON{"field": "status", "value": "pending"}).Do()

				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})
		})

		a.Alternative("Evict", func(a *biff.A) {
			apiRequest("PUT", "/v1/stores/transactions/records/tx-0").
				WithBodyJson(JSON{"date": "2001-01-01T00:00:00Z"}).Do()

			resp := apiRequest("POST", "/v1/stores/transactions:evict").
				WithBodyJson(JSON{"field": "date", "months": 6}).Do()
			Save(resp, "Evict old records", `
				Removes the records whose date field is older than the given
				number of months. Records without a parseable date are kept.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{"removed": 2})

			resp = apiRequest("GET", "/v1/stores/transactions").Do()
			biff.AssertEqualJson(resp.BodyJson(), JSON{"name": "transactions", "total": 0})
		})

		a.Alternative("Evict without field", func(a *biff.A) {
			resp := apiRequest("POST", "/v1/stores/transactions:evict").
				WithBodyJson(JSON{"months": 6}).Do()

			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		})

		a.Alternative("Evict with negative months", func(a *biff.A) {
			resp := apiRequest("POST", "/v1/stores/transactions:evict").
				WithBodyJson(JSON{"field": "date", "months": -1}).Do()

			biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		})

		a.Alternative("Evict with default months", func(a *biff.A) {
			apiRequest("PUT", "/v1/stores/transactions/records/tx-9").
				WithBodyJson(JSON{"date": "2999-01-01T00:00:00Z"}).Do()

			resp := apiRequest("POST", "/v1/stores/transactions:evict").
				WithBodyJson(JSON{"field": "date"}).Do()

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqualJson(resp.BodyJson(), JSON{"removed": 1})
		})

		a.Alternative("Drop store", func(a *biff.A) {
			resp := apiRequest("POST", "/v1/stores/transactions:drop").Do()
			Save(resp, "Drop store", ``)

			biff.AssertEqual(resp.StatusCode, http.StatusNoContent)

			a.Alternative("Get dropped store", func(a *biff.A) {
				resp := apiRequest("GET", "/v1/stores/transactions").Do()
				Save(resp, "Retrieve store - not found", ``)

				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})

			a.Alternative("Drop again", func(a *biff.A) {
				resp := apiRequest("POST", "/v1/stores/transactions:drop").Do()

				biff.AssertEqual(resp.StatusCode, http.StatusNotFound)
			})
		})
	})

	a.Alternative("Malformed JSON", func(a *biff.A) {
		resp := apiRequest("PUT", "/v1/stores/transactions/records/tx-1").
			WithBodyString(`{"status" "ok"}`).Do()

		biff.AssertEqual(resp.StatusCode, http.StatusBadRequest)
		biff.AssertEqual(resp.BodyJson().(JSON)["error"].(JSON)["description"], "Malformed JSON")
	})

	a.Alternative("Unknown v1 endpoint", func(a *biff.A) {
		resp := apiRequest("GET", "/v1/unknown").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusNotImplemented)
	})

	a.Alternative("Cache status", func(a *biff.A) {
		resp := apiRequest("GET", "/v1/cache").Do()
		Save(resp, "Cache status", ``)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqual(resp.BodyJson().(JSON)["state"], "installing")
	})

	a.Alternative("Activate before install", func(a *biff.A) {
		resp := apiRequest("POST", "/v1/cache:activate").Do()

		biff.AssertEqual(resp.StatusCode, http.StatusConflict)
	})

	a.Alternative("Install cache", func(a *biff.A) {
		resp := apiRequest("POST", "/v1/cache:install").Do()
		Save(resp, "Install cache", `
			Fetches every manifest asset into the bucket of the running version.
		`)

		biff.AssertEqual(resp.StatusCode, http.StatusOK)
		biff.AssertEqual(resp.BodyJson().(JSON)["state"], "installed")

		a.Alternative("Activate cache", func(a *biff.A) {
			resp := apiRequest("POST", "/v1/cache:activate").Do()
			Save(resp, "Activate cache", `
				Starts answering assets from the cache and deletes the buckets
				of other versions.
			`)

			biff.AssertEqual(resp.StatusCode, http.StatusOK)
			biff.AssertEqual(resp.BodyJson().(JSON)["state"], "active")

			a.Alternative("Serve cached asset", func(a *biff.A) {
				resp := apiRequest("GET", "/assets/index.js").Do()

				biff.AssertEqual(resp.StatusCode, http.StatusOK)
				biff.AssertTrue(strings.Contains(resp.BodyString(), "/v1/stores/"))
			})
		})
	})
}
