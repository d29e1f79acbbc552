package recordstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fulldump/biff"

	"github.com/fulldump/offlinestore/database"
)

type JSON = map[string]any

func newTestDatabase(t *testing.T) *database.Database {
	db := database.NewDatabase(&database.Config{
		Dir:  t.TempDir(),
		Name: "prepaidplus",
	})
	biff.AssertNil(db.Load())
	return db
}

func recordIds(records []*Record) []string {
	ids := []string{}
	for _, r := range records {
		ids = append(ids, r.Id)
	}
	return ids
}

func TestStore(t *testing.T) {

	biff.Alternative("Setup", func(a *biff.A) {

		db := newTestDatabase(t)
		ctx := context.Background()

		now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
		store := New(db, "transactions", WithClock(func() time.Time {
			return now
		}))

		a.Alternative("Open collection upgrades the database", func(a *biff.A) {
			biff.AssertNil(store.OpenCollection(ctx))
			biff.AssertEqual(db.Version(), int64(1))
			biff.AssertTrue(db.HasCollection("transactions"))

			biff.AssertNil(store.OpenCollection(ctx))
			biff.AssertEqual(db.Version(), int64(1))
		})

		a.Alternative("Get never written", func(a *biff.A) {
			data, err := store.Get(ctx, "missing")
			biff.AssertNil(err)
			biff.AssertNil(data)
		})

		a.Alternative("Put then get", func(a *biff.A) {
			data := JSON{
				"amount":   12.5,
				"currency": "ZAR",
				"items":    []any{"airtime", "data"},
				"meta":     JSON{"channel": "pos"},
			}
			biff.AssertNil(store.Put(ctx, "tx-1", data))

			obtained, err := store.Get(ctx, "tx-1")
			biff.AssertNil(err)
			biff.AssertEqualJson(obtained, data)

			a.Alternative("Put replaces", func(a *biff.A) {
				biff.AssertNil(store.Put(ctx, "tx-1", JSON{"amount": 1}))
				obtained, err := store.Get(ctx, "tx-1")
				biff.AssertNil(err)
				biff.AssertEqualJson(obtained, JSON{"amount": 1})
			})

			a.Alternative("Remove is idempotent", func(a *biff.A) {
				biff.AssertNil(store.Remove(ctx, "tx-1"))
				biff.AssertNil(store.Remove(ctx, "tx-1"))
				biff.AssertNil(store.Remove(ctx, "never-written"))

				data, err := store.Get(ctx, "tx-1")
				biff.AssertNil(err)
				biff.AssertNil(data)
			})
		})

		a.Alternative("Put without id", func(a *biff.A) {
			err := store.Put(ctx, "", JSON{})
			biff.AssertTrue(IsKind(err, KindTransaction))
		})

		a.Alternative("Get latest", func(a *biff.A) {
			latest, err := store.GetLatest(ctx)
			biff.AssertNil(err)
			biff.AssertNil(latest)

			for i := 1; i <= 5; i++ {
				biff.AssertNil(store.Put(ctx, fmt.Sprintf("tx-%d", i), JSON{"n": i}))
			}

			latest, err = store.GetLatest(ctx)
			biff.AssertNil(err)
			biff.AssertEqual(latest.Id, "tx-5")
			biff.AssertEqualJson(latest.Data, JSON{"n": 5})
		})

		a.Alternative("Query", func(a *biff.A) {
			biff.AssertNil(store.Put(ctx, "a", JSON{"status": "ok", "user": "u1", "date": "2024-01-10T10:00:00Z"}))
			biff.AssertNil(store.Put(ctx, "b", JSON{"status": "failed", "user": "u1", "date": "2024-02-10T10:00:00Z"}))
			biff.AssertNil(store.Put(ctx, "c", JSON{"status": "ok", "user": "u2", "date": "2024-03-10T10:00:00Z"}))
			biff.AssertNil(store.Put(ctx, "d", JSON{"status": "ok", "user": "u1", "date": "not a date"}))
			biff.AssertNil(store.Put(ctx, "e", JSON{"status": "ok", "user": "u1", "count": 3}))

			a.Alternative("By field", func(a *biff.A) {
				records, err := store.QueryByFields(ctx, Criteria{"status": "ok"}, 0)
				biff.AssertNil(err)
				biff.AssertEqual(recordIds(records), []string{"e", "d", "c", "a"})
			})

			a.Alternative("By several fields", func(a *biff.A) {
				records, err := store.QueryByFields(ctx, Criteria{"status": "ok", "user": "u1"}, 0)
				biff.AssertNil(err)
				biff.AssertEqual(recordIds(records), []string{"e", "d", "a"})
			})

			a.Alternative("Numbers match across types", func(a *biff.A) {
				records, err := store.QueryByFields(ctx, Criteria{"count": 3}, 0)
				biff.AssertNil(err)
				biff.AssertEqual(recordIds(records), []string{"e"})
			})

			a.Alternative("With limit", func(a *biff.A) {
				records, err := store.QueryByFields(ctx, Criteria{"status": "ok"}, 2)
				biff.AssertNil(err)
				biff.AssertEqual(recordIds(records), []string{"e", "d"})
			})

			a.Alternative("Nothing matches", func(a *biff.A) {
				records, err := store.QueryByFields(ctx, Criteria{"status": "pending"}, 0)
				biff.AssertNil(err)
				biff.AssertNotNil(records)
				biff.AssertEqual(len(records), 0)
			})

			a.Alternative("Empty criteria returns everything", func(a *biff.A) {
				records, err := store.QueryByFields(ctx, Criteria{}, 0)
				biff.AssertNil(err)
				biff.AssertEqual(recordIds(records), []string{"e", "d", "c", "b", "a"})
			})

			a.Alternative("Range is inclusive and excludes unparseable dates", func(a *biff.A) {
				criteria := Criteria{
					"user": "u1",
					RangeKey: JSON{
						"date": JSON{
							"start": "2024-01-10T10:00:00Z",
							"end":   "2024-02-10T10:00:00Z",
						},
					},
				}
				records, err := store.QueryByFields(ctx, criteria, 0)
				biff.AssertNil(err)
				biff.AssertEqual(recordIds(records), []string{"b", "a"})

				// the caller's criteria is left untouched
				_, hasRange := criteria[RangeKey]
				biff.AssertTrue(hasRange)
				biff.AssertEqual(len(criteria), 2)
			})

			a.Alternative("Range with Range struct", func(a *biff.A) {
				records, err := store.QueryByFields(ctx, Criteria{
					RangeKey: map[string]Range{
						"date": {Start: "2024-02-01", End: "2024-12-31"},
					},
				}, 0)
				biff.AssertNil(err)
				biff.AssertEqual(recordIds(records), []string{"c", "b"})
			})

			a.Alternative("Range with invalid bound matches nothing", func(a *biff.A) {
				records, err := store.QueryByFields(ctx, Criteria{
					RangeKey: JSON{"date": JSON{"start": "yesterday"}},
				}, 0)
				biff.AssertNil(err)
				biff.AssertEqual(len(records), 0)
			})

			a.Alternative("Null criteria needs the field present", func(a *biff.A) {
				biff.AssertNil(store.Put(ctx, "f", JSON{"status": nil}))

				records, err := store.QueryByFields(ctx, Criteria{"status": nil}, 0)
				biff.AssertNil(err)
				biff.AssertEqual(recordIds(records), []string{"f"})

				record, err := store.GetLatestByField(ctx, "count", nil)
				biff.AssertNil(err)
				biff.AssertNil(record)
			})

			a.Alternative("Dotted names are plain keys", func(a *biff.A) {
				biff.AssertNil(store.Put(ctx, "nested", JSON{"meta": JSON{"channel": "pos"}}))
				biff.AssertNil(store.Put(ctx, "dotted", JSON{"meta.channel": "web"}))

				records, err := store.QueryByFields(ctx, Criteria{"meta.channel": "web"}, 0)
				biff.AssertNil(err)
				biff.AssertEqual(recordIds(records), []string{"dotted"})

				records, err = store.QueryByFields(ctx, Criteria{"meta.channel": "pos"}, 0)
				biff.AssertNil(err)
				biff.AssertEqual(len(records), 0)

				record, err := store.GetLatestByField(ctx, "meta.channel", "web")
				biff.AssertNil(err)
				biff.AssertEqual(record.Id, "dotted")
			})

			a.Alternative("Latest by field", func(a *biff.A) {
				record, err := store.GetLatestByField(ctx, "user", "u2")
				biff.AssertNil(err)
				biff.AssertEqual(record.Id, "c")

				record, err = store.GetLatestByField(ctx, "status", "failed")
				biff.AssertNil(err)
				biff.AssertEqual(record.Id, "b")

				record, err = store.GetLatestByField(ctx, "user", "u3")
				biff.AssertNil(err)
				biff.AssertNil(record)
			})
		})

		a.Alternative("Evict older than", func(a *biff.A) {
			biff.AssertNil(store.Put(ctx, "a", JSON{"createdAt": now.AddDate(0, -7, 0).Format(time.RFC3339)}))
			biff.AssertNil(store.Put(ctx, "b", JSON{"createdAt": now.AddDate(0, -3, 0).Format(time.RFC3339)}))
			biff.AssertNil(store.Put(ctx, "c", JSON{"createdAt": now.AddDate(0, -1, 0).Format(time.RFC3339)}))

			a.Alternative("Default retention", func(a *biff.A) {
				removed, err := store.EvictOlderThan(ctx, "createdAt", 6)
				biff.AssertNil(err)
				biff.AssertEqual(removed, 1)

				all, err := store.QueryByFields(ctx, nil, 0)
				biff.AssertNil(err)
				biff.AssertEqual(recordIds(all), []string{"c", "b"})
			})

			a.Alternative("Missing or unparseable dates survive", func(a *biff.A) {
				biff.AssertNil(store.Put(ctx, "no-date", JSON{"other": 1}))
				biff.AssertNil(store.Put(ctx, "bad-date", JSON{"createdAt": "someday"}))
				biff.AssertNil(store.Put(ctx, "null-date", JSON{"createdAt": nil}))
				biff.AssertNil(store.Put(ctx, "millis", JSON{"createdAt": now.AddDate(-1, 0, 0).UnixMilli()}))

				removed, err := store.EvictOlderThan(ctx, "createdAt", DefaultRetentionMonths)
				biff.AssertNil(err)
				biff.AssertEqual(removed, 2)

				all, err := store.QueryByFields(ctx, nil, 0)
				biff.AssertNil(err)
				biff.AssertEqual(recordIds(all), []string{"null-date", "bad-date", "no-date", "c", "b"})
			})

			a.Alternative("Zero months evicts everything dated before now", func(a *biff.A) {
				biff.AssertNil(store.Put(ctx, "later", JSON{"createdAt": now.AddDate(0, 0, 1).Format(time.RFC3339)}))

				removed, err := store.EvictOlderThan(ctx, "createdAt", 0)
				biff.AssertNil(err)
				biff.AssertEqual(removed, 3)

				all, err := store.QueryByFields(ctx, nil, 0)
				biff.AssertNil(err)
				biff.AssertEqual(recordIds(all), []string{"later"})
			})

			a.Alternative("Negative months is rejected", func(a *biff.A) {
				removed, err := store.EvictOlderThan(ctx, "createdAt", -1)
				biff.AssertTrue(errors.Is(err, ErrInvalidArgument))
				biff.AssertEqual(removed, 0)

				length, err := store.Len(ctx)
				biff.AssertNil(err)
				biff.AssertEqual(length, 3)
			})

			a.Alternative("Shorter retention", func(a *biff.A) {
				removed, err := store.EvictOlderThan(ctx, "createdAt", 2)
				biff.AssertNil(err)
				biff.AssertEqual(removed, 2)
			})
		})

		a.Alternative("Closed store", func(a *biff.A) {
			biff.AssertNil(store.Close())
			err := store.Put(ctx, "a", JSON{})
			biff.AssertTrue(IsKind(err, KindConnection))
			biff.AssertTrue(errors.Is(err, ErrStoreClosed))
		})

		a.Alternative("Reopen keeps records", func(a *biff.A) {
			biff.AssertNil(store.Put(ctx, "a", JSON{"v": 1}))
			biff.AssertNil(store.Close())

			other := New(db, "transactions")
			defer other.Close()

			data, err := other.Get(ctx, "a")
			biff.AssertNil(err)
			biff.AssertEqualJson(data, JSON{"v": 1})
		})
	})
}

func TestStore_SharedDatabase(t *testing.T) {

	biff.Alternative("Two stores on one database", func(a *biff.A) {

		db := newTestDatabase(t)
		ctx := context.Background()

		auth := New(db, "auth")
		defer auth.Close()
		pairing := New(db, "pairing")
		defer pairing.Close()

		biff.AssertNil(auth.Put(ctx, "session", JSON{"token": "t1"}))

		// opening pairing upgrades the database and closes auth's connection
		biff.AssertNil(pairing.Put(ctx, "device", JSON{"serial": "s1"}))
		biff.AssertEqual(db.Version(), int64(2))

		data, err := auth.Get(ctx, "session")
		biff.AssertNil(err)
		biff.AssertEqualJson(data, JSON{"token": "t1"})

		a.Alternative("Blocked upgrade fails after retrying", func(a *biff.A) {
			conn, err := db.Connect()
			biff.AssertNil(err)
			defer conn.Close()
			conn.OnVersionChange(nil)

			blocked := New(db, "history",
				WithOpenTimeout(20*time.Millisecond),
				WithRetryTimeout(100*time.Millisecond),
			)
			defer blocked.Close()

			err = blocked.OpenCollection(ctx)
			biff.AssertTrue(IsKind(err, KindConnection))
		})

		a.Alternative("Blocked upgrade proceeds once released", func(a *biff.A) {
			conn, err := db.Connect()
			biff.AssertNil(err)
			conn.OnVersionChange(func(c *database.Connection, newVersion int64) {
				go func() {
					time.Sleep(30 * time.Millisecond)
					c.Close()
				}()
			})

			history := New(db, "history")
			defer history.Close()

			biff.AssertNil(history.OpenCollection(ctx))
			biff.AssertTrue(conn.Closed())
		})
	})
}

func TestStore_ConcurrentOpen(t *testing.T) {

	db := newTestDatabase(t)
	ctx := context.Background()

	names := []string{"auth", "pairing", "transactions", "settings"}
	stores := []*Store{}
	for _, name := range names {
		stores = append(stores, New(db, name), New(db, name))
	}

	wg := &sync.WaitGroup{}
	errs := make(chan error, len(stores))
	for i, store := range stores {
		wg.Add(1)
		go func(i int, store *Store) {
			defer wg.Done()
			errs <- store.Put(ctx, fmt.Sprintf("id-%d", i), JSON{"i": i})
		}(i, store)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		biff.AssertNil(err)
	}

	for _, store := range stores {
		n, err := store.Len(ctx)
		biff.AssertNil(err)
		biff.AssertEqual(n, 2)
		store.Close()
	}

	biff.AssertEqual(db.CollectionNames(), []string{"auth", "pairing", "settings", "transactions"})
}
