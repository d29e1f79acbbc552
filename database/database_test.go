package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fulldump/biff"
)

func newTestDatabase(t *testing.T) *Database {
	db := NewDatabase(&Config{
		Dir:  t.TempDir(),
		Name: "test",
	})
	biff.AssertNil(db.Load())
	return db
}

func TestDatabase(t *testing.T) {

	biff.Alternative("Setup", func(a *biff.A) {

		dir := t.TempDir()
		db := NewDatabase(&Config{
			Dir:  dir,
			Name: "prepaidplus",
		})

		_, err := db.Connect()
		biff.AssertEqual(err, ErrOpening)

		biff.AssertNil(db.Load())
		biff.AssertEqual(db.GetStatus(), StatusOperating)
		biff.AssertEqual(db.Version(), int64(0))
		biff.AssertEqual(db.CollectionNames(), []string{})

		ctx := context.Background()

		a.Alternative("Connection on missing collection", func(a *biff.A) {
			conn, err := db.Connect()
			biff.AssertNil(err)
			defer conn.Close()

			_, err = conn.Collection("auth")
			biff.AssertTrue(errors.Is(err, ErrCollectionNotFound))
			biff.AssertFalse(conn.Has("auth"))
		})

		a.Alternative("Ensure collection", func(a *biff.A) {
			conn, err := db.EnsureCollection(ctx, "auth")
			biff.AssertNil(err)
			biff.AssertEqual(conn.Version(), int64(1))
			biff.AssertTrue(conn.Has("auth"))
			conn.Close()

			a.Alternative("Ensure again does not upgrade", func(a *biff.A) {
				conn, err := db.EnsureCollection(ctx, "auth")
				biff.AssertNil(err)
				defer conn.Close()
				biff.AssertEqual(db.Version(), int64(1))
				biff.AssertEqual(db.CollectionNames(), []string{"auth"})
			})

			a.Alternative("Reload keeps version and collections", func(a *biff.A) {
				biff.AssertNil(db.Stop())

				reloaded := NewDatabase(&Config{
					Dir:  dir,
					Name: "prepaidplus",
				})
				biff.AssertNil(reloaded.Load())
				defer reloaded.Stop()

				biff.AssertEqual(reloaded.Version(), int64(1))
				biff.AssertEqual(reloaded.CollectionNames(), []string{"auth"})
			})

			a.Alternative("Drop collection", func(a *biff.A) {
				biff.AssertNil(db.DropCollection(ctx, "auth"))
				biff.AssertEqual(db.Version(), int64(2))
				biff.AssertFalse(db.HasCollection("auth"))

				err := db.DropCollection(ctx, "auth")
				biff.AssertTrue(errors.Is(err, ErrCollectionNotFound))
				biff.AssertEqual(db.Version(), int64(2))
			})
		})

		a.Alternative("Upgrade closes open connections", func(a *biff.A) {
			conn, err := db.Connect()
			biff.AssertNil(err)

			notified := int64(0)
			conn.OnVersionChange(func(c *Connection, newVersion int64) {
				notified = newVersion
				c.Close()
			})

			err = db.Upgrade(ctx, func(tx *UpgradeTx) error {
				return tx.CreateCollection("transactions")
			})
			biff.AssertNil(err)
			biff.AssertEqual(notified, int64(1))
			biff.AssertTrue(conn.Closed())

			_, err = conn.Collection("transactions")
			biff.AssertEqual(err, ErrClosed)
		})

		a.Alternative("Upgrade blocked", func(a *biff.A) {
			conn, err := db.Connect()
			biff.AssertNil(err)
			conn.OnVersionChange(nil)

			ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()

			err = db.Upgrade(ctx, func(tx *UpgradeTx) error {
				return tx.CreateCollection("transactions")
			})
			biff.AssertTrue(errors.Is(err, ErrBlocked))
			biff.AssertTrue(errors.Is(err, context.DeadlineExceeded))
			biff.AssertEqual(db.Version(), int64(0))
			biff.AssertFalse(db.HasCollection("transactions"))

			a.Alternative("Unblocked after close", func(a *biff.A) {
				conn.Close()
				err = db.Upgrade(context.Background(), func(tx *UpgradeTx) error {
					return tx.CreateCollection("transactions")
				})
				biff.AssertNil(err)
				biff.AssertEqual(db.Version(), int64(1))
			})
		})

		a.Alternative("Failed upgrade rolls back", func(a *biff.A) {
			failure := errors.New("migration failed")
			err := db.Upgrade(ctx, func(tx *UpgradeTx) error {
				err := tx.CreateCollection("pairing")
				biff.AssertNil(err)
				return failure
			})
			biff.AssertTrue(errors.Is(err, failure))
			biff.AssertEqual(db.Version(), int64(0))
			biff.AssertFalse(db.HasCollection("pairing"))
		})

		a.Alternative("Invalid collection names", func(a *biff.A) {
			for _, name := range []string{"", "_meta.json", "../escape", ".hidden"} {
				_, err := db.EnsureCollection(ctx, name)
				biff.AssertNotNil(err)
			}
			biff.AssertEqual(db.Version(), int64(0))
		})

		a.Alternative("Stopped database", func(a *biff.A) {
			biff.AssertNil(db.Stop())
			_, err := db.Connect()
			biff.AssertEqual(err, ErrClosed)
		})
	})
}

func TestEnsureCollection_Concurrency(t *testing.T) {

	db := newTestDatabase(t)
	defer db.Stop()

	names := []string{"auth", "transactions", "pairing", "auth", "transactions", "pairing"}

	wg := &sync.WaitGroup{}
	errs := make(chan error, len(names))
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			conn, err := db.EnsureCollection(context.Background(), name)
			if err != nil {
				errs <- err
				return
			}
			conn.Close()
		}(name)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		biff.AssertNil(err)
	}

	biff.AssertEqual(db.CollectionNames(), []string{"auth", "pairing", "transactions"})
	biff.AssertTrue(db.Version() <= int64(3))
}
