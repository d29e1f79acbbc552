package collection

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"testing"

	. "github.com/fulldump/biff"
	"github.com/google/uuid"
)

func Environment(f func(filename string)) {
	filename := "test_" + uuid.New().String() + ".json"
	defer os.Remove(filename)
	f(filename)
}

func traverseIds(c *Collection, reverse bool) []string {
	ids := []string{}
	f := func(row *Row) bool {
		ids = append(ids, row.Id)
		return true
	}
	if reverse {
		c.TraverseReverse(f)
	} else {
		c.Traverse(f)
	}
	return ids
}

func TestPut(t *testing.T) {
	Environment(func(filename string) {

		// Setup
		c, _ := OpenCollection(filename, nil)

		// Run
		c.Put("my-id", map[string]interface{}{
			"hello": "world",
		})

		c.Close()

		// Check
		fileContent, _ := os.ReadFile(filename)
		command := &Command{}
		json.Unmarshal(fileContent, command)
		AssertEqual(command.Name, CommandPut)
		AssertEqual(string(command.Payload), `{"id":"my-id","data":{"hello":"world"}}`)
	})
}

func TestPutGet(t *testing.T) {
	Environment(func(filename string) {

		c, _ := OpenCollection(filename, nil)
		defer c.Close()

		_, err := c.Put("1", map[string]interface{}{"name": "Pablo", "age": 33})
		AssertNil(err)

		row, ok := c.Get("1")
		AssertTrue(ok)
		data, err := row.Decode()
		AssertNil(err)
		AssertEqualJson(data, map[string]interface{}{"name": "Pablo", "age": 33})

		_, ok = c.Get("2")
		AssertFalse(ok)
	})
}

func TestPutKeepsPosition(t *testing.T) {
	Environment(func(filename string) {

		c, _ := OpenCollection(filename, nil)
		defer c.Close()

		c.Put("a", map[string]interface{}{"v": 1})
		c.Put("b", map[string]interface{}{"v": 2})
		c.Put("a", map[string]interface{}{"v": 3})

		AssertEqual(c.Len(), 2)
		AssertEqual(traverseIds(c, false), []string{"a", "b"})

		last, ok := c.Last()
		AssertTrue(ok)
		AssertEqual(last.Id, "b")

		row, _ := c.Get("a")
		AssertEqual(string(row.Payload), `{"v":3}`)
	})
}

func TestRemove(t *testing.T) {
	Environment(func(filename string) {

		c, _ := OpenCollection(filename, nil)
		defer c.Close()

		c.Put("a", map[string]interface{}{})

		removed, err := c.Remove("a")
		AssertNil(err)
		AssertTrue(removed)

		removed, err = c.Remove("a")
		AssertNil(err)
		AssertFalse(removed)

		removed, err = c.Remove("never-written")
		AssertNil(err)
		AssertFalse(removed)

		AssertEqual(c.Len(), 0)
		_, ok := c.Last()
		AssertFalse(ok)
	})
}

func TestTraverseOrder(t *testing.T) {
	Environment(func(filename string) {

		c, _ := OpenCollection(filename, nil)
		defer c.Close()

		for _, id := range []string{"z", "m", "a"} {
			c.Put(id, map[string]interface{}{"id": id})
		}

		AssertEqual(traverseIds(c, false), []string{"z", "m", "a"})
		AssertEqual(traverseIds(c, true), []string{"a", "m", "z"})
	})
}

func TestReopen(t *testing.T) {
	Environment(func(filename string) {

		c, _ := OpenCollection(filename, nil)
		c.Put("a", map[string]interface{}{"v": 1})
		c.Put("b", map[string]interface{}{"v": 2})
		c.Put("c", map[string]interface{}{"v": 3})
		c.Remove("b")
		c.Put("a", map[string]interface{}{"v": 4})
		c.Close()

		reopened, err := OpenCollection(filename, nil)
		AssertNil(err)
		defer reopened.Close()

		AssertEqual(reopened.Len(), 2)
		AssertEqual(traverseIds(reopened, false), []string{"a", "c"})
		AssertEqual(reopened.MaxID, int64(3))

		row, _ := reopened.Get("a")
		AssertEqual(string(row.Payload), `{"v":4}`)
	})
}

func TestRemoveIf(t *testing.T) {
	Environment(func(filename string) {

		c, _ := OpenCollection(filename, nil)
		defer c.Close()

		for i := 0; i < 10; i++ {
			c.Put(strconv.Itoa(i), map[string]interface{}{"n": i})
		}

		removed, err := c.RemoveIf(func(row *Row) bool {
			data, _ := row.Decode()
			return int(data["n"].(float64))%2 == 0
		})
		AssertNil(err)
		AssertEqual(removed, 5)
		AssertEqual(traverseIds(c, false), []string{"1", "3", "5", "7", "9"})
	})
}

func TestClosed(t *testing.T) {
	Environment(func(filename string) {

		c, _ := OpenCollection(filename, nil)
		c.Close()

		_, err := c.Put("a", map[string]interface{}{})
		AssertEqual(err, ErrCollectionClosed)

		_, err = c.Remove("a")
		AssertEqual(err, ErrCollectionClosed)
	})
}

func TestUnknownEngine(t *testing.T) {
	_, err := OpenCollection("whatever", &Options{Engine: "paper"})
	AssertNotNil(err)
	AssertEqual(err.Error(), "open storage: unknown storage engine 'paper', must be [json|sqlite]")
}

func TestSQLiteEngine(t *testing.T) {
	filename := t.TempDir() + "/collection.db"
	options := &Options{Engine: EngineSQLite}

	c, err := OpenCollection(filename, options)
	AssertNil(err)
	c.Put("a", map[string]interface{}{"v": 1})
	c.Put("b", map[string]interface{}{"v": 2})
	c.Remove("a")
	AssertNil(c.Close())

	reopened, err := OpenCollection(filename, options)
	AssertNil(err)
	defer reopened.Close()

	AssertEqual(traverseIds(reopened, false), []string{"b"})

	AssertNil(reopened.Drop())
	_, err = os.Stat(filename)
	AssertTrue(os.IsNotExist(err))
}

func TestCollection_Put_Concurrency(t *testing.T) {
	Environment(func(filename string) {

		c, _ := OpenCollection(filename, nil)
		defer c.Close()

		n := 100

		wg := &sync.WaitGroup{}
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c.Put(strconv.Itoa(i), map[string]interface{}{"hello": "world"})
			}(i)
		}

		wg.Wait()

		AssertEqual(c.Len(), n)
		AssertEqual(c.MaxID, int64(n))
	})
}
