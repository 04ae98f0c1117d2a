package inventory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	itemsBucketName    = "inventory_items"
	shoppingBucketName = "shopping_list"
)

// DB defines the persistence operations for inventory and the
// shopping list.
type DB interface {
	// SaveItems inserts a batch of items in a single transaction.
	SaveItems(items []*Item) error

	// GetItem retrieves an item by ID.
	GetItem(id string) (*Item, error)

	// ListItems returns all inventory items.
	ListItems() ([]*Item, error)

	// DeleteItem removes an item.
	DeleteItem(id string) error

	// AppendShoppingItems adds entries to the shopping list, merging
	// quantities into existing uncompleted entries by name.
	AppendShoppingItems(items []*ShoppingItem) error

	// ListShoppingItems returns all shopping list entries.
	ListShoppingItems() ([]*ShoppingItem, error)

	// Close closes the database.
	Close() error
}

// BoltDB implements DB using bbolt.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens the database file and creates the buckets.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(itemsBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(shoppingBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveItems writes the whole batch in one update so a committed scan
// is visible all at once, never partially.
func (b *BoltDB) SaveItems(items []*Item) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucketName))
		for _, item := range items {
			data, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("marshaling item: %w", err)
			}
			if err := bucket.Put([]byte(item.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetItem retrieves an item by ID.
func (b *BoltDB) GetItem(id string) (*Item, error) {
	var item *Item
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("item not found: %s", id)
		}
		return json.Unmarshal(data, &item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListItems returns all inventory items.
func (b *BoltDB) ListItems() ([]*Item, error) {
	items := make([]*Item, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling item: %w", err)
			}
			items = append(items, &item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteItem removes an item.
func (b *BoltDB) DeleteItem(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucketName))
		return bucket.Delete([]byte(id))
	})
}

// AppendShoppingItems merges new entries into the list. An uncompleted
// entry with the same name (case-insensitive) absorbs the quantity
// instead of duplicating the row.
func (b *BoltDB) AppendShoppingItems(items []*ShoppingItem) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(shoppingBucketName))

		existing := make(map[string]*ShoppingItem)
		err := bucket.ForEach(func(k, v []byte) error {
			var entry ShoppingItem
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling shopping item: %w", err)
			}
			if !entry.Completed {
				existing[strings.ToLower(entry.Name)] = &entry
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, item := range items {
			target := item
			if prior, ok := existing[strings.ToLower(item.Name)]; ok {
				prior.Quantity += item.Quantity
				target = prior
			} else {
				existing[strings.ToLower(item.Name)] = item
			}
			data, err := json.Marshal(target)
			if err != nil {
				return fmt.Errorf("marshaling shopping item: %w", err)
			}
			if err := bucket.Put([]byte(target.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListShoppingItems returns all shopping list entries.
func (b *BoltDB) ListShoppingItems() ([]*ShoppingItem, error) {
	items := make([]*ShoppingItem, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(shoppingBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var item ShoppingItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling shopping item: %w", err)
			}
			items = append(items, &item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
