package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/glebarez/sqlite"
	"github.com/localnerve/shopdb/internal/database"
	"gorm.io/gorm"
)

// Prints the schema of a sqlite collection file. With no argument a fresh
// collection is created in a temp dir to show what the engine migrates.
func main() {
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	} else {
		dir, err := os.MkdirTemp("", "shopdb-schema-")
		if err != nil {
			log.Fatal(err)
		}
		defer os.RemoveAll(dir)

		path = filepath.Join(dir, "sample.sqlite")
		var files sync.RWMutex
		store, err := database.SQLiteEngine{}.Open("sample", path, database.Options{}, &files)
		if err != nil {
			log.Fatal(err)
		}
		store.Close()
	}

	db, err := gorm.Open(sqlite.Open("file:"+path+"?mode=ro"), &gorm.Config{})
	if err != nil {
		log.Fatal(err)
	}

	var tables []string
	db.Raw("SELECT name FROM sqlite_master WHERE type IN ('table', 'index') AND sql IS NOT NULL").Scan(&tables)

	for _, table := range tables {
		fmt.Printf("\n=== %s ===\n", table)
		var schema string
		db.Raw("SELECT sql FROM sqlite_master WHERE name = ?", table).Scan(&schema)
		fmt.Println(schema)
	}
}
