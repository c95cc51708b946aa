// database_utils should be the canonical place to put shared DB utils.
// It should not include:
// 1. Any util that doesn't manipulate DB
// 2. Any util that contains business logic
package utils

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Luismorlan/familyfeed/model"
)

const (
	TestDBPrefix         = "testonlydb_"
	TestDBNameCharLength = 8
)

// GormTransaction is the callback function used during db.Transaction in Gorm.
type GormTransaction func(tx *gorm.DB) error

func isTempDB(dbName string) bool {
	return strings.HasPrefix(dbName, TestDBPrefix)
}

func randomTestDBName() string {
	return TestDBPrefix + RandomAlphabetString(TestDBNameCharLength)
}

// GetDBConnection get a connection to the database specified by env
func GetDBConnection() (*gorm.DB, error) {
	return GetCustomizedConnection(os.Getenv("DB_NAME"))
}

// GetDefaultDBConnection connect to database "postgres" to manage all dbs
func GetDefaultDBConnection() (*gorm.DB, error) {
	return GetCustomizedConnection(os.Getenv("DEFAULT_DB_NAME"))
}

// GetCustomizedConnection connect to any db
func GetCustomizedConnection(dbName string) (*gorm.DB, error) {
	user, pass := os.Getenv("DB_USER"), os.Getenv("DB_PASS")
	if dbName == os.Getenv("DEFAULT_DB_NAME") {
		user, pass = os.Getenv("DEFAULT_DB_USER"), os.Getenv("DEFAULT_DB_PASS")
	}
	return getDB(DSN(dbName, user, pass))
}

// DSN builds a libpq style connection string from env host and port. It is
// shared by gorm and the LISTEN/NOTIFY relay.
func DSN(dbName, user, pass string) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable", os.Getenv("DB_HOST"), user, pass, dbName, os.Getenv("DB_PORT"))
}

// EnvDSN is DSN for the application database.
func EnvDSN() string {
	return DSN(os.Getenv("DB_NAME"), os.Getenv("DB_USER"), os.Getenv("DB_PASS"))
}

// Create a temp DB for testing, note that this function should only be called
// in a testing environment with test state manager testing.T
// It is guaranteed that this table will be dropped after each test case, user
// will not need to drop the database explicitly.
//
// Tests are skipped when no database is configured (DB_HOST unset).
func CreateTempDB(t *testing.T) (*gorm.DB, string) {
	t.Helper()
	if os.Getenv("DB_HOST") == "" {
		t.Skip("DB_HOST not set, skipping database test")
	}
	db, err := GetDefaultDBConnection()
	if err != nil {
		t.Fatalf("cannot connect to DB: %s", err)
	}
	dbName := randomTestDBName()
	if err := db.Exec("CREATE DATABASE " + dbName).Error; err != nil {
		t.Fatalf("fail to create temp DB with name %s: %s", dbName, err)
	}
	newDB, err := GetCustomizedConnection(dbName)
	if err != nil {
		t.Fatalf("fail to connect to newly created DB %s: %s", dbName, err)
	}
	if err := DatabaseSetupAndMigration(newDB); err != nil {
		t.Fatalf("fail to migrate DB %s: %s", dbName, err)
	}
	t.Cleanup(func() {
		dropTempDB(t, newDB, dbName)

		// Also proactively clean up the DB connections instead of deferring to GC.
		// Otherwise, we might exceed the DB max connection limit in test and
		// causing some tests to fail.
		conn, _ := db.DB()
		conn.Close()
	})

	return newDB, dbName
}

// dropTempDB drops a temp db with given name. This will always be called after
// CreateTempDB. It won't fail on deleting non-existing DB.
func dropTempDB(t *testing.T, curDB *gorm.DB, dbName string) {
	if !isTempDB(dbName) {
		t.Fatalf("cannot delete a non-testing DB %s", dbName)
	}

	// We need to close the current DB connection first. Otherwise it's not
	// possible to drop it.
	if sqlDB, err := curDB.DB(); err == nil {
		sqlDB.Close()
	}

	db, err := GetDefaultDBConnection()
	if err != nil {
		t.Fatalf("cannot connect to DB: %s", err)
	}
	db.Exec("DROP DATABASE IF EXISTS " + dbName)
	if conn, err := db.DB(); err == nil {
		conn.Close()
	}
}

func getDB(connectionString string) (db *gorm.DB, err error) {
	return gorm.Open(postgres.Open(connectionString), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

func DatabaseSetupAndMigration(db *gorm.DB) error {
	if err := db.SetupJoinTable(&model.Post{}, "Families", &model.PostFamilyLink{}); err != nil {
		return errors.Wrap(err, "setup join table posts <-> families")
	}
	if err := db.SetupJoinTable(&model.Family{}, "Posts", &model.PostFamilyLink{}); err != nil {
		return errors.Wrap(err, "setup join table families <-> posts")
	}
	return db.AutoMigrate(
		&model.User{},
		&model.Family{},
		&model.FamilySettings{},
		&model.Post{},
		&model.Reaction{},
	)
}

// IsDatabaseExist returns true on DB exist, returns false on not exist or error
func IsDatabaseExist(dbName string) (bool, error) {
	db, err := GetDefaultDBConnection()
	if err != nil {
		return false, err
	}

	var exists bool
	res := db.Raw("SELECT TRUE FROM pg_catalog.pg_database WHERE lower(datname) = lower(?) limit 1;", dbName).Scan(&exists)
	if res.Error != nil {
		return false, res.Error
	}

	return exists, nil
}
