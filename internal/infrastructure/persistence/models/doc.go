// Package models contains GORM persistence models that map to database tables.
// Domain entities stay free of ORM tags; each model converts with ToDomain/FromDomain.
//
// The postgres schema is owned by the SQL files under migrations/. The gorm tags here
// describe the same schema so AutoMigrate can build it on sqlite for tests.
package models
