//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of projauth.AccountStore.
// It supports any database GORM supports (PostgreSQL, MySQL, SQLite, etc.) whose driver
// enforces unique indexes.
//
// # Database Schema
//
// AutoMigrate creates a single accounts table with unique indexes on email and github_id
// (nullable, so accounts without a GitHub link do not collide).
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	accounts := gormstore.NewAccountStore(db)
package gorm
