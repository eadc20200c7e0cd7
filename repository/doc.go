// Package repository provides a generic repository built on bun: CRUD,
// filtered queries, pagination, relation loading, transactions and upserts
// across the postgres, mysql and sqlite dialects.
package repository
