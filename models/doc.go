// Package models defines the User, Message and Agent tables and the model
// definitions that bind them to a connection and declare their associations.
package models
