// Package models - database.go defines the Cluster and Database models. A cluster is the
// physical endpoint provisioning targets; a database is a logical database on a cluster.
package models

import "time"

// Cluster represents the physical/network endpoint a database lives on.
// Its connection string is the external provisioning target, never the
// metadata store's own connection.
type Cluster struct {
	ID               string
	Name             string
	ConnectionString string // Host endpoint, e.g. "pg-prod-1.internal"
	Platform         string // e.g. "postgres"
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Database represents a logical database on a cluster
type Database struct {
	ID               string
	Name             string
	ConnectionString string
	Platform         string
	Environment      string // e.g. "production", "staging"
	Mode             string
	Status           string
	ClusterID        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time // Soft delete
}

// DatabaseWithCluster is a database joined with its cluster row
type DatabaseWithCluster struct {
	Database
	ClusterName             string
	ClusterConnectionString string
	ClusterPlatform         string
}
